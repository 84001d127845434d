package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/persistence/indexdb"
	persistlog "botcraft.ai/internal/persistence/log"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/arbiter"
	"botcraft.ai/internal/sim/behavior"
	"botcraft.ai/internal/sim/pipeline"
	"botcraft.ai/internal/sim/schedule"
	"botcraft.ai/internal/sim/tuning"
	"botcraft.ai/internal/sim/world"
	"botcraft.ai/internal/transport/observer"
	"botcraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "", "world id (default: tuning world.id)")
		seed       = flag.Int64("seed", 0, "world seed (default: tuning world.seed)")
		bots       = flag.Int("bots", -1, "bot population (default: tuning world.bots)")
		workers    = flag.Int("workers", -1, "decision workers, 0 = GOMAXPROCS (default: tuning pool.workers)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning .yaml/.toml (empty for defaults)")
		logLevel   = flag.String("log_level", "", "trace|debug|info|warn|error (default: tuning log_level)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick index")
	)
	flag.Parse()

	boot := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(strings.TrimSpace(*tuningPath))
	if err != nil {
		if !os.IsNotExist(err) {
			boot.Fatalf("load tuning: %v", err)
		}
		boot.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	if *worldID != "" {
		tune.World.ID = *worldID
	}
	if *seed != 0 {
		tune.World.Seed = *seed
	}
	if *bots >= 0 {
		tune.World.Bots = *bots
	}
	if *workers >= 0 {
		tune.Pool.Workers = *workers
	}
	if *logLevel != "" {
		tune.LogLevel = *logLevel
	}
	if err := tune.Validate(); err != nil {
		boot.Fatalf("tuning: %v", err)
	}

	level, err := logging.ParseLevel(tune.LogLevel)
	if err != nil {
		boot.Fatalf("%v", err)
	}
	logger := logging.New(os.Stdout, level).With("world", tune.World.ID)
	fatal := slog.NewLogLogger(logger.Handler(), slog.LevelError)

	w := world.New(tune.WorldConfig(), logger.With("component", "world"))
	pipe := pipeline.New(tune.PipelineConfig(), w, behavior.Source(tune.Behavior), logger)
	w.Attach(pipe)

	worldDir := filepath.Join(*dataDir, "worlds", w.ID())
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		fatal.Fatalf("data dir: %v", err)
	}
	tickLog := persistlog.NewTickLogger(worldDir, w.ID(), logger.With("component", "journal"))
	pipe.AddSink(tickLog)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.sqlite"), tickLog.RunID(), logger.With("component", "indexdb"))
		if err != nil {
			fatal.Fatalf("open index: %v", err)
		}
		if err := idx.RecordTuning(context.Background(), tune); err != nil {
			logger.Warn("index: record tuning", "err", err)
		}
		pipe.AddSink(idx)
	}

	shard := shardView{World: w, pipe: pipe}
	ctrl := ws.NewServer(w, pipe, logger.With("component", "control"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, pipe, idx, ctrl))
	mux.HandleFunc("/v1/ws", ctrl.Handler())

	enableAdminHTTP := envBool("BC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("BC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		obsSrv := observer.NewServer(shard, logger.With("component", "observer"))
		pipe.AddSink(obsSrv)
		mux.HandleFunc("/admin/v1/state", stateHandler(w, pipe, idx, obsSrv, ctrl))
		mux.HandleFunc("/admin/v1/intent", obsSrv.IntentHandler())
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Info("admin endpoints disabled (BC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Info("pprof endpoints disabled (BC_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("listening", "addr", *addr, "bots", tune.World.Bots, "run_id", tickLog.RunID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	runErr := g.Wait()

	// The world loop has returned, so no Step is in flight.
	if err := pipe.Close(context.Background()); err != nil {
		if errors.Is(err, schedule.ErrShutdownTimeout) {
			fatal.Fatalf("pipeline shutdown: %v", err)
		}
		logger.Error("pipeline shutdown", "err", err)
	}
	if err := tickLog.Close(); err != nil {
		logger.Error("close tick journal", "err", err)
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Error("close index", "err", err)
		}
	}
	if runErr != nil {
		fatal.Fatalf("server: %v", runErr)
	}
	logger.Info("stopped", "tick", w.CurrentTick())
}

// shardView joins the world's identity with the pipeline's intent view for
// the observer.
type shardView struct {
	*world.World
	pipe *pipeline.Pipeline
}

func (s shardView) QueryActiveIntent(h agent.Handle) (arbiter.Intent, bool) {
	return s.pipe.QueryActiveIntent(h)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

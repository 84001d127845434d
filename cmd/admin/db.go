package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"botcraft.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id (defaults to the most recent run)")
	tick := fs.Uint64("tick", 0, "tick to show (tick query)")
	from := fs.Uint64("from_tick", 0, "range start (drops query)")
	to := fs.Uint64("to_tick", 0, "range end, 0 = open (drops query)")
	slowMs := fs.Float64("slow_ms", 50, "duration threshold (slow query)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path, "", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	o := dbQuery{
		name:   q,
		runID:  strings.TrimSpace(*runID),
		tick:   *tick,
		from:   *from,
		to:     *to,
		slowMs: *slowMs,
		limit:  *limit,
	}
	if err := runDBQuery(ctx, idx, o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

type dbQuery struct {
	name   string
	runID  string
	tick   uint64
	from   uint64
	to     uint64
	slowMs float64
	limit  int
}

func runDBQuery(ctx context.Context, idx *indexdb.SQLiteIndex, q dbQuery, out io.Writer) error {
	enc := json.NewEncoder(out)
	if q.limit <= 0 {
		q.limit = 20
	}

	runs, err := idx.Runs(ctx)
	if err != nil {
		return err
	}
	if q.name == "runs" {
		if len(runs) > q.limit {
			runs = runs[:q.limit]
		}
		for _, r := range runs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	if q.runID == "" {
		if len(runs) == 0 {
			return fmt.Errorf("no runs indexed")
		}
		q.runID = runs[0].RunID
	}

	switch q.name {
	case "tick":
		rep, err := idx.Tick(ctx, q.runID, q.tick)
		if err != nil {
			return err
		}
		return enc.Encode(rep)
	case "drops":
		totals, err := idx.DropTotals(ctx, q.runID, q.from, q.to)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{
			"run_id":    q.runID,
			"from_tick": q.from,
			"to_tick":   q.to,
			"dropped":   totals,
		})
	case "slow":
		ticks, err := idx.SlowTicks(ctx, q.runID, q.slowMs, q.limit)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{
			"run_id":  q.runID,
			"slow_ms": q.slowMs,
			"ticks":   ticks,
		})
	default:
		return fmt.Errorf("unknown query %q (want runs, tick, drops, slow)", q.name)
	}
}

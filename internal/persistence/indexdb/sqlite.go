// Package indexdb keeps a queryable sqlite index of tick summaries next to
// the JSONL journal. Writes go through a buffered channel to one writer
// goroutine; when it falls behind, entries are dropped and counted.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/applier"
)

const defaultQueue = 4096

type SQLiteIndex struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed    atomic.Bool
	written   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	commitsOK atomic.Uint64
}

// req is a report to index, or a flush barrier when done is set.
type req struct {
	rep  applier.TickReport
	done chan struct{}
}

type Stats struct {
	Written       uint64 `json:"written"`
	Dropped       uint64 `json:"dropped"`
	Failed        uint64 `json:"failed"`
	Commits       uint64 `json:"commits"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
}

// OpenSQLite opens (or creates) the index at path. runID tags every row so
// several runs can share one database.
func OpenSQLite(path, runID string, logger *slog.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:     db,
		runID:  runID,
		logger: logging.OrDiscard(logger),
		ch:     make(chan req, defaultQueue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; NORMAL is enough for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			run_id TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			drained INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			released INTEGER NOT NULL,
			preempted INTEGER NOT NULL,
			swept INTEGER NOT NULL,
			slots INTEGER NOT NULL,
			evicted INTEGER NOT NULL,
			overflowed INTEGER NOT NULL,
			stalled INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS drops (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			reason TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, reason)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_drops_reason ON drops(reason, tick);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) RunID() string { return s.runID }

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteReport enqueues rep without blocking the tick goroutine.
func (s *SQLiteIndex) WriteReport(rep applier.TickReport) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{rep: rep}:
	default:
		// The JSONL journal remains the source of truth.
		s.dropped.Add(1)
	}
}

// RecordTuning stores the effective tuning for this run, keyed by digest.
func (s *SQLiteIndex) RecordTuning(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tuning(run_id,digest,json,recorded_at) VALUES(?,?,?,?)`,
		s.runID, hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
		Commits:       s.commitsOK.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, err := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,agents,drained,applied,released,preempted,swept,slots,evicted,overflowed,stalled,skipped,dropped,duration_ms,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.logger.Error("index prepare failed", "err", err)
		s.discard()
		return
	}
	defer insertTick.Close()
	insertDrop, err := s.db.Prepare(`INSERT OR REPLACE INTO drops(run_id,tick,reason,count) VALUES(?,?,?,?)`)
	if err != nil {
		s.logger.Error("index prepare failed", "err", err)
		s.discard()
		return
	}
	defer insertDrop.Close()

	var (
		tx            *sql.Tx
		opCount       int
		pending       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.logger.Warn("index begin failed", "err", err)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.failed.Add(uint64(pending))
			s.logger.Warn("index commit failed", "err", err)
		} else {
			s.written.Add(uint64(pending))
			s.commitsOK.Add(1)
		}
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}

	write := func(rep applier.TickReport) error {
		raw, _ := json.Marshal(rep)
		if _, err := tx.Stmt(insertTick).Exec(
			s.runID,
			int64(rep.Tick),
			rep.Agents,
			rep.Drained,
			rep.Applied,
			rep.Released,
			rep.Preempted,
			rep.Swept,
			rep.Slots,
			rep.Evicted,
			rep.Overflowed,
			rep.Stalled,
			rep.Skipped,
			rep.DroppedTotal(),
			rep.DurationMS,
			string(raw),
		); err != nil {
			return err
		}
		opCount++
		for _, reason := range rep.DropReasons() {
			if _, err := tx.Stmt(insertDrop).Exec(s.runID, int64(rep.Tick), string(reason), rep.Dropped[reason]); err != nil {
				return err
			}
			opCount++
		}
		return nil
	}

	flush := time.NewTicker(commitMaxWait / 4)
	defer flush.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if r.done != nil {
				commit()
				close(r.done)
				continue
			}
			begin()
			if tx == nil {
				s.failed.Add(1)
				continue
			}
			if err := write(r.rep); err != nil {
				s.logger.Warn("index write failed", "tick", r.rep.Tick, "err", err)
				// The whole open batch is lost with the rollback.
				_ = tx.Rollback()
				s.failed.Add(uint64(pending + 1))
				tx = nil
				continue
			}
			pending++
			if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		case <-flush.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}

// Flush blocks until every report enqueued before the call is committed or
// ctx ends.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discard keeps the channel draining after the writer cannot start, so
// Flush and Close still return.
func (s *SQLiteIndex) discard() {
	for r := range s.ch {
		if r.done != nil {
			close(r.done)
			continue
		}
		s.failed.Add(1)
	}
}

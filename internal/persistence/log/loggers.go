// Package log writes the tick journal: one zstd-compressed JSONL entry per
// pipeline tick, rotated hourly under <dir>/ticks.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/applier"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v as one JSON line. Each call flushes the zstd frame so a
// crashed process loses at most the entry being written.
func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickEntry is one journal line.
type TickEntry struct {
	RunID   string             `json:"run_id"`
	WorldID string             `json:"world_id"`
	Time    time.Time          `json:"time"`
	Report  applier.TickReport `json:"report"`
}

// TickLogger journals every TickReport it is handed. It satisfies the
// pipeline's report sink; write failures are logged, never returned to the
// tick loop.
type TickLogger struct {
	w       *JSONLZstdWriter
	runID   string
	worldID string
	logger  *slog.Logger

	mu     sync.Mutex
	failed int
}

func NewTickLogger(worldDir, worldID string, logger *slog.Logger) *TickLogger {
	return &TickLogger{
		w:       NewJSONLZstdWriter(filepath.Join(worldDir, "ticks"), "ticks"),
		runID:   uuid.NewString(),
		worldID: worldID,
		logger:  logging.OrDiscard(logger),
	}
}

// RunID identifies this process's entries when several runs share a file.
func (l *TickLogger) RunID() string { return l.runID }

func (l *TickLogger) WriteTick(rep applier.TickReport) error {
	return l.w.Write(TickEntry{
		RunID:   l.runID,
		WorldID: l.worldID,
		Time:    l.w.now().UTC(),
		Report:  rep,
	})
}

func (l *TickLogger) WriteReport(rep applier.TickReport) {
	if err := l.WriteTick(rep); err != nil {
		l.mu.Lock()
		l.failed++
		n := l.failed
		l.mu.Unlock()
		// Log the first failure and every 100th after it.
		if n == 1 || n%100 == 0 {
			l.logger.Error("tick journal write failed", "tick", rep.Tick, "failures", n, "err", err)
		}
	}
}

func (l *TickLogger) Close() error { return l.w.Close() }

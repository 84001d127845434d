package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"botcraft.ai/internal/sim/applier"
)

var ErrNotFound = errors.New("not found")

// Tick returns the indexed report for one tick of a run.
func (s *SQLiteIndex) Tick(ctx context.Context, runID string, tick uint64) (applier.TickReport, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT raw_json FROM ticks WHERE run_id=? AND tick=?`, runID, int64(tick)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return applier.TickReport{}, ErrNotFound
	}
	if err != nil {
		return applier.TickReport{}, err
	}
	var rep applier.TickReport
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return applier.TickReport{}, err
	}
	return rep, nil
}

// DropTotals sums drops per reason over a tick range [from, to] of a run.
// to == 0 means no upper bound.
func (s *SQLiteIndex) DropTotals(ctx context.Context, runID string, from, to uint64) (map[applier.DropReason]int, error) {
	q := `SELECT reason, SUM(count) FROM drops WHERE run_id=? AND tick>=?`
	args := []any{runID, int64(from)}
	if to > 0 {
		q += ` AND tick<=?`
		args = append(args, int64(to))
	}
	q += ` GROUP BY reason`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[applier.DropReason]int{}
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[applier.DropReason(reason)] = n
	}
	return out, rows.Err()
}

// SlowTicks returns the ticks of a run whose duration exceeded ms, slowest
// first, at most limit rows.
func (s *SQLiteIndex) SlowTicks(ctx context.Context, runID string, ms float64, limit int) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tick FROM ticks WHERE run_id=? AND duration_ms>? ORDER BY duration_ms DESC LIMIT ?`,
		runID, ms, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, uint64(t))
	}
	return out, rows.Err()
}

type RunSummary struct {
	RunID    string  `json:"run_id"`
	Ticks    int     `json:"ticks"`
	First    uint64  `json:"first_tick"`
	Last     uint64  `json:"last_tick"`
	Dropped  int     `json:"dropped"`
	MaxMs    float64 `json:"max_ms"`
	Recorded string  `json:"recorded_at,omitempty"`
}

// Runs lists every run in the index, most recently recorded first.
func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.run_id, COUNT(*), MIN(t.tick), MAX(t.tick), SUM(t.dropped), MAX(t.duration_ms),
			COALESCE(u.recorded_at, '')
		FROM ticks t LEFT JOIN tuning u ON u.run_id = t.run_id
		GROUP BY t.run_id
		ORDER BY COALESCE(u.recorded_at, '') DESC, t.run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var first, last int64
		if err := rows.Scan(&r.RunID, &r.Ticks, &first, &last, &r.Dropped, &r.MaxMs, &r.Recorded); err != nil {
			return nil, err
		}
		r.First, r.Last = uint64(first), uint64(last)
		out = append(out, r)
	}
	return out, rows.Err()
}

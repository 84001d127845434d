package decision

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
)

type RunnerStats struct {
	Executed uint64 `json:"executed"`
	Skipped  uint64 `json:"skipped"`
	Stalled  uint64 `json:"stalled"`
	Panics   uint64 `json:"panics"`
	Emitted  uint64 `json:"emitted"`
}

// Runner executes Tasks on pool workers and forwards their actions.
type Runner struct {
	submit func(action.Action)
	budget time.Duration
	log    *slog.Logger

	// busy holds agents whose abandoned decider is still running.
	busy sync.Map

	executed atomic.Uint64
	skipped  atomic.Uint64
	stalled  atomic.Uint64
	panics   atomic.Uint64
	emitted  atomic.Uint64
}

// NewRunner builds a runner. budget <= 0 disables the stall check and runs
// deciders inline on the worker.
func NewRunner(submit func(action.Action), budget time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		submit: submit,
		budget: budget,
		log:    logging.OrDiscard(logger),
	}
}

// Busy reports whether a previous, abandoned run for a is still executing.
// The dispatcher skips such agents so one decider never runs twice at once.
func (r *Runner) Busy(a agent.Handle) bool {
	_, ok := r.busy.Load(a)
	return ok
}

// Run is the pool entry point.
func (r *Runner) Run(workerID int, t Task) {
	if t.Barrier != nil {
		defer t.Barrier.Done()
	}
	if t.Decider == nil || !t.Snapshot.Valid() || t.Snapshot.Agent != t.Agent {
		// Handle went stale between dispatch and capture: nothing to decide.
		r.skipped.Add(1)
		return
	}
	acts, ok := r.decide(workerID, t)
	r.executed.Add(1)
	if !ok {
		return
	}
	for _, a := range acts {
		if a.Agent.IsNil() {
			a.Agent = t.Agent
		}
		r.submit(a)
	}
	r.emitted.Add(uint64(len(acts)))
}

type result struct {
	acts []action.Action
	ok   bool
}

func (r *Runner) decide(workerID int, t Task) ([]action.Action, bool) {
	if r.budget <= 0 {
		return r.call(context.Background(), workerID, t)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.budget)
	defer cancel()

	r.busy.Store(t.Agent, struct{}{})
	out := make(chan result, 1)
	go func() {
		acts, ok := r.call(ctx, workerID, t)
		r.busy.Delete(t.Agent)
		out <- result{acts: acts, ok: ok}
	}()

	select {
	case res := <-out:
		return res.acts, res.ok
	case <-ctx.Done():
		r.stalled.Add(1)
		r.log.Error("decision task stalled, abandoning",
			"agent", t.Agent, "tick", t.Tick, "worker", workerID, "budget", r.budget)
		return nil, false
	}
}

func (r *Runner) call(ctx context.Context, workerID int, t Task) (acts []action.Action, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.log.Error("decider panicked", "agent", t.Agent, "tick", t.Tick, "worker", workerID, "panic", rec)
			acts, ok = nil, false
		}
	}()
	return t.Decider.Decide(ctx, t.Snapshot), true
}

func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Executed: r.executed.Load(),
		Skipped:  r.skipped.Load(),
		Stalled:  r.stalled.Load(),
		Panics:   r.panics.Load(),
		Emitted:  r.emitted.Load(),
	}
}

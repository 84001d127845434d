// Package decision runs per-agent decision logic on pool workers. A Task only
// carries an immutable snapshot, so a decider can never touch live world
// state or block on a lock the tick goroutine holds.
package decision

import (
	"context"
	"time"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/snapshot"
)

// Decider computes the next actions for one agent from its snapshot.
// Implementations must not retain or mutate shared state beyond their own agent.
type Decider interface {
	Decide(ctx context.Context, snap snapshot.Snapshot) []action.Action
}

type DeciderFunc func(ctx context.Context, snap snapshot.Snapshot) []action.Action

func (f DeciderFunc) Decide(ctx context.Context, snap snapshot.Snapshot) []action.Action {
	return f(ctx, snap)
}

// Task is one "compute next intents for this agent" unit. Immutable once built.
type Task struct {
	Agent       agent.Handle
	Tick        uint64
	Snapshot    snapshot.Snapshot
	SubmittedAt time.Time
	Decider     Decider
	// Barrier is signalled exactly once when the task finishes or is abandoned.
	Barrier *Barrier
}

package arbiter

import (
	"time"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
)

// Intent is the diagnostic view of an agent's active slot.
type Intent struct {
	Agent     agent.Handle `json:"agent"`
	Priority  uint8        `json:"priority"`
	Tier      string       `json:"tier"`
	Source    string       `json:"source"`
	ActionID  uint64       `json:"action_id"`
	HeldSince time.Time    `json:"held_since"`
}

// View is an immutable copy of the slot table.
type View struct {
	Tick    uint64
	Intents map[agent.Handle]Intent
	Stats   Stats
}

// Publish snapshots the slot table for lock-free readers.
func (a *Arbiter) Publish(tick uint64) {
	m := make(map[agent.Handle]Intent, len(a.slots))
	for ag, s := range a.slots {
		m[ag] = Intent{
			Agent:     ag,
			Priority:  s.Priority,
			Tier:      action.TierName(s.Priority),
			Source:    s.Source,
			ActionID:  s.ActionID,
			HeldSince: s.HeldSince,
		}
	}
	a.view.Store(&View{Tick: tick, Intents: m, Stats: a.Stats()})
}

// Query is safe from any goroutine. It reflects the last Publish.
func (a *Arbiter) Query(ag agent.Handle) (Intent, bool) {
	in, ok := a.view.Load().Intents[ag]
	return in, ok
}

// Published returns the last published view. Callers must not modify it.
func (a *Arbiter) Published() *View { return a.view.Load() }

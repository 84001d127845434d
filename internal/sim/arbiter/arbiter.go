// Package arbiter resolves competing movement/action intents. Each agent has
// at most one slot; a slot changes hands only to a strictly higher priority,
// on expiry, or on release by its holder.
//
// All mutating methods belong to the tick goroutine. Other goroutines read
// the table through Query, which serves the copy stored by Publish.
package arbiter

import (
	"log/slog"
	"sync/atomic"
	"time"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
)

const DefaultMaxHold = 3 * time.Second

type Config struct {
	// MaxHold bounds how long a slot survives without renewal or release.
	// <= 0 uses DefaultMaxHold.
	MaxHold time.Duration
}

// Slot is the active intent for one agent.
type Slot struct {
	Priority    uint8         `json:"priority"`
	Source      string        `json:"source"`
	ActionID    uint64        `json:"action_id"`
	Kind        action.Kind   `json:"kind"`
	HeldSince   time.Time     `json:"held_since"`
	// SubmittedAt is the submission time of the grant that opened the hold.
	// Renewals by the same source keep it.
	SubmittedAt time.Time     `json:"submitted_at"`
	ExpiresAt   time.Time     `json:"expires_at,omitempty"`
	MaxHold     time.Duration `json:"max_hold"`
}

// Expired reports whether the slot can be taken by anyone at now.
func (s Slot) Expired(now time.Time) bool {
	if s.MaxHold > 0 && now.Sub(s.HeldSince) >= s.MaxHold {
		return true
	}
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

type Request struct {
	Agent       agent.Handle
	Priority    uint8
	Source      string
	ActionID    uint64
	Kind        action.Kind
	SubmittedAt time.Time
	ExpiresAt   time.Time
	Now         time.Time
}

// RequestFor builds the arbitration request for a drained action.
func RequestFor(a action.Action, now time.Time) Request {
	return Request{
		Agent:       a.Agent,
		Priority:    a.Priority,
		Source:      a.Source,
		ActionID:    a.ID,
		Kind:        a.Kind,
		SubmittedAt: a.SubmittedAt,
		ExpiresAt:   a.ExpiresAt,
		Now:         now,
	}
}

type Reason string

const (
	ReasonFree             Reason = "free"
	ReasonExpired          Reason = "expired"
	ReasonHigherPriority   Reason = "higher_priority"
	ReasonRenewed          Reason = "renewed"
	ReasonEarlierTie       Reason = "earlier_submission"
	ReasonLowerPriority    Reason = "lower_priority"
	ReasonIncumbentWinsTie Reason = "incumbent_wins_tie"
)

type Decision struct {
	Granted bool
	Reason  Reason
	// Incumbent is the slot that was in place when the request arrived.
	Incumbent *Slot
	// Preempted is set when a live incumbent lost its slot to this request.
	Preempted *Slot
}

type Stats struct {
	Slots       int    `json:"slots"`
	Grants      uint64 `json:"grants"`
	Renewals    uint64 `json:"renewals"`
	Rejections  uint64 `json:"rejections"`
	Preemptions uint64 `json:"preemptions"`
	Expiries    uint64 `json:"expiries"`
	Releases    uint64 `json:"releases"`
}

type Arbiter struct {
	cfg   Config
	log   *slog.Logger
	slots map[agent.Handle]Slot
	view  atomic.Pointer[View]
	stats Stats
}

func New(cfg Config, logger *slog.Logger) *Arbiter {
	if cfg.MaxHold <= 0 {
		cfg.MaxHold = DefaultMaxHold
	}
	a := &Arbiter{
		cfg:   cfg,
		log:   logging.OrDiscard(logger),
		slots: map[agent.Handle]Slot{},
	}
	a.view.Store(&View{})
	return a
}

func (a *Arbiter) MaxHold() time.Duration { return a.cfg.MaxHold }

// TryAcquire decides whether r takes the agent's slot.
func (a *Arbiter) TryAcquire(r Request) Decision {
	cur, held := a.slots[r.Agent]
	if !held {
		a.grant(r, r.Now, r.SubmittedAt)
		return Decision{Granted: true, Reason: ReasonFree}
	}
	inc := cur
	switch {
	case cur.Expired(r.Now):
		a.stats.Expiries++
		a.grant(r, r.Now, r.SubmittedAt)
		return Decision{Granted: true, Reason: ReasonExpired, Incumbent: &inc}

	case r.Priority > cur.Priority:
		a.preempt(r, &inc)
		return Decision{Granted: true, Reason: ReasonHigherPriority, Incumbent: &inc, Preempted: &inc}

	case r.Priority == cur.Priority && r.Source == cur.Source:
		a.stats.Renewals++
		a.grant(r, cur.HeldSince, cur.SubmittedAt)
		return Decision{Granted: true, Reason: ReasonRenewed, Incumbent: &inc}

	case r.Priority == cur.Priority && r.SubmittedAt.Before(cur.SubmittedAt):
		a.preempt(r, &inc)
		return Decision{Granted: true, Reason: ReasonEarlierTie, Incumbent: &inc, Preempted: &inc}
	}

	reason := ReasonLowerPriority
	if r.Priority == cur.Priority {
		reason = ReasonIncumbentWinsTie
	}
	a.stats.Rejections++
	logging.Trace(a.log, "arbitration rejected",
		"agent", r.Agent, "action", r.ActionID, "rejected_priority", r.Priority, "rejected_source", r.Source,
		"incumbent_priority", cur.Priority, "incumbent_source", cur.Source, "reason", reason)
	return Decision{Reason: reason, Incumbent: &inc}
}

func (a *Arbiter) preempt(r Request, inc *Slot) {
	a.stats.Preemptions++
	a.grant(r, r.Now, r.SubmittedAt)
	logging.Trace(a.log, "intent preempted",
		"agent", r.Agent, "priority", r.Priority, "source", r.Source,
		"preempted_priority", inc.Priority, "preempted_source", inc.Source,
		"preempted_tier", action.TierName(inc.Priority))
}

func (a *Arbiter) grant(r Request, heldSince, submittedAt time.Time) {
	a.stats.Grants++
	a.slots[r.Agent] = Slot{
		Priority:    r.Priority,
		Source:      r.Source,
		ActionID:    r.ActionID,
		Kind:        r.Kind,
		HeldSince:   heldSince,
		SubmittedAt: submittedAt,
		ExpiresAt:   r.ExpiresAt,
		MaxHold:     a.cfg.MaxHold,
	}
}

// Release drops the agent's slot if source still holds it.
func (a *Arbiter) Release(ag agent.Handle, source string) bool {
	cur, ok := a.slots[ag]
	if !ok || cur.Source != source {
		return false
	}
	delete(a.slots, ag)
	a.stats.Releases++
	return true
}

// Forget drops the slot unconditionally, e.g. when the agent is gone.
func (a *Arbiter) Forget(ag agent.Handle) {
	delete(a.slots, ag)
}

// Get returns the current slot. Tick goroutine only.
func (a *Arbiter) Get(ag agent.Handle) (Slot, bool) {
	s, ok := a.slots[ag]
	return s, ok
}

// Sweep removes expired slots and returns how many it removed.
func (a *Arbiter) Sweep(now time.Time) int {
	n := 0
	for ag, s := range a.slots {
		if s.Expired(now) {
			delete(a.slots, ag)
			n++
		}
	}
	a.stats.Expiries += uint64(n)
	return n
}

func (a *Arbiter) Len() int { return len(a.slots) }

// Stats is tick goroutine only; Publish carries a copy for other readers.
func (a *Arbiter) Stats() Stats {
	s := a.stats
	s.Slots = len(a.slots)
	return s
}

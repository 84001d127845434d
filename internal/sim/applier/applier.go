// Package applier is the tick goroutine's end of the pipeline: it takes the
// actions drained for a tick, re-validates them against live state, runs
// them through the arbiter and applies the winners.
package applier

import (
	"fmt"
	"log/slog"
	"time"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/arbiter"
)

const DefaultDedupeTTLTicks = uint64(64)

type Config struct {
	// DedupeTTLTicks is how long an applied action id is remembered.
	DedupeTTLTicks uint64
	// Watermark returns the highest action id issued so far. Once an id's
	// dedupe entry lapses, any id at or below the watermark sampled
	// DedupeTTLTicks earlier is still refused.
	Watermark func() uint64
}

type Stats struct {
	Applied  uint64                `json:"applied"`
	Released uint64                `json:"released"`
	Dropped  map[DropReason]uint64 `json:"dropped"`
}

type Applier struct {
	cfg   Config
	world World
	arb   *arbiter.Arbiter
	log   *slog.Logger

	// seen maps action id to the tick its dedupe entry expires.
	seen    map[uint64]uint64
	expiry  map[uint64][]uint64
	sweptTo uint64

	// marks holds one watermark sample per tick still inside the window;
	// floor is the newest sample that has left it.
	marks []mark
	floor uint64

	applied  uint64
	released uint64
	dropped  map[DropReason]uint64
}

func New(cfg Config, w World, arb *arbiter.Arbiter, logger *slog.Logger) *Applier {
	if cfg.DedupeTTLTicks == 0 {
		cfg.DedupeTTLTicks = DefaultDedupeTTLTicks
	}
	// An id stamped after a tick's drain is drained on the next one, so
	// the floor must trail by at least two ticks.
	cfg.DedupeTTLTicks = max(cfg.DedupeTTLTicks, 2)
	return &Applier{
		cfg:     cfg,
		world:   w,
		arb:     arb,
		log:     logging.OrDiscard(logger),
		seen:    map[uint64]uint64{},
		expiry:  map[uint64][]uint64{},
		dropped: map[DropReason]uint64{},
	}
}

type mark struct {
	tick, id uint64
}

type winner struct {
	act    action.Action
	self   LiveRef
	target LiveRef
	live   bool
}

// Apply runs one tick's worth of drained actions, in drain order.
func (ap *Applier) Apply(tick uint64, acts []action.Action, now time.Time) TickReport {
	start := time.Now()
	rep := TickReport{Tick: tick, Drained: len(acts), Dropped: map[DropReason]int{}}

	for _, c := range ap.world.DrainCompletions() {
		if ap.arb.Release(c.Agent, c.Source) {
			rep.Released++
		}
	}
	ap.expireSeen(tick)
	ap.advanceFloor(tick)

	// Phase 1: arbitrate everything so a later, stronger action in the same
	// batch wins before anything touches the world.
	winners := make([]winner, 0, len(acts))
	byAgent := make(map[agent.Handle]int, len(acts))
	for _, a := range acts {
		if a.ID != 0 {
			if _, dup := ap.seen[a.ID]; dup || a.ID <= ap.floor {
				ap.drop(&rep, a, DropDuplicate)
				continue
			}
			exp := tick + ap.cfg.DedupeTTLTicks
			ap.seen[a.ID] = exp
			ap.expiry[exp] = append(ap.expiry[exp], a.ID)
		}
		if a.Expired(now) {
			ap.drop(&rep, a, DropExpired)
			continue
		}
		self, ok := ap.world.Resolve(a.Agent)
		if !ok {
			ap.arb.Forget(a.Agent)
			ap.drop(&rep, a, DropStaleHandle)
			continue
		}
		target, ok := ap.resolveTargets(a)
		if !ok {
			ap.drop(&rep, a, DropStaleHandle)
			continue
		}

		if a.Kind == action.KindRelease {
			if i, ok := byAgent[a.Agent]; ok && winners[i].live && winners[i].act.Source == a.Source {
				winners[i].live = false
				ap.drop(&rep, winners[i].act, DropReleased)
			}
			if ap.arb.Release(a.Agent, a.Source) {
				rep.Released++
			}
			continue
		}

		d := ap.arb.TryAcquire(arbiter.RequestFor(a, now))
		if !d.Granted {
			ap.drop(&rep, a, DropArbitrationRejected)
			continue
		}
		if d.Preempted != nil {
			rep.Preempted++
		}
		if i, ok := byAgent[a.Agent]; ok && winners[i].live {
			winners[i].live = false
			ap.drop(&rep, winners[i].act, DropPreempted)
		}
		byAgent[a.Agent] = len(winners)
		winners = append(winners, winner{act: a, self: self, target: target, live: true})
	}

	// Phase 2: apply.
	for _, w := range winners {
		if !w.live {
			continue
		}
		if err := ap.apply(w); err != nil {
			ap.arb.Release(w.act.Agent, w.act.Source)
			ap.log.Debug("apply failed", "tick", tick, "action", w.act.String(), "err", err)
			ap.drop(&rep, w.act, DropApplyFailed)
			continue
		}
		rep.Applied++
		// Casts and interactions land in full here; only moves keep
		// running and report a Completion.
		if w.act.Kind == action.KindCast || w.act.Kind == action.KindInteract {
			ap.arb.Release(w.act.Agent, w.act.Source)
		}
	}

	rep.Swept = ap.arb.Sweep(now)
	ap.arb.Publish(tick)
	rep.Slots = ap.arb.Len()
	rep.ApplyMS = float64(time.Since(start).Microseconds()) / 1000

	ap.applied += uint64(rep.Applied)
	ap.released += uint64(rep.Released)
	if len(rep.Dropped) == 0 {
		rep.Dropped = nil
	}
	return rep
}

// resolveTargets checks that every referenced agent is still live and returns
// the first one (actions reference at most one today).
func (ap *Applier) resolveTargets(a action.Action) (LiveRef, bool) {
	var first LiveRef
	for i, h := range a.Targets() {
		ref, ok := ap.world.Resolve(h)
		if !ok {
			return LiveRef{}, false
		}
		if i == 0 {
			first = ref
		}
	}
	return first, true
}

func (ap *Applier) apply(w winner) error {
	switch w.act.Kind {
	case action.KindMove:
		return ap.world.ApplyMove(w.self, w.act.Move, w.act.Source)
	case action.KindInteract:
		return ap.world.ApplyInteract(w.self, w.target, w.act.Interact.Verb)
	case action.KindCast:
		return ap.world.ApplyCast(w.self, w.act.Cast.Ability, w.target)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, w.act.Kind)
	}
}

func (ap *Applier) drop(rep *TickReport, a action.Action, reason DropReason) {
	rep.Dropped[reason]++
	ap.dropped[reason]++
	logging.Trace(ap.log, "action dropped",
		"tick", rep.Tick, "agent", a.Agent, "id", a.ID, "kind", a.Kind, "priority", a.Priority,
		"source", a.Source, "reason", reason)
}

// expireSeen forgets ids whose dedupe window ended at or before tick.
func (ap *Applier) expireSeen(tick uint64) {
	if tick < ap.sweptTo {
		return
	}
	if ap.sweptTo == 0 || tick-ap.sweptTo > ap.cfg.DedupeTTLTicks {
		for t, ids := range ap.expiry {
			if t > tick {
				continue
			}
			for _, id := range ids {
				delete(ap.seen, id)
			}
			delete(ap.expiry, t)
		}
	} else {
		for t := ap.sweptTo; t <= tick; t++ {
			for _, id := range ap.expiry[t] {
				delete(ap.seen, id)
			}
			delete(ap.expiry, t)
		}
	}
	ap.sweptTo = tick + 1
}

func (ap *Applier) advanceFloor(tick uint64) {
	if ap.cfg.Watermark == nil {
		return
	}
	for len(ap.marks) > 0 && ap.marks[0].tick+ap.cfg.DedupeTTLTicks <= tick {
		ap.floor = max(ap.floor, ap.marks[0].id)
		ap.marks = ap.marks[1:]
	}
	ap.marks = append(ap.marks, mark{tick: tick, id: ap.cfg.Watermark()})
}

// Stats is tick goroutine only.
func (ap *Applier) Stats() Stats {
	s := Stats{Applied: ap.applied, Released: ap.released, Dropped: make(map[DropReason]uint64, len(ap.dropped))}
	for k, v := range ap.dropped {
		s.Dropped[k] = v
	}
	return s
}

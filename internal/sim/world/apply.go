package world

import (
	"errors"
	"fmt"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
)

const interruptReach = 8.0

var (
	ErrUnknownAgent = errors.New("unknown agent")
	errOutOfRange   = errors.New("target out of range")
	errFriendly     = errors.New("target is friendly")
	errHostile      = errors.New("target is hostile")
	errNotCasting   = errors.New("target is not casting")
)

func (w *World) Resolve(h agent.Handle) (applier.LiveRef, bool) {
	if _, ok := w.agents[h]; !ok || !w.reg.Valid(h) {
		return applier.LiveRef{}, false
	}
	return applier.LiveRef{Handle: h, Index: int(h.Index())}, true
}

func (w *World) live(ref applier.LiveRef) (*Agent, error) {
	a, ok := w.agents[ref.Handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", applier.ErrStaleHandle, ref.Handle)
	}
	return a, nil
}

func (w *World) ApplyMove(self applier.LiveRef, m action.Move, source string) error {
	a, err := w.live(self)
	if err != nil {
		return err
	}
	switch m.Kind {
	case action.MoveStop:
	case action.MovePoint:
		a.Dest = w.clamp(m.Destination)
	case action.MoveChase, action.MoveFollow:
		if _, ok := w.agents[m.Target]; !ok {
			return fmt.Errorf("%w: %s", applier.ErrStaleHandle, m.Target)
		}
		a.Follow, a.Offset = m.Target, m.Offset
	default:
		return fmt.Errorf("%w: move %s", applier.ErrUnknownAction, m.Kind)
	}
	a.MoveKind, a.MoveSource = m.Kind, source
	w.counters.moves++
	return nil
}

func (w *World) ApplyInteract(self, target applier.LiveRef, verb string) error {
	a, err := w.live(self)
	if err != nil {
		return err
	}
	t, err := w.live(target)
	if err != nil {
		return err
	}
	if a.Pos.Dist(t.Pos) > w.cfg.InteractRange {
		return errOutOfRange
	}
	switch verb {
	case "mend":
		if t.Team != a.Team {
			return errHostile
		}
		t.Health = min(t.MaxHealth, t.Health+w.cfg.HealAmount/2)
	default:
		return fmt.Errorf("%w: verb %q", applier.ErrUnknownAction, verb)
	}
	w.counters.interacts++
	return nil
}

func (w *World) ApplyCast(self applier.LiveRef, ability uint32, target applier.LiveRef) error {
	a, err := w.live(self)
	if err != nil {
		return err
	}
	var t *Agent
	if !target.IsZero() {
		if t, err = w.live(target); err != nil {
			return err
		}
	}
	switch ability {
	case action.AbilityAttack:
		if t == nil || t.Team == a.Team {
			return errFriendly
		}
		if a.Pos.Dist(t.Pos) > w.cfg.MeleeRange {
			return errOutOfRange
		}
		t.Health -= w.cfg.AttackDamage
	case action.AbilityInterrupt:
		if t == nil || t.Team == a.Team {
			return errFriendly
		}
		if a.Pos.Dist(t.Pos) > interruptReach {
			return errOutOfRange
		}
		if t.CastingUntil == 0 {
			return errNotCasting
		}
		t.CastingUntil = 0
		w.counters.interrupts++
	case action.AbilityHeal:
		if t == nil {
			t = a
		}
		t.Health = min(t.MaxHealth, t.Health+w.cfg.HealAmount)
	default:
		return fmt.Errorf("%w: ability %d", applier.ErrUnknownAction, ability)
	}
	w.counters.casts++
	return nil
}

func (w *World) DrainCompletions() []applier.Completion {
	out := w.completions
	w.completions = nil
	return out
}

package protocol

import (
	"errors"
	"fmt"
	"time"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
)

// RemoteSource prefixes every source a client names, so remote intents can
// never impersonate a built-in decision source.
const RemoteSource = "remote"

var (
	ErrBadAct    = errors.New("bad act")
	ErrBadTarget = errors.New("bad target")
)

func SourceFor(s string) string {
	if s == "" {
		return RemoteSource
	}
	return RemoteSource + "." + s
}

var moveKinds = map[string]action.MoveKind{
	"POINT":  action.MovePoint,
	"CHASE":  action.MoveChase,
	"FOLLOW": action.MoveFollow,
	"STOP":   action.MoveStop,
}

// ToAction builds the action for self. Priority is capped at maxPrio; a TTL
// dates the action from now.
func (m ActMsg) ToAction(self agent.Handle, maxPrio uint8, now time.Time) (action.Action, error) {
	prio := m.Priority
	if prio > maxPrio {
		prio = maxPrio
	}
	src := SourceFor(m.Source)

	var a action.Action
	switch m.Kind {
	case action.KindMove.String():
		mk, ok := moveKinds[m.MoveKind]
		if !ok {
			return a, fmt.Errorf("%w: move_kind %q", ErrBadAct, m.MoveKind)
		}
		mv := action.Move{Kind: mk, Target: m.Target}
		switch mk {
		case action.MovePoint:
			if m.Destination == nil {
				return a, fmt.Errorf("%w: POINT needs destination", ErrBadAct)
			}
			mv.Destination = *m.Destination
		case action.MoveChase, action.MoveFollow:
			if m.Target.IsNil() {
				return a, fmt.Errorf("%w: %s needs target", ErrBadTarget, m.MoveKind)
			}
			if m.Target == self {
				return a, fmt.Errorf("%w: cannot %s self", ErrBadTarget, m.MoveKind)
			}
			if m.Offset != nil {
				mv.Offset = *m.Offset
			}
		}
		a = action.NewMove(self, prio, src, mv)
	case action.KindInteract.String():
		if m.Verb == "" {
			return a, fmt.Errorf("%w: INTERACT needs verb", ErrBadAct)
		}
		if m.Target.IsNil() || m.Target == self {
			return a, fmt.Errorf("%w: INTERACT needs another agent", ErrBadTarget)
		}
		a = action.NewInteract(self, prio, src, m.Target, m.Verb)
	case action.KindCast.String():
		if m.Ability == 0 {
			return a, fmt.Errorf("%w: CAST needs ability", ErrBadAct)
		}
		a = action.NewCast(self, prio, src, m.Ability, m.Target)
	default:
		return a, fmt.Errorf("%w: kind %q", ErrBadAct, m.Kind)
	}
	if m.TTLMs > 0 {
		a = a.WithExpiry(now.Add(time.Duration(m.TTLMs) * time.Millisecond))
	}
	return a, nil
}

func (m ReleaseMsg) ToAction(self agent.Handle) action.Action {
	return action.NewRelease(self, SourceFor(m.Source))
}

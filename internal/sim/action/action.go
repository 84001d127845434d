// Package action defines the immutable Action values that flow from decision
// workers to the owning tick goroutine.
package action

import (
	"fmt"
	"time"

	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
)

type Kind uint8

const (
	KindMove Kind = iota + 1
	KindInteract
	KindCast
	// KindRelease gives up the agent's arbitration slot held by Source.
	KindRelease
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "MOVE"
	case KindInteract:
		return "INTERACT"
	case KindCast:
		return "CAST"
	case KindRelease:
		return "RELEASE"
	default:
		return fmt.Sprintf("KIND_%d", uint8(k))
	}
}

type MoveKind uint8

const (
	MovePoint MoveKind = iota + 1
	MoveChase
	MoveFollow
	MoveStop
)

func (k MoveKind) String() string {
	switch k {
	case MovePoint:
		return "POINT"
	case MoveChase:
		return "CHASE"
	case MoveFollow:
		return "FOLLOW"
	case MoveStop:
		return "STOP"
	default:
		return fmt.Sprintf("MOVE_%d", uint8(k))
	}
}

// Move targets a destination (Point), another agent (Chase/Follow), or halts (Stop).
type Move struct {
	Kind        MoveKind     `json:"kind"`
	Destination geom.Vec3    `json:"destination"`
	Target      agent.Handle `json:"target,omitempty"`
	// Offset is applied to the target position for Follow (formation slot).
	Offset geom.Vec3 `json:"offset"`
}

type Interact struct {
	Target agent.Handle `json:"target"`
	Verb   string       `json:"verb"`
}

// Ability ids understood by the world.
const (
	AbilityAttack    uint32 = 1
	AbilityInterrupt uint32 = 2
	AbilityHeal      uint32 = 3
)

type Cast struct {
	Ability uint32       `json:"ability"`
	Target  agent.Handle `json:"target,omitempty"`
}

// Action is a request to change one agent's state. Values are never mutated
// after construction; copy and re-stamp instead.
type Action struct {
	ID          uint64       `json:"id"`
	Agent       agent.Handle `json:"agent"`
	Priority    uint8        `json:"priority"`
	Source      string       `json:"source"`
	SubmittedAt time.Time    `json:"submitted_at"`
	// ExpiresAt zero means the action is only valid for the tick that drains it.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Kind      Kind      `json:"kind"`

	Move     Move     `json:"move,omitempty"`
	Interact Interact `json:"interact,omitempty"`
	Cast     Cast     `json:"cast,omitempty"`
}

func NewMove(a agent.Handle, prio uint8, source string, m Move) Action {
	return Action{Agent: a, Priority: prio, Source: source, Kind: KindMove, Move: m}
}

func MoveTo(a agent.Handle, prio uint8, source string, dst geom.Vec3) Action {
	return NewMove(a, prio, source, Move{Kind: MovePoint, Destination: dst})
}

func NewInteract(a agent.Handle, prio uint8, source string, target agent.Handle, verb string) Action {
	return Action{Agent: a, Priority: prio, Source: source, Kind: KindInteract, Interact: Interact{Target: target, Verb: verb}}
}

func NewCast(a agent.Handle, prio uint8, source string, ability uint32, target agent.Handle) Action {
	return Action{Agent: a, Priority: prio, Source: source, Kind: KindCast, Cast: Cast{Ability: ability, Target: target}}
}

// NewRelease asks the arbiter to drop the slot held by source, if source still holds it.
func NewRelease(a agent.Handle, source string) Action {
	return Action{Agent: a, Source: source, Kind: KindRelease}
}

// WithExpiry returns a copy valid until t.
func (a Action) WithExpiry(t time.Time) Action {
	a.ExpiresAt = t
	return a
}

// Targets lists every other agent the action references; all must still be
// live when the action is applied.
func (a Action) Targets() []agent.Handle {
	switch a.Kind {
	case KindMove:
		if (a.Move.Kind == MoveChase || a.Move.Kind == MoveFollow) && !a.Move.Target.IsNil() {
			return []agent.Handle{a.Move.Target}
		}
	case KindInteract:
		if !a.Interact.Target.IsNil() {
			return []agent.Handle{a.Interact.Target}
		}
	case KindCast:
		if !a.Cast.Target.IsNil() {
			return []agent.Handle{a.Cast.Target}
		}
	}
	return nil
}

// Expired reports whether a dated action has passed its expiry at now.
func (a Action) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

func (a Action) String() string {
	switch a.Kind {
	case KindMove:
		return fmt.Sprintf("#%d %s %s/%s p=%d src=%s", a.ID, a.Agent, a.Kind, a.Move.Kind, a.Priority, a.Source)
	default:
		return fmt.Sprintf("#%d %s %s p=%d src=%s", a.ID, a.Agent, a.Kind, a.Priority, a.Source)
	}
}

package applier

import (
	"errors"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
)

var (
	ErrStaleHandle   = errors.New("stale handle")
	ErrUnknownAction = errors.New("unknown action kind")
)

// LiveRef is a resolved agent, valid only for the current apply pass.
type LiveRef struct {
	Handle agent.Handle
	Index  int
}

func (r LiveRef) IsZero() bool { return r.Handle.IsNil() }

// Completion reports that the world finished an intent on its own, e.g. a
// move arrived. The slot held by Source is released.
type Completion struct {
	Agent  agent.Handle `json:"agent"`
	Source string       `json:"source"`
}

// World is the authoritative simulation as seen by the applier. Every method
// runs on the tick goroutine.
type World interface {
	Resolve(h agent.Handle) (LiveRef, bool)
	ApplyMove(self LiveRef, m action.Move, source string) error
	ApplyInteract(self, target LiveRef, verb string) error
	// target is zero for untargeted casts.
	ApplyCast(self LiveRef, ability uint32, target LiveRef) error
	DrainCompletions() []Completion
}

package action

import (
	"sync/atomic"
	"time"
)

// Sequence stamps actions with process-unique, monotonically increasing ids.
// Safe for concurrent use.
type Sequence struct {
	next atomic.Uint64
	now  func() time.Time
}

func NewSequence(now func() time.Time) *Sequence {
	if now == nil {
		now = time.Now
	}
	return &Sequence{now: now}
}

// Stamp returns a copy of a with a fresh ID and, when unset, SubmittedAt.
func (s *Sequence) Stamp(a Action) Action {
	a.ID = s.next.Add(1)
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = s.now()
	}
	return a
}

// Last returns the most recently issued id.
func (s *Sequence) Last() uint64 { return s.next.Load() }

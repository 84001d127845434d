package applier

import "sort"

type DropReason string

const (
	DropStaleHandle         DropReason = "stale_handle"
	DropArbitrationRejected DropReason = "arbitration_rejected"
	DropPreempted           DropReason = "preempted"
	DropReleased            DropReason = "released"
	DropDuplicate           DropReason = "duplicate"
	DropExpired             DropReason = "expired"
	DropApplyFailed         DropReason = "apply_failed"
)

var AllDropReasons = []DropReason{
	DropStaleHandle,
	DropArbitrationRejected,
	DropPreempted,
	DropReleased,
	DropDuplicate,
	DropExpired,
	DropApplyFailed,
}

// TickReport summarizes one apply pass. Queue fields are filled by the caller
// that owns the queue.
type TickReport struct {
	Tick      uint64             `json:"tick"`
	Agents    int                `json:"agents"`
	Drained   int                `json:"drained"`
	Applied   int                `json:"applied"`
	Released  int                `json:"released"`
	Preempted int                `json:"preempted"`
	Swept     int                `json:"swept"`
	Slots     int                `json:"slots"`
	Dropped   map[DropReason]int `json:"dropped,omitempty"`

	Evicted    int `json:"evicted"`
	Overflowed int `json:"overflowed"`
	Stalled    int `json:"stalled,omitempty"`
	Skipped    int `json:"skipped,omitempty"`

	DecideMS   float64 `json:"decide_ms"`
	ApplyMS    float64 `json:"apply_ms"`
	DurationMS float64 `json:"duration_ms"`
}

// DroppedTotal sums every drop reason.
func (r TickReport) DroppedTotal() int {
	n := 0
	for _, v := range r.Dropped {
		n += v
	}
	return n
}

// DropReasons returns the reasons present in r in a stable order.
func (r TickReport) DropReasons() []DropReason {
	out := make([]DropReason, 0, len(r.Dropped))
	for k := range r.Dropped {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

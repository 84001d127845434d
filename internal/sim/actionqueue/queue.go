// Package actionqueue carries actions from decision workers to the tick
// goroutine. Push is lock-free and never waits on the consumer; DrainAll is
// called by exactly one goroutine.
//
// The queue holds two segments of capacity slots. Producers register on the
// current segment through an in-flight counter, reserve a slot index with an
// atomic add, and store into it. DrainAll flips the current segment, waits
// for in-flight producers on the old one to leave (their critical sections
// are a handful of atomic ops), then collects it.
package actionqueue

import (
	"log/slog"
	"runtime"
	"sort"
	"sync/atomic"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/action"
)

// Policy picks the victim among equally low-priority entries on overflow.
type Policy uint8

const (
	EvictOldest Policy = iota
	EvictNewest
)

func (p Policy) String() string {
	if p == EvictNewest {
		return "newest"
	}
	return "oldest"
}

// ParsePolicy accepts "oldest" (default) or "newest".
func ParsePolicy(s string) Policy {
	if s == "newest" {
		return EvictNewest
	}
	return EvictOldest
}

// evictAttempts bounds lost CAS races on a victim slot.
const evictAttempts = 8

type PushResult struct {
	// ID is the id of the pushed action, set whether or not it was accepted.
	ID       uint64
	Accepted bool
	// Evicted is the queued action displaced to make room, if any.
	Evicted *action.Action
}

type Stats struct {
	Capacity  int    `json:"capacity"`
	Len       int    `json:"len"`
	Pushed    uint64 `json:"pushed"`
	Accepted  uint64 `json:"accepted"`
	Evicted   uint64 `json:"evicted"`
	Dropped   uint64 `json:"dropped"`
	Contended uint64 `json:"contended"`
	Drains    uint64 `json:"drains"`
}

// DrainStats covers the overflow activity since the previous drain.
type DrainStats struct {
	Drained int
	Evicted int
	Dropped int
}

type node struct {
	act action.Action
	seq uint64
}

type segment struct {
	slots    []atomic.Pointer[node]
	reserved atomic.Int64
	inflight atomic.Int64
}

type Queue struct {
	capacity int
	policy   Policy
	log      *slog.Logger

	segs [2]*segment
	cur  atomic.Pointer[segment]
	seq  atomic.Uint64

	pushed    atomic.Uint64
	accepted  atomic.Uint64
	evicted   atomic.Uint64
	dropped   atomic.Uint64
	contended atomic.Uint64
	drains    atomic.Uint64

	// Overflow since the last drain; swapped to zero by DrainAll.
	windowEvicted atomic.Int64
	windowDropped atomic.Int64

	last DrainStats
}

func New(capacity int, policy Policy, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{capacity: capacity, policy: policy, log: logging.OrDiscard(logger)}
	for i := range q.segs {
		q.segs[i] = &segment{slots: make([]atomic.Pointer[node], capacity)}
	}
	q.cur.Store(q.segs[0])
	return q
}

func (q *Queue) Cap() int { return q.capacity }

// Len is approximate while producers are active.
func (q *Queue) Len() int {
	n := int(q.cur.Load().reserved.Load())
	if n > q.capacity {
		return q.capacity
	}
	return n
}

// Push enqueues a. When full, the lowest-priority queued action is replaced
// if a has strictly higher priority; otherwise a is dropped.
func (q *Queue) Push(a action.Action) PushResult {
	q.pushed.Add(1)
	n := &node{act: a, seq: q.seq.Add(1)}

	seg := q.enter()
	defer seg.inflight.Add(-1)

	if i := seg.reserved.Add(1) - 1; i < int64(q.capacity) {
		seg.slots[i].Store(n)
		q.accepted.Add(1)
		return PushResult{ID: a.ID, Accepted: true}
	}
	return q.overflow(seg, n)
}

func (q *Queue) enter() *segment {
	for {
		s := q.cur.Load()
		s.inflight.Add(1)
		if q.cur.Load() == s {
			return s
		}
		s.inflight.Add(-1)
	}
}

func (q *Queue) overflow(seg *segment, n *node) PushResult {
	for attempt := 0; attempt < evictAttempts; {
		idx, victim := q.lowest(seg)
		if victim == nil {
			// Every slot is reserved but none is stored yet. Those pushes
			// are mid-flight and store before leaving, so wait for them
			// without spending an attempt.
			runtime.Gosched()
			continue
		}
		if n.act.Priority <= victim.act.Priority {
			q.drop(n, "lowest_priority", victim.act.Priority)
			return PushResult{ID: n.act.ID}
		}
		if seg.slots[idx].CompareAndSwap(victim, n) {
			q.accepted.Add(1)
			q.evicted.Add(1)
			q.windowEvicted.Add(1)
			ev := victim.act
			logging.Trace(q.log, "action evicted",
				"agent", ev.Agent, "id", ev.ID, "priority", ev.Priority, "source", ev.Source,
				"by_priority", n.act.Priority, "by_source", n.act.Source)
			return PushResult{ID: n.act.ID, Accepted: true, Evicted: &ev}
		}
		q.contended.Add(1)
		attempt++
	}
	q.drop(n, "contended", 0)
	return PushResult{ID: n.act.ID}
}

func (q *Queue) drop(n *node, reason string, lowest uint8) {
	q.dropped.Add(1)
	q.windowDropped.Add(1)
	logging.Trace(q.log, "action dropped, queue full",
		"agent", n.act.Agent, "id", n.act.ID, "priority", n.act.Priority, "source", n.act.Source,
		"reason", reason, "lowest_queued", lowest)
}

// lowest finds the eviction victim: minimum priority, ties broken by policy.
func (q *Queue) lowest(seg *segment) (int, *node) {
	best := -1
	var victim *node
	for i := range seg.slots {
		nd := seg.slots[i].Load()
		if nd == nil {
			continue
		}
		if victim == nil || nd.act.Priority < victim.act.Priority ||
			(nd.act.Priority == victim.act.Priority && q.prefer(nd, victim)) {
			best, victim = i, nd
		}
	}
	return best, victim
}

func (q *Queue) prefer(a, b *node) bool {
	if q.policy == EvictNewest {
		return a.seq > b.seq
	}
	return a.seq < b.seq
}

// DrainAll removes and returns every queued action in enqueue order, which
// preserves each producer's submission order. Single consumer only.
func (q *Queue) DrainAll() []action.Action {
	old := q.cur.Load()
	next := q.segs[0]
	if old == next {
		next = q.segs[1]
	}
	q.cur.Store(next)
	for old.inflight.Load() > 0 {
		runtime.Gosched()
	}

	n := old.reserved.Load()
	if n > int64(q.capacity) {
		n = int64(q.capacity)
	}
	nodes := make([]*node, 0, n)
	for i := int64(0); i < n; i++ {
		if nd := old.slots[i].Swap(nil); nd != nil {
			nodes = append(nodes, nd)
		}
	}
	old.reserved.Store(0)
	q.drains.Add(1)

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].seq < nodes[j].seq })
	out := make([]action.Action, len(nodes))
	for i, nd := range nodes {
		out[i] = nd.act
	}

	ev := int(q.windowEvicted.Swap(0))
	dr := int(q.windowDropped.Swap(0))
	q.last = DrainStats{Drained: len(out), Evicted: ev, Dropped: dr}
	if ev > 0 || dr > 0 {
		q.log.Warn("action queue overflow", "capacity", q.capacity, "evicted", ev, "dropped", dr, "drained", len(out))
	}
	return out
}

// LastDrain reports the most recent DrainAll. Consumer goroutine only.
func (q *Queue) LastDrain() DrainStats { return q.last }

func (q *Queue) Stats() Stats {
	return Stats{
		Capacity:  q.capacity,
		Len:       q.Len(),
		Pushed:    q.pushed.Load(),
		Accepted:  q.accepted.Load(),
		Evicted:   q.evicted.Load(),
		Dropped:   q.dropped.Load(),
		Contended: q.contended.Load(),
		Drains:    q.drains.Load(),
	}
}

// Package schedule implements the decision worker pool: per-worker deques,
// randomized work stealing with exponential backoff, and a sleep/wake
// protocol that cannot lose a wakeup.
//
// Sleep/wake invariant: a worker sets its sleeping flag while holding its
// wake mutex, re-checks for pending work before waiting, and waits on a
// predicate. Wake takes the same mutex, clears the flag and always signals.
// Together these make it impossible for a Submit to slip between a worker's
// "no work" check and its wait.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"botcraft.ai/internal/logging"
)

var (
	ErrPoolClosed      = errors.New("worker pool is closed")
	ErrShutdownTimeout = errors.New("worker pool did not join before shutdown timeout")
)

// Stats is a point-in-time copy of the pool counters.
type Stats struct {
	Workers     int    `json:"workers"`
	Pending     int64  `json:"pending"`
	Sleeping    int    `json:"sleeping"`
	Submitted   uint64 `json:"submitted"`
	Executed    uint64 `json:"executed"`
	Stolen      uint64 `json:"stolen"`
	StealMisses uint64 `json:"steal_contended"`
	Sleeps      uint64 `json:"sleeps"`
	Wakes       uint64 `json:"wakes"`
	WakeAlls    uint64 `json:"wake_alls"`
	LostWakeups uint64 `json:"lost_wakeups"`
	Panics      uint64 `json:"panics"`
}

type counters struct {
	submitted   atomic.Uint64
	executed    atomic.Uint64
	stolen      atomic.Uint64
	stealMisses atomic.Uint64
	sleeps      atomic.Uint64
	wakes       atomic.Uint64
	wakeAlls    atomic.Uint64
	lostWakeups atomic.Uint64
	panics      atomic.Uint64
}

// Pool runs tasks of type T on a fixed set of worker goroutines.
type Pool[T any] struct {
	cfg Config
	run func(workerID int, task T)
	log *slog.Logger

	workers []*worker[T]

	// pending counts submitted tasks not yet popped by a worker. Submit
	// increments it before pushing, so it never under-counts reachable work.
	pending atomic.Int64
	rr      atomic.Uint64
	closed  atomic.Bool

	closeOnce sync.Once
	stopWatch chan struct{}
	done      chan struct{}

	stats counters
}

// New builds the pool and starts its workers and watchdog.
func New[T any](cfg Config, run func(workerID int, task T), logger *slog.Logger) *Pool[T] {
	p := newPool(cfg, run, logger)
	p.start()
	return p
}

func newPool[T any](cfg Config, run func(workerID int, task T), logger *slog.Logger) *Pool[T] {
	cfg = cfg.withDefaults()
	p := &Pool[T]{
		cfg:       cfg,
		run:       run,
		log:       logging.OrDiscard(logger),
		stopWatch: make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.workers = make([]*worker[T], cfg.Workers)
	for i := range p.workers {
		p.workers[i] = newWorker(i, p)
	}
	return p
}

func (p *Pool[T]) start() {
	var g errgroup.Group
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			w.loop()
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(p.done)
	}()
	go p.watchdog()
	p.log.Debug("worker pool started", "workers", len(p.workers))
}

func (p *Pool[T]) Workers() int { return len(p.workers) }

// Submit queues a task. It never blocks on running tasks.
func (p *Pool[T]) Submit(task T) error {
	p.pending.Add(1)
	if p.closed.Load() {
		p.pending.Add(-1)
		return ErrPoolClosed
	}
	idx := int((p.rr.Add(1) - 1) % uint64(len(p.workers)))
	target := p.workers[idx]
	target.dq.push(task)
	p.stats.submitted.Add(1)

	if !target.wake() {
		// The target is busy; make sure some idle worker comes to steal.
		p.wakeOneSleeper(idx)
	}
	if p.pending.Load() > int64(p.cfg.WakeAllFactor*len(p.workers)) {
		p.WakeAll()
	}
	return nil
}

func (p *Pool[T]) wakeOneSleeper(skip int) {
	n := len(p.workers)
	for i := 1; i < n; i++ {
		w := p.workers[(skip+i)%n]
		if w.sleeping.Load() && w.wake() {
			return
		}
	}
}

// WakeAll wakes every worker regardless of state.
func (p *Pool[T]) WakeAll() {
	p.stats.wakeAlls.Add(1)
	for _, w := range p.workers {
		w.wake()
	}
}

// Shutdown stops accepting tasks, lets workers drain what is queued, and
// waits for them to exit. ErrShutdownTimeout means a worker is stuck and the
// process should not continue.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stopWatch)
	})
	p.WakeAll()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ShutdownTimeout)
	defer cancel()
	select {
	case <-p.done:
		p.log.Debug("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: pending=%d after %s", ErrShutdownTimeout, p.pending.Load(), p.cfg.ShutdownTimeout)
	}
}

func (p *Pool[T]) Stats() Stats {
	s := Stats{
		Workers:     len(p.workers),
		Pending:     p.pending.Load(),
		Submitted:   p.stats.submitted.Load(),
		Executed:    p.stats.executed.Load(),
		Stolen:      p.stats.stolen.Load(),
		StealMisses: p.stats.stealMisses.Load(),
		Sleeps:      p.stats.sleeps.Load(),
		Wakes:       p.stats.wakes.Load(),
		WakeAlls:    p.stats.wakeAlls.Load(),
		LostWakeups: p.stats.lostWakeups.Load(),
		Panics:      p.stats.panics.Load(),
	}
	for _, w := range p.workers {
		if w.sleeping.Load() {
			s.Sleeping++
		}
	}
	return s
}

func (p *Pool[T]) watchdog() {
	t := time.NewTicker(p.cfg.WatchdogInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopWatch:
			return
		case now := <-t.C:
			p.checkLostWakeups(now)
		}
	}
}

// checkLostWakeups flags workers that have been asleep past the threshold
// while work is pending. The sleep protocol makes this unreachable; seeing it
// means the invariant was broken, so log loudly and recover by waking all.
func (p *Pool[T]) checkLostWakeups(now time.Time) int {
	pending := p.pending.Load()
	if pending <= 0 {
		return 0
	}
	stuck := 0
	for _, w := range p.workers {
		if !w.sleeping.Load() {
			continue
		}
		since := w.sleptAt.Load()
		if since == 0 || now.Sub(time.Unix(0, since)) < p.cfg.LostWakeupThreshold {
			continue
		}
		stuck++
	}
	if stuck == 0 {
		return 0
	}
	p.stats.lostWakeups.Add(uint64(stuck))
	p.log.Error("lost wakeup detected", "sleeping_workers", stuck, "pending", pending, "threshold", p.cfg.LostWakeupThreshold)
	p.WakeAll()
	return stuck
}

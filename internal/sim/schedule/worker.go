package schedule

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

type worker[T any] struct {
	id   int
	pool *Pool[T]
	dq   deque[T]

	wakeMu   sync.Mutex
	cond     *sync.Cond
	sleeping atomic.Bool
	sleptAt  atomic.Int64 // unix nanos of the current sleep, 0 when awake

	rng     *rand.Rand
	victims []int
}

func newWorker[T any](id int, p *Pool[T]) *worker[T] {
	w := &worker[T]{
		id:   id,
		pool: p,
		rng:  rand.New(rand.NewPCG(uint64(id)+1, uint64(time.Now().UnixNano()))),
	}
	w.cond = sync.NewCond(&w.wakeMu)
	for i := 0; i < len(p.workers); i++ {
		if i != id {
			w.victims = append(w.victims, i)
		}
	}
	return w
}

func (w *worker[T]) loop() {
	p := w.pool
	bo := backoff{min: p.cfg.StealBackoffMin, max: p.cfg.StealBackoffMax}
	rounds := 0
	for {
		if t, ok := w.dq.popBack(); ok {
			w.exec(t)
			bo.reset()
			rounds = 0
			continue
		}
		if t, ok := w.steal(); ok {
			p.stats.stolen.Add(1)
			w.exec(t)
			bo.reset()
			rounds = 0
			continue
		}
		if p.closed.Load() && p.pending.Load() <= 0 {
			return
		}
		if rounds < p.cfg.StealRounds {
			rounds++
			time.Sleep(bo.next())
			continue
		}
		rounds = 0
		bo.reset()
		w.sleep()
	}
}

// steal tries every other worker once, in random order.
func (w *worker[T]) steal() (T, bool) {
	var zero T
	w.rng.Shuffle(len(w.victims), func(i, j int) {
		w.victims[i], w.victims[j] = w.victims[j], w.victims[i]
	})
	for _, v := range w.victims {
		t, ok, contended := w.pool.workers[v].dq.steal()
		if contended {
			w.pool.stats.stealMisses.Add(1)
			continue
		}
		if ok {
			return t, true
		}
	}
	return zero, false
}

func (w *worker[T]) exec(t T) {
	p := w.pool
	p.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.stats.panics.Add(1)
			p.log.Error("task panicked", "worker", w.id, "panic", r)
		}
		p.stats.executed.Add(1)
	}()
	p.run(w.id, t)
}

// sleep parks the worker until woken or the pool closes.
func (w *worker[T]) sleep() {
	p := w.pool
	w.wakeMu.Lock()
	w.sleeping.Store(true)
	if p.pending.Load() > 0 || p.closed.Load() {
		w.sleeping.Store(false)
		w.wakeMu.Unlock()
		return
	}
	p.stats.sleeps.Add(1)
	w.sleptAt.Store(time.Now().UnixNano())
	for w.sleeping.Load() && !p.closed.Load() {
		w.cond.Wait()
	}
	w.sleeping.Store(false)
	w.sleptAt.Store(0)
	w.wakeMu.Unlock()
}

// wake clears the sleeping flag and always signals. It reports whether the
// worker was asleep.
func (w *worker[T]) wake() bool {
	w.wakeMu.Lock()
	was := w.sleeping.Load()
	w.sleeping.Store(false)
	w.cond.Signal()
	w.wakeMu.Unlock()
	if was {
		w.pool.stats.wakes.Add(1)
	}
	return was
}

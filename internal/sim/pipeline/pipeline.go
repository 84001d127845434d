// Package pipeline wires the decision pool, action queue, arbiter and
// applier into a fork-join step that the world's tick goroutine calls once
// per tick: snapshot, dispatch, join, drain, apply.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"botcraft.ai/internal/logging"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/actionqueue"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
	"botcraft.ai/internal/sim/decision"
	"botcraft.ai/internal/sim/schedule"
	"botcraft.ai/internal/sim/snapshot"
)

// World is what the pipeline needs from the simulation. All methods are
// called on the tick goroutine.
type World interface {
	applier.World
	ActiveAgents() []agent.Handle
	Capture(h agent.Handle, tick uint64) (snapshot.Snapshot, bool)
}

// DeciderSource picks the decision logic for an agent. It is called once per
// agent; the result is reused until the agent leaves.
type DeciderSource func(h agent.Handle, role snapshot.Role) decision.Decider

// ReportSink receives every TickReport on the tick goroutine.
type ReportSink interface {
	WriteReport(rep applier.TickReport)
}

type Pipeline struct {
	cfg   Config
	world World
	src   DeciderSource
	log   *slog.Logger

	seq     *action.Sequence
	queue   *actionqueue.Queue
	arb     *arbiter.Arbiter
	applier *applier.Applier
	runner  *decision.Runner
	pool    *schedule.Pool[decision.Task]

	deciders map[agent.Handle]decision.Decider
	sinks    []ReportSink

	lastStalled uint64
	metrics     atomic.Pointer[Metrics]
}

func New(cfg Config, w World, src DeciderSource, logger *slog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	log := logging.OrDiscard(logger)
	p := &Pipeline{
		cfg:      cfg,
		world:    w,
		src:      src,
		log:      log,
		seq:      action.NewSequence(cfg.Now),
		queue:    actionqueue.New(cfg.QueueCapacity, cfg.EvictPolicy, log.With("component", "actionqueue")),
		arb:      arbiter.New(cfg.Arbiter, log.With("component", "arbiter")),
		deciders: map[agent.Handle]decision.Decider{},
	}
	acfg := cfg.Applier
	acfg.Watermark = p.seq.Last
	p.applier = applier.New(acfg, w, p.arb, log.With("component", "applier"))
	p.runner = decision.NewRunner(func(a action.Action) { p.SubmitAction(a) }, cfg.StallBudget, log.With("component", "decision"))
	p.pool = schedule.New(cfg.Pool, p.runner.Run, log.With("component", "schedule"))
	p.metrics.Store(&Metrics{})
	return p
}

// AddSink registers a report consumer. Not safe once Step is running.
func (p *Pipeline) AddSink(s ReportSink) {
	if s != nil {
		p.sinks = append(p.sinks, s)
	}
}

// SubmitAction stamps a and queues it. Safe from any goroutine; never blocks.
func (p *Pipeline) SubmitAction(a action.Action) actionqueue.PushResult {
	return p.queue.Push(p.seq.Stamp(a))
}

// QueryActiveIntent reads the last published arbiter view without locking.
func (p *Pipeline) QueryActiveIntent(h agent.Handle) (arbiter.Intent, bool) {
	return p.arb.Query(h)
}

// Step runs one tick. It must be called from the world's tick goroutine.
func (p *Pipeline) Step(ctx context.Context, tick uint64) applier.TickReport {
	start := time.Now()
	agents := p.world.ActiveAgents()

	barrier := &decision.Barrier{}
	tasks := make([]decision.Task, 0, len(agents))
	busy := 0
	for _, h := range agents {
		if p.runner.Busy(h) {
			busy++
			continue
		}
		snap, ok := p.world.Capture(h, tick)
		if !ok {
			continue
		}
		tasks = append(tasks, decision.Task{
			Agent:       h,
			Tick:        tick,
			Snapshot:    snap,
			SubmittedAt: start,
			Decider:     p.deciderFor(h, snap.Role),
			Barrier:     barrier,
		})
	}

	barrier.Add(len(tasks))
	for _, t := range tasks {
		if err := p.pool.Submit(t); err != nil {
			barrier.Done()
			p.log.Warn("decision task rejected", "tick", tick, "agent", t.Agent, "err", err)
		}
	}
	wctx, cancel := context.WithTimeout(ctx, p.cfg.TickBudget)
	if err := barrier.Wait(wctx); err != nil {
		p.log.Warn("tick barrier not reached, applying partial results",
			"tick", tick, "outstanding", barrier.Pending(), "budget", p.cfg.TickBudget, "err", err)
	}
	cancel()
	decided := time.Now()

	acts := p.queue.DrainAll()
	ds := p.queue.LastDrain()
	rep := p.applier.Apply(tick, acts, p.cfg.Now())

	rs := p.runner.Stats()
	rep.Agents = len(agents)
	rep.Evicted = ds.Evicted
	rep.Overflowed = ds.Dropped
	rep.Stalled = int(rs.Stalled - p.lastStalled)
	rep.Skipped = busy
	rep.DecideMS = float64(decided.Sub(start).Microseconds()) / 1000
	rep.DurationMS = float64(time.Since(start).Microseconds()) / 1000
	p.lastStalled = rs.Stalled

	if len(p.deciders) > len(agents) {
		p.pruneDeciders()
	}
	p.metrics.Store(&Metrics{
		Tick:    tick,
		Agents:  len(agents),
		Last:    rep,
		Arbiter: p.arb.Stats(),
		Applier: p.applier.Stats(),
	})
	for _, s := range p.sinks {
		s.WriteReport(rep)
	}
	return rep
}

func (p *Pipeline) deciderFor(h agent.Handle, role snapshot.Role) decision.Decider {
	if d, ok := p.deciders[h]; ok {
		return d
	}
	var d decision.Decider
	if p.src != nil {
		d = p.src(h, role)
	}
	p.deciders[h] = d
	return d
}

func (p *Pipeline) pruneDeciders() {
	for h := range p.deciders {
		if _, ok := p.world.Resolve(h); !ok {
			delete(p.deciders, h)
		}
	}
}

// Close stops the worker pool. An ErrShutdownTimeout means a decider is
// stuck and the process should exit.
func (p *Pipeline) Close(ctx context.Context) error {
	return p.pool.Shutdown(ctx)
}

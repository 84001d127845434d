package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/decision"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/schedule"
	"botcraft.ai/internal/sim/snapshot"
)

type stubWorld struct {
	reg   *agent.Registry
	moves map[agent.Handle]int
}

func newStubWorld(n int) *stubWorld {
	w := &stubWorld{reg: agent.NewRegistry(), moves: map[agent.Handle]int{}}
	for i := 0; i < n; i++ {
		w.reg.Create()
	}
	return w
}

func (w *stubWorld) ActiveAgents() []agent.Handle {
	out := make([]agent.Handle, 0, w.reg.Len())
	w.reg.Each(func(h agent.Handle) { out = append(out, h) })
	return out
}

func (w *stubWorld) Capture(h agent.Handle, tick uint64) (snapshot.Snapshot, bool) {
	if !w.reg.Valid(h) {
		return snapshot.Snapshot{}, false
	}
	return snapshot.Snapshot{Agent: h, Tick: tick, Alive: true, Role: snapshot.RoleDPS, Health: 1, MaxHealth: 1}, true
}

func (w *stubWorld) Resolve(h agent.Handle) (applier.LiveRef, bool) {
	if !w.reg.Valid(h) {
		return applier.LiveRef{}, false
	}
	return applier.LiveRef{Handle: h}, true
}

func (w *stubWorld) ApplyMove(self applier.LiveRef, _ action.Move, _ string) error {
	w.moves[self.Handle]++
	return nil
}

func (w *stubWorld) ApplyInteract(applier.LiveRef, applier.LiveRef, string) error { return nil }
func (w *stubWorld) ApplyCast(applier.LiveRef, uint32, applier.LiveRef) error     { return nil }
func (w *stubWorld) DrainCompletions() []applier.Completion                       { return nil }

type reportRecorder struct {
	mu   sync.Mutex
	reps []applier.TickReport
}

func (r *reportRecorder) WriteReport(rep applier.TickReport) {
	r.mu.Lock()
	r.reps = append(r.reps, rep)
	r.mu.Unlock()
}

func moveDecider(h agent.Handle, _ snapshot.Role) decision.Decider {
	return decision.DeciderFunc(func(_ context.Context, s snapshot.Snapshot) []action.Action {
		return []action.Action{action.MoveTo(s.Agent, action.PriorityRoutine, "routine", geom.Vec3{X: float64(s.Tick)})}
	})
}

func testConfig(workers int) Config {
	cfg := DefaultConfig()
	cfg.Pool = schedule.DefaultConfig()
	cfg.Pool.Workers = workers
	cfg.TickBudget = 10 * time.Second
	cfg.StallBudget = time.Second
	return cfg
}

func TestStep_ThousandAgentsOnEightSleepingWorkers(t *testing.T) {
	w := newStubWorld(1000)
	p := New(testConfig(8), w, moveDecider, nil)
	defer func() { require.NoError(t, p.Close(context.Background())) }()

	require.Eventually(t, func() bool { return p.Metrics().Pool.Sleeping == 8 }, 2*time.Second, time.Millisecond)

	rec := &reportRecorder{}
	p.AddSink(rec)
	rep := p.Step(context.Background(), 1)

	require.Equal(t, 1000, rep.Agents)
	require.Equal(t, 1000, rep.Drained)
	require.Equal(t, 1000, rep.Applied)
	require.Zero(t, rep.DroppedTotal())
	require.Len(t, w.moves, 1000)
	require.Len(t, rec.reps, 1)

	m := p.Metrics()
	require.Equal(t, uint64(1), m.Tick)
	require.Equal(t, uint64(1000), m.Pool.Executed)
	require.Zero(t, m.Pool.LostWakeups)
	require.Equal(t, 1000, m.Arbiter.Slots)
}

func TestStep_QueryActiveIntentAfterApply(t *testing.T) {
	w := newStubWorld(3)
	p := New(testConfig(4), w, moveDecider, nil)
	defer p.Close(context.Background())

	h := w.ActiveAgents()[1]
	_, ok := p.QueryActiveIntent(h)
	require.False(t, ok)

	p.Step(context.Background(), 1)
	in, ok := p.QueryActiveIntent(h)
	require.True(t, ok)
	require.Equal(t, "routine", in.Source)
	require.Equal(t, action.PriorityRoutine, in.Priority)
}

func TestStep_ExternalSubmitIsArbitrated(t *testing.T) {
	w := newStubWorld(1)
	idle := func(agent.Handle, snapshot.Role) decision.Decider { return nil }
	p := New(testConfig(4), w, idle, nil)
	defer p.Close(context.Background())

	h := w.ActiveAgents()[0]
	res := p.SubmitAction(action.MoveTo(h, action.PriorityFormation, "formation", geom.Vec3{}))
	require.True(t, res.Accepted)
	p.SubmitAction(action.MoveTo(h, action.PriorityHazard, "hazard", geom.Vec3{X: 5}))

	rep := p.Step(context.Background(), 1)
	require.Equal(t, 2, rep.Drained)
	require.Equal(t, 1, rep.Applied)
	require.Equal(t, 1, rep.Preempted)
	require.Equal(t, 1, rep.Dropped[applier.DropPreempted])

	in, _ := p.QueryActiveIntent(h)
	require.Equal(t, "hazard", in.Source)
}

func TestStep_StalledDeciderSkipsAgentNextTick(t *testing.T) {
	w := newStubWorld(2)
	hs := w.ActiveAgents()
	release := make(chan struct{})
	src := func(h agent.Handle, role snapshot.Role) decision.Decider {
		if h == hs[0] {
			return decision.DeciderFunc(func(context.Context, snapshot.Snapshot) []action.Action {
				<-release
				return nil
			})
		}
		return moveDecider(h, role)
	}
	cfg := testConfig(4)
	cfg.StallBudget = 20 * time.Millisecond
	p := New(cfg, w, src, nil)
	defer p.Close(context.Background())
	defer close(release)

	rep := p.Step(context.Background(), 1)
	require.Equal(t, 1, rep.Stalled)
	require.Equal(t, 1, rep.Applied)

	rep = p.Step(context.Background(), 2)
	require.Equal(t, 1, rep.Skipped)
	require.Zero(t, rep.Stalled)
}

package behavior

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/snapshot"
)

func agents(n int) []agent.Handle {
	reg := agent.NewRegistry()
	out := make([]agent.Handle, n)
	for i := range out {
		out[i] = reg.Create()
	}
	return out
}

func base(h agent.Handle, role snapshot.Role) snapshot.Snapshot {
	return snapshot.Snapshot{Agent: h, Tick: 1, Alive: true, Role: role, Health: 100, MaxHealth: 100}
}

func decideOne(t *testing.T, s snapshot.Snapshot) action.Action {
	t.Helper()
	out := New(s.Agent, s.Role, DefaultParams()).Decide(context.Background(), s)
	require.Len(t, out, 1)
	require.Equal(t, s.Agent, out[0].Agent)
	return out[0]
}

func TestBot_HazardBeatsFormation(t *testing.T) {
	hs := agents(2)
	s := base(hs[0], snapshot.RoleDPS)
	s.Leader, s.LeaderPos = hs[1], geom.Vec3{X: 20}
	s.Hazards = []snapshot.Hazard{{Center: geom.Vec3{X: 1}, Radius: 3, Lethal: true}}

	a := decideOne(t, s)
	require.Equal(t, action.PriorityHazard, a.Priority)
	require.Equal(t, SourceHazard, a.Source)
	require.False(t, s.Hazards[0].Contains(a.Move.Destination))
}

func TestBot_FormationFollowWhenOutOfSlot(t *testing.T) {
	hs := agents(2)
	s := base(hs[0], snapshot.RoleTank)
	s.Leader, s.LeaderPos = hs[1], geom.Vec3{X: 10}
	s.FormationOffset = geom.Vec3{X: -2}

	a := decideOne(t, s)
	require.Equal(t, action.PriorityFormation, a.Priority)
	require.Equal(t, action.MoveFollow, a.Move.Kind)
	require.Equal(t, hs[1], a.Move.Target)
	require.Equal(t, []agent.Handle{hs[1]}, a.Targets())
}

func TestBot_LowHealthRetreatsToRally(t *testing.T) {
	h := agents(1)[0]
	s := base(h, snapshot.RoleDPS)
	s.Health = 10
	s.Rally = geom.Vec3{Z: -30}
	s.Hazards = []snapshot.Hazard{{Center: geom.Vec3{}, Radius: 2, Lethal: true}}

	a := decideOne(t, s)
	require.Equal(t, action.PrioritySurvival, a.Priority)
	require.Equal(t, s.Rally, a.Move.Destination)
}

func TestBot_InterruptCastingThreat(t *testing.T) {
	hs := agents(2)
	s := base(hs[0], snapshot.RoleTank)
	s.Threats = []snapshot.Threat{{Agent: hs[1], Pos: geom.Vec3{X: 3}, Distance: 3, Casting: true}}

	a := decideOne(t, s)
	require.Equal(t, action.KindCast, a.Kind)
	require.Equal(t, action.AbilityInterrupt, a.Cast.Ability)
	require.Equal(t, hs[1], a.Cast.Target)

	s.Threats[0].Distance, s.Threats[0].Pos = 9, geom.Vec3{X: 9}
	a = decideOne(t, s)
	require.Equal(t, action.MoveChase, a.Move.Kind)
	require.Equal(t, action.PriorityInterrupt, a.Priority)
}

func TestBot_DPSKitesCloseThreat(t *testing.T) {
	hs := agents(2)
	s := base(hs[0], snapshot.RoleDPS)
	s.Threats = []snapshot.Threat{{Agent: hs[1], Pos: geom.Vec3{X: 1}, Distance: 1}}

	a := decideOne(t, s)
	require.Equal(t, SourceKiting, a.Source)
	require.Greater(t, a.Move.Destination.Dist(s.Threats[0].Pos), DefaultParams().KiteRange)
}

func TestBot_GathererRoutineAndIdleWander(t *testing.T) {
	h := agents(1)[0]
	s := base(h, snapshot.RoleGatherer)
	s.Objective, s.HasObjective = geom.Vec3{X: 50}, true
	a := decideOne(t, s)
	require.Equal(t, action.PriorityRoutine, a.Priority)

	idle := base(h, snapshot.RoleIdle)
	p := DefaultParams()
	idle.Tick = p.WanderEvery - uint64(h.Index())%p.WanderEvery
	a = decideOne(t, idle)
	require.Equal(t, action.PriorityIdle, a.Priority)

	idle.Tick++
	require.Empty(t, New(h, snapshot.RoleIdle, p).Decide(context.Background(), idle))
}

func TestBot_CancelledContextYieldsNothing(t *testing.T) {
	h := agents(1)[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := base(h, snapshot.RoleDPS)
	s.Hazards = []snapshot.Hazard{{Radius: 5, Lethal: true}}
	require.Empty(t, New(h, snapshot.RoleDPS, DefaultParams()).Decide(ctx, s))
}

func TestBot_HealerMendsHurtLeader(t *testing.T) {
	hs := agents(2)
	s := base(hs[0], snapshot.RoleHealer)
	s.Leader, s.LeaderPos, s.LeaderHealthFrac = hs[1], geom.Vec3{X: 2}, 0.3

	a := decideOne(t, s)
	require.Equal(t, action.KindInteract, a.Kind)
	require.Equal(t, "mend", a.Interact.Verb)
	require.Equal(t, hs[1], a.Interact.Target)

	s.LeaderPos = geom.Vec3{X: 9}
	a = decideOne(t, s)
	require.Equal(t, action.MoveFollow, a.Move.Kind)

	s.LeaderHealthFrac = 1
	s.Health = 40
	a = decideOne(t, s)
	require.Equal(t, action.AbilityHeal, a.Cast.Ability)
}

package world

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/behavior"
	"botcraft.ai/internal/sim/decision"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/pipeline"
	"botcraft.ai/internal/sim/schedule"
	"botcraft.ai/internal/sim/snapshot"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Bots, cfg.Hostiles = 0, 0
	cfg.HazardEvery, cfg.EncounterEvery, cfg.CastChance = 0, 0, 0
	return cfg
}

func attachPipeline(t *testing.T, w *World, src pipeline.DeciderSource) *pipeline.Pipeline {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Pool = schedule.DefaultConfig()
	cfg.Pool.Workers = 4
	cfg.TickBudget = 5 * time.Second
	cfg.StallBudget = time.Second
	p := pipeline.New(cfg, w, src, nil)
	t.Cleanup(func() { require.NoError(t, p.Close(context.Background())) })
	w.Attach(p)
	return p
}

func TestWorld_PopulatesSquadsWithLeaders(t *testing.T) {
	cfg := quietConfig()
	cfg.Bots, cfg.SquadSize, cfg.Hostiles = 10, 5, 3
	w := New(cfg, nil)

	require.Len(t, w.squads, 2)
	require.Equal(t, 13, len(w.ActiveAgents()))

	lead := w.agents[w.squads[0].members[0]]
	require.Equal(t, snapshot.RoleTank, lead.Role)
	h, _ := w.leaderOf(lead)
	require.True(t, h.IsNil())

	member := w.agents[w.squads[0].members[2]]
	h, off := w.leaderOf(member)
	require.Equal(t, lead.Handle, h)
	require.NotEqual(t, geom.Vec3{}, off)

	s, ok := w.Capture(member.Handle, 0)
	require.True(t, ok)
	require.Equal(t, lead.Handle, s.Leader)
	require.Equal(t, lead.Pos, s.LeaderPos)
}

func TestWorld_StepsWithBehaviorPipeline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bots, cfg.Hostiles = 40, 10
	cfg.HazardEvery = 5
	w := New(cfg, nil)
	p := attachPipeline(t, w, behavior.Source(behavior.DefaultParams()))

	ctx := context.Background()
	applied := 0
	for i := 0; i < 60; i++ {
		tick, rep := w.StepOnce(ctx)
		require.Equal(t, uint64(i), tick)
		require.Equal(t, tick, rep.Tick)
		require.LessOrEqual(t, rep.Applied, rep.Drained)
		applied += rep.Applied
	}
	require.Positive(t, applied)

	m := w.Metrics()
	require.Equal(t, uint64(59), m.Tick)
	require.Positive(t, m.MovesTotal)
	require.Zero(t, p.Metrics().Pool.LostWakeups)
}

func TestWorld_ArrivalReleasesMovementSlot(t *testing.T) {
	w := New(quietConfig(), nil)
	a := w.spawn("walker", snapshot.RoleGatherer, TeamBots, -1)
	a.Pos, a.HasObjective = geom.Vec3{}, false

	once := func(_ agent.Handle, _ snapshot.Role) decision.Decider {
		return decision.DeciderFunc(func(_ context.Context, s snapshot.Snapshot) []action.Action {
			if s.Tick != 0 {
				return nil
			}
			return []action.Action{action.MoveTo(s.Agent, action.PriorityRoutine, "routine", geom.Vec3{X: 1})}
		})
	}
	p := attachPipeline(t, w, once)
	ctx := context.Background()

	_, rep := w.StepOnce(ctx)
	require.Equal(t, 1, rep.Applied)
	in, ok := p.QueryActiveIntent(a.Handle)
	require.True(t, ok)
	require.Equal(t, "routine", in.Source)

	w.StepOnce(ctx) // arrives, completion queued
	require.Equal(t, geom.Vec3{X: 1}, a.Pos)

	_, rep = w.StepOnce(ctx)
	require.Equal(t, 1, rep.Released)
	_, ok = p.QueryActiveIntent(a.Handle)
	require.False(t, ok)
}

func TestWorld_DestroyedAgentIsStale(t *testing.T) {
	w := New(quietConfig(), nil)
	a := w.spawn("gone", snapshot.RoleIdle, TeamBots, -1)
	none := func(agent.Handle, snapshot.Role) decision.Decider { return nil }
	p := attachPipeline(t, w, none)

	w.handleLeaves([]agent.Handle{a.Handle})
	_, ok := w.Resolve(a.Handle)
	require.False(t, ok)
	_, ok = w.Capture(a.Handle, 0)
	require.False(t, ok)

	p.SubmitAction(action.MoveTo(a.Handle, action.PriorityHazard, "hazard", geom.Vec3{X: 4}))
	_, rep := w.StepOnce(context.Background())
	require.Equal(t, 1, rep.Dropped[applier.DropStaleHandle])
	require.Zero(t, rep.Applied)

	// The slot index is reused with a new generation.
	b := w.spawn("next", snapshot.RoleIdle, TeamBots, -1)
	require.Equal(t, a.Handle.Index(), b.Handle.Index())
	require.NotEqual(t, a.Handle, b.Handle)
}

func TestWorld_CastRules(t *testing.T) {
	w := New(quietConfig(), nil)
	bot := w.spawn("bot", snapshot.RoleDPS, TeamBots, -1)
	foe := w.spawn("foe", snapshot.RoleIdle, TeamHostiles, -1)
	bot.Pos, foe.Pos = geom.Vec3{}, geom.Vec3{X: 2}
	self, _ := w.Resolve(bot.Handle)
	tgt, _ := w.Resolve(foe.Handle)

	require.ErrorIs(t, w.ApplyCast(self, action.AbilityInterrupt, tgt), errNotCasting)
	foe.CastingUntil = 10
	require.NoError(t, w.ApplyCast(self, action.AbilityInterrupt, tgt))
	require.Zero(t, foe.CastingUntil)

	hp := foe.Health
	require.NoError(t, w.ApplyCast(self, action.AbilityAttack, tgt))
	require.Equal(t, hp-w.cfg.AttackDamage, foe.Health)

	foe.Pos = geom.Vec3{X: 20}
	require.ErrorIs(t, w.ApplyCast(self, action.AbilityAttack, tgt), errOutOfRange)
	require.ErrorIs(t, w.ApplyCast(self, action.AbilityAttack, self), errFriendly)
	require.ErrorIs(t, w.ApplyCast(self, 99, applier.LiveRef{}), applier.ErrUnknownAction)

	bot.Health = 50
	require.NoError(t, w.ApplyCast(self, action.AbilityHeal, applier.LiveRef{}))
	require.Equal(t, 50+w.cfg.HealAmount, bot.Health)
}

func TestWorld_HazardKillsAndRespawns(t *testing.T) {
	cfg := quietConfig()
	cfg.RespawnTicks = 2
	w := New(cfg, nil)
	a := w.spawn("victim", snapshot.RoleIdle, TeamBots, -1)
	a.Health = 1
	w.hazards = append(w.hazards, hazardZone{
		Hazard:    snapshot.Hazard{Center: a.Pos, Radius: 3, Lethal: true},
		untilTick: 100,
	})

	w.StepOnce(context.Background())
	require.Equal(t, 0, w.reg.Len())
	require.Equal(t, uint64(1), w.Metrics().DeathsTotal)

	w.hazards = nil
	w.StepOnce(context.Background())
	w.StepOnce(context.Background())
	require.Equal(t, 1, w.reg.Len())
	require.Equal(t, uint64(1), w.Metrics().RespawnsTotal)
}

func TestWorld_RunServesRequests(t *testing.T) {
	cfg := quietConfig()
	cfg.TickRateHz = 100
	w := New(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	h, err := w.RequestJoin(ctx, JoinRequest{Name: "late", Role: snapshot.RoleDPS, Squad: -1})
	require.NoError(t, err)
	require.False(t, h.IsNil())

	v, err := w.RequestAgent(ctx, h)
	require.NoError(t, err)
	require.Equal(t, "late", v.Name)
	require.Equal(t, snapshot.RoleDPS, v.Role)

	require.NoError(t, w.RequestLeave(ctx, h))
	require.Eventually(t, func() bool {
		_, err := w.RequestAgent(ctx, h)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	require.NoError(t, <-done)
}

package behavior

import (
	"math"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
)

func (b *Bot) survive() bool {
	s := b.snap
	if s.HealthFrac() > b.params.RetreatHealth {
		return false
	}
	if s.Pos.Dist(s.Rally) <= b.params.ArriveRadius {
		return false
	}
	b.emit(action.MoveTo(s.Agent, action.PrioritySurvival, SourceSurvival, s.Rally))
	return true
}

func (b *Bot) escapeHazard() bool {
	s := b.snap
	h, ok := s.HazardAt()
	if !ok {
		return false
	}
	dir := s.Pos.Sub(h.Center).Norm()
	if dir == (geom.Vec3{}) {
		dir = geom.Vec3{X: 1}
	}
	dst := h.Center.Add(dir.Scale(h.Radius + b.params.HazardMargin))
	b.emit(action.MoveTo(s.Agent, action.PriorityHazard, SourceHazard, dst))
	return true
}

func (b *Bot) interrupt() bool {
	s := b.snap
	t, ok := s.CastingThreat()
	if !ok || t.Distance > b.params.LeashRange {
		return false
	}
	if t.Distance <= b.params.InterruptRange {
		b.emit(action.NewCast(s.Agent, action.PriorityInterrupt, SourceInterrupt, action.AbilityInterrupt, t.Agent))
		return true
	}
	b.emit(action.NewMove(s.Agent, action.PriorityInterrupt, SourceInterrupt, action.Move{Kind: action.MoveChase, Target: t.Agent}))
	return true
}

func (b *Bot) encounter() bool {
	s := b.snap
	if !s.HasEncounter || s.Pos.Dist(s.EncounterPos) <= b.params.ArriveRadius {
		return false
	}
	b.emit(action.MoveTo(s.Agent, action.PriorityEncounter, SourceEncounter, s.EncounterPos))
	return true
}

// holdThreat keeps a tank on the nearest threat.
func (b *Bot) holdThreat() bool {
	s := b.snap
	t, ok := s.NearestThreat()
	if !ok || t.Distance > b.params.LeashRange || t.Distance <= b.params.MeleeRange {
		return false
	}
	b.emit(action.NewMove(s.Agent, action.PriorityRolePosition, SourceRole+".tank", action.Move{Kind: action.MoveChase, Target: t.Agent}))
	return true
}

func (b *Bot) heal() bool {
	s := b.snap
	if s.HealthFrac() > b.params.HealHealth {
		return false
	}
	b.emit(action.NewCast(s.Agent, action.PriorityRolePosition, SourceRole+".healer", action.AbilityHeal, agent.Nil))
	return true
}

// mendLeader patches up a hurt leader, closing in first if needed.
func (b *Bot) mendLeader() bool {
	s := b.snap
	if s.Leader.IsNil() || s.LeaderHealthFrac > b.params.HealHealth {
		return false
	}
	if s.Pos.Dist(s.LeaderPos) <= b.params.InteractRange {
		b.emit(action.NewInteract(s.Agent, action.PriorityRolePosition, SourceRole+".healer", s.Leader, "mend"))
		return true
	}
	b.emit(action.NewMove(s.Agent, action.PriorityRolePosition, SourceRole+".healer",
		action.Move{Kind: action.MoveFollow, Target: s.Leader}))
	return true
}

// stayInRange keeps a healer within leash of its leader.
func (b *Bot) stayInRange() bool {
	s := b.snap
	if s.Leader.IsNil() || s.Pos.Dist(s.LeaderPos) <= b.params.LeashRange {
		return false
	}
	b.emit(action.NewMove(s.Agent, action.PriorityRolePosition, SourceRole+".healer",
		action.Move{Kind: action.MoveFollow, Target: s.Leader, Offset: s.FormationOffset}))
	return true
}

// kite backs a ranged attacker away from a threat that got too close.
func (b *Bot) kite() bool {
	s := b.snap
	t, ok := s.NearestThreat()
	if !ok || t.Distance >= b.params.KiteRange {
		return false
	}
	dir := s.Pos.Sub(t.Pos).Norm()
	if dir == (geom.Vec3{}) {
		dir = geom.Vec3{Z: 1}
	}
	dst := t.Pos.Add(dir.Scale(b.params.KiteRange + b.params.ArriveRadius))
	b.emit(action.MoveTo(s.Agent, action.PriorityKiting, SourceKiting, dst))
	return true
}

func (b *Bot) formation() bool {
	s := b.snap
	if s.Leader.IsNil() || s.Leader == s.Agent {
		return false
	}
	if _, engaged := s.NearestThreat(); engaged && !s.Target.IsNil() {
		return false
	}
	if s.Pos.Dist(s.FormationSlot()) <= b.params.FormationSlack {
		return false
	}
	b.emit(action.NewMove(s.Agent, action.PriorityFormation, SourceFormation,
		action.Move{Kind: action.MoveFollow, Target: s.Leader, Offset: s.FormationOffset}))
	return true
}

func (b *Bot) fight() bool {
	s := b.snap
	if s.Target.IsNil() {
		return false
	}
	if s.Pos.Dist(s.TargetPos) <= b.params.MeleeRange {
		b.emit(action.NewCast(s.Agent, action.PriorityCombat, SourceCombat, action.AbilityAttack, s.Target))
		return true
	}
	b.emit(action.NewMove(s.Agent, action.PriorityCombat, SourceCombat, action.Move{Kind: action.MoveChase, Target: s.Target}))
	return true
}

func (b *Bot) routine() bool {
	s := b.snap
	if !s.HasObjective || s.Pos.Dist(s.Objective) <= b.params.ArriveRadius {
		return false
	}
	b.emit(action.MoveTo(s.Agent, action.PriorityRoutine, SourceRoutine, s.Objective))
	return true
}

// wander picks a point around the agent every WanderEvery ticks, staggered
// by agent so the population does not move in lockstep.
func (b *Bot) wander() bool {
	s := b.snap
	every := b.params.WanderEvery
	if every == 0 || (s.Tick+uint64(s.Agent.Index()))%every != 0 {
		return false
	}
	angle := float64((s.Tick/every)*2654435761%360) * math.Pi / 180
	dst := s.Pos.Add(geom.Vec3{X: math.Cos(angle) * b.params.WanderRadius, Z: math.Sin(angle) * b.params.WanderRadius})
	b.emit(action.MoveTo(s.Agent, action.PriorityIdle, SourceIdle, dst))
	return true
}

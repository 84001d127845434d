package world

import (
	"sort"

	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/snapshot"
)

const maxThreats = 8

// ActiveAgents lists live agents in handle index order.
func (w *World) ActiveAgents() []agent.Handle {
	out := make([]agent.Handle, 0, w.reg.Len())
	w.reg.Each(func(h agent.Handle) { out = append(out, h) })
	return out
}

// Capture copies everything a decider may look at into a fresh Snapshot.
func (w *World) Capture(h agent.Handle, tick uint64) (snapshot.Snapshot, bool) {
	a, ok := w.agents[h]
	if !ok || !w.reg.Valid(h) {
		return snapshot.Snapshot{}, false
	}
	s := snapshot.Snapshot{
		Agent:        h,
		Tick:         tick,
		Alive:        a.Health > 0,
		Role:         a.Role,
		Pos:          a.Pos,
		Health:       a.Health,
		MaxHealth:    a.MaxHealth,
		Rally:        rallyFor(a.Team),
		Objective:    a.Objective,
		HasObjective: a.HasObjective,
	}
	if t, ok := w.agents[a.Target]; ok {
		s.Target, s.TargetPos = a.Target, t.Pos
	}
	if lh, off := w.leaderOf(a); !lh.IsNil() {
		if l, ok := w.agents[lh]; ok {
			s.Leader, s.LeaderPos, s.FormationOffset = lh, l.Pos, off
			s.LeaderHealthFrac = float64(l.Health) / float64(l.MaxHealth)
		}
	}
	for _, z := range w.hazards {
		if z.Center.Dist(a.Pos) <= z.Radius+w.cfg.ThreatRange {
			s.Hazards = append(s.Hazards, z.Hazard)
		}
	}
	w.grid.near(a.Pos, w.cfg.ThreatRange, func(o *Agent, d float64) {
		if o.Team == a.Team {
			return
		}
		s.Threats = append(s.Threats, snapshot.Threat{
			Agent:    o.Handle,
			Pos:      o.Pos,
			Distance: d,
			Casting:  o.CastingUntil > tick,
		})
	})
	sort.Slice(s.Threats, func(i, j int) bool { return s.Threats[i].Distance < s.Threats[j].Distance })
	if len(s.Threats) > maxThreats {
		s.Threats = s.Threats[:maxThreats]
	}
	if a.Team == TeamBots && tick < w.encounterUntil {
		s.EncounterPos, s.HasEncounter = w.encounterPos, true
	}
	return s, true
}

package world

import (
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/snapshot"
)

func (w *World) handleJoins(joins []JoinRequest) {
	for _, req := range joins {
		role := req.Role
		if role == "" {
			role = snapshot.RoleIdle
		}
		a := w.spawn(req.Name, role, req.Team, req.Squad)
		if req.Resp != nil {
			select {
			case req.Resp <- JoinResponse{Agent: a.Handle}:
			default:
			}
		}
	}
}

func (w *World) handleLeaves(leaves []agent.Handle) {
	for _, h := range leaves {
		w.destroy(h)
	}
}

func (w *World) respawnDue(tick uint64) {
	kept := w.pending[:0]
	for _, r := range w.pending {
		if r.at > tick {
			kept = append(kept, r)
			continue
		}
		w.spawn(r.name, r.role, r.team, r.squad)
		w.counters.respawns++
	}
	w.pending = kept
}

func (w *World) updateHazards(tick uint64) {
	kept := w.hazards[:0]
	for _, z := range w.hazards {
		if tick < z.untilTick {
			kept = append(kept, z)
		}
	}
	w.hazards = kept
	if w.cfg.HazardEvery == 0 || tick == 0 || tick%w.cfg.HazardEvery != 0 {
		return
	}
	w.hazards = append(w.hazards, hazardZone{
		Hazard: snapshot.Hazard{
			Center: w.randomPoint(w.cfg.ArenaRadius * 0.5),
			Radius: w.cfg.HazardRadius,
			Lethal: true,
		},
		untilTick: tick + w.cfg.HazardTicks,
	})
}

func (w *World) updateEncounter(tick uint64) {
	if w.cfg.EncounterEvery == 0 || tick == 0 || tick%w.cfg.EncounterEvery != 0 {
		return
	}
	w.encounterUntil = tick + w.cfg.EncounterTicks
	w.encounterPos = w.randomPoint(w.cfg.ArenaRadius * 0.3)
	w.log.Info("encounter started", "tick", tick, "until", w.encounterUntil, "pos", w.encounterPos)
}

func (w *World) rebuildGrid() {
	w.grid.reset()
	w.reg.Each(func(h agent.Handle) {
		if a := w.agents[h]; a != nil {
			w.grid.insert(a)
		}
	})
}

// updateTargets points every agent at the nearest opponent within aggro range.
func (w *World) updateTargets() {
	w.reg.Each(func(h agent.Handle) {
		a := w.agents[h]
		if a == nil {
			return
		}
		best, bestD := agent.Nil, w.cfg.AggroRange+1
		w.grid.near(a.Pos, w.cfg.AggroRange, func(o *Agent, d float64) {
			if o.Team != a.Team && d < bestD {
				best, bestD = o.Handle, d
			}
		})
		a.Target = best
	})
}

// updateCasts starts hostile area casts near bots and lands the finished ones.
func (w *World) updateCasts(tick uint64) {
	w.reg.Each(func(h agent.Handle) {
		a := w.agents[h]
		if a == nil || a.Team != TeamHostiles {
			return
		}
		if a.CastingUntil != 0 {
			if tick < a.CastingUntil {
				return
			}
			a.CastingUntil = 0
			w.grid.near(a.Pos, w.cfg.CastRadius, func(o *Agent, _ float64) {
				if o.Team != a.Team {
					o.Health -= w.cfg.CastDamage
				}
			})
			return
		}
		if a.Target.IsNil() || w.cfg.CastChance <= 0 || w.rng.Float64() >= w.cfg.CastChance {
			return
		}
		a.CastingUntil = tick + w.cfg.CastTicks
	})
}

func (w *World) moveAgents() {
	w.reg.Each(func(h agent.Handle) {
		a := w.agents[h]
		if a == nil || !a.moving() {
			return
		}
		dst := a.Dest
		if a.MoveKind == action.MoveChase || a.MoveKind == action.MoveFollow {
			t := w.agents[a.Follow]
			if t == nil {
				a.MoveKind = action.MoveStop
				w.complete(a)
				return
			}
			dst = t.Pos.Add(a.Offset)
			if a.MoveKind == action.MoveChase && a.Pos.Dist(dst) <= w.cfg.MeleeRange*0.8 {
				return
			}
		}
		pos, arrived := a.Pos.StepToward(dst, w.cfg.Speed)
		a.Pos = w.clamp(pos)
		if arrived && a.MoveKind == action.MovePoint {
			a.MoveKind = action.MoveStop
			w.complete(a)
		}
	})
}

func (w *World) complete(a *Agent) {
	w.counters.arrivals++
	if a.MoveSource == "" {
		return
	}
	w.completions = append(w.completions, applier.Completion{Agent: a.Handle, Source: a.MoveSource})
}

func (w *World) applyHazardDamage() {
	for _, z := range w.hazards {
		w.grid.near(z.Center, z.Radius, func(a *Agent, _ float64) {
			a.Health -= w.cfg.HazardDamage
		})
	}
}

// updateObjectives hands gatherers a new objective once they reach theirs.
func (w *World) updateObjectives() {
	w.reg.Each(func(h agent.Handle) {
		a := w.agents[h]
		if a == nil || !a.HasObjective || a.Pos.Dist(a.Objective) > w.cfg.InteractRange {
			return
		}
		a.Objective = w.randomPoint(w.cfg.ArenaRadius)
	})
}

func (w *World) reapDead(tick uint64) {
	var dead []*Agent
	w.reg.Each(func(h agent.Handle) {
		if a := w.agents[h]; a != nil && a.Health <= 0 {
			dead = append(dead, a)
		}
	})
	for _, a := range dead {
		w.destroy(a.Handle)
		w.counters.deaths++
		if w.cfg.RespawnTicks > 0 {
			w.pending = append(w.pending, respawn{
				at:    tick + w.cfg.RespawnTicks,
				name:  a.Name,
				role:  a.Role,
				team:  a.Team,
				squad: a.Squad,
			})
		}
		w.log.Debug("agent died", "tick", tick, "agent", a.Handle, "role", a.Role, "team", a.Team)
	}
}

func (w *World) clamp(p geom.Vec3) geom.Vec3 {
	if l := p.Len(); l > w.cfg.ArenaRadius {
		return p.Scale(w.cfg.ArenaRadius / l)
	}
	return p
}

// Package snapshot defines the read-only per-agent view handed to decision
// workers. A Snapshot owns all of its data: the world copies into it on the
// tick goroutine and never touches it again.
package snapshot

import (
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
)

type Role string

const (
	RoleTank     Role = "tank"
	RoleHealer   Role = "healer"
	RoleDPS      Role = "dps"
	RoleGatherer Role = "gatherer"
	RoleIdle     Role = "idle"
)

type Hazard struct {
	Center geom.Vec3 `json:"center"`
	Radius float64   `json:"radius"`
	Lethal bool      `json:"lethal"`
}

// Contains reports whether p is inside the hazard area.
func (h Hazard) Contains(p geom.Vec3) bool { return p.Dist(h.Center) <= h.Radius }

type Threat struct {
	Agent    agent.Handle `json:"agent"`
	Pos      geom.Vec3    `json:"pos"`
	Distance float64      `json:"distance"`
	Casting  bool         `json:"casting"`
}

type Snapshot struct {
	Agent agent.Handle `json:"agent"`
	Tick  uint64       `json:"tick"`
	Alive bool         `json:"alive"`
	Role  Role         `json:"role"`

	Pos       geom.Vec3 `json:"pos"`
	Health    int       `json:"health"`
	MaxHealth int       `json:"max_health"`

	Target    agent.Handle `json:"target,omitempty"`
	TargetPos geom.Vec3    `json:"target_pos"`
	Leader    agent.Handle `json:"leader,omitempty"`
	LeaderPos geom.Vec3    `json:"leader_pos"`
	// LeaderHealthFrac is 0 when there is no leader.
	LeaderHealthFrac float64 `json:"leader_health_frac"`
	// FormationOffset is the slot relative to Leader.
	FormationOffset geom.Vec3 `json:"formation_offset"`
	// Rally is where a badly hurt agent falls back to.
	Rally geom.Vec3 `json:"rally"`

	Hazards []Hazard `json:"hazards,omitempty"`
	// Threats are sorted nearest first.
	Threats []Threat `json:"threats,omitempty"`

	Objective    geom.Vec3 `json:"objective"`
	HasObjective bool      `json:"has_objective"`

	// EncounterPos is a position mandated by the current encounter, if any.
	EncounterPos geom.Vec3 `json:"encounter_pos"`
	HasEncounter bool      `json:"has_encounter"`
}

// Valid reports whether the snapshot describes a live agent.
func (s Snapshot) Valid() bool { return !s.Agent.IsNil() && s.Alive }

// FormationSlot is the world position the agent should hold behind Leader.
func (s Snapshot) FormationSlot() geom.Vec3 { return s.LeaderPos.Add(s.FormationOffset) }

// HealthFrac returns health as a fraction of max (0 when max is unset).
func (s Snapshot) HealthFrac() float64 {
	if s.MaxHealth <= 0 {
		return 0
	}
	return float64(s.Health) / float64(s.MaxHealth)
}

// HazardAt returns the first lethal hazard containing the agent.
func (s Snapshot) HazardAt() (Hazard, bool) {
	for _, h := range s.Hazards {
		if h.Lethal && h.Contains(s.Pos) {
			return h, true
		}
	}
	return Hazard{}, false
}

// NearestThreat returns the closest threat, if any.
func (s Snapshot) NearestThreat() (Threat, bool) {
	if len(s.Threats) == 0 {
		return Threat{}, false
	}
	return s.Threats[0], true
}

// CastingThreat returns the nearest threat currently casting.
func (s Snapshot) CastingThreat() (Threat, bool) {
	for _, t := range s.Threats {
		if t.Casting {
			return t, true
		}
	}
	return Threat{}, false
}

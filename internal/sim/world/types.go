package world

import (
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/snapshot"
)

type JoinRequest struct {
	Name string
	Role snapshot.Role
	Team int
	// Squad < 0 spawns a solo agent.
	Squad int
	Resp  chan JoinResponse
}

type JoinResponse struct {
	Agent agent.Handle
}

// AgentView is a copy of one agent's state for diagnostics.
type AgentView struct {
	Agent      agent.Handle    `json:"agent"`
	Name       string          `json:"name"`
	Role       snapshot.Role   `json:"role"`
	Team       int             `json:"team"`
	Squad      int             `json:"squad"`
	Pos        geom.Vec3       `json:"pos"`
	Health     int             `json:"health"`
	Target     agent.Handle    `json:"target,omitempty"`
	MoveKind   action.MoveKind `json:"move_kind"`
	MoveSource string          `json:"move_source,omitempty"`
	Casting    bool            `json:"casting"`
}

type inspectReq struct {
	Agent agent.Handle
	Resp  chan inspectResp
}

type inspectResp struct {
	View AgentView
	OK   bool
}

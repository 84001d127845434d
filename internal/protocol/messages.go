package protocol

import (
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
	"botcraft.ai/internal/sim/snapshot"
)

// HELLO (client -> server). With Agent set the session steers an existing
// agent; otherwise the server spawns a new one from Name/Role/Team.
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Agent           agent.Handle      `json:"agent,omitempty"`
	Name            string            `json:"name,omitempty"`
	Role            snapshot.Role     `json:"role,omitempty"`
	Team            int               `json:"team,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	Agent           agent.Handle `json:"agent"`
	Spawned         bool         `json:"spawned"`
	WorldID         string       `json:"world_id"`
	TickRateHz      int          `json:"tick_rate_hz"`
	Tick            uint64       `json:"tick"`
	MaxPriority     uint8        `json:"max_priority"`
}

// ACT (client -> server): one action for the session's agent.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Ref is echoed in the ACK.
	Ref      string `json:"ref,omitempty"`
	Kind     string `json:"kind"`
	Priority uint8  `json:"priority"`
	Source   string `json:"source,omitempty"`
	// TTLMs > 0 keeps the action valid past the draining tick.
	TTLMs int `json:"ttl_ms,omitempty"`

	MoveKind    string       `json:"move_kind,omitempty"`
	Destination *geom.Vec3   `json:"destination,omitempty"`
	Offset      *geom.Vec3   `json:"offset,omitempty"`
	Target      agent.Handle `json:"target,omitempty"`
	Verb        string       `json:"verb,omitempty"`
	Ability     uint32       `json:"ability,omitempty"`
}

// RELEASE (client -> server): give up the slot held by Source.
type ReleaseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Source          string `json:"source,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	ActionID        uint64 `json:"action_id,omitempty"`
	Accepted        bool   `json:"accepted"`
	// Evicted is set when accepting the action displaced a queued one.
	Evicted    bool   `json:"evicted,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	ServerTick uint64 `json:"server_tick,omitempty"`
}

// Package observerproto defines the messages of the loopback diagnostics
// stream, separate from the agent control protocol.
package observerproto

import (
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
)

// Version is the observer protocol version (separate from the agent WS protocol).
const Version = "0.2"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Every sends one TICK per Every ticks; 0 or 1 sends every tick.
	Every int `json:"every,omitempty"`
	// Watch lists agents whose active intent rides along with each TICK.
	Watch []agent.Handle `json:"watch,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	WorldID         string        `json:"world_id"`
	Tick            uint64        `json:"tick"`
	TickRateHz      int           `json:"tick_rate_hz"`
	Tiers           []action.Tier `json:"tiers"`
}

// Server -> Client.
type TickMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	WorldID         string             `json:"world_id"`
	Report          applier.TickReport `json:"report"`
	Intents         []arbiter.Intent   `json:"intents,omitempty"`
	// Missed counts TICKs dropped for this client since the last delivered one.
	Missed int `json:"missed,omitempty"`
}

// IntentResponse answers GET /admin/v1/intent.
type IntentResponse struct {
	Agent  agent.Handle    `json:"agent"`
	Active bool            `json:"active"`
	Intent *arbiter.Intent `json:"intent,omitempty"`
}

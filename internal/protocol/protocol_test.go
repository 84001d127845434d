package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/geom"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	require.NoError(t, ValidateMessage(TypeHello, []byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "name":"scout",
	  "role":"dps",
	  "capabilities":{"max_queue":8}
	}`)))
	require.NoError(t, ValidateMessage(TypeAct, []byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "ref":"r1",
	  "kind":"MOVE",
	  "priority":120,
	  "source":"pilot",
	  "ttl_ms":500,
	  "move_kind":"POINT",
	  "destination":{"x":1,"y":0,"z":2}
	}`)))
	require.NoError(t, ValidateMessage(TypeRelease, []byte(`{"type":"RELEASE","protocol_version":"1.0","source":"pilot"}`)))
}

func TestSchemas_RejectMalformed(t *testing.T) {
	for name, raw := range map[string]string{
		"unknown kind":       `{"type":"ACT","protocol_version":"1.0","kind":"JUMP","priority":1}`,
		"move without kind":  `{"type":"ACT","protocol_version":"1.0","kind":"MOVE","priority":1}`,
		"interact no target": `{"type":"ACT","protocol_version":"1.0","kind":"INTERACT","priority":1,"verb":"mend"}`,
		"priority too big":   `{"type":"ACT","protocol_version":"1.0","kind":"CAST","priority":300,"ability":1}`,
		"bad handle":         `{"type":"ACT","protocol_version":"1.0","kind":"CAST","priority":1,"ability":1,"target":"bob"}`,
	} {
		t.Run(name, func(t *testing.T) {
			require.Error(t, ValidateMessage(TypeAct, []byte(raw)))
		})
	}
	require.Error(t, ValidateMessage("OBS", []byte(`{}`)))
}

func TestActMsg_ToAction(t *testing.T) {
	self, err := agent.ParseHandle("A3.1")
	require.NoError(t, err)
	target, err := agent.ParseHandle("A7.2")
	require.NoError(t, err)
	now := time.Unix(1000, 0)

	var m ActMsg
	require.NoError(t, json.Unmarshal([]byte(`{
	  "type":"ACT","protocol_version":"1.0","kind":"MOVE","priority":250,
	  "source":"pilot","ttl_ms":200,"move_kind":"FOLLOW","target":"A7.2",
	  "offset":{"x":1,"y":0,"z":-1}
	}`), &m))

	a, err := m.ToAction(self, action.PriorityInterrupt, now)
	require.NoError(t, err)
	require.Equal(t, self, a.Agent)
	require.Equal(t, action.KindMove, a.Kind)
	require.Equal(t, action.MoveFollow, a.Move.Kind)
	require.Equal(t, target, a.Move.Target)
	require.Equal(t, geom.Vec3{X: 1, Z: -1}, a.Move.Offset)
	require.Equal(t, action.PriorityInterrupt, a.Priority, "priority is capped")
	require.Equal(t, "remote.pilot", a.Source)
	require.Equal(t, now.Add(200*time.Millisecond), a.ExpiresAt)

	_, err = ActMsg{Kind: "MOVE", MoveKind: "POINT"}.ToAction(self, 255, now)
	require.ErrorIs(t, err, ErrBadAct)
	_, err = ActMsg{Kind: "CAST"}.ToAction(self, 255, now)
	require.ErrorIs(t, err, ErrBadAct)
	_, err = ActMsg{Kind: "MOVE", MoveKind: "CHASE", Target: self}.ToAction(self, 255, now)
	require.ErrorIs(t, err, ErrBadTarget)
	_, err = ActMsg{Kind: "INTERACT", Verb: "trade"}.ToAction(self, 255, now)
	require.ErrorIs(t, err, ErrBadTarget)

	cast, err := ActMsg{Kind: "CAST", Ability: action.AbilityAttack, Target: target, Priority: 10}.ToAction(self, 255, now)
	require.NoError(t, err)
	require.True(t, cast.ExpiresAt.IsZero())
	require.Equal(t, []agent.Handle{target}, cast.Targets())

	rel := ReleaseMsg{}.ToAction(self)
	require.Equal(t, action.KindRelease, rel.Kind)
	require.Equal(t, RemoteSource, rel.Source)
}

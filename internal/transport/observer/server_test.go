package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/observerproto"
	"botcraft.ai/internal/sim/action"
	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
)

type fakeSource struct {
	intents map[agent.Handle]arbiter.Intent
}

func (f *fakeSource) ID() string          { return "obs-shard" }
func (f *fakeSource) TickRateHz() int     { return 10 }
func (f *fakeSource) CurrentTick() uint64 { return 7 }

func (f *fakeSource) QueryActiveIntent(h agent.Handle) (arbiter.Intent, bool) {
	in, ok := f.intents[h]
	return in, ok
}

func mustHandle(t *testing.T, s string) agent.Handle {
	t.Helper()
	h, err := agent.ParseHandle(s)
	require.NoError(t, err)
	return h
}

func newFixture(t *testing.T) (*Server, *httptest.Server, agent.Handle) {
	t.Helper()
	h := mustHandle(t, "A4.2")
	src := &fakeSource{intents: map[agent.Handle]arbiter.Intent{
		h: {Agent: h, Priority: action.PriorityHazard, Tier: "hazard", Source: "hazard", ActionID: 11},
	}}
	s := NewServer(src, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/intent", s.IntentHandler())
	mux.HandleFunc("/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv, h
}

func TestIntentHandler(t *testing.T) {
	_, srv, h := newFixture(t)

	resp, err := http.Get(srv.URL + "/intent?agent=" + h.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got observerproto.IntentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.True(t, got.Active)
	require.Equal(t, uint64(11), got.Intent.ActionID)
	require.Equal(t, "hazard", got.Intent.Tier)

	resp2, err := http.Get(srv.URL + "/intent?agent=A9.9")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var none observerproto.IntentResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&none))
	require.False(t, none.Active)
	require.Nil(t, none.Intent)

	resp3, err := http.Get(srv.URL + "/intent?agent=nope")
	require.NoError(t, err)
	resp3.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestBootstrapListsTiers(t *testing.T) {
	_, srv, _ := newFixture(t)
	resp, err := http.Get(srv.URL + "/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "obs-shard", got.WorldID)
	require.Equal(t, action.Tiers(), got.Tiers)
}

func TestWSStreamsReportsWithWatchedIntents(t *testing.T) {
	s, srv, h := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Every:           2,
		Watch:           []agent.Handle{h},
	}))
	require.Eventually(t, func() bool { return s.Stats().Subscribers == 1 }, 5*time.Second, 5*time.Millisecond)

	for tick := uint64(1); tick <= 4; tick++ {
		s.WriteReport(applier.TickReport{Tick: tick, Applied: int(tick)})
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got []observerproto.TickMsg
	for len(got) < 2 {
		var m observerproto.TickMsg
		require.NoError(t, conn.ReadJSON(&m))
		got = append(got, m)
	}
	require.Equal(t, uint64(2), got[0].Report.Tick)
	require.Equal(t, uint64(4), got[1].Report.Tick)
	require.Len(t, got[0].Intents, 1)
	require.Equal(t, h, got[0].Intents[0].Agent)
	require.Equal(t, "obs-shard", got[0].WorldID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.Stats().Subscribers == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestIsLoopbackRemote(t *testing.T) {
	require.True(t, IsLoopbackRemote("127.0.0.1:5555"))
	require.True(t, IsLoopbackRemote("[::1]:80"))
	require.False(t, IsLoopbackRemote("10.0.0.2:80"))
	require.False(t, IsLoopbackRemote("garbage"))
}

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/pipeline"
	"botcraft.ai/internal/sim/world"
	"botcraft.ai/internal/transport/observer"
	"botcraft.ai/internal/transport/ws"
)

type fakeShard struct {
	m world.WorldMetrics
}

func (f fakeShard) ID() string                  { return "w1" }
func (f fakeShard) CurrentTick() uint64         { return 9 }
func (f fakeShard) Metrics() world.WorldMetrics { return f.m }

type fakePipe struct{ m pipeline.Metrics }

func (f fakePipe) Metrics() pipeline.Metrics { return f.m }

func TestWriteMetrics(t *testing.T) {
	var b strings.Builder
	pm := pipeline.Metrics{}
	pm.Applier.Applied = 12
	pm.Applier.Dropped = map[applier.DropReason]uint64{applier.DropPreempted: 3}
	pm.Arbiter.Preemptions = 3
	pm.Queue.Capacity = 8192
	writeMetrics(&b, fakeShard{m: world.WorldMetrics{Tick: 10, Bots: 4, Hostiles: 2}}, pm)
	out := b.String()

	require.Contains(t, out, `botcraft_world_tick{world="w1"} 10`)
	require.Contains(t, out, `botcraft_world_agents{world="w1",team="bots"} 4`)
	require.Contains(t, out, `botcraft_applier_actions_total{world="w1",outcome="applied"} 12`)
	require.Contains(t, out, `botcraft_applier_actions_total{world="w1",outcome="preempted"} 3`)
	require.Contains(t, out, `botcraft_applier_actions_total{world="w1",outcome="stale_handle"} 0`)
	require.Contains(t, out, `botcraft_arbiter_decisions_total{world="w1",outcome="preemption"} 3`)
	require.Contains(t, out, `botcraft_queue_capacity{world="w1"} 8192`)
}

func TestStateHandler(t *testing.T) {
	obs := observer.NewServer(nil, nil)
	ctrl := ws.NewServer(nil, nil, nil)
	h := stateHandler(fakeShard{m: world.WorldMetrics{Agents: 5}}, fakePipe{}, nil, obs, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	rec := httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got stateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, "w1", got.WorldID)
	require.Equal(t, uint64(9), got.Tick)
	require.Equal(t, 5, got.World.Agents)
	require.Nil(t, got.Index)

	req.RemoteAddr = "192.0.2.1:4444"
	rec = httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("BC_TEST_FLAG", "")
	require.True(t, envBool("BC_TEST_FLAG", true))
	t.Setenv("BC_TEST_FLAG", "false")
	require.False(t, envBool("BC_TEST_FLAG", true))
	t.Setenv("BC_TEST_FLAG", "junk")
	require.False(t, envBool("BC_TEST_FLAG", false))
	t.Setenv("DEPLOY_ENV", "production")
	require.False(t, defaultEnableAdminHTTP())
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"botcraft.ai/internal/persistence/indexdb"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/pipeline"
	"botcraft.ai/internal/sim/world"
	"botcraft.ai/internal/transport/observer"
	"botcraft.ai/internal/transport/ws"
)

type metricsSource interface {
	ID() string
	CurrentTick() uint64
	Metrics() world.WorldMetrics
}

type pipelineSource interface {
	Metrics() pipeline.Metrics
}

func metricsHandler(w metricsSource, p pipelineSource, idx *indexdb.SQLiteIndex, ctrl *ws.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w, p.Metrics())
		if ctrl != nil {
			writeControlMetrics(rw, w.ID(), ctrl.Stats())
		}
		if idx != nil {
			writeIndexMetrics(rw, w.ID(), idx.Stats())
		}
	}
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw io.Writer, w metricsSource, pm pipeline.Metrics) {
	id := w.ID()
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(rw, "# HELP botcraft_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_world_tick gauge\n")
	fmt.Fprintf(rw, "botcraft_world_tick{world=%q} %d\n", id, tick)

	fmt.Fprintf(rw, "# HELP botcraft_world_agents Current number of agents in the world.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_world_agents gauge\n")
	fmt.Fprintf(rw, "botcraft_world_agents{world=%q,team=%q} %d\n", id, "bots", m.Bots)
	fmt.Fprintf(rw, "botcraft_world_agents{world=%q,team=%q} %d\n", id, "hostiles", m.Hostiles)

	fmt.Fprintf(rw, "# HELP botcraft_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_world_step_ms gauge\n")
	fmt.Fprintf(rw, "botcraft_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP botcraft_world_queue_depth Request channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "botcraft_world_queue_depth{world=%q,queue=%q} %d\n", id, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "botcraft_world_queue_depth{world=%q,queue=%q} %d\n", id, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(rw, "botcraft_world_queue_depth{world=%q,queue=%q} %d\n", id, "inspect", m.QueueDepths.Inspect)

	fmt.Fprintf(rw, "# HELP botcraft_world_events_total World events since start.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_world_events_total counter\n")
	for _, e := range []struct {
		name string
		v    uint64
	}{
		{"move", m.MovesTotal},
		{"cast", m.CastsTotal},
		{"interact", m.InteractsTotal},
		{"arrival", m.ArrivalsTotal},
		{"death", m.DeathsTotal},
		{"respawn", m.RespawnsTotal},
		{"interrupt", m.InterruptsTotal},
	} {
		fmt.Fprintf(rw, "botcraft_world_events_total{world=%q,event=%q} %d\n", id, e.name, e.v)
	}

	fmt.Fprintf(rw, "# HELP botcraft_pipeline_tick_ms Last pipeline step phases in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_pipeline_tick_ms gauge\n")
	fmt.Fprintf(rw, "botcraft_pipeline_tick_ms{world=%q,phase=%q} %.3f\n", id, "decide", pm.Last.DecideMS)
	fmt.Fprintf(rw, "botcraft_pipeline_tick_ms{world=%q,phase=%q} %.3f\n", id, "apply", pm.Last.ApplyMS)
	fmt.Fprintf(rw, "botcraft_pipeline_tick_ms{world=%q,phase=%q} %.3f\n", id, "total", pm.Last.DurationMS)

	fmt.Fprintf(rw, "# HELP botcraft_pool_workers Decision worker count.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_pool_workers gauge\n")
	fmt.Fprintf(rw, "botcraft_pool_workers{world=%q} %d\n", id, pm.Pool.Workers)
	fmt.Fprintf(rw, "# HELP botcraft_pool_sleeping Workers currently asleep.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_pool_sleeping gauge\n")
	fmt.Fprintf(rw, "botcraft_pool_sleeping{world=%q} %d\n", id, pm.Pool.Sleeping)
	fmt.Fprintf(rw, "# HELP botcraft_pool_tasks_total Decision tasks by outcome.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_pool_tasks_total counter\n")
	fmt.Fprintf(rw, "botcraft_pool_tasks_total{world=%q,outcome=%q} %d\n", id, "submitted", pm.Pool.Submitted)
	fmt.Fprintf(rw, "botcraft_pool_tasks_total{world=%q,outcome=%q} %d\n", id, "executed", pm.Pool.Executed)
	fmt.Fprintf(rw, "botcraft_pool_tasks_total{world=%q,outcome=%q} %d\n", id, "stolen", pm.Pool.Stolen)
	fmt.Fprintf(rw, "botcraft_pool_tasks_total{world=%q,outcome=%q} %d\n", id, "stalled", pm.Runner.Stalled)
	fmt.Fprintf(rw, "botcraft_pool_tasks_total{world=%q,outcome=%q} %d\n", id, "skipped", pm.Runner.Skipped)
	fmt.Fprintf(rw, "botcraft_pool_tasks_total{world=%q,outcome=%q} %d\n", id, "panicked", pm.Runner.Panics)
	fmt.Fprintf(rw, "# HELP botcraft_pool_lost_wakeups_total Sleeping workers found with pending work.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_pool_lost_wakeups_total counter\n")
	fmt.Fprintf(rw, "botcraft_pool_lost_wakeups_total{world=%q} %d\n", id, pm.Pool.LostWakeups)

	fmt.Fprintf(rw, "# HELP botcraft_queue_len Actions waiting for the next drain.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_queue_len gauge\n")
	fmt.Fprintf(rw, "botcraft_queue_len{world=%q} %d\n", id, pm.Queue.Len)
	fmt.Fprintf(rw, "# HELP botcraft_queue_capacity Queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_queue_capacity gauge\n")
	fmt.Fprintf(rw, "botcraft_queue_capacity{world=%q} %d\n", id, pm.Queue.Capacity)
	fmt.Fprintf(rw, "# HELP botcraft_queue_actions_total Queue pushes by outcome.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_queue_actions_total counter\n")
	fmt.Fprintf(rw, "botcraft_queue_actions_total{world=%q,outcome=%q} %d\n", id, "accepted", pm.Queue.Accepted)
	fmt.Fprintf(rw, "botcraft_queue_actions_total{world=%q,outcome=%q} %d\n", id, "evicted", pm.Queue.Evicted)
	fmt.Fprintf(rw, "botcraft_queue_actions_total{world=%q,outcome=%q} %d\n", id, "dropped", pm.Queue.Dropped)

	fmt.Fprintf(rw, "# HELP botcraft_arbiter_slots Agents holding a movement slot.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_arbiter_slots gauge\n")
	fmt.Fprintf(rw, "botcraft_arbiter_slots{world=%q} %d\n", id, pm.Arbiter.Slots)
	fmt.Fprintf(rw, "# HELP botcraft_arbiter_decisions_total Arbitration outcomes.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_arbiter_decisions_total counter\n")
	fmt.Fprintf(rw, "botcraft_arbiter_decisions_total{world=%q,outcome=%q} %d\n", id, "grant", pm.Arbiter.Grants)
	fmt.Fprintf(rw, "botcraft_arbiter_decisions_total{world=%q,outcome=%q} %d\n", id, "renewal", pm.Arbiter.Renewals)
	fmt.Fprintf(rw, "botcraft_arbiter_decisions_total{world=%q,outcome=%q} %d\n", id, "rejection", pm.Arbiter.Rejections)
	fmt.Fprintf(rw, "botcraft_arbiter_decisions_total{world=%q,outcome=%q} %d\n", id, "preemption", pm.Arbiter.Preemptions)
	fmt.Fprintf(rw, "botcraft_arbiter_decisions_total{world=%q,outcome=%q} %d\n", id, "expiry", pm.Arbiter.Expiries)
	fmt.Fprintf(rw, "botcraft_arbiter_decisions_total{world=%q,outcome=%q} %d\n", id, "release", pm.Arbiter.Releases)

	fmt.Fprintf(rw, "# HELP botcraft_applier_actions_total Applied actions and drops by reason.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_applier_actions_total counter\n")
	fmt.Fprintf(rw, "botcraft_applier_actions_total{world=%q,outcome=%q} %d\n", id, "applied", pm.Applier.Applied)
	for _, reason := range applier.AllDropReasons {
		fmt.Fprintf(rw, "botcraft_applier_actions_total{world=%q,outcome=%q} %d\n", id, string(reason), pm.Applier.Dropped[reason])
	}
}

func writeControlMetrics(rw io.Writer, id string, s ws.Stats) {
	fmt.Fprintf(rw, "# HELP botcraft_control_sessions Active control socket sessions.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_control_sessions gauge\n")
	fmt.Fprintf(rw, "botcraft_control_sessions{world=%q} %d\n", id, s.Active)
	fmt.Fprintf(rw, "# HELP botcraft_control_messages_total Control socket messages by outcome.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_control_messages_total counter\n")
	fmt.Fprintf(rw, "botcraft_control_messages_total{world=%q,outcome=%q} %d\n", id, "submitted", s.Acts)
	fmt.Fprintf(rw, "botcraft_control_messages_total{world=%q,outcome=%q} %d\n", id, "rejected", s.Rejected)
	fmt.Fprintf(rw, "botcraft_control_messages_total{world=%q,outcome=%q} %d\n", id, "overflow", s.Overflow)
}

func writeIndexMetrics(rw io.Writer, id string, s indexdb.Stats) {
	fmt.Fprintf(rw, "# HELP botcraft_index_queue_depth Pending tick index writes.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "botcraft_index_queue_depth{world=%q} %d\n", id, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP botcraft_index_reports_total Tick index writes by outcome.\n")
	fmt.Fprintf(rw, "# TYPE botcraft_index_reports_total counter\n")
	fmt.Fprintf(rw, "botcraft_index_reports_total{world=%q,outcome=%q} %d\n", id, "written", s.Written)
	fmt.Fprintf(rw, "botcraft_index_reports_total{world=%q,outcome=%q} %d\n", id, "dropped", s.Dropped)
	fmt.Fprintf(rw, "botcraft_index_reports_total{world=%q,outcome=%q} %d\n", id, "failed", s.Failed)
}

type stateResponse struct {
	WorldID  string             `json:"world_id"`
	Tick     uint64             `json:"tick"`
	World    world.WorldMetrics `json:"world"`
	Pipeline pipeline.Metrics   `json:"pipeline"`
	Control  ws.Stats           `json:"control"`
	Observer observer.Stats     `json:"observer"`
	Index    *indexdb.Stats     `json:"index,omitempty"`
}

func stateHandler(w metricsSource, p pipelineSource, idx *indexdb.SQLiteIndex, obs *observer.Server, ctrl *ws.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := stateResponse{
			WorldID:  w.ID(),
			Tick:     w.CurrentTick(),
			World:    w.Metrics(),
			Pipeline: p.Metrics(),
			Control:  ctrl.Stats(),
			Observer: obs.Stats(),
		}
		if idx != nil {
			st := idx.Stats()
			resp.Index = &st
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

package world

import (
	"time"

	"botcraft.ai/internal/sim/agent"
	"botcraft.ai/internal/sim/applier"
)

// WorldMetrics is a thread-safe read-only view of the world loop.
// It is updated from the tick goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents    int  `json:"agents"`
	Bots      int  `json:"bots"`
	Hostiles  int  `json:"hostiles"`
	Moving    int  `json:"moving"`
	Casting   int  `json:"casting"`
	Hazards   int  `json:"hazards"`
	Encounter bool `json:"encounter"`
	Respawns  int  `json:"pending_respawns"`

	QueueDepths QueueDepths `json:"queue_depths"`

	MovesTotal      uint64 `json:"moves_total"`
	CastsTotal      uint64 `json:"casts_total"`
	InteractsTotal  uint64 `json:"interacts_total"`
	ArrivalsTotal   uint64 `json:"arrivals_total"`
	DeathsTotal     uint64 `json:"deaths_total"`
	RespawnsTotal   uint64 `json:"respawns_total"`
	InterruptsTotal uint64 `json:"interrupts_total"`

	Applied int     `json:"applied"`
	Dropped int     `json:"dropped"`
	StepMS  float64 `json:"step_ms"`
}

type QueueDepths struct {
	Join    int `json:"join"`
	Leave   int `json:"leave"`
	Inspect int `json:"inspect"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, ok := w.metrics.Load().(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(tick uint64, rep applier.TickReport, took time.Duration) {
	m := WorldMetrics{
		Tick:      tick,
		Agents:    w.reg.Len(),
		Hazards:   len(w.hazards),
		Encounter: tick < w.encounterUntil,
		Respawns:  len(w.pending),
		QueueDepths: QueueDepths{
			Join:    len(w.join),
			Leave:   len(w.leave),
			Inspect: len(w.inspect),
		},
		MovesTotal:      w.counters.moves,
		CastsTotal:      w.counters.casts,
		InteractsTotal:  w.counters.interacts,
		ArrivalsTotal:   w.counters.arrivals,
		DeathsTotal:     w.counters.deaths,
		RespawnsTotal:   w.counters.respawns,
		InterruptsTotal: w.counters.interrupts,
		Applied:         rep.Applied,
		Dropped:         rep.DroppedTotal(),
		StepMS:          float64(took.Microseconds()) / 1000,
	}
	w.reg.Each(func(h agent.Handle) {
		a := w.agents[h]
		if a == nil {
			return
		}
		if a.Team == TeamBots {
			m.Bots++
		} else {
			m.Hostiles++
		}
		if a.moving() {
			m.Moving++
		}
		if a.CastingUntil > tick {
			m.Casting++
		}
	})
	w.metrics.Store(m)
}

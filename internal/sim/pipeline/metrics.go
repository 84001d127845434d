package pipeline

import (
	"botcraft.ai/internal/sim/actionqueue"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
	"botcraft.ai/internal/sim/decision"
	"botcraft.ai/internal/sim/schedule"
)

// Metrics is a read-only view safe to take from any goroutine.
type Metrics struct {
	Tick    uint64               `json:"tick"`
	Agents  int                  `json:"agents"`
	Last    applier.TickReport   `json:"last"`
	Arbiter arbiter.Stats        `json:"arbiter"`
	Applier applier.Stats        `json:"applier"`
	Pool    schedule.Stats       `json:"pool"`
	Queue   actionqueue.Stats    `json:"queue"`
	Runner  decision.RunnerStats `json:"runner"`
}

func (p *Pipeline) Metrics() Metrics {
	m := *p.metrics.Load()
	m.Pool = p.pool.Stats()
	m.Queue = p.queue.Stats()
	m.Runner = p.runner.Stats()
	return m
}

package pipeline

import (
	"time"

	"botcraft.ai/internal/sim/actionqueue"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
	"botcraft.ai/internal/sim/schedule"
)

type Config struct {
	Pool    schedule.Config
	Arbiter arbiter.Config
	Applier applier.Config

	QueueCapacity int
	EvictPolicy   actionqueue.Policy

	// StallBudget bounds one decider call; 0 disables the check.
	StallBudget time.Duration
	// TickBudget bounds how long Step waits on the join barrier.
	TickBudget time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Pool:          schedule.DefaultConfig(),
		Arbiter:       arbiter.Config{MaxHold: arbiter.DefaultMaxHold},
		Applier:       applier.Config{DedupeTTLTicks: applier.DefaultDedupeTTLTicks},
		QueueCapacity: 8192,
		EvictPolicy:   actionqueue.EvictOldest,
		StallBudget:   50 * time.Millisecond,
		TickBudget:    200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.TickBudget <= 0 {
		c.TickBudget = d.TickBudget
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

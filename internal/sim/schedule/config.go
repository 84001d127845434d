package schedule

import (
	"runtime"
	"time"
)

type Config struct {
	// Workers <= 0 uses GOMAXPROCS. The result is never below MinWorkers.
	Workers    int
	MinWorkers int

	StealBackoffMin time.Duration
	StealBackoffMax time.Duration
	// StealRounds is how many failed steal rounds a worker backs off through
	// before it goes to sleep.
	StealRounds int

	// WakeAllFactor wakes every sleeper once pending > factor*workers.
	WakeAllFactor int

	LostWakeupThreshold time.Duration
	WatchdogInterval    time.Duration
	ShutdownTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinWorkers:          4,
		StealBackoffMin:     20 * time.Microsecond,
		StealBackoffMax:     time.Millisecond,
		StealRounds:         4,
		WakeAllFactor:       4,
		LostWakeupThreshold: 250 * time.Millisecond,
		WatchdogInterval:    100 * time.Millisecond,
		ShutdownTimeout:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinWorkers <= 0 {
		c.MinWorkers = d.MinWorkers
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Workers < c.MinWorkers {
		c.Workers = c.MinWorkers
	}
	if c.StealBackoffMin <= 0 {
		c.StealBackoffMin = d.StealBackoffMin
	}
	if c.StealBackoffMax < c.StealBackoffMin {
		c.StealBackoffMax = c.StealBackoffMin
	}
	if c.StealRounds < 0 {
		c.StealRounds = 0
	}
	if c.WakeAllFactor <= 0 {
		c.WakeAllFactor = d.WakeAllFactor
	}
	if c.LostWakeupThreshold <= 0 {
		c.LostWakeupThreshold = d.LostWakeupThreshold
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = d.WatchdogInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

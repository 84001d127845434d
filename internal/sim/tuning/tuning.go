// Package tuning loads the shard configuration from YAML or TOML, fills
// defaults and validates it against an embedded JSON schema.
package tuning

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"botcraft.ai/internal/sim/actionqueue"
	"botcraft.ai/internal/sim/applier"
	"botcraft.ai/internal/sim/arbiter"
	"botcraft.ai/internal/sim/behavior"
	"botcraft.ai/internal/sim/pipeline"
	"botcraft.ai/internal/sim/schedule"
	"botcraft.ai/internal/sim/world"
)

var ErrInvalidConfig = errors.New("invalid tuning")

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	World    World           `yaml:"world" toml:"world" json:"world"`
	Pool     Pool            `yaml:"pool" toml:"pool" json:"pool"`
	Queue    Queue           `yaml:"queue" toml:"queue" json:"queue"`
	Arbiter  Arbiter         `yaml:"arbiter" toml:"arbiter" json:"arbiter"`
	Pipeline Pipeline        `yaml:"pipeline" toml:"pipeline" json:"pipeline"`
	Behavior behavior.Params `yaml:"behavior" toml:"behavior" json:"behavior"`
}

type World struct {
	ID                  string  `yaml:"id" toml:"id" json:"id"`
	TickRateHz          int     `yaml:"tick_rate_hz" toml:"tick_rate_hz" json:"tick_rate_hz"`
	Seed                int64   `yaml:"seed" toml:"seed" json:"seed"`
	Bots                int     `yaml:"bots" toml:"bots" json:"bots"`
	SquadSize           int     `yaml:"squad_size" toml:"squad_size" json:"squad_size"`
	Hostiles            int     `yaml:"hostiles" toml:"hostiles" json:"hostiles"`
	ArenaRadius         float64 `yaml:"arena_radius" toml:"arena_radius" json:"arena_radius"`
	Speed               float64 `yaml:"speed" toml:"speed" json:"speed"`
	HazardEveryTicks    uint64  `yaml:"hazard_every_ticks" toml:"hazard_every_ticks" json:"hazard_every_ticks"`
	HazardTicks         uint64  `yaml:"hazard_ticks" toml:"hazard_ticks" json:"hazard_ticks"`
	HazardRadius        float64 `yaml:"hazard_radius" toml:"hazard_radius" json:"hazard_radius"`
	EncounterEveryTicks uint64  `yaml:"encounter_every_ticks" toml:"encounter_every_ticks" json:"encounter_every_ticks"`
	EncounterTicks      uint64  `yaml:"encounter_ticks" toml:"encounter_ticks" json:"encounter_ticks"`
	CastChance          float64 `yaml:"cast_chance" toml:"cast_chance" json:"cast_chance"`
	RespawnTicks        uint64  `yaml:"respawn_ticks" toml:"respawn_ticks" json:"respawn_ticks"`
}

type Pool struct {
	Workers               int `yaml:"workers" toml:"workers" json:"workers"`
	MinWorkers            int `yaml:"min_workers" toml:"min_workers" json:"min_workers"`
	StealBackoffMinUs     int `yaml:"steal_backoff_min_us" toml:"steal_backoff_min_us" json:"steal_backoff_min_us"`
	StealBackoffMaxUs     int `yaml:"steal_backoff_max_us" toml:"steal_backoff_max_us" json:"steal_backoff_max_us"`
	StealRounds           int `yaml:"steal_rounds" toml:"steal_rounds" json:"steal_rounds"`
	WakeAllFactor         int `yaml:"wake_all_factor" toml:"wake_all_factor" json:"wake_all_factor"`
	LostWakeupThresholdMs int `yaml:"lost_wakeup_threshold_ms" toml:"lost_wakeup_threshold_ms" json:"lost_wakeup_threshold_ms"`
	WatchdogIntervalMs    int `yaml:"watchdog_interval_ms" toml:"watchdog_interval_ms" json:"watchdog_interval_ms"`
	ShutdownTimeoutMs     int `yaml:"shutdown_timeout_ms" toml:"shutdown_timeout_ms" json:"shutdown_timeout_ms"`
}

type Queue struct {
	Capacity    int    `yaml:"capacity" toml:"capacity" json:"capacity"`
	EvictPolicy string `yaml:"evict_policy" toml:"evict_policy" json:"evict_policy"`
}

type Arbiter struct {
	MaxHoldMs int `yaml:"max_hold_ms" toml:"max_hold_ms" json:"max_hold_ms"`
}

type Pipeline struct {
	StallBudgetMs  int    `yaml:"stall_budget_ms" toml:"stall_budget_ms" json:"stall_budget_ms"`
	TickBudgetMs   int    `yaml:"tick_budget_ms" toml:"tick_budget_ms" json:"tick_budget_ms"`
	DedupeTTLTicks uint64 `yaml:"dedupe_ttl_ticks" toml:"dedupe_ttl_ticks" json:"dedupe_ttl_ticks"`
}

// Defaults mirrors the package defaults of every component.
func Defaults() Tuning {
	wc := world.DefaultConfig()
	pc := pipeline.DefaultConfig()
	sc := schedule.DefaultConfig()
	return Tuning{
		LogLevel: "info",
		World: World{
			ID:                  wc.ID,
			TickRateHz:          wc.TickRateHz,
			Seed:                wc.Seed,
			Bots:                wc.Bots,
			SquadSize:           wc.SquadSize,
			Hostiles:            wc.Hostiles,
			ArenaRadius:         wc.ArenaRadius,
			Speed:               wc.Speed,
			HazardEveryTicks:    wc.HazardEvery,
			HazardTicks:         wc.HazardTicks,
			HazardRadius:        wc.HazardRadius,
			EncounterEveryTicks: wc.EncounterEvery,
			EncounterTicks:      wc.EncounterTicks,
			CastChance:          wc.CastChance,
			RespawnTicks:        wc.RespawnTicks,
		},
		Pool: Pool{
			Workers:               sc.Workers,
			MinWorkers:            sc.MinWorkers,
			StealBackoffMinUs:     int(sc.StealBackoffMin / time.Microsecond),
			StealBackoffMaxUs:     int(sc.StealBackoffMax / time.Microsecond),
			StealRounds:           sc.StealRounds,
			WakeAllFactor:         sc.WakeAllFactor,
			LostWakeupThresholdMs: int(sc.LostWakeupThreshold / time.Millisecond),
			WatchdogIntervalMs:    int(sc.WatchdogInterval / time.Millisecond),
			ShutdownTimeoutMs:     int(sc.ShutdownTimeout / time.Millisecond),
		},
		Queue: Queue{
			Capacity:    pc.QueueCapacity,
			EvictPolicy: pc.EvictPolicy.String(),
		},
		Arbiter: Arbiter{MaxHoldMs: int(pc.Arbiter.MaxHold / time.Millisecond)},
		Pipeline: Pipeline{
			StallBudgetMs:  int(pc.StallBudget / time.Millisecond),
			TickBudgetMs:   int(pc.TickBudget / time.Millisecond),
			DedupeTTLTicks: pc.Applier.DedupeTTLTicks,
		},
		Behavior: behavior.DefaultParams(),
	}
}

// Load reads path (.yaml/.yml or .toml), checks it against the schema, and
// decodes it over Defaults. An empty path returns Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	name := filepath.Base(path)

	var (
		doc    map[string]any
		decode func(any) error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		decode = func(v any) error {
			_, err := toml.Decode(string(raw), v)
			return err
		}
	case ".yaml", ".yml", "":
		decode = func(v any) error { return yaml.Unmarshal(raw, v) }
	default:
		return t, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err := decode(&doc); err != nil {
		return t, fmt.Errorf("%s: %w: %v", name, ErrInvalidConfig, err)
	}
	// The raw document goes through the schema first so type errors and
	// unknown keys surface as ErrInvalidConfig rather than decoder errors.
	if doc != nil {
		if err := validateDoc(doc); err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := decode(&t); err != nil {
		return t, fmt.Errorf("%s: %w: %v", name, ErrInvalidConfig, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("tuning.schema.json", schemaJSON)
}

// validateDoc checks a decoded document against the embedded schema. The
// document is normalized through JSON so YAML and TOML number types agree.
func validateDoc(doc any) error {
	if doc == nil {
		return nil
	}
	s, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate runs the schema over the full (defaulted) value and checks the
// rules a schema cannot express.
func (t Tuning) Validate() error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validateDoc(doc); err != nil {
		return err
	}
	if t.Pool.StealBackoffMinUs > t.Pool.StealBackoffMaxUs {
		return fmt.Errorf("%w: pool.steal_backoff_min_us > steal_backoff_max_us", ErrInvalidConfig)
	}
	if t.Pool.Workers > 0 && t.Pool.Workers < t.Pool.MinWorkers {
		return fmt.Errorf("%w: pool.workers below min_workers", ErrInvalidConfig)
	}
	if t.Pipeline.StallBudgetMs > t.Pipeline.TickBudgetMs {
		return fmt.Errorf("%w: pipeline.stall_budget_ms exceeds tick_budget_ms", ErrInvalidConfig)
	}
	if tickMs := 1000 / t.World.TickRateHz; t.Pipeline.TickBudgetMs > 4*tickMs {
		return fmt.Errorf("%w: pipeline.tick_budget_ms %d is more than four ticks (%dms)", ErrInvalidConfig, t.Pipeline.TickBudgetMs, tickMs)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (t Tuning) PoolConfig() schedule.Config {
	return schedule.Config{
		Workers:             t.Pool.Workers,
		MinWorkers:          t.Pool.MinWorkers,
		StealBackoffMin:     time.Duration(t.Pool.StealBackoffMinUs) * time.Microsecond,
		StealBackoffMax:     time.Duration(t.Pool.StealBackoffMaxUs) * time.Microsecond,
		StealRounds:         t.Pool.StealRounds,
		WakeAllFactor:       t.Pool.WakeAllFactor,
		LostWakeupThreshold: ms(t.Pool.LostWakeupThresholdMs),
		WatchdogInterval:    ms(t.Pool.WatchdogIntervalMs),
		ShutdownTimeout:     ms(t.Pool.ShutdownTimeoutMs),
	}
}

func (t Tuning) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Pool:          t.PoolConfig(),
		Arbiter:       arbiter.Config{MaxHold: ms(t.Arbiter.MaxHoldMs)},
		Applier:       applier.Config{DedupeTTLTicks: t.Pipeline.DedupeTTLTicks},
		QueueCapacity: t.Queue.Capacity,
		EvictPolicy:   actionqueue.ParsePolicy(t.Queue.EvictPolicy),
		StallBudget:   ms(t.Pipeline.StallBudgetMs),
		TickBudget:    ms(t.Pipeline.TickBudgetMs),
	}
}

func (t Tuning) WorldConfig() world.Config {
	c := world.DefaultConfig()
	c.ID = t.World.ID
	c.TickRateHz = t.World.TickRateHz
	c.Seed = t.World.Seed
	c.Bots = t.World.Bots
	c.SquadSize = t.World.SquadSize
	c.Hostiles = t.World.Hostiles
	c.ArenaRadius = t.World.ArenaRadius
	c.Speed = t.World.Speed
	c.HazardEvery = t.World.HazardEveryTicks
	c.HazardTicks = t.World.HazardTicks
	c.HazardRadius = t.World.HazardRadius
	c.EncounterEvery = t.World.EncounterEveryTicks
	c.EncounterTicks = t.World.EncounterTicks
	c.CastChance = t.World.CastChance
	c.RespawnTicks = t.World.RespawnTicks
	return c
}

package world

type Config struct {
	ID         string
	TickRateHz int
	Seed       int64

	// Initial population. Bots are grouped into squads of SquadSize; the
	// first live member of a squad leads it.
	Bots      int
	SquadSize int
	Hostiles  int

	ArenaRadius   float64
	Speed         float64 // units per tick
	AggroRange    float64
	ThreatRange   float64
	MeleeRange    float64
	InteractRange float64

	HazardEvery  uint64
	HazardTicks  uint64
	HazardRadius float64
	HazardDamage int

	EncounterEvery uint64
	EncounterTicks uint64

	CastChance   float64
	CastTicks    uint64
	CastDamage   int
	CastRadius   float64
	AttackDamage int
	HealAmount   int
	MaxHealth    int

	RespawnTicks uint64
}

func DefaultConfig() Config {
	return Config{
		ID:             "shard-1",
		TickRateHz:     10,
		Seed:           1,
		Bots:           200,
		SquadSize:      5,
		Hostiles:       40,
		ArenaRadius:    120,
		Speed:          0.6,
		AggroRange:     14,
		ThreatRange:    25,
		MeleeRange:     2.5,
		InteractRange:  3,
		HazardEvery:    30,
		HazardTicks:    40,
		HazardRadius:   6,
		HazardDamage:   4,
		EncounterEvery: 600,
		EncounterTicks: 80,
		CastChance:     0.02,
		CastTicks:      20,
		CastDamage:     15,
		CastRadius:     5,
		AttackDamage:   8,
		HealAmount:     15,
		MaxHealth:      100,
		RespawnTicks:   50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.SquadSize <= 0 {
		c.SquadSize = d.SquadSize
	}
	if c.ArenaRadius <= 0 {
		c.ArenaRadius = d.ArenaRadius
	}
	if c.Speed <= 0 {
		c.Speed = d.Speed
	}
	if c.MaxHealth <= 0 {
		c.MaxHealth = d.MaxHealth
	}
	if c.MeleeRange <= 0 {
		c.MeleeRange = d.MeleeRange
	}
	if c.InteractRange <= 0 {
		c.InteractRange = d.InteractRange
	}
	if c.AggroRange <= 0 {
		c.AggroRange = d.AggroRange
	}
	if c.ThreatRange <= 0 {
		c.ThreatRange = d.ThreatRange
	}
	return c
}

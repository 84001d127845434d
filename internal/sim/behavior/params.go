package behavior

// Params are the distances and thresholds the trees decide against.
type Params struct {
	RetreatHealth  float64 `yaml:"retreat_health" toml:"retreat_health" json:"retreat_health"`
	HealHealth     float64 `yaml:"heal_health" toml:"heal_health" json:"heal_health"`
	HazardMargin   float64 `yaml:"hazard_margin" toml:"hazard_margin" json:"hazard_margin"`
	InterruptRange float64 `yaml:"interrupt_range" toml:"interrupt_range" json:"interrupt_range"`
	InteractRange  float64 `yaml:"interact_range" toml:"interact_range" json:"interact_range"`
	MeleeRange     float64 `yaml:"melee_range" toml:"melee_range" json:"melee_range"`
	KiteRange      float64 `yaml:"kite_range" toml:"kite_range" json:"kite_range"`
	LeashRange     float64 `yaml:"leash_range" toml:"leash_range" json:"leash_range"`
	FormationSlack float64 `yaml:"formation_slack" toml:"formation_slack" json:"formation_slack"`
	ArriveRadius   float64 `yaml:"arrive_radius" toml:"arrive_radius" json:"arrive_radius"`
	WanderRadius   float64 `yaml:"wander_radius" toml:"wander_radius" json:"wander_radius"`
	WanderEvery    uint64  `yaml:"wander_every" toml:"wander_every" json:"wander_every"`
}

func DefaultParams() Params {
	return Params{
		RetreatHealth:  0.2,
		HealHealth:     0.5,
		HazardMargin:   1.5,
		InterruptRange: 6,
		InteractRange:  3,
		MeleeRange:     2,
		KiteRange:      5,
		LeashRange:     12,
		FormationSlack: 1.5,
		ArriveRadius:   0.75,
		WanderRadius:   4,
		WanderEvery:    20,
	}
}

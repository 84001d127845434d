package action

// Priority tiers, highest wins. Bands leave room for finer-grained values
// between tiers; TierName reports the band a raw priority falls into.
const (
	PrioritySurvival     uint8 = 255
	PriorityHazard       uint8 = 245
	PriorityInterrupt    uint8 = 230
	PriorityEncounter    uint8 = 220
	PriorityRolePosition uint8 = 160
	PriorityKiting       uint8 = 150
	PriorityFormation    uint8 = 50
	PriorityCombat       uint8 = 40
	PriorityRoutine      uint8 = 20
	PriorityIdle         uint8 = 5
)

var tiers = []struct {
	min  uint8
	name string
}{
	{PrioritySurvival, "survival"},
	{PriorityHazard, "hazard"},
	{PriorityInterrupt, "interrupt"},
	{PriorityEncounter, "encounter"},
	{PriorityRolePosition, "role_position"},
	{PriorityKiting, "kiting"},
	{PriorityFormation, "formation"},
	{PriorityCombat, "combat"},
	{PriorityRoutine, "routine"},
	{PriorityIdle, "idle"},
}

func TierName(p uint8) string {
	for _, t := range tiers {
		if p >= t.min {
			return t.name
		}
	}
	return "ambient"
}

type Tier struct {
	Name     string `json:"name"`
	Priority uint8  `json:"priority"`
}

// Tiers lists the named tiers from highest to lowest.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	for i, t := range tiers {
		out[i] = Tier{Name: t.name, Priority: t.min}
	}
	return out
}

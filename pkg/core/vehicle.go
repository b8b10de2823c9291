// pkg/core/vehicle.go
package core

// Slot is an exclusive part slot. A vehicle holds at most one part per slot.
type Slot string

const (
	SlotNone         Slot = ""
	SlotTires        Slot = "tires"
	SlotCamshaft     Slot = "camshaft"
	SlotDifferential Slot = "differential"
	SlotTurbo        Slot = "turbo"
	SlotCompressor   Slot = "compressor"
	SlotIntercooler  Slot = "intercooler"
)

// Boosts is the sparse set of modifiers a part applies.
// Absolute fields add to a stat; Pct fields are percentages summed across
// all installed parts before being applied once. A zero field contributes
// nothing.
type Boosts struct {
	Power        float64 `json:"power,omitempty" yaml:"power,omitempty"`
	Torque       float64 `json:"torque,omitempty" yaml:"torque,omitempty"`
	TopSpeed     float64 `json:"topSpeed,omitempty" yaml:"topSpeed,omitempty"`
	Acceleration float64 `json:"acceleration,omitempty" yaml:"acceleration,omitempty"`
	Handling     float64 `json:"handling,omitempty" yaml:"handling,omitempty"`
	Offroad      float64 `json:"offroad,omitempty" yaml:"offroad,omitempty"`

	PowerPct        float64 `json:"powerPct,omitempty" yaml:"powerPct,omitempty"`
	TorquePct       float64 `json:"torquePct,omitempty" yaml:"torquePct,omitempty"`
	TopSpeedPct     float64 `json:"topSpeedPct,omitempty" yaml:"topSpeedPct,omitempty"`
	AccelerationPct float64 `json:"accelerationPct,omitempty" yaml:"accelerationPct,omitempty"`
	HandlingPct     float64 `json:"handlingPct,omitempty" yaml:"handlingPct,omitempty"`
	OffroadPct      float64 `json:"offroadPct,omitempty" yaml:"offroadPct,omitempty"`
}

// Absolute returns the absolute deltas as a stat vector.
func (b Boosts) Absolute() Stats {
	return Stats{
		Power:        b.Power,
		Torque:       b.Torque,
		TopSpeed:     b.TopSpeed,
		Acceleration: b.Acceleration,
		Handling:     b.Handling,
		Offroad:      b.Offroad,
	}
}

// Percent returns the percentage modifiers as a stat vector.
// A positive acceleration percent means a faster (lower) time.
func (b Boosts) Percent() Stats {
	return Stats{
		Power:        b.PowerPct,
		Torque:       b.TorquePct,
		TopSpeed:     b.TopSpeedPct,
		Acceleration: b.AccelerationPct,
		Handling:     b.HandlingPct,
		Offroad:      b.OffroadPct,
	}
}

// Part is an upgrade sold by a shop. Parts are immutable catalog entries and
// are copied by value into a vehicle's installed list.
type Part struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Brand    string `json:"brand" yaml:"brand"`
	Tier     int    `json:"tier,omitempty" yaml:"tier,omitempty"`
	Price    int    `json:"price" yaml:"price"`
	Boosts   Boosts `json:"boosts" yaml:"boosts"`
	Slot     Slot   `json:"slot,omitempty" yaml:"slot,omitempty"`
	Requires Slot   `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// Vehicle is a car, either a catalog archetype or an owned copy in a garage.
// CatalogID references the archetype an owned vehicle was bought from.
type Vehicle struct {
	ID             string   `json:"id" yaml:"id"`
	CatalogID      string   `json:"catalogId,omitempty" yaml:"-"`
	Name           string   `json:"name" yaml:"name"`
	Price          int      `json:"price" yaml:"price"`
	Stats          Stats    `json:"stats" yaml:"stats"`
	Coefficients   *Stats   `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
	InstalledParts []Part   `json:"installedParts" yaml:"-"`
	Class          string   `json:"class,omitempty" yaml:"class,omitempty"`
	Dealer         string   `json:"dealer,omitempty" yaml:"dealer,omitempty"`
	Year           int      `json:"year,omitempty" yaml:"year,omitempty"`
	Quantity       int      `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Coefficient returns the upgrade coefficient for a stat. Missing or zero
// coefficients count as 1.
func (v Vehicle) Coefficient(t StatType) float64 {
	if v.Coefficients == nil {
		return 1
	}
	if c := v.Coefficients.Get(t); c != 0 {
		return c
	}
	return 1
}

// HasSlot reports whether an installed part occupies the slot.
func (v Vehicle) HasSlot(s Slot) bool {
	if s == SlotNone {
		return false
	}
	for _, p := range v.InstalledParts {
		if p.Slot == s {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate the installed list safely.
func (v Vehicle) Clone() Vehicle {
	out := v
	if v.Coefficients != nil {
		c := *v.Coefficients
		out.Coefficients = &c
	}
	out.InstalledParts = make([]Part, len(v.InstalledParts))
	copy(out.InstalledParts, v.InstalledParts)
	out.Tags = append([]string(nil), v.Tags...)
	return out
}

// pkg/core/stats.go
package core

// StatType names one dimension of a vehicle's performance vector.
type StatType string

const (
	StatPower        StatType = "power"
	StatTorque       StatType = "torque"
	StatTopSpeed     StatType = "topSpeed"
	StatAcceleration StatType = "acceleration"
	StatHandling     StatType = "handling"
	StatOffroad      StatType = "offroad"
)

// StatTypes lists every stat in canonical order.
var StatTypes = []StatType{
	StatPower,
	StatTorque,
	StatTopSpeed,
	StatAcceleration,
	StatHandling,
	StatOffroad,
}

// Stats is a six-dimensional performance vector.
// Acceleration is the 0-100 km/h time in seconds, so lower is better.
type Stats struct {
	Power        float64 `json:"power" yaml:"power"`
	Torque       float64 `json:"torque" yaml:"torque"`
	TopSpeed     float64 `json:"topSpeed" yaml:"topSpeed"`
	Acceleration float64 `json:"acceleration" yaml:"acceleration"`
	Handling     float64 `json:"handling" yaml:"handling"`
	Offroad      float64 `json:"offroad" yaml:"offroad"`
}

// UnitCoefficients returns a vector with every stat set to 1.
func UnitCoefficients() Stats {
	return Stats{Power: 1, Torque: 1, TopSpeed: 1, Acceleration: 1, Handling: 1, Offroad: 1}
}

// Get returns the value of a single stat.
func (s Stats) Get(t StatType) float64 {
	switch t {
	case StatPower:
		return s.Power
	case StatTorque:
		return s.Torque
	case StatTopSpeed:
		return s.TopSpeed
	case StatAcceleration:
		return s.Acceleration
	case StatHandling:
		return s.Handling
	case StatOffroad:
		return s.Offroad
	}
	return 0
}

// Set assigns a single stat.
func (s *Stats) Set(t StatType, v float64) {
	switch t {
	case StatPower:
		s.Power = v
	case StatTorque:
		s.Torque = v
	case StatTopSpeed:
		s.TopSpeed = v
	case StatAcceleration:
		s.Acceleration = v
	case StatHandling:
		s.Handling = v
	case StatOffroad:
		s.Offroad = v
	}
}

// pkg/core/race.go
package core

import "strings"

// Track describes how a course weighs each stat.
// Weights are non-negative and need not sum to 1. The acceleration weight
// applies to the inverted acceleration score, not the raw time.
type Track struct {
	ID                 string  `json:"id" yaml:"id"`
	Name               string  `json:"name" yaml:"name"`
	Description        string  `json:"description,omitempty" yaml:"description,omitempty"`
	Weights            Stats   `json:"weights" yaml:"weights"`
	WeatherSensitivity float64 `json:"weatherSensitivity" yaml:"weatherSensitivity"`
}

// Weather is the race-day condition.
type Weather string

const (
	WeatherClear Weather = "CLEAR"
	WeatherRain  Weather = "RAIN"
	WeatherStorm Weather = "STORM"
)

// Severity returns the base penalty fraction for the condition.
func (w Weather) Severity() float64 {
	switch w {
	case WeatherRain:
		return 0.2
	case WeatherStorm:
		return 0.4
	default:
		return 0
	}
}

// ParseWeather accepts CLEAR, RAIN, STORM (and SUNNY as an alias for CLEAR),
// case-insensitively. Unknown values return false.
func ParseWeather(s string) (Weather, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CLEAR", "SUNNY", "":
		return WeatherClear, true
	case "RAIN":
		return WeatherRain, true
	case "STORM":
		return WeatherStorm, true
	}
	return "", false
}

// Reward is the payout for a finishing position.
type Reward struct {
	Money  int `json:"money" yaml:"money"`
	Points int `json:"points" yaml:"points"`
}

// RaceResult is one participant's outcome. Results are created per race and
// never modified afterwards.
type RaceResult struct {
	VehicleID   string  `json:"vehicleId"`
	VehicleName string  `json:"vehicleName"`
	OwnerID     string  `json:"ownerId,omitempty"`
	Time        float64 `json:"time"`
	Rank        int     `json:"rank"`
	Money       int     `json:"money"`
	Points      int     `json:"points"`
	Category    string  `json:"category,omitempty"`
}

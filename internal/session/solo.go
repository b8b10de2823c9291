package session

import (
	"github.com/raceweek/raceweek/internal/race"
	"github.com/raceweek/raceweek/internal/stats"
	"github.com/raceweek/raceweek/pkg/core"
)

// SimulateRace runs a race outside any room, such as a single-player event
// against the filler roster.
func (s *Service) SimulateRace(entries []race.Entry, track core.Track, weather core.Weather, includeFiller bool) []core.RaceResult {
	if weather == "" {
		weather = s.sim.RollWeather()
	}
	return s.sim.Simulate(entries, track, weather, includeFiller)
}

// ComputeEffectiveStats returns a vehicle's stats with its parts applied.
func (s *Service) ComputeEffectiveStats(v core.Vehicle) core.Stats {
	return stats.EffectiveStats(v)
}

// CanInstallPart reports why p cannot go on v, or nil.
func (s *Service) CanInstallPart(v core.Vehicle, p core.Part) error {
	return installRejection(stats.CanInstall(v, p, 0))
}

// Package race simulates scored races between vehicles.
package race

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/raceweek/raceweek/internal/stats"
	"github.com/raceweek/raceweek/pkg/core"
)

const (
	// Distance is the nominal race length in kilometres.
	Distance = 4.0
	// MinScore floors the final speed score.
	MinScore = 10.0
	// Noise is the half-width of the uniform luck band added to every score.
	Noise = 5.0

	accelCeiling  = 40.0
	mitigationMax = 200.0
)

// Entry is a vehicle taking part in a race. OwnerID is empty for filler
// opponents.
type Entry struct {
	Vehicle core.Vehicle
	OwnerID string
}

// Simulator runs races. It owns its random source and is safe for
// concurrent use.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	filler  []core.Vehicle
	rewards RewardTable
}

// NewSimulator creates a Simulator. A nil rewards table uses TieredRewards.
func NewSimulator(rng *rand.Rand, filler []core.Vehicle, rewards RewardTable) *Simulator {
	if rewards == nil {
		rewards = TieredRewards{}
	}
	return &Simulator{
		rng:     rng,
		filler:  filler,
		rewards: rewards,
	}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Filler returns a copy of the filler roster.
func (s *Simulator) Filler() []core.Vehicle {
	return append([]core.Vehicle(nil), s.filler...)
}

// Score returns the noise-free speed score of a vehicle on a track.
func Score(v core.Vehicle, track core.Track, weather core.Weather) float64 {
	st := stats.EffectiveStats(v)
	w := track.Weights

	accelScore := math.Max(1, accelCeiling-st.Acceleration)
	raw := st.Power*w.Power +
		st.Torque*w.Torque +
		st.TopSpeed*w.TopSpeed +
		accelScore*w.Acceleration +
		st.Handling*w.Handling +
		st.Offroad*w.Offroad

	mitigation := (st.Handling*0.5 + st.Offroad*0.5) / mitigationMax
	penalty := weather.Severity() * track.WeatherSensitivity * math.Max(0, 1-mitigation)
	return raw * (1 - penalty)
}

// Simulate races the entries on track and returns results ordered by
// ascending time with ranks 1..N and rewards applied. Filler opponents are
// appended when includeFiller is set. Simulate never fails; no entries and
// no filler gives an empty slice.
func (s *Simulator) Simulate(entries []Entry, track core.Track, weather core.Weather, includeFiller bool) []core.RaceResult {
	field := make([]Entry, 0, len(entries)+len(s.filler))
	field = append(field, entries...)
	if includeFiller {
		for _, v := range s.filler {
			field = append(field, Entry{Vehicle: v})
		}
	}

	results := make([]core.RaceResult, 0, len(field))
	s.mu.Lock()
	for _, e := range field {
		luck := s.rng.Float64()*2*Noise - Noise
		speed := math.Max(MinScore, Score(e.Vehicle, track, weather)+luck)
		seconds := Distance / speed * 3600
		results = append(results, core.RaceResult{
			VehicleID:   e.Vehicle.ID,
			VehicleName: e.Vehicle.Name,
			OwnerID:     e.OwnerID,
			Time:        math.Round(seconds*1000) / 1000,
		})
	}
	s.mu.Unlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Time < results[j].Time
	})

	for i := range results {
		results[i].Rank = i + 1
		r := s.rewards.Reward(results[i].Rank, len(results))
		results[i].Money = r.Money
		results[i].Points = r.Points
	}
	return results
}

// RollWeather picks a race-day condition: 20% storm, 20% rain, otherwise
// clear.
func (s *Simulator) RollWeather() core.Weather {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RollWeather(s.rng)
}

// RollWeather picks a race-day condition from r.
func RollWeather(r *rand.Rand) core.Weather {
	roll := r.Float64()
	switch {
	case roll > 0.8:
		return core.WeatherStorm
	case roll > 0.6:
		return core.WeatherRain
	default:
		return core.WeatherClear
	}
}

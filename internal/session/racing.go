package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raceweek/raceweek/internal/race"
	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/internal/schedule"
	"github.com/raceweek/raceweek/internal/stats"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/pkg/core"
)

// DefaultRaceID names the race held on a room day when the caller does not
// pick one.
func DefaultRaceID(day int) string {
	return fmt.Sprintf("day-%d", day)
}

// SubmitRaceEntry enters one of the player's vehicles in the day's race,
// replacing any earlier entry by the same player.
func (s *Service) SubmitRaceEntry(ctx context.Context, roomID, playerID, raceID, vehicleID string) (core.RaceEntry, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return core.RaceEntry{}, err
	}
	if err := requirePlaying(room); err != nil {
		return core.RaceEntry{}, err
	}
	if room.Phase != core.PhaseRaceSetup {
		return core.RaceEntry{}, reject(ReasonWrongPhase, "entries are only taken during race setup")
	}
	p, err := s.loadPlayer(ctx, roomID, playerID)
	if err != nil {
		return core.RaceEntry{}, err
	}
	if _, _, ok := p.Vehicle(vehicleID); !ok {
		return core.RaceEntry{}, reject(ReasonVehicleNotInGarage, "vehicle %s", vehicleID)
	}
	if raceID == "" {
		raceID = DefaultRaceID(room.CurrentDay)
	}

	e := core.RaceEntry{
		ID:        s.ids(),
		RoomID:    roomID,
		PlayerID:  playerID,
		RaceID:    raceID,
		VehicleID: vehicleID,
		Day:       room.CurrentDay,
	}
	if err := s.store.ReplaceRaceEntry(ctx, e); err != nil {
		return core.RaceEntry{}, fmt.Errorf("submit entry: %w", err)
	}
	return e, nil
}

// RunRace simulates the day's race from the submitted entries, pays out
// rewards and moves the room to RESULTS. Empty raceID, trackID or weather are
// chosen by the service. On world series days the field is split into power
// categories that race separately.
func (s *Service) RunRace(ctx context.Context, roomID, actorID, raceID, trackID string, weather core.Weather) (core.RaceRecord, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return core.RaceRecord{}, err
	}
	if err := requireHost(room, actorID); err != nil {
		return core.RaceRecord{}, err
	}
	if err := requirePlaying(room); err != nil {
		return core.RaceRecord{}, err
	}
	if room.Phase != core.PhaseRaceSetup {
		return core.RaceRecord{}, fmt.Errorf("run race in %s: %w", room.Phase, ErrUnexpectedPhase)
	}

	track, err := s.pickTrack(trackID, room.CurrentDay)
	if err != nil {
		return core.RaceRecord{}, err
	}
	if weather == "" {
		weather = s.sim.RollWeather()
	}
	if raceID == "" {
		raceID = DefaultRaceID(room.CurrentDay)
	}
	day := room.CurrentDay

	setup := room
	room.Phase = core.PhaseRacing
	room.UpdatedAt = s.now()
	if err := s.store.TransitionRoom(ctx, room, day, core.PhaseRaceSetup); err != nil {
		return core.RaceRecord{}, s.transitionError(ctx, roomID, day, err)
	}
	s.publish(ctx, realtime.RoomUpdated(room))

	rec, results, byID, err := s.race(ctx, room, raceID, track, weather)
	if err != nil {
		s.restoreRaceSetup(ctx, setup)
		return core.RaceRecord{}, err
	}

	rewards := make(map[string]core.Reward)
	for _, r := range results {
		if _, ok := byID[r.OwnerID]; !ok {
			continue
		}
		rw := rewards[r.OwnerID]
		rw.Money += r.Money
		rw.Points += r.Points
		rewards[r.OwnerID] = rw
	}

	room.Phase = core.PhaseResults
	room.UpdatedAt = s.now()
	if err := s.store.CommitRace(ctx, room, day, core.PhaseRacing, rec, rewards); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return core.RaceRecord{}, s.transitionError(ctx, roomID, day, err)
		}
		s.restoreRaceSetup(ctx, setup)
		return core.RaceRecord{}, fmt.Errorf("commit race: %w", err)
	}

	s.log.InfoContext(ctx, "Race finished", "room", roomID, "race", raceID, "track", track.ID, "weather", weather, "field", len(results))
	s.metrics.RaceFinished(ctx, room, rec)
	for id := range rewards {
		p, err := s.store.Player(ctx, id)
		if err != nil {
			s.log.WarnContext(ctx, "Failed to reload paid player", "room", roomID, "player", id, "error", err)
			continue
		}
		s.publish(ctx, realtime.PlayerUpdated(p))
	}
	s.publish(ctx, realtime.RoomUpdated(room), realtime.RaceFinished(rec))
	s.systemMessage(ctx, roomID, raceSummary(track, weather, results, byID))
	return rec, nil
}

// race simulates the day's field from the submitted entries. byID holds the
// players as read before the race.
func (s *Service) race(ctx context.Context, room core.Room, raceID string, track core.Track, weather core.Weather) (core.RaceRecord, []core.RaceResult, map[string]*core.Player, error) {
	players, err := s.store.Players(ctx, room.ID)
	if err != nil {
		return core.RaceRecord{}, nil, nil, fmt.Errorf("run race: %w", err)
	}
	byID := make(map[string]*core.Player, len(players))
	for i := range players {
		byID[players[i].ID] = &players[i]
	}

	submitted, err := s.store.RaceEntries(ctx, room.ID, room.CurrentDay)
	if err != nil {
		return core.RaceRecord{}, nil, nil, fmt.Errorf("run race: %w", err)
	}
	var entries []race.Entry
	for _, e := range submitted {
		if e.RaceID != raceID {
			continue
		}
		p, ok := byID[e.PlayerID]
		if !ok {
			continue
		}
		v, _, ok := p.Vehicle(e.VehicleID)
		if !ok {
			s.log.WarnContext(ctx, "Entry vehicle left the garage", "room", room.ID, "player", p.ID, "vehicle", e.VehicleID)
			continue
		}
		entries = append(entries, race.Entry{Vehicle: v, OwnerID: p.ID})
	}

	var results []core.RaceResult
	if schedule.ForMode(room.Mode).Lookup(room.CurrentDay).RaceType == schedule.RaceWorld {
		results = s.runCategories(entries, track, weather)
	} else {
		results = s.sim.Simulate(entries, track, weather, false)
	}

	rec := core.RaceRecord{
		ID:      s.ids(),
		RoomID:  room.ID,
		RaceID:  raceID,
		Day:     room.CurrentDay,
		TrackID: track.ID,
		Weather: weather,
		Results: results,
		RanAt:   s.now(),
	}
	return rec, results, byID, nil
}

// transitionError tells a day rollover apart from a phase change after a
// lost conditional write.
func (s *Service) transitionError(ctx context.Context, roomID string, day int, err error) error {
	if !errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("run race: %w", err)
	}
	cur, lerr := s.store.RoomByID(ctx, roomID)
	if lerr == nil && cur.CurrentDay == day {
		return fmt.Errorf("run race in %s: %w", cur.Phase, ErrUnexpectedPhase)
	}
	return fmt.Errorf("run race: %w", ErrDayAlreadyAdvanced)
}

// restoreRaceSetup puts a room whose race did not commit back to RACE_SETUP
// so the host can run it again.
func (s *Service) restoreRaceSetup(ctx context.Context, setup core.Room) {
	setup.UpdatedAt = s.now()
	err := s.store.TransitionRoom(context.WithoutCancel(ctx), setup, setup.CurrentDay, core.PhaseRacing)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to restore race setup", "room", setup.ID, "day", setup.CurrentDay, "error", err)
		return
	}
	s.publish(ctx, realtime.RoomUpdated(setup))
}

// runCategories races each power band on its own and concatenates the fields
// in band order.
func (s *Service) runCategories(entries []race.Entry, track core.Track, weather core.Weather) []core.RaceResult {
	groups := map[string][]race.Entry{}
	for _, e := range entries {
		label := schedule.CategoryFor(stats.EffectiveStats(e.Vehicle).Power).Label
		groups[label] = append(groups[label], e)
	}
	var out []core.RaceResult
	for _, c := range schedule.PowerCategories {
		field, ok := groups[c.Label]
		if !ok {
			continue
		}
		for _, r := range s.sim.Simulate(field, track, weather, false) {
			r.Category = c.Label
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) pickTrack(id string, day int) (core.Track, error) {
	if id != "" {
		t, ok := s.catalog.Track(id)
		if !ok {
			return core.Track{}, reject(ReasonUnknownTrack, "track %s", id)
		}
		return t, nil
	}
	if len(s.catalog.Tracks) == 0 {
		return core.Track{}, errors.New("catalog has no tracks")
	}
	if day < 1 {
		day = 1
	}
	return s.catalog.Tracks[(day-1)%len(s.catalog.Tracks)], nil
}

func raceSummary(track core.Track, weather core.Weather, results []core.RaceResult, players map[string]*core.Player) string {
	var winners []string
	for _, r := range results {
		if r.Rank != 1 {
			continue
		}
		name := r.VehicleName
		if p, ok := players[r.OwnerID]; ok {
			name = fmt.Sprintf("%s (%s)", r.VehicleName, p.Username)
		}
		if r.Category != "" {
			name = fmt.Sprintf("%s hp: %s", r.Category, name)
		}
		winners = append(winners, name)
	}
	if len(winners) == 0 {
		return fmt.Sprintf("Race at %s finished without entries.", track.Name)
	}
	return fmt.Sprintf("Race at %s (%s) won by %s.", track.Name, strings.ToLower(string(weather)), strings.Join(winners, "; "))
}

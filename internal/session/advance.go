package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/internal/schedule"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/pkg/core"
)

func dayAnnouncement(mode core.RoomMode, e schedule.Entry, day, year int) string {
	var activity string
	switch e.Activity {
	case schedule.ActivityRace:
		activity = strings.ToLower(string(e.RaceType)) + " race"
	case schedule.ActivityDealer:
		activity = "dealer day"
	default:
		activity = "tuning"
	}
	if mode == core.ModeQuick {
		return fmt.Sprintf("Day %d: %s. Epoch %d.", day, activity, year)
	}
	return fmt.Sprintf("Day %d: %s, %s. Epoch %d.", day, e.Weekday, activity, year)
}

// AdvanceDay moves a PLAYING room from expectedDay to the next schedule day.
// Exactly one of several concurrent callers with the same expectedDay
// succeeds; the rest get ErrDayAlreadyAdvanced.
func (s *Service) AdvanceDay(ctx context.Context, roomID, actorID string, expectedDay int) (core.Room, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return room, err
	}
	if err := requireHost(room, actorID); err != nil {
		return room, err
	}
	if err := requirePlaying(room); err != nil {
		return room, err
	}
	if room.CurrentDay != expectedDay {
		return room, fmt.Errorf("advance from day %d, room is on day %d: %w", expectedDay, room.CurrentDay, ErrDayAlreadyAdvanced)
	}

	loaded := room
	table := schedule.ForMode(room.Mode)
	next := table.Next(room.CurrentDay, room.CurrentYear)
	now := s.now()
	prevYear := room.CurrentYear

	room.CurrentDay = next.Day
	room.CurrentYear = next.Year
	room.Phase = next.Phase
	room.DayStartedAt = &now
	if next.Entry.Day == table.CycleStart {
		room.WeekStartedAt = &now
	}
	room.UpdatedAt = now

	if err := s.store.CommitDayAdvance(ctx, room, expectedDay); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return loaded, fmt.Errorf("advance room %s: %w", roomID, ErrDayAlreadyAdvanced)
		}
		return loaded, fmt.Errorf("advance room %s: %w", roomID, err)
	}

	s.log.InfoContext(ctx, "Day advanced", "room", room.ID, "day", room.CurrentDay, "year", room.CurrentYear, "phase", room.Phase)
	s.metrics.DayAdvanced(ctx, room)
	s.publish(ctx, realtime.RoomUpdated(room))

	// shop visits were cleared by the commit
	if players, err := s.store.Players(ctx, roomID); err != nil {
		s.log.WarnContext(ctx, "Reload players failed", "room", roomID, "error", err)
	} else {
		for _, p := range players {
			s.publish(ctx, realtime.PlayerUpdated(p))
		}
	}

	msg := dayAnnouncement(room.Mode, next.Entry, room.CurrentDay, room.CurrentYear)
	if room.CurrentYear != prevYear {
		msg += " A new year begins."
	}
	s.systemMessage(ctx, room.ID, msg)
	return room, nil
}

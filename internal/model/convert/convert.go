package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raceweek/raceweek/internal/model"
	"github.com/raceweek/raceweek/pkg/core"
)

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// RoomToCore converts a GORM model.Room to a core.Room.
func RoomToCore(r model.Room) core.Room {
	return core.Room{
		ID:            r.ID,
		Code:          r.Code,
		Status:        core.RoomStatus(r.Status),
		Mode:          core.RoomMode(r.Mode),
		HostID:        r.HostID,
		CurrentDay:    r.CurrentDay,
		CurrentYear:   r.CurrentYear,
		Phase:         core.Phase(r.Phase),
		MaxPlayers:    r.MaxPlayers,
		DayStartedAt:  timePtr(r.DayStartedAt),
		WeekStartedAt: timePtr(r.WeekStartedAt),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// PlayerToCore converts a GORM model.Player to a core.Player.
func PlayerToCore(p model.Player) (core.Player, error) {
	out := core.Player{
		ID:       p.ID,
		RoomID:   p.RoomID,
		Username: p.Username,
		IsHost:   p.IsHost,
		Money:    p.Money,
		Points:   p.Points,
		Garage:   []core.Vehicle{},
		JoinedAt: p.JoinedAt,
	}
	if len(p.Garage) > 0 {
		if err := json.Unmarshal(p.Garage, &out.Garage); err != nil {
			return core.Player{}, fmt.Errorf("decoding garage of player %s: %w", p.ID, err)
		}
	}
	if len(p.ShopVisits) > 0 {
		if err := json.Unmarshal(p.ShopVisits, &out.ShopVisits); err != nil {
			return core.Player{}, fmt.Errorf("decoding shop visits of player %s: %w", p.ID, err)
		}
	}
	return out, nil
}

// ChatMessageToCore converts a GORM model.ChatMessage to a core.ChatMessage.
func ChatMessageToCore(m model.ChatMessage) core.ChatMessage {
	return core.ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		PlayerID:  m.PlayerID,
		Username:  m.Username,
		Message:   m.Message,
		Kind:      core.MessageKind(m.Kind),
		CreatedAt: m.CreatedAt,
	}
}

// RaceEntryToCore converts a GORM model.RaceEntry to a core.RaceEntry.
func RaceEntryToCore(e model.RaceEntry) core.RaceEntry {
	return core.RaceEntry{
		ID:        e.ID,
		RoomID:    e.RoomID,
		PlayerID:  e.PlayerID,
		RaceID:    e.RaceID,
		VehicleID: e.VehicleID,
		Day:       e.Day,
	}
}

// RaceRecordToCore converts a GORM model.RaceRecord to a core.RaceRecord.
func RaceRecordToCore(r model.RaceRecord) (core.RaceRecord, error) {
	out := core.RaceRecord{
		ID:      r.ID,
		RoomID:  r.RoomID,
		RaceID:  r.RaceID,
		Day:     r.Day,
		TrackID: r.TrackID,
		Weather: core.Weather(r.Weather),
	}
	if len(r.Results) > 0 {
		if err := json.Unmarshal(r.Results, &out.Results); err != nil {
			return core.RaceRecord{}, fmt.Errorf("decoding results of race %s: %w", r.ID, err)
		}
	}
	out.RanAt = r.RanAt
	return out, nil
}

// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raceweek/raceweek/internal/model"
	"github.com/raceweek/raceweek/pkg/core"
	"gorm.io/datatypes"
)

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// toJSON marshals v, storing empty collections as "[]" or "{}" rather than null.
func toJSON(v any, empty string) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return datatypes.JSON(empty), nil
	}
	return datatypes.JSON(data), nil
}

// CoreToRoom converts a core.Room to a GORM model.Room.
func CoreToRoom(r core.Room) model.Room {
	return model.Room{
		ID:            r.ID,
		Code:          r.Code,
		Status:        string(r.Status),
		Mode:          string(r.Mode),
		HostID:        r.HostID,
		CurrentDay:    r.CurrentDay,
		CurrentYear:   r.CurrentYear,
		Phase:         string(r.Phase),
		MaxPlayers:    r.MaxPlayers,
		DayStartedAt:  nullTime(r.DayStartedAt),
		WeekStartedAt: nullTime(r.WeekStartedAt),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// CoreToPlayer converts a core.Player to a GORM model.Player.
func CoreToPlayer(p core.Player) (model.Player, error) {
	garage, err := toJSON(p.Garage, "[]")
	if err != nil {
		return model.Player{}, fmt.Errorf("encoding garage: %w", err)
	}
	visits, err := toJSON(p.ShopVisits, "{}")
	if err != nil {
		return model.Player{}, fmt.Errorf("encoding shop visits: %w", err)
	}
	return model.Player{
		ID:         p.ID,
		RoomID:     p.RoomID,
		Username:   p.Username,
		IsHost:     p.IsHost,
		Money:      p.Money,
		Points:     p.Points,
		Garage:     garage,
		ShopVisits: visits,
		JoinedAt:   p.JoinedAt,
	}, nil
}

// CoreToChatMessage converts a core.ChatMessage to a GORM model.ChatMessage.
func CoreToChatMessage(m core.ChatMessage) model.ChatMessage {
	return model.ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		PlayerID:  m.PlayerID,
		Username:  m.Username,
		Message:   m.Message,
		Kind:      string(m.Kind),
		CreatedAt: m.CreatedAt,
	}
}

// CoreToRaceEntry converts a core.RaceEntry to a GORM model.RaceEntry.
func CoreToRaceEntry(e core.RaceEntry) model.RaceEntry {
	return model.RaceEntry{
		ID:        e.ID,
		RoomID:    e.RoomID,
		PlayerID:  e.PlayerID,
		RaceID:    e.RaceID,
		VehicleID: e.VehicleID,
		Day:       e.Day,
	}
}

// CoreToPurchaseLog converts a core.PurchaseLog to a GORM model.PurchaseLog.
func CoreToPurchaseLog(l core.PurchaseLog) model.PurchaseLog {
	return model.PurchaseLog{
		ID:        l.ID,
		RoomID:    l.RoomID,
		PlayerID:  l.PlayerID,
		CatalogID: l.CatalogID,
		CreatedAt: l.CreatedAt,
	}
}

// CoreToRaceRecord converts a core.RaceRecord to a GORM model.RaceRecord.
func CoreToRaceRecord(r core.RaceRecord) (model.RaceRecord, error) {
	results, err := toJSON(r.Results, "[]")
	if err != nil {
		return model.RaceRecord{}, fmt.Errorf("encoding results: %w", err)
	}
	return model.RaceRecord{
		ID:      r.ID,
		RoomID:  r.RoomID,
		RaceID:  r.RaceID,
		Day:     r.Day,
		TrackID: r.TrackID,
		Weather: string(r.Weather),
		Results: results,
		RanAt:   r.RanAt,
	}, nil
}

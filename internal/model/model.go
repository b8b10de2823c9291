package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Room{},
	&Player{},
	&ChatMessage{},
	&RaceEntry{},
	&PurchaseLog{},
	&RaceRecord{},
}

////////////////////////
// ROOMS
////////////////////////

// Room is a multiplayer session. CurrentDay is the optimistic concurrency
// token for day transitions.
type Room struct {
	ID            string       `json:"id" gorm:"primaryKey;size:36"`
	Code          string       `json:"code" gorm:"size:8;index"`
	Status        string       `json:"status" gorm:"size:16;index"`
	Mode          string       `json:"mode" gorm:"size:16"`
	HostID        string       `json:"hostId" gorm:"size:36"`
	CurrentDay    int          `json:"currentDay"`
	CurrentYear   int          `json:"currentYear"`
	Phase         string       `json:"phase" gorm:"size:16"`
	MaxPlayers    int          `json:"maxPlayers"`
	DayStartedAt  sql.NullTime `json:"dayStartedAt"`
	WeekStartedAt sql.NullTime `json:"weekStartedAt"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

func (*Room) TableName() string {
	return "rooms"
}

// Player is a room participant. Garage and ShopVisits are stored as JSON.
type Player struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	RoomID     string         `json:"roomId" gorm:"size:36;uniqueIndex:idx_room_username,priority:1"`
	Username   string         `json:"username" gorm:"size:64;uniqueIndex:idx_room_username,priority:2"`
	IsHost     bool           `json:"isHost"`
	Money      int            `json:"money"`
	Points     int            `json:"points"`
	Garage     datatypes.JSON `json:"garage"`
	ShopVisits datatypes.JSON `json:"shopVisits"`
	JoinedAt   time.Time      `json:"joinedAt" gorm:"index"`
}

func (*Player) TableName() string {
	return "players"
}

// ChatMessage is a chat line. PlayerID is empty for system messages.
type ChatMessage struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	RoomID    string    `json:"roomId" gorm:"size:36;index:idx_chat_room_time,priority:1"`
	PlayerID  string    `json:"playerId" gorm:"size:36"`
	Username  string    `json:"username" gorm:"size:64"`
	Message   string    `json:"message" gorm:"size:2048"`
	Kind      string    `json:"kind" gorm:"size:16"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_chat_room_time,priority:2"`
}

func (*ChatMessage) TableName() string {
	return "chat_messages"
}

////////////////////////
// RACES
////////////////////////

// RaceEntry assigns a vehicle to a race day.
type RaceEntry struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	RoomID    string `json:"roomId" gorm:"size:36;index:idx_entry_room_day,priority:1"`
	PlayerID  string `json:"playerId" gorm:"size:36"`
	RaceID    string `json:"raceId" gorm:"size:64"`
	VehicleID string `json:"vehicleId" gorm:"size:64"`
	Day       int    `json:"day" gorm:"index:idx_entry_room_day,priority:2"`
}

func (*RaceEntry) TableName() string {
	return "race_entries"
}

// RaceRecord stores the ranked results of one room race.
type RaceRecord struct {
	ID      string         `json:"id" gorm:"primaryKey;size:36"`
	RoomID  string         `json:"roomId" gorm:"size:36;index"`
	RaceID  string         `json:"raceId" gorm:"size:64"`
	Day     int            `json:"day"`
	TrackID string         `json:"trackId" gorm:"size:64"`
	Weather string         `json:"weather" gorm:"size:16"`
	Results datatypes.JSON `json:"results"`
	RanAt   time.Time      `json:"ranAt"`
}

func (*RaceRecord) TableName() string {
	return "race_records"
}

////////////////////////
// DEALER
////////////////////////

// PurchaseLog is an insert-only record of a dealer sale.
type PurchaseLog struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	RoomID    string    `json:"roomId" gorm:"size:36;index"`
	PlayerID  string    `json:"playerId" gorm:"size:36"`
	CatalogID string    `json:"catalogId" gorm:"size:64"`
	CreatedAt time.Time `json:"createdAt"`
}

func (*PurchaseLog) TableName() string {
	return "purchase_logs"
}

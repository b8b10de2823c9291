// pkg/core/room.go
package core

import "time"

// RoomStatus is the coarse lifecycle state of a multiplayer room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "WAITING"
	RoomPlaying  RoomStatus = "PLAYING"
	RoomFinished RoomStatus = "FINISHED"
)

// Phase is the activity a playing room is currently in.
type Phase string

const (
	PhaseLobby     Phase = "LOBBY"
	PhaseTuning    Phase = "TUNING"
	PhaseRaceSetup Phase = "RACE_SETUP"
	PhaseRacing    Phase = "RACING"
	PhaseResults   Phase = "RESULTS"
	PhaseDealer    Phase = "DEALER"
)

// RoomMode selects the schedule a room follows.
type RoomMode string

const (
	// ModeWeekly follows the ten-day recurring schedule.
	ModeWeekly RoomMode = "WEEKLY"
	// ModeQuick is a single-race match that can be reset back to the lobby.
	ModeQuick RoomMode = "QUICK"
)

// Room is a shared multiplayer session.
type Room struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	Status        RoomStatus `json:"status"`
	Mode          RoomMode   `json:"mode"`
	HostID        string     `json:"hostId"`
	CurrentDay    int        `json:"currentDay"`
	CurrentYear   int        `json:"currentYear"`
	Phase         Phase      `json:"phase"`
	MaxPlayers    int        `json:"maxPlayers"`
	DayStartedAt  *time.Time `json:"dayStartedAt,omitempty"`
	WeekStartedAt *time.Time `json:"weekStartedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Player is a participant in one room.
// ShopVisits maps a garage vehicle ID to the shop brand it visited today.
type Player struct {
	ID         string            `json:"id"`
	RoomID     string            `json:"roomId"`
	Username   string            `json:"username"`
	IsHost     bool              `json:"isHost"`
	Money      int               `json:"money"`
	Garage     []Vehicle         `json:"garage"`
	Points     int               `json:"points"`
	ShopVisits map[string]string `json:"shopVisits,omitempty"`
	JoinedAt   time.Time         `json:"joinedAt"`
}

// Clone returns a deep copy of the player, garage and visits included.
func (p Player) Clone() Player {
	out := p
	out.Garage = make([]Vehicle, len(p.Garage))
	for i, v := range p.Garage {
		out.Garage[i] = v.Clone()
	}
	if p.ShopVisits != nil {
		out.ShopVisits = make(map[string]string, len(p.ShopVisits))
		for k, v := range p.ShopVisits {
			out.ShopVisits[k] = v
		}
	}
	return out
}

// Vehicle returns the garage vehicle with the given ID.
func (p Player) Vehicle(id string) (Vehicle, int, bool) {
	for i, v := range p.Garage {
		if v.ID == id {
			return v, i, true
		}
	}
	return Vehicle{}, -1, false
}

// Owns reports whether the garage holds a vehicle bought from the archetype.
func (p Player) Owns(catalogID string) bool {
	for _, v := range p.Garage {
		if v.CatalogID == catalogID {
			return true
		}
	}
	return false
}

// RaceEntry assigns a garage vehicle to a race on a given day.
type RaceEntry struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	PlayerID  string `json:"playerId"`
	RaceID    string `json:"raceId"`
	VehicleID string `json:"vehicleId"`
	Day       int    `json:"day"`
}

// PurchaseLog records a dealer purchase. Rows are only ever inserted and
// exist to count remaining stock.
type PurchaseLog struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	PlayerID  string    `json:"playerId"`
	CatalogID string    `json:"catalogId"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageKind distinguishes player chat from system announcements.
type MessageKind string

const (
	MessageUser   MessageKind = "user"
	MessageSystem MessageKind = "system"
)

// ChatMessage is a line in a room's chat.
type ChatMessage struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	PlayerID  string      `json:"playerId,omitempty"`
	Username  string      `json:"username"`
	Message   string      `json:"message"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"createdAt"`
}

// RaceRecord is a stored race outcome for a room day.
type RaceRecord struct {
	ID      string       `json:"id"`
	RoomID  string       `json:"roomId"`
	RaceID  string       `json:"raceId"`
	Day     int          `json:"day"`
	TrackID string       `json:"trackId"`
	Weather Weather      `json:"weather"`
	Results []RaceResult `json:"results"`
	RanAt   time.Time    `json:"ranAt"`
}

package api

import (
	"github.com/raceweek/raceweek/pkg/core"
)

// APIKeyHeader carries the shared secret on mutating requests.
const APIKeyHeader = "X-API-Key"

type CreateRoomRequest struct {
	Username string        `json:"username"`
	Mode     core.RoomMode `json:"mode,omitempty"`
}

type JoinRoomRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

// Membership is returned by create and join: the room and the caller's
// player record.
type Membership struct {
	Room   core.Room   `json:"room"`
	Player core.Player `json:"player"`
}

type ActorRequest struct {
	ActorID string `json:"actorId"`
}

type AdvanceRequest struct {
	ActorID     string `json:"actorId"`
	ExpectedDay int    `json:"expectedDay"`
}

type RaceRequest struct {
	ActorID string       `json:"actorId"`
	RaceID  string       `json:"raceId,omitempty"`
	TrackID string       `json:"trackId,omitempty"`
	Weather core.Weather `json:"weather,omitempty"`
}

type EntryRequest struct {
	PlayerID  string `json:"playerId"`
	RaceID    string `json:"raceId,omitempty"`
	VehicleID string `json:"vehicleId"`
}

type BuyVehicleRequest struct {
	PlayerID  string `json:"playerId"`
	VehicleID string `json:"vehicleId"`
}

type BuyPartRequest struct {
	PlayerID  string `json:"playerId"`
	VehicleID string `json:"vehicleId"`
	PartID    string `json:"partId"`
}

type RemovePartRequest struct {
	PlayerID  string `json:"playerId"`
	VehicleID string `json:"vehicleId"`
	Index     int    `json:"index"`
}

type ChatRequest struct {
	PlayerID string `json:"playerId"`
	Message  string `json:"message"`
}

type StatsRequest struct {
	Vehicle core.Vehicle `json:"vehicle"`
}

type SimulateRequest struct {
	Vehicles      []core.Vehicle `json:"vehicles"`
	TrackID       string         `json:"trackId"`
	Weather       core.Weather   `json:"weather,omitempty"`
	IncludeFiller bool           `json:"includeFiller"`
}

// Listing is a dealer vehicle with its remaining stock, -1 for unlimited.
type Listing struct {
	Vehicle   core.Vehicle `json:"vehicle"`
	Remaining int          `json:"remaining"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

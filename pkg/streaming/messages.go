package streaming

import (
	"encoding/json"

	"github.com/raceweek/raceweek/pkg/core"
)

// Message type constants matching the room streaming protocol.
const (
	TypeRoomUpdated    = "room.updated"
	TypePlayerUpdated  = "player.updated"
	TypePurchaseLogged = "purchase.logged"
	TypeChatPosted     = "chat.posted"
	TypeRaceFinished   = "race.finished"
	TypeHello          = "hello"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// HelloMessage is the first frame a subscriber receives.
type HelloMessage struct {
	RoomID  string        `json:"roomId"`
	Room    *core.Room    `json:"room,omitempty"`
	Players []core.Player `json:"players,omitempty"`
}

// RaceFinishedPayload carries the results of a completed room race.
type RaceFinishedPayload struct {
	RaceID  string            `json:"raceId"`
	Day     int               `json:"day"`
	Weather core.Weather      `json:"weather"`
	Results []core.RaceResult `json:"results"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(msgType, roomID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, RoomID: roomID, Payload: raw}, nil
}

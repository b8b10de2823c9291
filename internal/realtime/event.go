// Package realtime fans room change notifications out to in-process
// subscribers: the websocket server, the room cache and the metrics sinks.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/raceweek/raceweek/pkg/core"
	"github.com/raceweek/raceweek/pkg/streaming"
)

// Event types. They double as websocket envelope types.
const (
	TypeRoomUpdated    = streaming.TypeRoomUpdated
	TypePlayerUpdated  = streaming.TypePlayerUpdated
	TypePurchaseLogged = streaming.TypePurchaseLogged
	TypeChatPosted     = streaming.TypeChatPosted
	TypeRaceFinished   = streaming.TypeRaceFinished
)

// Event is a change notification for one room. Exactly one payload field is
// set, matching Type.
type Event struct {
	Type     string
	RoomID   string
	Room     *core.Room
	Player   *core.Player
	Purchase *core.PurchaseLog
	Chat     *core.ChatMessage
	Results  *streaming.RaceFinishedPayload
	At       time.Time
}

// Handler receives events on the subscriber's delivery goroutine.
type Handler func(Event)

// Bus publishes events to subscribers.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe registers h for roomID, or for every room when roomID is
	// empty. The returned function removes the subscription.
	Subscribe(roomID string, h Handler, opts ...Option) (unsubscribe func())
}

// RoomUpdated builds a room.updated event.
func RoomUpdated(room core.Room) Event {
	return Event{Type: TypeRoomUpdated, RoomID: room.ID, Room: &room, At: time.Now()}
}

// PlayerUpdated builds a player.updated event.
func PlayerUpdated(p core.Player) Event {
	return Event{Type: TypePlayerUpdated, RoomID: p.RoomID, Player: &p, At: time.Now()}
}

// PurchaseLogged builds a purchase.logged event.
func PurchaseLogged(l core.PurchaseLog) Event {
	return Event{Type: TypePurchaseLogged, RoomID: l.RoomID, Purchase: &l, At: time.Now()}
}

// ChatPosted builds a chat.posted event.
func ChatPosted(m core.ChatMessage) Event {
	return Event{Type: TypeChatPosted, RoomID: m.RoomID, Chat: &m, At: time.Now()}
}

// RaceFinished builds a race.finished event.
func RaceFinished(rec core.RaceRecord) Event {
	return Event{
		Type:   TypeRaceFinished,
		RoomID: rec.RoomID,
		Results: &streaming.RaceFinishedPayload{
			RaceID:  rec.RaceID,
			Day:     rec.Day,
			Weather: rec.Weather,
			Results: rec.Results,
		},
		At: time.Now(),
	}
}

// Envelope converts e into its websocket frame.
func (e Event) Envelope() (streaming.Envelope, error) {
	var payload any
	switch e.Type {
	case TypeRoomUpdated:
		payload = e.Room
	case TypePlayerUpdated:
		payload = e.Player
	case TypePurchaseLogged:
		payload = e.Purchase
	case TypeChatPosted:
		payload = e.Chat
	case TypeRaceFinished:
		payload = e.Results
	default:
		return streaming.Envelope{}, fmt.Errorf("unknown event type: %s", e.Type)
	}
	return streaming.NewEnvelope(e.Type, e.RoomID, payload)
}

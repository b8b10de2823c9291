// Package storage defines the persistence gateway rooms, players and their
// history are read from and written to.
package storage

import (
	"context"
	"errors"

	"github.com/raceweek/raceweek/pkg/core"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write loses: the stored row
	// no longer matches the expected state, or a unique key is taken.
	ErrConflict = errors.New("conflict")
)

// Gateway is the interface all storage implementations must satisfy.
// Implementations are safe for concurrent use.
type Gateway interface {
	// Lifecycle
	Init() error
	Close() error

	// Rooms
	CreateRoom(ctx context.Context, room core.Room) error
	RoomByID(ctx context.Context, id string) (core.Room, error)
	RoomByCode(ctx context.Context, code string) (core.Room, error)
	RoomsByStatus(ctx context.Context, status core.RoomStatus) ([]core.Room, error)
	// UpdateRoom writes room only if the stored current day equals
	// expectedDay; otherwise it returns ErrConflict.
	UpdateRoom(ctx context.Context, room core.Room, expectedDay int) error
	// CommitDayAdvance writes room conditionally like UpdateRoom and clears
	// every player's shop visits in the same transaction.
	CommitDayAdvance(ctx context.Context, room core.Room, expectedDay int) error
	// OpenRoom creates room and its host player together. CreateRoom's code
	// rule applies.
	OpenRoom(ctx context.Context, room core.Room, host core.Player) error
	// TransitionRoom writes room only if the stored row is still on
	// expectedDay in phase from; otherwise it returns ErrConflict.
	TransitionRoom(ctx context.Context, room core.Room, expectedDay int, from core.Phase) error
	// CommitRace transitions room like TransitionRoom, adds each reward to
	// its player's money and points, and saves rec. Nothing is written when
	// any step fails.
	CommitRace(ctx context.Context, room core.Room, expectedDay int, from core.Phase, rec core.RaceRecord, rewards map[string]core.Reward) error

	// Players
	AddPlayer(ctx context.Context, p core.Player) error
	Player(ctx context.Context, id string) (core.Player, error)
	// Players returns a room's players in join order.
	Players(ctx context.Context, roomID string) ([]core.Player, error)
	CountPlayers(ctx context.Context, roomID string) (int, error)
	// UpdatePlayer writes money, garage, points and shop visits.
	UpdatePlayer(ctx context.Context, p core.Player) error

	// Chat
	AddChatMessage(ctx context.Context, m core.ChatMessage) error
	// ChatMessages returns the latest limit messages, oldest first.
	ChatMessages(ctx context.Context, roomID string, limit int) ([]core.ChatMessage, error)

	// Races
	// ReplaceRaceEntry drops any entry for the same player, race and day
	// before inserting e.
	ReplaceRaceEntry(ctx context.Context, e core.RaceEntry) error
	RaceEntries(ctx context.Context, roomID string, day int) ([]core.RaceEntry, error)
	SaveRaceResults(ctx context.Context, rec core.RaceRecord) error
	RaceResults(ctx context.Context, roomID string) ([]core.RaceRecord, error)

	// Dealer stock
	LogPurchase(ctx context.Context, l core.PurchaseLog) error
	// CommitPurchase writes p like UpdatePlayer and logs l in the same
	// transaction.
	CommitPurchase(ctx context.Context, p core.Player, l core.PurchaseLog) error
	// PurchaseCounts maps catalog vehicle IDs to units sold in the room.
	PurchaseCounts(ctx context.Context, roomID string) (map[string]int, error)
}

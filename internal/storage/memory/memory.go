// Package memory implements storage.Gateway with in-process maps and an
// optional compressed snapshot file.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/raceweek/raceweek/internal/config"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/pkg/core"
)

// state is everything the backend holds. It is also the snapshot format.
type state struct {
	Rooms     map[string]core.Room          `json:"rooms"`
	Players   map[string]core.Player        `json:"players"`
	Roster    map[string][]string           `json:"roster"` // room ID -> player IDs in join order
	Chat      map[string][]core.ChatMessage `json:"chat"`
	Entries   map[string][]core.RaceEntry   `json:"entries"`
	Purchases map[string][]core.PurchaseLog `json:"purchases"`
	Results   map[string][]core.RaceRecord  `json:"results"`
}

func newState() *state {
	return &state{
		Rooms:     make(map[string]core.Room),
		Players:   make(map[string]core.Player),
		Roster:    make(map[string][]string),
		Chat:      make(map[string][]core.ChatMessage),
		Entries:   make(map[string][]core.RaceEntry),
		Purchases: make(map[string][]core.PurchaseLog),
		Results:   make(map[string][]core.RaceRecord),
	}
}

// Backend stores rooms and players in memory.
type Backend struct {
	cfg config.MemoryConfig
	mu  sync.RWMutex
	s   *state
}

var _ storage.Gateway = (*Backend)(nil)

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
		s:   newState(),
	}
}

// Init restores the snapshot file when one is configured and present.
func (b *Backend) Init() error {
	if b.cfg.SnapshotPath == "" {
		return nil
	}
	s, err := readSnapshot(b.cfg.SnapshotPath)
	if err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	if s != nil {
		b.mu.Lock()
		b.s = s
		b.mu.Unlock()
	}
	return nil
}

// Close writes the snapshot file when one is configured.
func (b *Backend) Close() error {
	if b.cfg.SnapshotPath == "" {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return writeSnapshot(b.cfg.SnapshotPath, b.s)
}

func (b *Backend) CreateRoom(_ context.Context, room core.Room) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createRoomLocked(room)
}

func (b *Backend) createRoomLocked(room core.Room) error {
	if _, ok := b.s.Rooms[room.ID]; ok {
		return storage.ErrConflict
	}
	for _, r := range b.s.Rooms {
		if r.Status != core.RoomFinished && strings.EqualFold(r.Code, room.Code) {
			return storage.ErrConflict
		}
	}
	b.s.Rooms[room.ID] = room
	return nil
}

func (b *Backend) OpenRoom(_ context.Context, room core.Room, host core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.s.Players[host.ID]; ok {
		return storage.ErrConflict
	}
	if err := b.createRoomLocked(room); err != nil {
		return err
	}
	b.s.Players[host.ID] = host.Clone()
	b.s.Roster[room.ID] = []string{host.ID}
	return nil
}

func (b *Backend) RoomByID(_ context.Context, id string) (core.Room, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.s.Rooms[id]
	if !ok {
		return core.Room{}, storage.ErrNotFound
	}
	return r, nil
}

// RoomByCode matches case-insensitively. Finished rooms are ignored so
// codes can be reused.
func (b *Backend) RoomByCode(_ context.Context, code string) (core.Room, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, r := range b.s.Rooms {
		if r.Status != core.RoomFinished && strings.EqualFold(r.Code, code) {
			return r, nil
		}
	}
	return core.Room{}, storage.ErrNotFound
}

func (b *Backend) RoomsByStatus(_ context.Context, status core.RoomStatus) ([]core.Room, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Room
	for _, r := range b.s.Rooms {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *Backend) UpdateRoom(_ context.Context, room core.Room, expectedDay int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updateRoomLocked(room, expectedDay)
}

func (b *Backend) updateRoomLocked(room core.Room, expectedDay int) error {
	cur, ok := b.s.Rooms[room.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.CurrentDay != expectedDay {
		return storage.ErrConflict
	}
	b.s.Rooms[room.ID] = room
	return nil
}

func (b *Backend) TransitionRoom(_ context.Context, room core.Room, expectedDay int, from core.Phase) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(room, expectedDay, from)
}

func (b *Backend) transitionLocked(room core.Room, expectedDay int, from core.Phase) error {
	cur, ok := b.s.Rooms[room.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.CurrentDay != expectedDay || cur.Phase != from {
		return storage.ErrConflict
	}
	b.s.Rooms[room.ID] = room
	return nil
}

func (b *Backend) CommitRace(_ context.Context, room core.Room, expectedDay int, from core.Phase, rec core.RaceRecord, rewards map[string]core.Reward) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id := range rewards {
		if p, ok := b.s.Players[id]; !ok || p.RoomID != room.ID {
			return fmt.Errorf("crediting %s: %w", id, storage.ErrNotFound)
		}
	}
	if err := b.transitionLocked(room, expectedDay, from); err != nil {
		return err
	}
	for id, r := range rewards {
		p := b.s.Players[id]
		p.Money += r.Money
		p.Points += r.Points
		b.s.Players[id] = p
	}
	rec.Results = append([]core.RaceResult(nil), rec.Results...)
	b.s.Results[rec.RoomID] = append(b.s.Results[rec.RoomID], rec)
	return nil
}

func (b *Backend) CommitDayAdvance(_ context.Context, room core.Room, expectedDay int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.updateRoomLocked(room, expectedDay); err != nil {
		return err
	}
	for _, id := range b.s.Roster[room.ID] {
		p := b.s.Players[id]
		p.ShopVisits = nil
		b.s.Players[id] = p
	}
	return nil
}

func (b *Backend) AddPlayer(_ context.Context, p core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.s.Rooms[p.RoomID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := b.s.Players[p.ID]; ok {
		return storage.ErrConflict
	}
	for _, id := range b.s.Roster[p.RoomID] {
		if b.s.Players[id].Username == p.Username {
			return storage.ErrConflict
		}
	}
	b.s.Players[p.ID] = p.Clone()
	b.s.Roster[p.RoomID] = append(b.s.Roster[p.RoomID], p.ID)
	return nil
}

func (b *Backend) Player(_ context.Context, id string) (core.Player, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.s.Players[id]
	if !ok {
		return core.Player{}, storage.ErrNotFound
	}
	return p.Clone(), nil
}

func (b *Backend) Players(_ context.Context, roomID string) ([]core.Player, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.s.Roster[roomID]
	out := make([]core.Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.s.Players[id].Clone())
	}
	return out, nil
}

func (b *Backend) CountPlayers(_ context.Context, roomID string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.s.Roster[roomID]), nil
}

func (b *Backend) UpdatePlayer(_ context.Context, p core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updatePlayerLocked(p)
}

func (b *Backend) updatePlayerLocked(p core.Player) error {
	cur, ok := b.s.Players[p.ID]
	if !ok {
		return storage.ErrNotFound
	}
	next := p.Clone()
	cur.Money = next.Money
	cur.Garage = next.Garage
	cur.Points = next.Points
	cur.ShopVisits = next.ShopVisits
	b.s.Players[p.ID] = cur
	return nil
}

func (b *Backend) AddChatMessage(_ context.Context, m core.ChatMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.s.Chat[m.RoomID] = append(b.s.Chat[m.RoomID], m)
	return nil
}

func (b *Backend) ChatMessages(_ context.Context, roomID string, limit int) ([]core.ChatMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msgs := b.s.Chat[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]core.ChatMessage{}, msgs...), nil
}

func (b *Backend) ReplaceRaceEntry(_ context.Context, e core.RaceEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.s.Entries[e.RoomID]
	kept := entries[:0]
	for _, old := range entries {
		if old.PlayerID == e.PlayerID && old.RaceID == e.RaceID && old.Day == e.Day {
			continue
		}
		kept = append(kept, old)
	}
	b.s.Entries[e.RoomID] = append(kept, e)
	return nil
}

func (b *Backend) RaceEntries(_ context.Context, roomID string, day int) ([]core.RaceEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := []core.RaceEntry{}
	for _, e := range b.s.Entries[roomID] {
		if e.Day == day {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *Backend) SaveRaceResults(_ context.Context, rec core.RaceRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec.Results = append([]core.RaceResult(nil), rec.Results...)
	b.s.Results[rec.RoomID] = append(b.s.Results[rec.RoomID], rec)
	return nil
}

func (b *Backend) RaceResults(_ context.Context, roomID string) ([]core.RaceRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.RaceRecord, 0, len(b.s.Results[roomID]))
	for _, rec := range b.s.Results[roomID] {
		rec.Results = append([]core.RaceResult(nil), rec.Results...)
		out = append(out, rec)
	}
	return out, nil
}

func (b *Backend) LogPurchase(_ context.Context, l core.PurchaseLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.s.Purchases[l.RoomID] = append(b.s.Purchases[l.RoomID], l)
	return nil
}

func (b *Backend) CommitPurchase(_ context.Context, p core.Player, l core.PurchaseLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.updatePlayerLocked(p); err != nil {
		return err
	}
	b.s.Purchases[l.RoomID] = append(b.s.Purchases[l.RoomID], l)
	return nil
}

func (b *Backend) PurchaseCounts(_ context.Context, roomID string) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[string]int)
	for _, l := range b.s.Purchases[roomID] {
		counts[l.CatalogID]++
	}
	return counts, nil
}

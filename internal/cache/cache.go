// Package cache keeps the last observed state of each room, refreshed from
// realtime events, so read paths avoid the database.
package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/pkg/core"
)

// RoomCache caches rooms and their players by room ID.
type RoomCache struct {
	mu      sync.RWMutex
	rooms   map[string]core.Room
	codes   map[string]string
	players map[string]map[string]core.Player
	// seeded holds rooms whose full roster was loaded with SeedPlayers.
	seeded map[string]bool
}

func NewRoomCache() *RoomCache {
	return &RoomCache{
		rooms:   make(map[string]core.Room),
		codes:   make(map[string]string),
		players: make(map[string]map[string]core.Player),
		seeded:  make(map[string]bool),
	}
}

// Reset clears the cache.
func (c *RoomCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = make(map[string]core.Room)
	c.codes = make(map[string]string)
	c.players = make(map[string]map[string]core.Player)
	c.seeded = make(map[string]bool)
}

// PutRoom stores room. Finished rooms release their code.
func (c *RoomCache) PutRoom(room core.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room.ID] = room
	code := strings.ToUpper(room.Code)
	if room.Status == core.RoomFinished {
		if c.codes[code] == room.ID {
			delete(c.codes, code)
		}
		return
	}
	if code != "" {
		c.codes[code] = room.ID
	}
}

func (c *RoomCache) Room(id string) (core.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[id]
	return r, ok
}

// RoomIDByCode resolves a room code case-insensitively.
func (c *RoomCache) RoomIDByCode(code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.codes[strings.ToUpper(code)]
	return id, ok
}

// PutPlayer stores a copy of p under its room.
func (c *RoomCache) PutPlayer(p core.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putPlayerLocked(p)
}

func (c *RoomCache) putPlayerLocked(p core.Player) {
	byID, ok := c.players[p.RoomID]
	if !ok {
		byID = make(map[string]core.Player)
		c.players[p.RoomID] = byID
	}
	byID[p.ID] = p.Clone()
}

// SeedPlayers marks the roster of roomID complete. Players already received
// from events are kept over the seeded copies.
func (c *RoomCache) SeedPlayers(roomID string, players []core.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byID := c.players[roomID]
	for _, p := range players {
		if _, ok := byID[p.ID]; ok {
			continue
		}
		p.RoomID = roomID
		c.putPlayerLocked(p)
	}
	if _, ok := c.players[roomID]; !ok {
		c.players[roomID] = make(map[string]core.Player)
	}
	c.seeded[roomID] = true
}

// Players returns the cached roster in join order. ok is false until the
// room has been seeded; events alone never make a roster complete.
func (c *RoomCache) Players(roomID string) ([]core.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.seeded[roomID] {
		return nil, false
	}
	byID := c.players[roomID]
	out := make([]core.Player, 0, len(byID))
	for _, p := range byID {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, true
}

// Drop forgets a room and its players.
func (c *RoomCache) Drop(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[roomID]; ok && c.codes[strings.ToUpper(r.Code)] == roomID {
		delete(c.codes, strings.ToUpper(r.Code))
	}
	delete(c.rooms, roomID)
	delete(c.players, roomID)
	delete(c.seeded, roomID)
}

// Len returns the number of cached rooms.
func (c *RoomCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms)
}

// Apply folds one realtime event into the cache.
func (c *RoomCache) Apply(e realtime.Event) {
	switch {
	case e.Room != nil:
		c.PutRoom(*e.Room)
	case e.Player != nil:
		c.PutPlayer(*e.Player)
	}
}

// Attach subscribes the cache to every room on bus.
func (c *RoomCache) Attach(bus realtime.Bus) (unsubscribe func()) {
	return bus.Subscribe("", c.Apply, realtime.Buffered(1024), realtime.Blocking())
}

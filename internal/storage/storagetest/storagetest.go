// Package storagetest holds the behaviour every storage.Gateway must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, initialised gateway. The suite closes it.
type Factory func(t *testing.T) storage.Gateway

// Run executes the shared gateway suite.
func Run(t *testing.T, newGateway Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, g storage.Gateway)
	}{
		{"Rooms", testRooms},
		{"RoomCodeUnique", testRoomCodeUnique},
		{"ConditionalUpdate", testConditionalUpdate},
		{"CommitDayAdvance", testCommitDayAdvance},
		{"ConcurrentAdvance", testConcurrentAdvance},
		{"Players", testPlayers},
		{"Chat", testChat},
		{"RaceEntries", testRaceEntries},
		{"RaceResults", testRaceResults},
		{"Purchases", testPurchases},
		{"OpenRoom", testOpenRoom},
		{"TransitionRoom", testTransitionRoom},
		{"CommitRace", testCommitRace},
		{"CommitRaceRollsBack", testCommitRaceRollsBack},
		{"CommitPurchase", testCommitPurchase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t)
			t.Cleanup(func() { _ = g.Close() })
			tt.fn(t, g)
		})
	}
}

// NewRoom builds a waiting room with a fresh ID.
func NewRoom(code string) core.Room {
	now := time.Now().UTC().Truncate(time.Second)
	return core.Room{
		ID:         uuid.NewString(),
		Code:       code,
		Status:     core.RoomWaiting,
		Mode:       core.ModeWeekly,
		Phase:      core.PhaseLobby,
		MaxPlayers: 8,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewPlayer builds a player with one garage vehicle.
func NewPlayer(roomID, username string) core.Player {
	return core.Player{
		ID:       uuid.NewString(),
		RoomID:   roomID,
		Username: username,
		Money:    15000,
		Garage: []core.Vehicle{{
			ID:        uuid.NewString(),
			CatalogID: "renault_4",
			Name:      "Renault 4",
			Price:     4800,
			Class:     "E",
			Stats:     core.Stats{Power: 26, Torque: 52, TopSpeed: 111, Acceleration: 32, Handling: 27, Offroad: 46},
		}},
		JoinedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func testRooms(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("ABCD")
	require.NoError(t, g.CreateRoom(ctx, room))

	got, err := g.RoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", got.Code)
	assert.Equal(t, core.RoomWaiting, got.Status)
	assert.Equal(t, core.ModeWeekly, got.Mode)
	assert.Equal(t, 8, got.MaxPlayers)

	got, err = g.RoomByCode(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = g.RoomByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = g.RoomByCode(ctx, "ZZZZ")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	playing := NewRoom("WXYZ")
	playing.Status = core.RoomPlaying
	require.NoError(t, g.CreateRoom(ctx, playing))

	rooms, err := g.RoomsByStatus(ctx, core.RoomPlaying)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, playing.ID, rooms[0].ID)
}

func testRoomCodeUnique(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	require.NoError(t, g.CreateRoom(ctx, NewRoom("QQQQ")))
	assert.ErrorIs(t, g.CreateRoom(ctx, NewRoom("QQQQ")), storage.ErrConflict)
}

func testConditionalUpdate(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("COND")
	require.NoError(t, g.CreateRoom(ctx, room))

	room.Status = core.RoomPlaying
	room.Phase = core.PhaseTuning
	room.CurrentDay = 1
	room.CurrentYear = 1960
	require.NoError(t, g.UpdateRoom(ctx, room, 0))

	stale := room
	stale.Phase = core.PhaseDealer
	assert.ErrorIs(t, g.UpdateRoom(ctx, stale, 0), storage.ErrConflict)

	got, err := g.RoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseTuning, got.Phase)
	assert.Equal(t, 1, got.CurrentDay)
	assert.Equal(t, 1960, got.CurrentYear)

	missing := NewRoom("MISS")
	assert.ErrorIs(t, g.UpdateRoom(ctx, missing, 0), storage.ErrNotFound)
}

func testCommitDayAdvance(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("DAYS")
	room.Status = core.RoomPlaying
	room.CurrentDay = 1
	require.NoError(t, g.CreateRoom(ctx, room))

	p := NewPlayer(room.ID, "alice")
	p.ShopVisits = map[string]string{p.Garage[0].ID: "ABC"}
	require.NoError(t, g.AddPlayer(ctx, p))

	next := room
	next.CurrentDay = 2
	next.Phase = core.PhaseRaceSetup
	require.NoError(t, g.CommitDayAdvance(ctx, next, 1))

	got, err := g.Player(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ShopVisits)

	// a retry with the old expected day must not apply
	p2 := got
	p2.ShopVisits = map[string]string{p.Garage[0].ID: "Sumimoto"}
	require.NoError(t, g.UpdatePlayer(ctx, p2))

	again := next
	again.CurrentDay = 3
	assert.ErrorIs(t, g.CommitDayAdvance(ctx, again, 1), storage.ErrConflict)

	got, err = g.Player(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sumimoto", got.ShopVisits[p.Garage[0].ID])

	r, err := g.RoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, r.CurrentDay)
}

func testConcurrentAdvance(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("RACE")
	room.Status = core.RoomPlaying
	room.CurrentDay = 4
	require.NoError(t, g.CreateRoom(ctx, room))

	next := room
	next.CurrentDay = 5

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.CommitDayAdvance(ctx, next, 4)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, storage.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func testPlayers(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("PLYR")
	require.NoError(t, g.CreateRoom(ctx, room))

	var ids []string
	for i := 0; i < 3; i++ {
		p := NewPlayer(room.ID, fmt.Sprintf("player%d", i))
		p.JoinedAt = p.JoinedAt.Add(time.Duration(i) * time.Second)
		p.IsHost = i == 0
		require.NoError(t, g.AddPlayer(ctx, p))
		ids = append(ids, p.ID)
	}

	dup := NewPlayer(room.ID, "player1")
	assert.ErrorIs(t, g.AddPlayer(ctx, dup), storage.ErrConflict)

	n, err := g.CountPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	players, err := g.Players(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 3)
	for i, p := range players {
		assert.Equal(t, ids[i], p.ID)
	}
	assert.True(t, players[0].IsHost)

	p := players[1]
	p.Money = 999
	p.Points = 25
	p.Garage[0].InstalledParts = []core.Part{{ID: "ts_rods_1", Brand: "Trash Shopito", Boosts: core.Boosts{Power: 9}}}
	p.ShopVisits = map[string]string{p.Garage[0].ID: "Trash Shopito"}
	require.NoError(t, g.UpdatePlayer(ctx, p))

	got, err := g.Player(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 999, got.Money)
	assert.Equal(t, 25, got.Points)
	assert.Equal(t, "player1", got.Username)
	require.Len(t, got.Garage, 1)
	require.Len(t, got.Garage[0].InstalledParts, 1)
	assert.Equal(t, 9.0, got.Garage[0].InstalledParts[0].Boosts.Power)
	assert.Equal(t, "renault_4", got.Garage[0].CatalogID)
	assert.Equal(t, "Trash Shopito", got.ShopVisits[p.Garage[0].ID])

	_, err = g.Player(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, g.UpdatePlayer(ctx, NewPlayer(room.ID, "ghost")), storage.ErrNotFound)
}

func testChat(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("CHAT")
	require.NoError(t, g.CreateRoom(ctx, room))

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, g.AddChatMessage(ctx, core.ChatMessage{
			ID:        uuid.NewString(),
			RoomID:    room.ID,
			Username:  "system",
			Message:   fmt.Sprintf("line %d", i),
			Kind:      core.MessageSystem,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := g.ChatMessages(ctx, room.ID, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "line 2", msgs[0].Message)
	assert.Equal(t, "line 4", msgs[2].Message)
	assert.Equal(t, core.MessageSystem, msgs[0].Kind)

	all, err := g.ChatMessages(ctx, room.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testRaceEntries(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("ENTR")
	require.NoError(t, g.CreateRoom(ctx, room))

	entry := core.RaceEntry{ID: uuid.NewString(), RoomID: room.ID, PlayerID: "p1", RaceID: "t1", VehicleID: "car-a", Day: 2}
	require.NoError(t, g.ReplaceRaceEntry(ctx, entry))

	replacement := entry
	replacement.ID = uuid.NewString()
	replacement.VehicleID = "car-b"
	require.NoError(t, g.ReplaceRaceEntry(ctx, replacement))

	other := core.RaceEntry{ID: uuid.NewString(), RoomID: room.ID, PlayerID: "p2", RaceID: "t1", VehicleID: "car-c", Day: 2}
	require.NoError(t, g.ReplaceRaceEntry(ctx, other))

	later := entry
	later.ID = uuid.NewString()
	later.Day = 5
	require.NoError(t, g.ReplaceRaceEntry(ctx, later))

	entries, err := g.RaceEntries(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	vehicles := map[string]string{}
	for _, e := range entries {
		vehicles[e.PlayerID] = e.VehicleID
	}
	assert.Equal(t, "car-b", vehicles["p1"])
	assert.Equal(t, "car-c", vehicles["p2"])

	entries, err = g.RaceEntries(ctx, room.ID, 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testRaceResults(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("RSLT")
	require.NoError(t, g.CreateRoom(ctx, room))

	rec := core.RaceRecord{
		ID:      uuid.NewString(),
		RoomID:  room.ID,
		RaceID:  "t1",
		Day:     2,
		TrackID: "t1",
		Weather: core.WeatherRain,
		Results: []core.RaceResult{
			{VehicleID: "a", VehicleName: "A", OwnerID: "p1", Time: 70.5, Rank: 1, Money: 5000, Points: 25},
			{VehicleID: "b", VehicleName: "B", OwnerID: "p2", Time: 80.25, Rank: 2, Money: 2500, Points: 18},
		},
		RanAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, g.SaveRaceResults(ctx, rec))

	got, err := g.RaceResults(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.WeatherRain, got[0].Weather)
	assert.Equal(t, rec.Results, got[0].Results)
}

func testPurchases(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("SHOP")
	require.NoError(t, g.CreateRoom(ctx, room))

	for _, id := range []string{"mini_cooper", "mini_cooper", "ford_capri"} {
		require.NoError(t, g.LogPurchase(ctx, core.PurchaseLog{
			ID:        uuid.NewString(),
			RoomID:    room.ID,
			PlayerID:  "p1",
			CatalogID: id,
			CreatedAt: time.Now().UTC(),
		}))
	}

	counts, err := g.PurchaseCounts(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"mini_cooper": 2, "ford_capri": 1}, counts)

	counts, err = g.PurchaseCounts(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func testOpenRoom(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("OPEN")
	host := NewPlayer(room.ID, "alice")
	host.IsHost = true
	room.HostID = host.ID
	require.NoError(t, g.OpenRoom(ctx, room, host))

	players, err := g.Players(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, host.ID, players[0].ID)
	assert.True(t, players[0].IsHost)

	// a taken code leaves neither the room nor its host behind
	clash := NewRoom("open")
	other := NewPlayer(clash.ID, "bob")
	clash.HostID = other.ID
	assert.ErrorIs(t, g.OpenRoom(ctx, clash, other), storage.ErrConflict)

	_, err = g.RoomByID(ctx, clash.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = g.Player(ctx, other.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testTransitionRoom(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("PHSE")
	room.Status = core.RoomPlaying
	room.CurrentDay = 2
	room.Phase = core.PhaseRaceSetup
	require.NoError(t, g.CreateRoom(ctx, room))

	racing := room
	racing.Phase = core.PhaseRacing
	require.NoError(t, g.TransitionRoom(ctx, racing, 2, core.PhaseRaceSetup))

	// same day, phase already moved on
	assert.ErrorIs(t, g.TransitionRoom(ctx, racing, 2, core.PhaseRaceSetup), storage.ErrConflict)
	// phase matches, day does not
	assert.ErrorIs(t, g.TransitionRoom(ctx, room, 1, core.PhaseRacing), storage.ErrConflict)

	require.NoError(t, g.TransitionRoom(ctx, room, 2, core.PhaseRacing))
	got, err := g.RoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRaceSetup, got.Phase)

	assert.ErrorIs(t, g.TransitionRoom(ctx, NewRoom("GONE"), 0, core.PhaseLobby), storage.ErrNotFound)
}

// racingRoom stores a room mid-race on day 3 with two players.
func racingRoom(t *testing.T, g storage.Gateway, code string) (core.Room, core.Player, core.Player) {
	t.Helper()
	ctx := context.Background()
	room := NewRoom(code)
	room.Status = core.RoomPlaying
	room.CurrentDay = 3
	room.Phase = core.PhaseRacing
	require.NoError(t, g.CreateRoom(ctx, room))

	alice := NewPlayer(room.ID, "alice")
	bob := NewPlayer(room.ID, "bob")
	bob.JoinedAt = bob.JoinedAt.Add(time.Second)
	require.NoError(t, g.AddPlayer(ctx, alice))
	require.NoError(t, g.AddPlayer(ctx, bob))
	return room, alice, bob
}

func raceRecord(room core.Room, winner, second core.Player) core.RaceRecord {
	return core.RaceRecord{
		ID:      uuid.NewString(),
		RoomID:  room.ID,
		RaceID:  "t3",
		Day:     room.CurrentDay,
		TrackID: "t3",
		Weather: core.WeatherClear,
		Results: []core.RaceResult{
			{VehicleID: winner.Garage[0].ID, VehicleName: "Renault 4", OwnerID: winner.ID, Time: 61.5, Rank: 1, Money: 3500, Points: 25},
			{VehicleID: second.Garage[0].ID, VehicleName: "Renault 4", OwnerID: second.ID, Time: 64, Rank: 2, Money: 2000, Points: 18},
		},
		RanAt: time.Now().UTC().Truncate(time.Second),
	}
}

func testCommitRace(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room, alice, bob := racingRoom(t, g, "CRCE")

	// bob buys a part between the race snapshot and the commit
	tuned := bob
	tuned.Money -= 500
	tuned.Garage[0].InstalledParts = []core.Part{{ID: "ts_rods_1", Brand: "Trash Shopito", Boosts: core.Boosts{Power: 9}}}
	require.NoError(t, g.UpdatePlayer(ctx, tuned))

	done := room
	done.Phase = core.PhaseResults
	rewards := map[string]core.Reward{
		alice.ID: {Money: 3500, Points: 25},
		bob.ID:   {Money: 2000, Points: 18},
	}
	require.NoError(t, g.CommitRace(ctx, done, 3, core.PhaseRacing, raceRecord(room, alice, bob), rewards))

	got, err := g.RoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseResults, got.Phase)

	a, err := g.Player(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 18500, a.Money)
	assert.Equal(t, 25, a.Points)

	b, err := g.Player(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 16500, b.Money)
	assert.Equal(t, 18, b.Points)
	require.Len(t, b.Garage[0].InstalledParts, 1)

	recs, err := g.RaceResults(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// a second commit for the same race loses on the phase
	assert.ErrorIs(t, g.CommitRace(ctx, done, 3, core.PhaseRacing, raceRecord(room, alice, bob), rewards), storage.ErrConflict)
	a, err = g.Player(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 18500, a.Money)
}

func testCommitRaceRollsBack(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room, alice, bob := racingRoom(t, g, "RBCK")

	done := room
	done.Phase = core.PhaseResults
	rewards := map[string]core.Reward{
		alice.ID:         {Money: 3500, Points: 25},
		uuid.NewString(): {Money: 2000, Points: 18},
	}
	err := g.CommitRace(ctx, done, 3, core.PhaseRacing, raceRecord(room, alice, bob), rewards)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := g.RoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseRacing, got.Phase)

	a, err := g.Player(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 15000, a.Money)
	assert.Zero(t, a.Points)

	recs, err := g.RaceResults(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func testCommitPurchase(t *testing.T, g storage.Gateway) {
	ctx := context.Background()
	room := NewRoom("BUYS")
	require.NoError(t, g.CreateRoom(ctx, room))
	p := NewPlayer(room.ID, "alice")
	require.NoError(t, g.AddPlayer(ctx, p))

	p.Money -= 9000
	p.Garage = append(p.Garage, core.Vehicle{ID: uuid.NewString(), CatalogID: "mini_cooper", Name: "Mini Cooper", Price: 9000})
	log := core.PurchaseLog{ID: uuid.NewString(), RoomID: room.ID, PlayerID: p.ID, CatalogID: "mini_cooper", CreatedAt: time.Now().UTC()}
	require.NoError(t, g.CommitPurchase(ctx, p, log))

	got, err := g.Player(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6000, got.Money)
	assert.Len(t, got.Garage, 2)
	counts, err := g.PurchaseCounts(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"mini_cooper": 1}, counts)

	// an unknown buyer logs nothing
	ghost := NewPlayer(room.ID, "ghost")
	log.ID = uuid.NewString()
	log.PlayerID = ghost.ID
	assert.ErrorIs(t, g.CommitPurchase(ctx, ghost, log), storage.ErrNotFound)
	counts, err = g.PurchaseCounts(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"mini_cooper": 1}, counts)
}

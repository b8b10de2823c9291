package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceweek/raceweek/internal/api"
	"github.com/raceweek/raceweek/internal/cache"
	"github.com/raceweek/raceweek/internal/catalog"
	"github.com/raceweek/raceweek/internal/config"
	"github.com/raceweek/raceweek/internal/logging"
	"github.com/raceweek/raceweek/internal/race"
	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/internal/realtime/websocket"
	"github.com/raceweek/raceweek/internal/session"
	"github.com/raceweek/raceweek/internal/storage/memory"
	"github.com/raceweek/raceweek/pkg/core"
	"github.com/raceweek/raceweek/pkg/streaming"
)

type env struct {
	srv    *httptest.Server
	client *api.Client
	hub    *realtime.Hub
	cache  *cache.RoomCache
	logs   *syncBuffer
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newEnv(t *testing.T, apiKey string) *env {
	t.Helper()

	hub, err := realtime.NewHub(nil)
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	store := memory.New(config.MemoryConfig{})
	require.NoError(t, store.Init())
	cat := catalog.Default()
	logs := &syncBuffer{}
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}), nil))

	svc, err := session.New(session.Dependencies{
		Store:     store,
		Bus:       hub,
		Catalog:   cat,
		Simulator: race.NewSimulator(rand.New(rand.NewSource(3)), cat.Filler, cat.RewardTable()),
		Logger:    logger,
	})
	require.NoError(t, err)

	rc := cache.NewRoomCache()
	unsubscribe := rc.Attach(hub)
	t.Cleanup(unsubscribe)

	stream := websocket.NewServer(hub, Hello(svc), logger)
	t.Cleanup(stream.Close)

	srv := httptest.NewServer(New(Dependencies{
		Service: svc,
		Cache:   rc,
		Stream:  stream,
		Logger:  logger,
		APIKey:  apiKey,
	}))
	t.Cleanup(srv.Close)

	return &env{srv: srv, client: api.New(srv.URL, apiKey), hub: hub, cache: rc, logs: logs}
}

func requireAPIError(t *testing.T, err error, status int, reason string) {
	t.Helper()
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.Status)
	assert.Equal(t, reason, apiErr.Reason)
}

// lobby creates a room with alice as host and the given guests.
func lobby(t *testing.T, c *api.Client, guests ...string) (core.Room, []core.Player) {
	t.Helper()
	ctx := context.Background()

	m, err := c.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)
	players := []core.Player{m.Player}
	for _, g := range guests {
		j, err := c.JoinRoom(ctx, m.Room.Code, g)
		require.NoError(t, err)
		players = append(players, j.Player)
	}
	return m.Room, players
}

func TestHealthcheck(t *testing.T) {
	e := newEnv(t, "")
	require.NoError(t, e.client.Healthcheck(context.Background()))
}

func TestStartGame_NeedsThreePlayers(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	room, players := lobby(t, e.client, "bob")

	_, err := e.client.StartGame(ctx, room.ID, players[0].ID)
	requireAPIError(t, err, http.StatusConflict, "not_enough_players")

	_, err = e.client.JoinRoom(ctx, room.Code, "carol")
	require.NoError(t, err)

	_, err = e.client.StartGame(ctx, room.ID, players[1].ID)
	requireAPIError(t, err, http.StatusForbidden, "not_host")

	started, err := e.client.StartGame(ctx, room.ID, players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoomPlaying, started.Status)
	assert.Equal(t, core.PhaseTuning, started.Phase)
}

func TestRoomLifecycle(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	room, players := lobby(t, e.client, "bob", "carol")
	alice, bob := players[0], players[1]

	_, err := e.client.StartGame(ctx, room.ID, alice.ID)
	require.NoError(t, err)

	bobAfter, err := e.client.BuyPart(ctx, room.ID, api.BuyPartRequest{PlayerID: bob.ID, VehicleID: bob.Garage[0].ID, PartID: "ts_intercooler_1"})
	require.NoError(t, err)
	assert.Equal(t, 14500, bobAfter.Money)

	_, err = e.client.BuyPart(ctx, room.ID, api.BuyPartRequest{PlayerID: bob.ID, VehicleID: bob.Garage[0].ID, PartID: "pz_cam_1"})
	requireAPIError(t, err, http.StatusConflict, "shop_visit_locked")

	bobAfter, err = e.client.RemovePart(ctx, room.ID, api.RemovePartRequest{PlayerID: bob.ID, VehicleID: bob.Garage[0].ID, Index: 0})
	require.NoError(t, err)
	assert.Empty(t, bobAfter.Garage[0].InstalledParts)

	day2, err := e.client.AdvanceDay(ctx, room.ID, alice.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, day2.CurrentDay)

	_, err = e.client.AdvanceDay(ctx, room.ID, alice.ID, 1)
	requireAPIError(t, err, http.StatusConflict, "day_already_advanced")

	for _, p := range players {
		_, err := e.client.SubmitEntry(ctx, room.ID, api.EntryRequest{PlayerID: p.ID, VehicleID: p.Garage[0].ID})
		require.NoError(t, err)
	}
	rec, err := e.client.RunRace(ctx, room.ID, api.RaceRequest{ActorID: alice.ID, TrackID: "t2", Weather: "sunny"})
	require.NoError(t, err)
	assert.Equal(t, core.WeatherClear, rec.Weather)
	assert.Len(t, rec.Results, 3)

	_, err = e.client.RunRace(ctx, room.ID, api.RaceRequest{ActorID: alice.ID})
	requireAPIError(t, err, http.StatusConflict, "unexpected_phase")

	results, err := e.client.Results(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	standings, err := e.client.Standings(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, standings, 3)
	assert.GreaterOrEqual(t, standings[0].Points, standings[1].Points)

	_, err = e.client.AdvanceDay(ctx, room.ID, alice.ID, 2)
	require.NoError(t, err)
	dealer, err := e.client.Dealer(ctx, room.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, dealer)

	bobAfter, err = e.client.BuyVehicle(ctx, room.ID, bob.ID, "chevy_corvair")
	require.NoError(t, err)
	assert.Len(t, bobAfter.Garage, 4)

	_, err = e.client.BuyVehicle(ctx, room.ID, bob.ID, "chevy_corvair")
	requireAPIError(t, err, http.StatusConflict, "already_owned")

	require.Eventually(t, func() bool {
		r, err := e.client.Room(ctx, room.ID)
		return err == nil && r.CurrentDay == 3 && r.Phase == core.PhaseDealer
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRejectionStatuses(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	_, err := e.client.Room(ctx, "missing")
	requireAPIError(t, err, http.StatusNotFound, "room_not_found")

	_, err = e.client.JoinRoom(ctx, "ZZZZ", "bob")
	requireAPIError(t, err, http.StatusNotFound, "room_not_found")

	_, err = e.client.CreateRoom(ctx, " ", core.ModeWeekly)
	requireAPIError(t, err, http.StatusBadRequest, "invalid_username")

	room, players := lobby(t, e.client, "bob", "carol")
	_, err = e.client.RunRace(ctx, room.ID, api.RaceRequest{ActorID: players[0].ID, Weather: "hail"})
	requireAPIError(t, err, http.StatusBadRequest, "bad_request")

	resp, err := http.Post(e.srv.URL+"/rooms", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "bad_request", body.Reason)
}

func TestChat(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	room, players := lobby(t, e.client, "bob")

	msg, err := e.client.SendChat(ctx, room.ID, players[1].ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "bob", msg.Username)

	_, err = e.client.SendChat(ctx, room.ID, players[1].ID, "")
	requireAPIError(t, err, http.StatusBadRequest, "empty_message")

	msgs, err := e.client.Chat(ctx, room.ID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Message)

	all, err := e.client.Chat(ctx, room.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStatsAndSimulate(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	v := core.Vehicle{
		ID:    "v1",
		Name:  "Test",
		Stats: core.Stats{Power: 100, TopSpeed: 150, Handling: 40},
		InstalledParts: []core.Part{
			{ID: "p1", Boosts: core.Boosts{PowerPct: 10}},
			{ID: "p2", Boosts: core.Boosts{PowerPct: 10}},
		},
	}
	stats, err := e.client.Stats(ctx, v)
	require.NoError(t, err)
	assert.InDelta(t, 120, stats.Power, 1e-9)

	results, err := e.client.Simulate(ctx, api.SimulateRequest{Vehicles: []core.Vehicle{v}, TrackID: "t1", IncludeFiller: true})
	require.NoError(t, err)
	assert.Len(t, results, 1+len(catalog.Default().Filler))

	_, err = e.client.Simulate(ctx, api.SimulateRequest{Vehicles: []core.Vehicle{v}, TrackID: "nowhere"})
	requireAPIError(t, err, http.StatusNotFound, "unknown_track")
}

func TestAPIKey(t *testing.T) {
	e := newEnv(t, "s3cret")
	ctx := context.Background()

	_, err := api.New(e.srv.URL, "").CreateRoom(ctx, "alice", core.ModeWeekly)
	requireAPIError(t, err, http.StatusUnauthorized, "unauthorized")

	m, err := e.client.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)

	// reads stay open
	_, err = api.New(e.srv.URL, "").Players(ctx, m.Room.ID)
	require.NoError(t, err)
}

func TestPlayers_FullRosterAfterCacheReset(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	room, players := lobby(t, e.client, "bob", "carol")

	e.cache.Reset()
	require.NoError(t, e.hub.Publish(ctx, realtime.PlayerUpdated(players[1])))

	got, err := e.client.Players(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "alice", got[0].Username)

	// later reads come from the seeded cache
	cached, ok := e.cache.Players(room.ID)
	require.True(t, ok)
	assert.Len(t, cached, 3)
	got, err = e.client.Players(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRequestIDReachesServiceLogs(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.client.CreateRoom(context.Background(), "alice", core.ModeWeekly)
	require.NoError(t, err)

	var created string
	for _, line := range strings.Split(e.logs.String(), "\n") {
		if strings.Contains(line, `msg="Room created"`) {
			created = line
		}
	}
	require.NotEmpty(t, created)
	assert.Regexp(t, `requestId=\S+`, created)
}

func TestStream(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	room, players := lobby(t, e.client, "bob", "carol")

	w, err := websocket.Watch(e.client.StreamURL(room.ID))
	require.NoError(t, err)
	defer w.Close()

	next := func() streaming.Envelope {
		select {
		case env := <-w.Events():
			return env
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for envelope")
		}
		return streaming.Envelope{}
	}

	hello := next()
	require.Equal(t, streaming.TypeHello, hello.Type)
	var msg streaming.HelloMessage
	require.NoError(t, json.Unmarshal(hello.Payload, &msg))
	assert.Equal(t, room.Code, msg.Room.Code)
	assert.Len(t, msg.Players, 3)

	// cache subscriber plus this stream
	require.Eventually(t, func() bool { return e.hub.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	_, err = e.client.StartGame(ctx, room.ID, players[0].ID)
	require.NoError(t, err)

	for {
		env := next()
		if env.Type != streaming.TypeRoomUpdated {
			continue
		}
		var updated core.Room
		require.NoError(t, json.Unmarshal(env.Payload, &updated))
		assert.Equal(t, core.RoomPlaying, updated.Status)
		return
	}
}

func TestStream_UnknownRoom(t *testing.T) {
	e := newEnv(t, "")
	resp, err := http.Get(e.srv.URL + "/rooms/missing/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

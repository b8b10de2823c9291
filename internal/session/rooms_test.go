package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceweek/raceweek/pkg/core"
)

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, host, err := f.svc.CreateRoom(ctx, "  alice ", "")
	require.NoError(t, err)

	assert.Equal(t, core.RoomWaiting, room.Status)
	assert.Equal(t, core.PhaseLobby, room.Phase)
	assert.Equal(t, core.ModeWeekly, room.Mode)
	assert.Equal(t, 0, room.CurrentDay)
	assert.Equal(t, 1960, room.CurrentYear)
	assert.Equal(t, 8, room.MaxPlayers)
	assert.Len(t, room.Code, 4)
	assert.Equal(t, host.ID, room.HostID)

	assert.Equal(t, "alice", host.Username)
	assert.True(t, host.IsHost)
	assert.Equal(t, 15000, host.Money)
	require.Len(t, host.Garage, 3)

	var catalogIDs []string
	seen := map[string]bool{}
	for _, v := range host.Garage {
		catalogIDs = append(catalogIDs, v.CatalogID)
		assert.NotEqual(t, v.CatalogID, v.ID)
		assert.False(t, seen[v.ID])
		seen[v.ID] = true
	}
	assert.Equal(t, []string{"renault_4", "ford_capri", "citroen_2cv"}, catalogIDs)

	chat, err := f.svc.Chat(ctx, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, chat, 1)
	assert.Equal(t, "alice created the room", chat[0].Message)
	assert.Equal(t, core.MessageSystem, chat[0].Kind)
}

func TestCreateRoom_RetriesTakenCode(t *testing.T) {
	f := newFixture(t, withCodes("AAAA", "AAAA", "BBBB"))
	ctx := context.Background()

	first, _, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)
	require.Equal(t, "AAAA", first.Code)

	second, _, err := f.svc.CreateRoom(ctx, "bob", core.ModeWeekly)
	require.NoError(t, err)
	require.Equal(t, "BBBB", second.Code)
}

func TestCreateRoom_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.CreateRoom(ctx, "   ", core.ModeWeekly)
	requireReason(t, err, ReasonInvalidUsername)

	_, _, err = f.svc.CreateRoom(ctx, strings.Repeat("x", 40), core.ModeWeekly)
	requireReason(t, err, ReasonInvalidUsername)

	_, _, err = f.svc.CreateRoom(ctx, "alice", core.RoomMode("ENDURANCE"))
	require.Error(t, err)
}

func TestJoinRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, _, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)

	joined, bob, err := f.svc.JoinRoom(ctx, strings.ToLower(room.Code), "bob")
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
	assert.False(t, bob.IsHost)
	assert.Equal(t, room.ID, bob.RoomID)

	players, err := f.svc.Players(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Username)
	assert.Equal(t, "bob", players[1].Username)

	chat, err := f.svc.Chat(ctx, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, chat, 2)
	assert.Equal(t, "bob joined", chat[1].Message)
}

func TestJoinRoom_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.JoinRoom(ctx, "ZZZZ", "bob")
		requireReason(t, err, ReasonRoomNotFound)
	})

	t.Run("username taken", func(t *testing.T) {
		f := newFixture(t)
		room, _, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.Code, "alice")
		requireReason(t, err, ReasonUsernameTaken)
	})

	t.Run("blank username", func(t *testing.T) {
		f := newFixture(t)
		room, _, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.Code, " ")
		requireReason(t, err, ReasonInvalidUsername)
	})

	t.Run("full", func(t *testing.T) {
		f := newFixture(t, withConfig(Config{MaxPlayers: 2}))
		room, _, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.Code, "bob")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.Code, "carol")
		requireReason(t, err, ReasonRoomFull)
	})

	t.Run("already started", func(t *testing.T) {
		f := newFixture(t)
		room, _ := startedRoom(t, f)
		_, _, err := f.svc.JoinRoom(ctx, room.Code, "dave")
		requireReason(t, err, ReasonRoomNotWaiting)
	})
}

func TestJoinRoom_StartedDuringLookup(t *testing.T) {
	fs := &faultyStore{}
	f := newFixture(t, withFaults(fs))
	ctx := context.Background()

	room, alice, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)
	for _, name := range []string{"bob", "carol"} {
		_, _, err := f.svc.JoinRoom(ctx, room.Code, name)
		require.NoError(t, err)
	}

	// the host starts the game between the code lookup and the join
	fs.afterRoomByCode = func() {
		_, err := f.svc.StartGame(ctx, room.ID, alice.ID)
		require.NoError(t, err)
	}
	_, _, err = f.svc.JoinRoom(ctx, room.Code, "dave")
	requireReason(t, err, ReasonRoomNotWaiting)

	n, err := f.store.CountPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCreateRoom_FailureLeavesNoRoom(t *testing.T) {
	fs := &faultyStore{openRoom: errors.New("disk full")}
	f := newFixture(t, withFaults(fs))
	ctx := context.Background()

	_, _, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.ErrorContains(t, err, "disk full")

	rooms, err := f.store.RoomsByStatus(ctx, core.RoomWaiting)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	fs.openRoom = nil
	room, host, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)
	stored, err := f.store.Players(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, host.ID, stored[0].ID)
	assert.Equal(t, room.HostID, host.ID)
}

func TestStartGame_NeedsThreePlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, alice, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.Code, "bob")
	require.NoError(t, err)

	_, err = f.svc.StartGame(ctx, room.ID, alice.ID)
	requireReason(t, err, ReasonNotEnoughPlayers)

	stored, err := f.svc.Room(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoomWaiting, stored.Status)
	assert.Equal(t, core.PhaseLobby, stored.Phase)

	_, _, err = f.svc.JoinRoom(ctx, room.Code, "carol")
	require.NoError(t, err)

	started, err := f.svc.StartGame(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoomPlaying, started.Status)
	assert.Equal(t, core.PhaseTuning, started.Phase)
	assert.Equal(t, 1, started.CurrentDay)
	assert.Equal(t, 1960, started.CurrentYear)
	require.NotNil(t, started.DayStartedAt)
	require.NotNil(t, started.WeekStartedAt)
}

func TestStartGame_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, players := startedRoom(t, f)

	_, err := f.svc.StartGame(ctx, room.ID, players[0].ID)
	requireReason(t, err, ReasonRoomNotWaiting)

	_, err = f.svc.StartGame(ctx, room.ID, players[1].ID)
	requireReason(t, err, ReasonNotHost)

	_, err = f.svc.StartGame(ctx, "missing", players[0].ID)
	requireReason(t, err, ReasonRoomNotFound)
}

func TestResetToLobby(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, alice, err := f.svc.CreateRoom(ctx, "alice", core.ModeQuick)
	require.NoError(t, err)
	_, bob, err := f.svc.JoinRoom(ctx, room.Code, "bob")
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.Code, "carol")
	require.NoError(t, err)

	room, err = f.svc.StartGame(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	require.Equal(t, core.PhaseRaceSetup, room.Phase)

	_, err = f.svc.ResetToLobby(ctx, room.ID, alice.ID)
	require.ErrorIs(t, err, ErrUnexpectedPhase)

	_, err = f.svc.ResetToLobby(ctx, room.ID, bob.ID)
	requireReason(t, err, ReasonNotHost)

	_, err = f.svc.SubmitRaceEntry(ctx, room.ID, alice.ID, "", alice.Garage[0].ID)
	require.NoError(t, err)
	_, err = f.svc.RunRace(ctx, room.ID, alice.ID, "", "t1", core.WeatherClear)
	require.NoError(t, err)

	room, err = f.svc.ResetToLobby(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoomWaiting, room.Status)
	assert.Equal(t, core.PhaseLobby, room.Phase)
	assert.Equal(t, 0, room.CurrentDay)
	assert.Nil(t, room.DayStartedAt)

	_, err = f.svc.StartGame(ctx, room.ID, alice.ID)
	require.NoError(t, err)
}

func TestResetToLobby_WeeklyNotAllowed(t *testing.T) {
	f := newFixture(t)
	room, players := startedRoom(t, f)

	_, err := f.svc.ResetToLobby(context.Background(), room.ID, players[0].ID)
	requireReason(t, err, ReasonResetNotAllowed)
}

func TestStandings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, players := startedRoom(t, f)

	bob := players[1]
	bob.Points = 10
	require.NoError(t, f.store.UpdatePlayer(ctx, bob))
	carol := players[2]
	carol.Points = 10
	carol.Money = 20000
	require.NoError(t, f.store.UpdatePlayer(ctx, carol))

	standings, err := f.svc.Standings(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, standings, 3)
	assert.Equal(t, "carol", standings[0].Username)
	assert.Equal(t, "bob", standings[1].Username)
	assert.Equal(t, "alice", standings[2].Username)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	room, _ := startedRoom(t, f)

	got, players, err := f.svc.Snapshot(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.Len(t, players, 3)

	_, _, err = f.svc.Snapshot(context.Background(), "missing")
	requireReason(t, err, ReasonRoomNotFound)
}

func TestSendChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, players := startedRoom(t, f)

	_, err := f.svc.SendChat(ctx, room.ID, players[1].ID, "   ")
	requireReason(t, err, ReasonEmptyMessage)

	_, err = f.svc.SendChat(ctx, room.ID, players[1].ID, strings.Repeat("a", maxMessage+1))
	requireReason(t, err, ReasonMessageTooLong)

	_, err = f.svc.SendChat(ctx, room.ID, "stranger", "hi")
	requireReason(t, err, ReasonPlayerNotFound)

	msg, err := f.svc.SendChat(ctx, room.ID, players[1].ID, " gl hf ")
	require.NoError(t, err)
	assert.Equal(t, "gl hf", msg.Message)
	assert.Equal(t, "bob", msg.Username)
	assert.Equal(t, core.MessageUser, msg.Kind)

	latest, err := f.svc.Chat(ctx, room.ID, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "gl hf", latest[1].Message)
}

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceweek/raceweek/internal/logging"
	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/pkg/core"
)

func TestAdvanceDay_FollowsSchedule(t *testing.T) {
	f := newFixture(t)
	room, _ := startedRoom(t, f)

	want := []struct {
		day   int
		phase core.Phase
		year  int
	}{
		{2, core.PhaseRaceSetup, 1960},
		{3, core.PhaseDealer, 1960},
		{4, core.PhaseTuning, 1960},
		{5, core.PhaseRaceSetup, 1960},
		{6, core.PhaseTuning, 1960},
		{7, core.PhaseRaceSetup, 1960},
		{8, core.PhaseTuning, 1960},
		{9, core.PhaseRaceSetup, 1960},
		{10, core.PhaseDealer, 1962},
		{11, core.PhaseTuning, 1962},
		{12, core.PhaseRaceSetup, 1962},
	}
	for _, w := range want {
		var err error
		room, err = f.svc.AdvanceDay(context.Background(), room.ID, room.HostID, room.CurrentDay)
		require.NoError(t, err)
		assert.Equal(t, w.day, room.CurrentDay)
		assert.Equal(t, w.phase, room.Phase, "day %d", w.day)
		assert.Equal(t, w.year, room.CurrentYear, "day %d", w.day)
	}

	room = advanceTo(t, f, room, 17)
	assert.Equal(t, core.PhaseDealer, room.Phase)
	assert.Equal(t, 1964, room.CurrentYear)
}

func TestAdvanceDay_Announces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _ := startedRoom(t, f)

	room = advanceTo(t, f, room, 2)
	chat, err := f.svc.Chat(ctx, room.ID, 1)
	require.NoError(t, err)
	require.Len(t, chat, 1)
	assert.Equal(t, "Day 2: Saturday, qualification race. Epoch 1960.", chat[0].Message)

	room = advanceTo(t, f, room, 10)
	chat, err = f.svc.Chat(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Day 10: Sunday, dealer day. Epoch 1962. A new year begins.", chat[0].Message)
}

func TestAdvanceDay_WeekStart(t *testing.T) {
	f := newFixture(t)
	room, _ := startedRoom(t, f)
	firstWeek := *room.WeekStartedAt

	f.clock.Set(f.clock.Now().Add(time.Hour))
	room = advanceTo(t, f, room, 3)
	assert.Equal(t, firstWeek, *room.WeekStartedAt)

	room = advanceTo(t, f, room, 4)
	assert.True(t, room.WeekStartedAt.After(firstWeek))
	assert.Equal(t, *room.DayStartedAt, *room.WeekStartedAt)
}

func TestAdvanceDay_StaleExpectedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, _ := startedRoom(t, f)

	advanced, err := f.svc.AdvanceDay(ctx, room.ID, room.HostID, 1)
	require.NoError(t, err)
	require.Equal(t, 2, advanced.CurrentDay)

	_, err = f.svc.AdvanceDay(ctx, room.ID, room.HostID, 1)
	require.ErrorIs(t, err, ErrDayAlreadyAdvanced)

	stored, err := f.svc.Room(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentDay)
}

func TestAdvanceDay_CommitFailureReturnsLoadedRoom(t *testing.T) {
	fs := &faultyStore{}
	f := newFixture(t, withFaults(fs))
	ctx := context.Background()
	room, _ := startedRoom(t, f)

	fs.commitDay = errors.New("disk full")
	got, err := f.svc.AdvanceDay(ctx, room.ID, room.HostID, 1)
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, got.CurrentDay)
	assert.Equal(t, room.Phase, got.Phase)
	assert.Equal(t, room.CurrentYear, got.CurrentYear)

	stored, err := f.svc.Room(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentDay)
	assert.Equal(t, room.Phase, stored.Phase)
}

func TestAdvanceDay_ConcurrentCallersAdvanceOnce(t *testing.T) {
	f := newFixture(t)
	room, _ := startedRoom(t, f)

	// a second service on the same store stands in for another client
	other, err := New(Dependencies{Store: f.store, Catalog: f.cat, Clock: f.clock.Now, Logger: f.svc.log})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		svc := f.svc
		if i%2 == 1 {
			svc = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AdvanceDay(context.Background(), room.ID, room.HostID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDayAlreadyAdvanced):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, conflicts)

	stored, err := f.svc.Room(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentDay)
}

func TestAdvanceDay_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, alice, err := f.svc.CreateRoom(ctx, "alice", core.ModeWeekly)
	require.NoError(t, err)
	_, err = f.svc.AdvanceDay(ctx, room.ID, alice.ID, 0)
	requireReason(t, err, ReasonRoomNotPlaying)

	room, players := startedRoom(t, f)
	_, err = f.svc.AdvanceDay(ctx, room.ID, players[1].ID, room.CurrentDay)
	requireReason(t, err, ReasonNotHost)
}

func TestAdvanceDay_ClearsShopVisits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, players := startedRoom(t, f)
	bob := players[1]

	bob, err := f.svc.BuyPart(ctx, room.ID, bob.ID, bob.Garage[0].ID, "ts_intercooler_1")
	require.NoError(t, err)
	require.NotEmpty(t, bob.ShopVisits)

	_, err = f.svc.AdvanceDay(ctx, room.ID, room.HostID, room.CurrentDay)
	require.NoError(t, err)

	bob, err = f.svc.Player(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bob.ShopVisits)
}

func TestAdvanceDay_PublishesEvents(t *testing.T) {
	hub, err := realtime.NewHub(logging.NewHubLoggerTo(io.Discard))
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	f := newFixture(t, withBus(hub))
	room, _ := startedRoom(t, f)

	events := make(chan realtime.Event, 64)
	unsubscribe := hub.Subscribe(room.ID, func(e realtime.Event) { events <- e }, realtime.Buffered(64))
	defer unsubscribe()

	_, err = f.svc.AdvanceDay(context.Background(), room.ID, room.HostID, room.CurrentDay)
	require.NoError(t, err)

	seen := map[string]int{}
	timeout := time.After(2 * time.Second)
	for seen[realtime.TypeChatPosted] == 0 {
		select {
		case e := <-events:
			seen[e.Type]++
			if e.Type == realtime.TypeRoomUpdated {
				assert.Equal(t, 2, e.Room.CurrentDay)
			}
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.Equal(t, 1, seen[realtime.TypeRoomUpdated])
	assert.Equal(t, 3, seen[realtime.TypePlayerUpdated])
}

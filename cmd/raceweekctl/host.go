package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raceweek/raceweek/internal/api"
	"github.com/raceweek/raceweek/internal/session"
	"github.com/raceweek/raceweek/pkg/core"
)

// hostCmd runs the host-client rollover over HTTP: every poll inside the
// nightly window it asks the server to advance the room once.
func hostCmd(ctx context.Context, args []string) error {
	fs, c := newFlags("host")
	roomID := fs.String("room", "", "room id")
	actor := fs.String("actor", "", "host player id")
	trigger := fs.String("trigger", "22:00:00", "local trigger time")
	window := fs.Duration("window", 15*time.Second, "trigger window")
	poll := fs.Duration("poll", 10*time.Second, "poll interval")
	_ = fs.Parse(args)
	if err := required("room", *roomID); err != nil {
		return err
	}
	if err := required("actor", *actor); err != nil {
		return err
	}

	// Only the clock helpers are used; advancing goes through the API.
	clock, err := session.NewTicker(nil, session.TickerConfig{
		Trigger: *trigger,
		Window:  *window,
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}

	cl := c.client()
	last := ""
	tick := time.NewTicker(*poll)
	defer tick.Stop()

	fmt.Printf("hosting %s, next rollover at %s\n", *roomID, clock.NextTrigger(time.Now()).Format(time.DateTime))
	for {
		now := time.Now()
		date := now.Format(time.DateOnly)
		if clock.InWindow(now) && date != last {
			room, err := advanceOnce(ctx, cl, *roomID, *actor)
			switch {
			case err == nil:
				last = date
				fmt.Printf("advanced to day %d (%s)\n", room.CurrentDay, room.Phase)
			case isConflict(err):
				last = date
				fmt.Println("day already advanced")
			default:
				fmt.Println("advance failed:", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func advanceOnce(ctx context.Context, cl *api.Client, roomID, actor string) (core.Room, error) {
	room, err := cl.Room(ctx, roomID)
	if err != nil {
		return core.Room{}, err
	}
	if room.Status != core.RoomPlaying {
		return core.Room{}, fmt.Errorf("room is %s", room.Status)
	}
	return cl.AdvanceDay(ctx, roomID, actor, room.CurrentDay)
}

func isConflict(err error) bool {
	var apiErr *api.Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && apiErr.Reason == "day_already_advanced"
}

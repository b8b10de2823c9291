package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raceweek/raceweek/pkg/core"
)

// TickerConfig controls the nightly rollover.
type TickerConfig struct {
	// Trigger is the local time of day, "15:04:05".
	Trigger      string
	Window       time.Duration
	PollInterval time.Duration
	Location     *time.Location
	Clock        func() time.Time
	Logger       *slog.Logger
}

// Ticker advances rooms once per day when the local clock reaches the
// trigger time. In agent mode it drives every PLAYING room as its host; in
// host mode it drives a single room as one actor.
type Ticker struct {
	svc      *Service
	offset   time.Duration
	window   time.Duration
	interval time.Duration
	loc      *time.Location
	clock    func() time.Time
	log      *slog.Logger

	roomID  string
	actorID string

	mu   sync.Mutex
	last map[string]string
}

// NewTicker creates an agent-mode ticker.
func NewTicker(svc *Service, cfg TickerConfig) (*Ticker, error) {
	if cfg.Trigger == "" {
		cfg.Trigger = "22:00:00"
	}
	at, err := time.Parse("15:04:05", cfg.Trigger)
	if err != nil {
		return nil, fmt.Errorf("parse trigger %q: %w", cfg.Trigger, err)
	}
	t := &Ticker{
		svc:      svc,
		offset:   time.Duration(at.Hour())*time.Hour + time.Duration(at.Minute())*time.Minute + time.Duration(at.Second())*time.Second,
		window:   cfg.Window,
		interval: cfg.PollInterval,
		loc:      cfg.Location,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		last:     make(map[string]string),
	}
	if t.window <= 0 {
		t.window = 15 * time.Second
	}
	if t.interval <= 0 {
		t.interval = 10 * time.Second
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.log == nil {
		t.log = svc.log
	}
	return t, nil
}

// ForRoom switches the ticker to host mode for one room.
func (t *Ticker) ForRoom(roomID, actorID string) *Ticker {
	t.roomID = roomID
	t.actorID = actorID
	return t
}

func (t *Ticker) triggerOn(now time.Time) time.Time {
	local := now.In(t.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.loc).Add(t.offset)
}

// InWindow reports whether now falls in [trigger, trigger+window) of its
// local day.
func (t *Ticker) InWindow(now time.Time) bool {
	start := t.triggerOn(now)
	return !now.Before(start) && now.Before(start.Add(t.window))
}

// NextTrigger returns the next trigger instant strictly after now.
func (t *Ticker) NextTrigger(now time.Time) time.Time {
	next := t.triggerOn(now)
	if !next.After(now) {
		local := now.In(t.loc)
		y, m, d := local.Date()
		next = time.Date(y, m, d+1, 0, 0, 0, 0, t.loc).Add(t.offset)
	}
	return next
}

// Run polls until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	t.log.Info("Day ticker started", "next", t.NextTrigger(t.clock()), "poll", t.interval)
	for {
		if _, err := t.Poll(ctx); err != nil {
			t.log.Error("Day rollover failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

type target struct {
	room  core.Room
	actor string
}

func (t *Ticker) targets(ctx context.Context) ([]target, error) {
	if t.roomID != "" {
		room, err := t.svc.Room(ctx, t.roomID)
		if err != nil {
			return nil, err
		}
		if room.Status != core.RoomPlaying {
			return nil, nil
		}
		return []target{{room: room, actor: t.actorID}}, nil
	}
	rooms, err := t.svc.store.RoomsByStatus(ctx, core.RoomPlaying)
	if err != nil {
		return nil, fmt.Errorf("list playing rooms: %w", err)
	}
	out := make([]target, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, target{room: r, actor: r.HostID})
	}
	return out, nil
}

// Poll advances every due room once and returns how many advanced.
func (t *Ticker) Poll(ctx context.Context) (int, error) {
	now := t.clock()
	if !t.InWindow(now) {
		return 0, nil
	}
	date := now.In(t.loc).Format(time.DateOnly)
	start := t.triggerOn(now)

	targets, err := t.targets(ctx)
	if err != nil {
		return 0, err
	}

	var (
		advanced int
		errs     []error
	)
	for _, tg := range targets {
		if t.done(tg.room.ID, date) {
			continue
		}
		// another client already rolled this room over in the current window
		if started := tg.room.DayStartedAt; started != nil && !started.Before(start) {
			t.mark(tg.room.ID, date)
			continue
		}
		_, err := t.svc.AdvanceDay(ctx, tg.room.ID, tg.actor, tg.room.CurrentDay)
		switch {
		case err == nil:
			advanced++
			t.mark(tg.room.ID, date)
		case errors.Is(err, ErrDayAlreadyAdvanced):
			t.log.Debug("Day already advanced", "room", tg.room.ID, "day", tg.room.CurrentDay)
			t.mark(tg.room.ID, date)
		default:
			if r, ok := IsRejection(err); ok {
				t.log.Debug("Rollover rejected", "room", tg.room.ID, "reason", r.Reason)
				t.mark(tg.room.ID, date)
				continue
			}
			errs = append(errs, fmt.Errorf("room %s: %w", tg.room.ID, err))
		}
	}
	return advanced, errors.Join(errs...)
}

func (t *Ticker) done(roomID, date string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[roomID] == date
}

func (t *Ticker) mark(roomID, date string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[roomID] = date
}

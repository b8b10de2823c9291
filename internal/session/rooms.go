package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/internal/schedule"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/pkg/core"
)

func normalizeUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", reject(ReasonInvalidUsername, "username is empty")
	}
	if utf8.RuneCountInString(name) > maxUsername {
		return "", reject(ReasonInvalidUsername, "username is longer than %d characters", maxUsername)
	}
	return name, nil
}

func (s *Service) newPlayer(roomID, username string, host bool) core.Player {
	starters := s.catalog.Starters(s.cfg.StartingYear, s.cfg.StarterVehicles)
	garage := make([]core.Vehicle, 0, len(starters))
	for _, v := range starters {
		v.CatalogID = v.ID
		v.ID = s.ids()
		garage = append(garage, v)
	}
	return core.Player{
		ID:         s.ids(),
		RoomID:     roomID,
		Username:   username,
		IsHost:     host,
		Money:      s.cfg.StartingMoney,
		Garage:     garage,
		ShopVisits: map[string]string{},
		JoinedAt:   s.now(),
	}
}

// CreateRoom opens a WAITING room with the caller as host. An empty mode
// means weekly.
func (s *Service) CreateRoom(ctx context.Context, username string, mode core.RoomMode) (core.Room, core.Player, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return core.Room{}, core.Player{}, err
	}
	switch mode {
	case "":
		mode = core.ModeWeekly
	case core.ModeWeekly, core.ModeQuick:
	default:
		return core.Room{}, core.Player{}, fmt.Errorf("create room: unknown mode %q", mode)
	}

	now := s.now()
	room := core.Room{
		ID:          s.ids(),
		Status:      core.RoomWaiting,
		Mode:        mode,
		Phase:       core.PhaseLobby,
		CurrentYear: s.cfg.StartingYear,
		MaxPlayers:  s.cfg.MaxPlayers,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	host := s.newPlayer(room.ID, username, true)
	room.HostID = host.ID

	for attempt := 0; ; attempt++ {
		room.Code = s.codes()
		err = s.store.OpenRoom(ctx, room, host)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrConflict) || attempt+1 >= codeAttempts {
			return core.Room{}, core.Player{}, fmt.Errorf("create room: %w", err)
		}
	}

	s.log.InfoContext(ctx, "Room created", "room", room.ID, "code", room.Code, "mode", room.Mode, "host", username)
	s.publish(ctx, realtime.RoomUpdated(room), realtime.PlayerUpdated(host))
	s.systemMessage(ctx, room.ID, fmt.Sprintf("%s created the room", username))
	return room, host, nil
}

// JoinRoom adds a player to the WAITING room with the given code.
func (s *Service) JoinRoom(ctx context.Context, code, username string) (core.Room, core.Player, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return core.Room{}, core.Player{}, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))

	found, err := s.store.RoomByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Room{}, core.Player{}, reject(ReasonRoomNotFound, "no room with code %s", code)
	}
	if err != nil {
		return core.Room{}, core.Player{}, fmt.Errorf("join room: %w", err)
	}

	unlock := s.lock(found.ID)
	defer unlock()

	// the code lookup ran unlocked; status and capacity come from a fresh read
	room, err := s.loadRoom(ctx, found.ID)
	if err != nil {
		return core.Room{}, core.Player{}, err
	}
	if room.Status != core.RoomWaiting {
		return core.Room{}, core.Player{}, reject(ReasonRoomNotWaiting, "game already started")
	}
	players, err := s.store.Players(ctx, room.ID)
	if err != nil {
		return core.Room{}, core.Player{}, fmt.Errorf("join room: %w", err)
	}
	if len(players) >= room.MaxPlayers {
		return core.Room{}, core.Player{}, reject(ReasonRoomFull, "room is full (%d players)", room.MaxPlayers)
	}
	for _, p := range players {
		if p.Username == username {
			return core.Room{}, core.Player{}, reject(ReasonUsernameTaken, "%s is already in the room", username)
		}
	}

	p := s.newPlayer(room.ID, username, false)
	if err := s.store.AddPlayer(ctx, p); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return core.Room{}, core.Player{}, reject(ReasonUsernameTaken, "%s is already in the room", username)
		}
		return core.Room{}, core.Player{}, fmt.Errorf("join room: %w", err)
	}

	s.log.InfoContext(ctx, "Player joined", "room", room.ID, "player", p.ID, "username", username)
	s.publish(ctx, realtime.PlayerUpdated(p))
	s.systemMessage(ctx, room.ID, fmt.Sprintf("%s joined", username))
	return room, p, nil
}

// StartGame moves a WAITING room to day 1 of its schedule.
func (s *Service) StartGame(ctx context.Context, roomID, actorID string) (core.Room, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return room, err
	}
	if err := requireHost(room, actorID); err != nil {
		return room, err
	}
	if room.Status != core.RoomWaiting {
		return room, reject(ReasonRoomNotWaiting, "game already started")
	}
	n, err := s.store.CountPlayers(ctx, roomID)
	if err != nil {
		return room, fmt.Errorf("start game: %w", err)
	}
	if n < s.cfg.MinPlayers {
		return room, reject(ReasonNotEnoughPlayers, "need at least %d players, have %d", s.cfg.MinPlayers, n)
	}

	table := schedule.ForMode(room.Mode)
	first := table.Lookup(1)
	now := s.now()
	expected := room.CurrentDay

	room.Status = core.RoomPlaying
	room.CurrentDay = 1
	room.Phase = schedule.PhaseFor(first)
	room.DayStartedAt = &now
	room.WeekStartedAt = &now
	room.UpdatedAt = now

	if err := s.store.UpdateRoom(ctx, room, expected); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return room, fmt.Errorf("start game: %w", ErrUnexpectedPhase)
		}
		return room, fmt.Errorf("start game: %w", err)
	}

	s.log.InfoContext(ctx, "Game started", "room", room.ID, "players", n, "mode", room.Mode)
	s.publish(ctx, realtime.RoomUpdated(room))
	s.systemMessage(ctx, room.ID, fmt.Sprintf("Game started with %d players. %s", n, dayAnnouncement(room.Mode, first, room.CurrentDay, room.CurrentYear)))
	return room, nil
}

// ResetToLobby returns a finished quick match to WAITING so it can be
// started again.
func (s *Service) ResetToLobby(ctx context.Context, roomID, actorID string) (core.Room, error) {
	unlock := s.lock(roomID)
	defer unlock()

	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return room, err
	}
	if err := requireHost(room, actorID); err != nil {
		return room, err
	}
	if !schedule.ForMode(room.Mode).ResetAllowed {
		return room, reject(ReasonResetNotAllowed, "%s rooms cannot be reset", strings.ToLower(string(room.Mode)))
	}
	if room.Phase != core.PhaseResults && room.Phase != core.PhaseRacing {
		return room, fmt.Errorf("reset %s from %s: %w", room.ID, room.Phase, ErrUnexpectedPhase)
	}

	expected := room.CurrentDay
	room.Status = core.RoomWaiting
	room.Phase = core.PhaseLobby
	room.CurrentDay = 0
	room.DayStartedAt = nil
	room.WeekStartedAt = nil
	room.UpdatedAt = s.now()

	if err := s.store.UpdateRoom(ctx, room, expected); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return room, fmt.Errorf("reset: %w", ErrDayAlreadyAdvanced)
		}
		return room, fmt.Errorf("reset: %w", err)
	}

	s.publish(ctx, realtime.RoomUpdated(room))
	s.systemMessage(ctx, room.ID, "Back to the lobby")
	return room, nil
}

// Room returns a room by ID.
func (s *Service) Room(ctx context.Context, roomID string) (core.Room, error) {
	return s.loadRoom(ctx, roomID)
}

// RoomByCode returns the active room with the given code.
func (s *Service) RoomByCode(ctx context.Context, code string) (core.Room, error) {
	room, err := s.store.RoomByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if errors.Is(err, storage.ErrNotFound) {
		return room, reject(ReasonRoomNotFound, "no room with code %s", code)
	}
	return room, err
}

// Player returns a player of the room.
func (s *Service) Player(ctx context.Context, roomID, playerID string) (core.Player, error) {
	return s.loadPlayer(ctx, roomID, playerID)
}

// Players lists the room's players in join order.
func (s *Service) Players(ctx context.Context, roomID string) ([]core.Player, error) {
	if _, err := s.loadRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.Players(ctx, roomID)
}

// Standings lists players by points, then money, then join order.
func (s *Service) Standings(ctx context.Context, roomID string) ([]core.Player, error) {
	players, err := s.Players(ctx, roomID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Points != players[j].Points {
			return players[i].Points > players[j].Points
		}
		return players[i].Money > players[j].Money
	})
	return players, nil
}

// Snapshot returns the room with its players.
func (s *Service) Snapshot(ctx context.Context, roomID string) (core.Room, []core.Player, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return room, nil, err
	}
	players, err := s.store.Players(ctx, roomID)
	if err != nil {
		return room, nil, fmt.Errorf("snapshot: %w", err)
	}
	return room, players, nil
}

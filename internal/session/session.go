// Package session owns room progression: lobby, the day schedule, races and
// the dealer and tuning markets. Every mutation of a room or player goes
// through a Service command.
package session

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raceweek/raceweek/internal/catalog"
	"github.com/raceweek/raceweek/internal/race"
	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/pkg/core"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 4
	codeAttempts = 8

	maxUsername = 32
	maxMessage  = 500
)

// Config holds room rules.
type Config struct {
	MaxPlayers      int
	MinPlayers      int
	StartingMoney   int
	StartingYear    int
	StarterVehicles int
	ChatHistory     int
}

// DefaultConfig returns the standard room rules.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:      8,
		MinPlayers:      3,
		StartingMoney:   15000,
		StartingYear:    1960,
		StarterVehicles: 3,
		ChatHistory:     100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = d.MaxPlayers
	}
	if c.MinPlayers <= 0 {
		c.MinPlayers = d.MinPlayers
	}
	if c.StartingMoney <= 0 {
		c.StartingMoney = d.StartingMoney
	}
	if c.StartingYear <= 0 {
		c.StartingYear = d.StartingYear
	}
	if c.StarterVehicles <= 0 {
		c.StarterVehicles = d.StarterVehicles
	}
	if c.ChatHistory <= 0 {
		c.ChatHistory = d.ChatHistory
	}
	return c
}

// Dependencies holds everything a Service needs. Store and Catalog are
// required; the rest have defaults.
type Dependencies struct {
	Store     storage.Gateway
	Bus       realtime.Bus
	Catalog   *catalog.Catalog
	Simulator *race.Simulator
	Clock     func() time.Time
	Logger    *slog.Logger
	Metrics   Metrics
	Config    Config
	// IDs generates record IDs.
	IDs func() string
	// Codes generates room join codes.
	Codes func() string
}

// Service executes session commands.
type Service struct {
	store   storage.Gateway
	bus     realtime.Bus
	catalog *catalog.Catalog
	sim     *race.Simulator
	clock   func() time.Time
	log     *slog.Logger
	metrics Metrics
	cfg     Config
	ids     func() string
	codes   func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Service.
func New(deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("session: catalog is required")
	}

	s := &Service{
		store:   deps.Store,
		bus:     deps.Bus,
		catalog: deps.Catalog,
		sim:     deps.Simulator,
		clock:   deps.Clock,
		log:     deps.Logger,
		metrics: deps.Metrics,
		cfg:     deps.Config.withDefaults(),
		ids:     deps.IDs,
		codes:   deps.Codes,
		locks:   make(map[string]*sync.Mutex),
	}
	if s.bus == nil {
		s.bus = nopBus{}
	}
	if s.sim == nil {
		seed, err := race.NewSeed()
		if err != nil {
			return nil, fmt.Errorf("session: seeding simulator: %w", err)
		}
		s.sim = race.NewSimulator(rand.New(rand.NewSource(seed)), deps.Catalog.Filler, deps.Catalog.RewardTable())
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = MultiMetrics{}
	}
	if s.ids == nil {
		s.ids = uuid.NewString
	}
	if s.codes == nil {
		s.codes = RoomCode
	}
	return s, nil
}

// Config returns the effective room rules.
func (s *Service) Config() Config {
	return s.cfg
}

// Catalog returns the reference data the service sells from.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// RoomCode returns a random join code without easily confused characters.
func RoomCode() string {
	buf := make([]byte, codeLength)
	if _, err := crand.Read(buf); err != nil {
		panic(fmt.Sprintf("session: reading random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// lock serializes commands against one room inside this process.
func (s *Service) lock(roomID string) func() {
	s.mu.Lock()
	m, ok := s.locks[roomID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[roomID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) loadRoom(ctx context.Context, id string) (core.Room, error) {
	room, err := s.store.RoomByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return room, reject(ReasonRoomNotFound, "room %s", id)
	}
	if err != nil {
		return room, fmt.Errorf("load room: %w", err)
	}
	return room, nil
}

func (s *Service) loadPlayer(ctx context.Context, roomID, playerID string) (core.Player, error) {
	p, err := s.store.Player(ctx, playerID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && p.RoomID != roomID) {
		return core.Player{}, reject(ReasonPlayerNotFound, "player %s", playerID)
	}
	if err != nil {
		return p, fmt.Errorf("load player: %w", err)
	}
	if p.ShopVisits == nil {
		p.ShopVisits = map[string]string{}
	}
	return p, nil
}

func requireHost(room core.Room, actorID string) error {
	if room.HostID != actorID {
		return reject(ReasonNotHost, "only the host can do that")
	}
	return nil
}

func requirePlaying(room core.Room) error {
	if room.Status != core.RoomPlaying {
		return reject(ReasonRoomNotPlaying, "room is %s", room.Status)
	}
	return nil
}

// publish delivers e after a committed write. Delivery failures are logged;
// the write stands.
func (s *Service) publish(ctx context.Context, events ...realtime.Event) {
	for _, e := range events {
		if err := s.bus.Publish(ctx, e); err != nil {
			s.log.WarnContext(ctx, "Publish failed", "type", e.Type, "room", e.RoomID, "error", err)
		}
	}
}

// systemMessage posts a chat line without an author.
func (s *Service) systemMessage(ctx context.Context, roomID, text string) {
	msg := core.ChatMessage{
		ID:        s.ids(),
		RoomID:    roomID,
		Message:   text,
		Kind:      core.MessageSystem,
		CreatedAt: s.now(),
	}
	if err := s.store.AddChatMessage(ctx, msg); err != nil {
		s.log.WarnContext(ctx, "System message failed", "room", roomID, "error", err)
		return
	}
	s.publish(ctx, realtime.ChatPosted(msg))
}

type nopBus struct{}

func (nopBus) Publish(context.Context, realtime.Event) error { return nil }

func (nopBus) Subscribe(string, realtime.Handler, ...realtime.Option) func() { return func() {} }

package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultBufferSize is the per-subscriber queue length when Buffered is not
// given.
const DefaultBufferSize = 64

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a subscription.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered sets the subscriber's queue size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes Publish wait for queue space instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type subscriber struct {
	id      uint64
	roomID  string
	buffer  chan Event
	done    chan struct{}
	once    sync.Once
	cfg     config
	handler Handler
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Hub is the in-process Bus. Each subscriber has its own queue and delivery
// goroutine, so a slow subscriber never delays the others.
type Hub struct {
	logger Logger

	// OTEL metrics
	subscribers metric.Int64ObservableGauge
	published   metric.Int64Counter
	delivered   metric.Int64Counter
	dropped     metric.Int64Counter

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
	wg     sync.WaitGroup
}

var _ Bus = (*Hub)(nil)

// NewHub creates a new Hub with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewHub(logger Logger) (*Hub, error) {
	h := &Hub{
		logger: logger,
		subs:   make(map[uint64]*subscriber),
	}

	m := meter()

	var err error

	h.subscribers, err = m.Int64ObservableGauge(
		"realtime.subscribers",
		metric.WithDescription("Current number of subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating subscriber gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			h.mu.RLock()
			defer h.mu.RUnlock()
			o.ObserveInt64(h.subscribers, int64(len(h.subs)))
			return nil
		},
		h.subscribers,
	)
	if err != nil {
		return nil, fmt.Errorf("registering subscriber callback: %w", err)
	}

	h.published, err = m.Int64Counter(
		"realtime.events.published",
		metric.WithDescription("Total events published"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	h.delivered, err = m.Int64Counter(
		"realtime.events.delivered",
		metric.WithDescription("Total events handed to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}

	h.dropped, err = m.Int64Counter(
		"realtime.events.dropped",
		metric.WithDescription("Total events dropped due to full subscriber queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return h, nil
}

// Subscribe registers h. See Bus.
func (h *Hub) Subscribe(roomID string, handler Handler, opts ...Option) func() {
	cfg := config{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = DefaultBufferSize
	}

	h.mu.Lock()
	h.nextID++
	s := &subscriber{
		id:      h.nextID,
		roomID:  roomID,
		buffer:  make(chan Event, cfg.bufferSize),
		done:    make(chan struct{}),
		cfg:     cfg,
		handler: handler,
	}
	h.subs[s.id] = s
	h.mu.Unlock()

	h.wg.Add(1)
	go h.deliver(s)

	return func() {
		h.mu.Lock()
		delete(h.subs, s.id)
		h.mu.Unlock()
		s.stop()
	}
}

// Publish queues e for every subscriber of e.RoomID and every all-room
// subscriber. Full non-blocking queues drop the event.
func (h *Hub) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	typeAttr := metric.WithAttributes(attribute.String("type", e.Type))
	h.published.Add(ctx, 1, typeAttr)

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		if s.roomID == "" || s.roomID == e.RoomID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.cfg.blocking {
			select {
			case s.buffer <- e:
			case <-s.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case s.buffer <- e:
		default:
			h.dropped.Add(ctx, 1, typeAttr)
			if h.logger != nil {
				h.logger.Error("subscriber queue full, dropping event", "type", e.Type, "room", e.RoomID, "subscriber", s.id)
			}
		}
	}
	return nil
}

func (h *Hub) deliver(s *subscriber) {
	defer h.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case e := <-s.buffer:
			start := time.Now()
			s.handler(e)
			h.delivered.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", e.Type)))
			if s.cfg.logged && h.logger != nil {
				h.logger.Debug("event delivered", "type", e.Type, "room", e.RoomID, "subscriber", s.id, "duration", time.Since(start))
			}
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes every subscriber and waits for delivery goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	h.wg.Wait()
}

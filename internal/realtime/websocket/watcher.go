package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/raceweek/raceweek/pkg/streaming"
)

const (
	eventsChSize = 256
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithBackoff sets the first reconnect delay.
func WithBackoff(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.backoff = d }
}

// WithLogger sets the watcher logger.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// Watcher is a websocket client that decodes room envelopes and reconnects
// with exponential backoff when the connection drops.
type Watcher struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	done   chan struct{}
	events chan streaming.Envelope

	url     string
	backoff time.Duration
	logger  *slog.Logger
}

// Watch dials rawURL (ws:// or wss://) and starts reading.
func Watch(rawURL string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		done:    make(chan struct{}),
		events:  make(chan streaming.Envelope, eventsChSize),
		url:     rawURL,
		backoff: time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	conn, err := w.dialOnce()
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	go w.readLoop(conn)
	return w, nil
}

// Events returns the decoded envelopes. It is closed after Close or when
// reconnecting gives up.
func (w *Watcher) Events() <-chan streaming.Envelope {
	return w.events
}

func (w *Watcher) dialOnce() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (w *Watcher) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.logger.Warn("WebSocket read error", "error", err)
			go w.reconnect()
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			w.logger.Debug("Undecodable frame", "raw", string(message))
			continue
		}

		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		select {
		case w.events <- env:
		default:
			w.logger.Debug("Events channel full, dropping", "type", env.Type)
		}
		w.mu.Unlock()
	}
}

func (w *Watcher) reconnect() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()

	backoff := w.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-w.done:
			return
		case <-time.After(backoff):
		}

		w.logger.Info("Reconnecting to WebSocket", "attempt", attempt)
		conn, err := w.dialOnce()
		if err != nil {
			w.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			_ = conn.Close()
			return
		}
		w.conn = conn
		w.mu.Unlock()

		w.logger.Info("WebSocket reconnected", "attempt", attempt)
		go w.readLoop(conn)
		return
	}

	w.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
	_ = w.Close()
}

// Close sends a close frame and stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	conn := w.conn
	w.conn = nil
	close(w.events)
	w.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

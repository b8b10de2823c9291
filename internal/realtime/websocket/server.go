// Package websocket streams room events to browsers and CLI watchers.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/raceweek/raceweek/internal/realtime"
	"github.com/raceweek/raceweek/pkg/streaming"
)

const (
	sendChSize     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Snapshot returns the hello frame sent to a new subscriber.
type Snapshot func(ctx context.Context, roomID string) (streaming.HelloMessage, error)

// Server upgrades HTTP requests and relays bus events for one room per
// connection.
type Server struct {
	bus      realtime.Bus
	snapshot Snapshot
	logger   *slog.Logger
	upgrader ws.Upgrader

	mu    sync.Mutex
	conns map[*ws.Conn]struct{}
}

// NewServer creates a websocket server. snapshot may be nil.
func NewServer(bus realtime.Bus, snapshot Snapshot, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bus:      bus,
		snapshot: snapshot,
		logger:   logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*ws.Conn]struct{}),
	}
}

// ServeHTTP serves the room named by the "room" query parameter.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	s.ServeRoom(w, r, roomID)
}

// ServeRoom upgrades the request and streams roomID until either side
// closes.
func (s *Server) ServeRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	var hello streaming.HelloMessage
	if s.snapshot != nil {
		var err error
		hello, err = s.snapshot(r.Context(), roomID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}
	hello.RoomID = roomID

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	s.track(conn, true)
	defer s.track(conn, false)

	sendCh := make(chan []byte, sendChSize)
	done := make(chan struct{})

	if data, err := marshal(streaming.TypeHello, roomID, hello); err == nil {
		sendCh <- data
	}

	unsubscribe := s.bus.Subscribe(roomID, func(e realtime.Event) {
		env, err := e.Envelope()
		if err != nil {
			s.logger.Warn("Dropping unencodable event", "type", e.Type, "error", err)
			return
		}
		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		select {
		case sendCh <- data:
		case <-done:
		default:
			s.logger.Warn("WebSocket send channel full, dropping message", "room", roomID)
		}
	})
	defer unsubscribe()

	go s.writeLoop(conn, sendCh, done)
	s.readLoop(conn)
	close(done)
}

// readLoop discards client frames and returns when the connection fails.
func (s *Server) readLoop(conn *ws.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *ws.Conn, sendCh <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			return
		case data := <-sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.logger.Debug("WebSocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) track(conn *ws.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close drops every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func marshal(msgType, roomID string, payload any) ([]byte, error) {
	env, err := streaming.NewEnvelope(msgType, roomID, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

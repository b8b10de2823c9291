// Package httpapi exposes session commands as JSON over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raceweek/raceweek/internal/api"
	"github.com/raceweek/raceweek/internal/cache"
	"github.com/raceweek/raceweek/internal/logging"
	"github.com/raceweek/raceweek/internal/realtime/websocket"
	"github.com/raceweek/raceweek/internal/session"
	"github.com/raceweek/raceweek/pkg/streaming"
)

// Dependencies holds all dependencies for the API server. Cache and Stream
// are optional.
type Dependencies struct {
	Service *session.Service
	Cache   *cache.RoomCache
	Stream  *websocket.Server
	Logger  *slog.Logger
	APIKey  string
}

// Server routes API requests.
type Server struct {
	svc    *session.Service
	cache  *cache.RoomCache
	stream *websocket.Server
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates the API server.
func New(deps Dependencies) *Server {
	s := &Server{
		svc:    deps.Service,
		cache:  deps.Cache,
		stream: deps.Stream,
		log:    deps.Logger,
		apiKey: deps.APIKey,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Get("/rooms/{id}", s.getRoom)
		r.Get("/rooms/{id}/players", s.getPlayers)
		r.Get("/rooms/{id}/standings", s.getStandings)
		r.Get("/rooms/{id}/dealer", s.getDealer)
		r.Get("/rooms/{id}/results", s.getResults)
		r.Get("/rooms/{id}/chat", s.getChat)
		r.Get("/rooms/{id}/ws", s.streamRoom)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)

		r.Post("/rooms", s.createRoom)
		r.Post("/rooms/join", s.joinRoom)
		r.Post("/rooms/{id}/start", s.startGame)
		r.Post("/rooms/{id}/advance", s.advanceDay)
		r.Post("/rooms/{id}/race", s.runRace)
		r.Post("/rooms/{id}/reset", s.resetToLobby)
		r.Post("/rooms/{id}/entries", s.submitEntry)
		r.Post("/rooms/{id}/vehicles", s.buyVehicle)
		r.Post("/rooms/{id}/parts", s.buyPart)
		r.Delete("/rooms/{id}/parts", s.removePart)
		r.Post("/rooms/{id}/chat", s.sendChat)
		r.Post("/stats", s.stats)
		r.Post("/simulate", s.simulate)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		ctx := logging.ContextWith(r.Context(), slog.String("requestId", middleware.GetReqID(r.Context())))
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.DebugContext(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(api.APIKeyHeader)), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or wrong API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS, POST, DELETE")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, api.ErrorResponse{Reason: reason, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

// rejectionStatus maps a rejection reason to its HTTP status.
func rejectionStatus(reason session.Reason) int {
	switch reason {
	case session.ReasonNotHost:
		return http.StatusForbidden
	case session.ReasonRoomNotFound, session.ReasonPlayerNotFound, session.ReasonUnknownVehicle,
		session.ReasonUnknownPart, session.ReasonUnknownTrack, session.ReasonVehicleNotInGarage:
		return http.StatusNotFound
	case session.ReasonInvalidUsername, session.ReasonEmptyMessage, session.ReasonMessageTooLong:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := session.IsRejection(err); ok {
		writeError(w, rejectionStatus(rej.Reason), string(rej.Reason), rej.Error())
		return
	}
	switch {
	case errors.Is(err, session.ErrDayAlreadyAdvanced):
		writeError(w, http.StatusConflict, "day_already_advanced", err.Error())
	case errors.Is(err, session.ErrUnexpectedPhase):
		writeError(w, http.StatusConflict, "unexpected_phase", err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "canceled", err.Error())
	default:
		s.log.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// Hello builds the first frame of a room stream from the service.
func Hello(svc *session.Service) websocket.Snapshot {
	return func(ctx context.Context, roomID string) (streaming.HelloMessage, error) {
		room, players, err := svc.Snapshot(ctx, roomID)
		if err != nil {
			return streaming.HelloMessage{}, err
		}
		return streaming.HelloMessage{RoomID: roomID, Room: &room, Players: players}, nil
	}
}

func (s *Server) streamRoom(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, http.StatusNotFound, "stream_disabled", "event streaming is not enabled")
		return
	}
	s.stream.ServeRoom(w, r, chi.URLParam(r, "id"))
}

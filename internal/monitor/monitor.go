// Package monitor periodically samples server status and writes it to a
// status file and, when configured, to InfluxDB.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/raceweek/raceweek/internal/logging"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Status is one sample of the server's runtime state.
type Status struct {
	Time          time.Time `json:"time"`
	Uptime        string    `json:"uptime"`
	CachedRooms   int       `json:"cachedRooms"`
	Subscribers   int       `json:"subscribers"`
	StreamClients int       `json:"streamClients"`
	PendingPoints int       `json:"pendingPoints"`
	LocalStorage  bool      `json:"localStorage"`
}

// Point converts the sample to an InfluxDB point.
func (s Status) Point() *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		"server_status",
		nil,
		map[string]any{
			"cached_rooms":   s.CachedRooms,
			"subscribers":    s.Subscribers,
			"stream_clients": s.StreamClients,
			"pending_points": s.PendingPoints,
			"local_storage":  s.LocalStorage,
		},
		s.Time,
	)
}

// Dependencies holds all dependencies for the monitor service. Every
// counter is optional.
type Dependencies struct {
	LogManager    *logging.SlogManager
	CachedRooms   func() int
	Subscribers   func() int
	StreamClients func() int
	PendingPoints func() int
	LocalStorage  func() bool
	// Sink receives a point per sample, usually influx.Manager.Enqueue.
	Sink       func(points ...*influxdb2_write.Point)
	StatusPath string
	Interval   time.Duration
	Clock      func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 30 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		deps:     deps,
		started:  deps.Clock(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func count(f func() int) int {
	if f == nil {
		return 0
	}
	return f()
}

// Status samples the current state.
func (s *Service) Status() Status {
	now := s.deps.Clock()
	st := Status{
		Time:          now,
		Uptime:        now.Sub(s.started).Truncate(time.Second).String(),
		CachedRooms:   count(s.deps.CachedRooms),
		Subscribers:   count(s.deps.Subscribers),
		StreamClients: count(s.deps.StreamClients),
		PendingPoints: count(s.deps.PendingPoints),
	}
	if s.deps.LocalStorage != nil {
		st.LocalStorage = s.deps.LocalStorage()
	}
	return st
}

// WriteStatus samples once, rewrites the status file and forwards the point
// to the sink.
func (s *Service) WriteStatus() (Status, error) {
	st := s.Status()
	if s.deps.Sink != nil {
		s.deps.Sink(st.Point())
	}
	if s.deps.StatusPath == "" {
		return st, nil
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return st, err
	}
	if err := os.WriteFile(s.deps.StatusPath, append(raw, '\n'), 0644); err != nil {
		return st, fmt.Errorf("failed to write status file: %w", err)
	}
	return st, nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(s.done)
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		tick := time.NewTicker(s.deps.Interval)
		defer tick.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-tick.C:
				if _, err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}

// Package postgres implements storage.Gateway on PostgreSQL. Connection
// handling goes through database.Manager, which falls back to SQLite when
// the server cannot be reached.
package postgres

import (
	"fmt"

	"github.com/raceweek/raceweek/internal/database"
	"github.com/raceweek/raceweek/internal/logging"
	gormstorage "github.com/raceweek/raceweek/internal/storage/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	Config     database.PostgresConfig
	Fallback   string // SQLite path used when Postgres is unreachable
	LogManager *logging.SlogManager
}

// Backend implements storage.Gateway on the GORM backend.
type Backend struct {
	*gormstorage.Backend
	deps    Dependencies
	manager *database.Manager
}

// New creates a new Postgres storage backend. The connection is opened by Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects, migrates and reports whether the fallback is in use.
func (b *Backend) Init() error {
	var logger = logging.Zerolog(b.deps.LogManager)
	b.manager = database.NewManager(logger, b.deps.Fallback)
	if err := b.manager.Connect(b.deps.Config); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.manager.DB,
		LogManager: b.deps.LogManager,
	})
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.manager.ShouldSaveLocal && b.deps.LogManager != nil {
		b.deps.LogManager.WriteLog("postgres:Init", "Postgres unreachable, using local SQLite at "+b.manager.SqliteFilePath, "WARN")
	}
	return nil
}

// UsingFallback reports whether Init fell back to SQLite.
func (b *Backend) UsingFallback() bool {
	return b.manager != nil && b.manager.ShouldSaveLocal
}

// Close closes the connection.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}

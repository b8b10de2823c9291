// Package sqlitestorage implements storage.Gateway on SQLite with periodic
// disk dumps via VACUUM INTO. It wraps the GORM backend; the only
// SQLite-specific concerns are opening the database and the dump loop.
package sqlitestorage

import (
	"fmt"
	"time"

	"github.com/raceweek/raceweek/internal/database"
	"github.com/raceweek/raceweek/internal/logging"
	gormstorage "github.com/raceweek/raceweek/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path         string // empty for an in-memory database
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *logging.SlogManager
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new SQLite storage backend.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: logManager,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logManager,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.done = make(chan struct{})
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the
// embedded GORM backend.
func (b *Backend) Close() error {
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	if b.done != nil {
		<-b.done
		b.dump()
	}
	return b.Backend.Close()
}

// Dump writes a point-in-time copy of the database to the configured path.
func (b *Backend) Dump() error {
	if b.cfg.DumpPath == "" {
		return fmt.Errorf("no dump path configured")
	}
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

func (b *Backend) dump() {
	start := time.Now()
	if err := b.Dump(); err != nil {
		b.writeLog(fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
		return
	}
	b.writeLog(fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
}

func (b *Backend) writeLog(msg, level string) {
	if b.log != nil {
		b.log.WriteLog("sqlite:dumpLoop", msg, level)
	}
}

// dumpLoop periodically dumps the database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.dump()
		}
	}
}

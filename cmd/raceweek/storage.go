package main

import (
	"fmt"
	"path/filepath"

	"github.com/raceweek/raceweek/internal/config"
	"github.com/raceweek/raceweek/internal/database"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/internal/storage/memory"
	pgstorage "github.com/raceweek/raceweek/internal/storage/postgres"
	sqlitestorage "github.com/raceweek/raceweek/internal/storage/sqlite"
)

func createStorageBackend(storageCfg config.StorageConfig) (storage.Gateway, error) {
	switch storageCfg.Type {
	case "postgres":
		dbCfg := config.GetDBConfig()
		Logger.Info("Postgres storage backend initialized", "host", dbCfg.Host, "database", dbCfg.Database)
		return pgstorage.New(pgstorage.Dependencies{
			Config: database.PostgresConfig{
				Host:     dbCfg.Host,
				Port:     dbCfg.Port,
				Username: dbCfg.Username,
				Password: dbCfg.Password,
				Database: dbCfg.Database,
				SSLMode:  dbCfg.SSLMode,
			},
			Fallback:   fallbackPath(storageCfg.SQLite),
			LogManager: SlogManager,
		}), nil

	case "sqlite":
		dumpPath := storageCfg.SQLite.DumpPath
		if dumpPath == "" && storageCfg.SQLite.Path == "" {
			dumpPath = fallbackPath(storageCfg.SQLite)
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         storageCfg.SQLite.Path,
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
		}, SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path)
		return backend, nil

	default:
		Logger.Info("Memory storage backend initialized", "snapshot", storageCfg.Memory.SnapshotPath)
		return memory.New(storageCfg.Memory), nil
	}
}

// fallbackPath names a session-stamped SQLite file next to the configured
// database.
func fallbackPath(cfg config.SQLiteConfig) string {
	dir := "."
	if cfg.Path != "" {
		dir = filepath.Dir(cfg.Path)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.db", ServiceName, SessionStartTime.Format("20060102_150405")))
}

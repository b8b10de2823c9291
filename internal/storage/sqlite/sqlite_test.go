package sqlitestorage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raceweek/raceweek/internal/database"
	"github.com/raceweek/raceweek/internal/model"
	"github.com/raceweek/raceweek/internal/storage"
	"github.com/raceweek/raceweek/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Gateway {
		b, err := New(Config{}, nil)
		require.NoError(t, err)
		require.NoError(t, b.Init())
		return b
	})
}

func TestDumpLoop(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "dump.db")
	b, err := New(Config{DumpInterval: 20 * time.Millisecond, DumpPath: dumpPath}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())

	room := storagetest.NewRoom("DUMP")
	require.NoError(t, b.CreateRoom(context.Background(), room))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dumpPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
	// second close is a no-op
	require.NoError(t, b.Close())

	restored, err := database.OpenSQLite(dumpPath)
	require.NoError(t, err)
	var n int64
	require.NoError(t, restored.Model(&model.Room{}).Where("id = ?", room.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestDump_NoPath(t *testing.T) {
	b, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Error(t, b.Dump())
}

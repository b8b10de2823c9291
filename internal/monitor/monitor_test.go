package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	var calls atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(calls.Add(1)-1) * time.Minute)
	}
}

func TestStatus_Counters(t *testing.T) {
	s := NewService(Dependencies{
		CachedRooms:   func() int { return 3 },
		Subscribers:   func() int { return 5 },
		StreamClients: func() int { return 2 },
		LocalStorage:  func() bool { return true },
		Clock:         fixedClock(time.Unix(1000, 0)),
	})

	st := s.Status()
	assert.Equal(t, 3, st.CachedRooms)
	assert.Equal(t, 5, st.Subscribers)
	assert.Equal(t, 2, st.StreamClients)
	assert.Equal(t, 0, st.PendingPoints)
	assert.True(t, st.LocalStorage)
	assert.Equal(t, "1m0s", st.Uptime)
}

func TestWriteStatus_FileAndSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	var points []*influxdb2_write.Point
	s := NewService(Dependencies{
		CachedRooms: func() int { return 1 },
		Sink:        func(p ...*influxdb2_write.Point) { points = append(points, p...) },
		StatusPath:  path,
		Clock:       fixedClock(time.Unix(1000, 0)),
	})

	_, err := s.WriteStatus()
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Status
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 1, got.CachedRooms)

	require.Len(t, points, 1)
	line := influxdb2_write.PointToLineProtocol(points[0], time.Second)
	assert.True(t, strings.HasPrefix(line, "server_status "))
	assert.Contains(t, line, "cached_rooms=1i")
}

func TestStartStop(t *testing.T) {
	var samples atomic.Int64
	s := NewService(Dependencies{
		CachedRooms: func() int { samples.Add(1); return 0 },
		Interval:    5 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool { return samples.Load() >= 2 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceweek/raceweek/internal/config"
	"github.com/raceweek/raceweek/pkg/core"
)

func testRoom() core.Room {
	return core.Room{ID: "r1", Mode: core.ModeWeekly, Phase: core.PhaseRaceSetup, CurrentDay: 5, CurrentYear: 1962}
}

func testRecord() core.RaceRecord {
	return core.RaceRecord{
		RaceID:  "d5",
		Day:     5,
		TrackID: "t1",
		Weather: core.WeatherRain,
		RanAt:   time.Unix(1700000000, 0),
		Results: []core.RaceResult{
			{VehicleName: "Mini", OwnerID: "p1", Time: 70.25, Rank: 1, Money: 3500, Points: 6},
			{VehicleName: "Bot", Time: 80, Rank: 2, Money: 2000, Points: 4, Category: "C"},
		},
	}
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.Connect(context.Background()))
}

func TestDayPoint(t *testing.T) {
	line := strings.TrimSpace(influxdb2_write.PointToLineProtocol(DayPoint(testRoom(), time.Unix(10, 0)), time.Second))
	assert.True(t, strings.HasPrefix(line, "day_advance,"))
	assert.Contains(t, line, "phase=RACE_SETUP")
	assert.Contains(t, line, "day=5i")
	assert.Contains(t, line, "year=1962i")
	assert.True(t, strings.HasSuffix(line, " 10"))
}

func TestRacePoints(t *testing.T) {
	points := RacePoints(testRoom(), testRecord())
	require.Len(t, points, 2)

	first := influxdb2_write.PointToLineProtocol(points[0], time.Second)
	assert.Contains(t, first, "owner=p1")
	assert.Contains(t, first, "weather=RAIN")
	assert.Contains(t, first, "rank=1i")
	assert.NotContains(t, first, "category=")

	second := influxdb2_write.PointToLineProtocol(points[1], time.Second)
	assert.NotContains(t, second, "owner=")
	assert.Contains(t, second, "category=C")
}

func TestBackupWhenUnreachable(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "sub", "backup.log.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:    true,
		Protocol:   "http",
		Host:       "127.0.0.1",
		Port:       "1",
		Org:        "o",
		Bucket:     "b",
		BackupPath: backup,
	})
	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	m.DayAdvanced(context.Background(), testRoom())
	m.RaceFinished(context.Background(), testRoom(), testRecord())
	assert.Equal(t, 3, m.Pending())

	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Pending())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	var lines []string
	for _, l := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "day_advance,"))
	assert.True(t, strings.HasPrefix(lines[1], "race_result,"))
}

func TestFlush_NoSink(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	m.Enqueue(DayPoint(testRoom(), time.Now()))
	assert.Error(t, m.Flush())
}

func TestEnqueue_Bounded(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	for i := 0; i < MaxPending+5; i++ {
		m.Enqueue(DayPoint(testRoom(), time.Now()))
	}
	assert.Equal(t, MaxPending, m.Pending())
}

func TestStartClose(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	m.Start(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, m.Close())
}

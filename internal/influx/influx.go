// Package influx writes race and day-rollover metrics to InfluxDB, falling
// back to a gzip line-protocol file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/raceweek/raceweek/internal/config"
	"github.com/raceweek/raceweek/internal/queue"
	"github.com/raceweek/raceweek/pkg/core"
)

const (
	// MaxPending bounds the points held between flushes.
	MaxPending = 10000
	batchSize  = 500
)

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	pending    *queue.Queue[*influxdb2_write.Point]

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		Logger:  log,
		cfg:     cfg,
		pending: queue.NewBounded[*influxdb2_write.Point](MaxPending),
	}
}

// Connect establishes a connection to InfluxDB, opening the backup file
// instead when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Info().Str("backupPath", m.cfg.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influx backup path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.BackupPath), 0o755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	org, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		org, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// Enqueue buffers points until the next Flush. The oldest points are
// discarded once MaxPending is reached.
func (m *Manager) Enqueue(points ...*influxdb2_write.Point) {
	if dropped := m.pending.Push(points...); dropped > 0 {
		m.Logger.Warn().Int("dropped", dropped).Msg("Influx queue full, dropping oldest points")
	}
}

// Pending returns the number of buffered points.
func (m *Manager) Pending() int {
	return m.pending.Len()
}

// Flush writes every buffered point.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for {
		batch := m.pending.PopN(batchSize)
		if len(batch) == 0 {
			break
		}
		for _, p := range batch {
			if err := m.writePoint(p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if m.IsValid && m.Writer != nil {
		m.Writer.Flush()
	}
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// writePoint writes a point to InfluxDB or the backup file.
func (m *Manager) writePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Start flushes buffered points every interval until Close.
func (m *Manager) Start(interval time.Duration) {
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopChan:
				return
			case <-ticker.C:
				if err := m.Flush(); err != nil {
					m.Logger.Error().Err(err).Msg("Influx flush failed")
				}
			}
		}
	}()
}

// Close stops the flush loop, writes what is left and releases the client
// and backup file.
func (m *Manager) Close() error {
	if m.stopChan != nil {
		close(m.stopChan)
		<-m.done
		m.stopChan = nil
	}
	err := m.Flush()
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		err = errors.Join(err, m.BackupWriter.Close(), m.backupFile.Close())
		m.BackupWriter = nil
	}
	return err
}

////////////////////////
// POINTS
////////////////////////

// DayAdvanced records a schedule transition.
func (m *Manager) DayAdvanced(_ context.Context, room core.Room) {
	m.Enqueue(DayPoint(room, time.Now()))
}

// RaceFinished records one point per classified vehicle.
func (m *Manager) RaceFinished(_ context.Context, room core.Room, rec core.RaceRecord) {
	m.Enqueue(RacePoints(room, rec)...)
}

// DayPoint builds the day_advance point for room.
func DayPoint(room core.Room, at time.Time) *influxdb2_write.Point {
	return influxdb2.NewPoint("day_advance",
		map[string]string{
			"room":  room.ID,
			"mode":  string(room.Mode),
			"phase": string(room.Phase),
		},
		map[string]interface{}{
			"day":  room.CurrentDay,
			"year": room.CurrentYear,
		},
		at,
	)
}

// RacePoints builds one race_result point per result row.
func RacePoints(room core.Room, rec core.RaceRecord) []*influxdb2_write.Point {
	points := make([]*influxdb2_write.Point, 0, len(rec.Results))
	for _, r := range rec.Results {
		tags := map[string]string{
			"room":    room.ID,
			"race":    rec.RaceID,
			"track":   rec.TrackID,
			"weather": string(rec.Weather),
			"vehicle": r.VehicleName,
		}
		if r.OwnerID != "" {
			tags["owner"] = r.OwnerID
		}
		if r.Category != "" {
			tags["category"] = r.Category
		}
		points = append(points, influxdb2.NewPoint("race_result", tags,
			map[string]interface{}{
				"time":   r.Time,
				"rank":   r.Rank,
				"money":  r.Money,
				"points": r.Points,
				"day":    rec.Day,
			},
			rec.RanAt,
		))
	}
	return points
}

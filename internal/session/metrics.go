package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/raceweek/raceweek/pkg/core"
)

const instrumentationName = "github.com/raceweek/raceweek/internal/session"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics receives committed room transitions.
type Metrics interface {
	DayAdvanced(ctx context.Context, room core.Room)
	RaceFinished(ctx context.Context, room core.Room, rec core.RaceRecord)
}

// MultiMetrics fans out to every element.
type MultiMetrics []Metrics

func (m MultiMetrics) DayAdvanced(ctx context.Context, room core.Room) {
	for _, x := range m {
		x.DayAdvanced(ctx, room)
	}
}

func (m MultiMetrics) RaceFinished(ctx context.Context, room core.Room, rec core.RaceRecord) {
	for _, x := range m {
		x.RaceFinished(ctx, room, rec)
	}
}

// OTelMetrics records transitions on the global meter provider.
type OTelMetrics struct {
	days    metric.Int64Counter
	races   metric.Int64Counter
	entries metric.Int64Histogram
}

var _ Metrics = (*OTelMetrics)(nil)

// NewOTelMetrics creates the session instruments.
func NewOTelMetrics() (*OTelMetrics, error) {
	m := meter()
	o := &OTelMetrics{}
	var err error

	o.days, err = m.Int64Counter(
		"session.days.advanced",
		metric.WithDescription("Room days advanced"),
		metric.WithUnit("{day}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create days counter: %w", err)
	}

	o.races, err = m.Int64Counter(
		"session.races.run",
		metric.WithDescription("Races simulated"),
		metric.WithUnit("{race}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create races counter: %w", err)
	}

	o.entries, err = m.Int64Histogram(
		"session.race.entries",
		metric.WithDescription("Player entries per race"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create entries histogram: %w", err)
	}
	return o, nil
}

func (o *OTelMetrics) DayAdvanced(ctx context.Context, room core.Room) {
	o.days.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(room.Mode)),
		attribute.String("phase", string(room.Phase)),
	))
}

func (o *OTelMetrics) RaceFinished(ctx context.Context, room core.Room, rec core.RaceRecord) {
	attrs := metric.WithAttributes(
		attribute.String("mode", string(room.Mode)),
		attribute.String("weather", string(rec.Weather)),
	)
	o.races.Add(ctx, 1, attrs)

	var n int64
	for _, r := range rec.Results {
		if r.OwnerID != "" {
			n++
		}
	}
	o.entries.Record(ctx, n, attrs)
}

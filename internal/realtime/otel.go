package realtime

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/raceweek/raceweek/internal/realtime"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

package consumption

import (
	"context"
	"time"
)

// ReadingRepository is the meter history store. ReadingsBetween must also
// return the last reading before from, so the first span of the period can
// be measured.
type ReadingRepository interface {
	ReadingsBetween(ctx context.Context, meterID string, from, to time.Time) ([]MeterReading, error)
	Append(ctx context.Context, meterID string, readings []MeterReading) error
}

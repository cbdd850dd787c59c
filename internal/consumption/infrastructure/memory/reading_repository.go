package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	consumption "tariffwatch/internal/consumption/domain"
)

// ReadingRepository keeps meter history in memory.
type ReadingRepository struct {
	mu       sync.RWMutex
	readings map[string][]consumption.MeterReading
}

// NewReadingRepository constructs an empty repository.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{readings: make(map[string][]consumption.MeterReading)}
}

// Append stores readings, replacing any with the same timestamp.
func (r *ReadingRepository) Append(ctx context.Context, meterID string, readings []consumption.MeterReading) error {
	_ = ctx
	if r == nil {
		return errors.New("reading repo: nil repository")
	}
	if meterID == "" {
		return errors.New("reading repo: empty meter id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	byTime := make(map[int64]consumption.MeterReading, len(r.readings[meterID])+len(readings))
	for _, existing := range r.readings[meterID] {
		byTime[existing.At.UnixNano()] = existing
	}
	for _, reading := range readings {
		reading.At = reading.At.UTC()
		byTime[reading.At.UnixNano()] = reading
	}
	merged := make([]consumption.MeterReading, 0, len(byTime))
	for _, reading := range byTime {
		merged = append(merged, reading)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].At.Before(merged[j].At) })
	r.readings[meterID] = merged
	return nil
}

// ReadingsBetween returns readings in [from, to] preceded by the last one
// before from.
func (r *ReadingRepository) ReadingsBetween(ctx context.Context, meterID string, from, to time.Time) ([]consumption.MeterReading, error) {
	_ = ctx
	if r == nil {
		return nil, errors.New("reading repo: nil repository")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.readings[meterID]
	var out []consumption.MeterReading
	var before *consumption.MeterReading
	for i := range all {
		reading := all[i]
		if reading.At.Before(from) {
			before = &all[i]
			continue
		}
		if reading.At.After(to) {
			break
		}
		out = append(out, reading)
	}
	if before != nil {
		out = append([]consumption.MeterReading{*before}, out...)
	}
	return out, nil
}

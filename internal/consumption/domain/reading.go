package consumption

import (
	"math"
	"sort"
	"time"

	tariff "tariffwatch/internal/tariff/domain"
)

// MeterReading is one cumulative sample from an import meter.
type MeterReading struct {
	At    time.Time `json:"timestamp"`
	Value float64   `json:"value"`
}

// RawReading is an unparsed external sample.
type RawReading struct {
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
}

// ParseReadings validates external samples. The first bad record fails the
// whole batch.
func ParseReadings(raw []RawReading) ([]MeterReading, error) {
	out := make([]MeterReading, 0, len(raw))
	for i, r := range raw {
		if r.Timestamp == "" {
			return nil, &MalformedReadingError{Index: i, Field: "timestamp", Err: ErrMissingTimestamp}
		}
		at, err := tariff.ParseInstant(r.Timestamp)
		if err != nil {
			return nil, &MalformedReadingError{Index: i, Field: "timestamp", Err: err}
		}
		if r.Value == nil {
			return nil, &MalformedReadingError{Index: i, Field: "value", Err: ErrMissingValue}
		}
		if math.IsNaN(*r.Value) || math.IsInf(*r.Value, 0) {
			return nil, &MalformedReadingError{Index: i, Field: "value", Err: ErrInvalidValue}
		}
		out = append(out, MeterReading{At: at, Value: *r.Value})
	}
	return out, nil
}

// Delta is consumption attributed to the span between two readings.
type Delta struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Quantity float64   `json:"quantity"`
}

// Duration returns End-Start.
func (d Delta) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// ExtractDeltas turns cumulative readings into positive consumption spans
// clipped to [from, to]. A backwards step (meter reset or noise) is dropped
// and the last good value stays the baseline, so the next span runs from the
// reset sample's timestamp but is measured against the pre-reset value. Zero
// steps are dropped. Readings that repeat a timestamp are ignored. Fewer than
// two readings yield no deltas.
func ExtractDeltas(readings []MeterReading, from, to time.Time) []Delta {
	deltas := []Delta{}
	if len(readings) < 2 || !to.After(from) {
		return deltas
	}
	sorted := make([]MeterReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})

	lastAt := sorted[0].At
	baseline := sorted[0].Value
	for _, cur := range sorted[1:] {
		if !cur.At.After(lastAt) {
			continue
		}
		start := laterOf(lastAt, from)
		end := earlierOf(cur.At, to)
		quantity := cur.Value - baseline
		lastAt = cur.At
		if quantity < 0 {
			continue
		}
		baseline = cur.Value
		if quantity == 0 || !end.After(start) {
			continue
		}
		deltas = append(deltas, Delta{Start: start, End: end, Quantity: quantity})
	}
	return deltas
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

package tariff

import (
	"fmt"
	"strings"
	"time"
)

// RawInterval is one unparsed source record.
type RawInterval struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Price *float64 `json:"price"`
}

// Interval is one classified, priced span. Identity is Start.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Price float64   `json:"price"`
	Phase Phase     `json:"phase"`
}

// Duration returns End-Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Contains reports start <= t < end.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

// ParseInstant parses an ISO-8601 absolute instant and normalizes it to UTC.
func ParseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrMissingField
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, value)
}

func classifyRecord(index int, raw RawInterval, classifier *Classifier) (Interval, error) {
	if strings.TrimSpace(raw.Start) == "" {
		return Interval{}, &MalformedInputError{Index: index, Field: "start", Err: ErrMissingField}
	}
	if strings.TrimSpace(raw.End) == "" {
		return Interval{}, &MalformedInputError{Index: index, Field: "end", Err: ErrMissingField}
	}
	if raw.Price == nil {
		return Interval{}, &MalformedInputError{Index: index, Field: "price", Err: ErrMissingField}
	}
	start, err := ParseInstant(raw.Start)
	if err != nil {
		return Interval{}, &MalformedInputError{Index: index, Field: "start", Value: raw.Start, Err: err}
	}
	end, err := ParseInstant(raw.End)
	if err != nil {
		return Interval{}, &MalformedInputError{Index: index, Field: "end", Value: raw.End, Err: err}
	}
	if !end.After(start) {
		return Interval{}, &MalformedInputError{Index: index, Field: "end", Value: raw.End, Err: ErrInvalidSpan}
	}
	price := *raw.Price
	return Interval{
		Start: start,
		End:   end,
		Price: price,
		Phase: classifier.Classify(start, price),
	}, nil
}

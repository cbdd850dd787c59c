package tariff

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData indicates the source returned no usable intervals.
	ErrNoData = errors.New("tariff: no usable intervals")
	// ErrMissingField indicates a raw record lacks a required field.
	ErrMissingField = errors.New("tariff: missing field")
	// ErrInvalidInstant indicates an instant could not be parsed.
	ErrInvalidInstant = errors.New("tariff: invalid instant")
	// ErrInvalidSpan indicates an interval whose end is not after its start.
	ErrInvalidSpan = errors.New("tariff: end not after start")
	// ErrDuplicateStart indicates two intervals share a start instant.
	ErrDuplicateStart = errors.New("tariff: duplicate interval start")
	// ErrUnsorted indicates intervals were not strictly increasing by start.
	ErrUnsorted = errors.New("tariff: intervals not sorted")
	// ErrInvalidWindow indicates a malformed clock window.
	ErrInvalidWindow = errors.New("tariff: invalid clock window")
	// ErrUnknownPhase indicates a phase label outside the fixed set.
	ErrUnknownPhase = errors.New("tariff: unknown phase")

	// ErrRateLimited is wrapped by sources that were refused for rate.
	ErrRateLimited = errors.New("rate limited by tariff source")
	// ErrUnexpectedFormat is wrapped by sources whose payload has the wrong shape.
	ErrUnexpectedFormat = errors.New("unexpected tariff payload")
)

// MalformedInputError reports a raw record that cannot become an Interval.
type MalformedInputError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *MalformedInputError) Error() string {
	if e == nil {
		return "tariff: malformed input"
	}
	if e.Value != "" {
		return fmt.Sprintf("tariff: malformed record %d field %s=%q: %v", e.Index, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("tariff: malformed record %d field %s: %v", e.Index, e.Field, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsMalformed reports whether err carries a MalformedInputError.
func IsMalformed(err error) bool {
	var target *MalformedInputError
	return errors.As(err, &target)
}

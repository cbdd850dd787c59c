package consumption

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTimestamp indicates a reading without a timestamp.
	ErrMissingTimestamp = errors.New("consumption: missing timestamp")
	// ErrMissingValue indicates a reading without a value.
	ErrMissingValue = errors.New("consumption: missing value")
	// ErrInvalidValue indicates a NaN or infinite reading.
	ErrInvalidValue = errors.New("consumption: invalid value")
)

// MalformedReadingError reports a meter reading that cannot be used.
type MalformedReadingError struct {
	Index int
	Field string
	Err   error
}

func (e *MalformedReadingError) Error() string {
	if e == nil {
		return "consumption: malformed reading"
	}
	return fmt.Sprintf("consumption: malformed reading %d field %s: %v", e.Index, e.Field, e.Err)
}

func (e *MalformedReadingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

package tariff

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the price tier assigned to an interval.
type Phase string

const (
	PhaseGreen Phase = "green"
	PhaseAmber Phase = "amber"
	PhaseRed   Phase = "red"

	// PhaseUnknown is never produced by a Classifier. Cost aggregation uses
	// it for slots that arrive without a phase.
	PhaseUnknown Phase = "unknown"
)

// Phases returns the fixed label set, cheapest first.
func Phases() []Phase {
	return []Phase{PhaseGreen, PhaseAmber, PhaseRed}
}

// ParsePhase normalizes a label, ignoring case.
func ParsePhase(value string) (Phase, bool) {
	for _, p := range Phases() {
		if strings.EqualFold(value, string(p)) {
			return p, true
		}
	}
	return "", false
}

// SamePhase compares two labels case-insensitively.
func SamePhase(a, b Phase) bool {
	return strings.EqualFold(string(a), string(b))
}

const minutesPerDay = 24 * 60

// ClockWindow is a half-open [Start, End) range of minutes after midnight.
// End <= Start wraps past midnight.
type ClockWindow struct {
	Phase Phase
	Start int
	End   int
}

// Contains reports whether minute-of-day falls inside the window.
func (w ClockWindow) Contains(minute int) bool {
	if w.Start < w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

func (w ClockWindow) String() string {
	return fmt.Sprintf("%s %s-%s", w.Phase, formatMinute(w.Start), formatMinute(w.End))
}

// ParseClockWindow builds a window from "HH:MM" bounds.
func ParseClockWindow(phase, start, end string) (ClockWindow, error) {
	p, ok := ParsePhase(phase)
	if !ok {
		return ClockWindow{}, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	from, err := parseMinute(start)
	if err != nil {
		return ClockWindow{}, err
	}
	to, err := parseMinute(end)
	if err != nil {
		return ClockWindow{}, err
	}
	w := ClockWindow{Phase: p, Start: from, End: to}
	if err := w.validate(); err != nil {
		return ClockWindow{}, err
	}
	return w, nil
}

func (w ClockWindow) validate() error {
	if _, ok := ParsePhase(string(w.Phase)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, w.Phase)
	}
	if w.Start < 0 || w.Start >= minutesPerDay || w.End < 0 || w.End >= minutesPerDay {
		return fmt.Errorf("%w: %s out of range", ErrInvalidWindow, w)
	}
	if w.Start == w.End {
		return fmt.Errorf("%w: %s is empty", ErrInvalidWindow, w)
	}
	return nil
}

func parseMinute(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// DefaultWindows is the standard partition of the clock: overnight green,
// evening peak red, amber elsewhere.
func DefaultWindows() []ClockWindow {
	return []ClockWindow{
		{Phase: PhaseGreen, Start: 23 * 60, End: 6 * 60},
		{Phase: PhaseAmber, Start: 6 * 60, End: 16 * 60},
		{Phase: PhaseRed, Start: 16 * 60, End: 19 * 60},
		{Phase: PhaseAmber, Start: 19 * 60, End: 23 * 60},
	}
}

// Classifier maps (start, price) to a Phase. It holds no mutable state.
type Classifier struct {
	windows  []ClockWindow
	location *time.Location
}

// NewClassifier validates the partition. A nil location means UTC.
func NewClassifier(windows []ClockWindow, location *time.Location) (*Classifier, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no windows", ErrInvalidWindow)
	}
	for _, w := range windows {
		if err := w.validate(); err != nil {
			return nil, err
		}
	}
	if location == nil {
		location = time.UTC
	}
	copied := make([]ClockWindow, len(windows))
	copy(copied, windows)
	return &Classifier{windows: copied, location: location}, nil
}

// DefaultClassifier evaluates DefaultWindows on the UTC clock.
func DefaultClassifier() *Classifier {
	return &Classifier{windows: DefaultWindows(), location: time.UTC}
}

// Classify never fails. Non-positive prices are always green; otherwise the
// first window containing the wall-clock minute wins, and amber absorbs
// anything the partition leaves uncovered.
func (c *Classifier) Classify(start time.Time, price float64) Phase {
	if price <= 0 {
		return PhaseGreen
	}
	if c == nil {
		c = DefaultClassifier()
	}
	local := start.In(c.location)
	minute := local.Hour()*60 + local.Minute()
	for _, w := range c.windows {
		if w.Contains(minute) {
			return w.Phase
		}
	}
	return PhaseAmber
}

// ClassifyRaw parses start before classifying.
func (c *Classifier) ClassifyRaw(start string, price float64) (Phase, error) {
	at, err := ParseInstant(start)
	if err != nil {
		return "", &MalformedInputError{Field: "start", Value: start, Err: err}
	}
	return c.Classify(at, price), nil
}

// Windows returns a copy of the partition.
func (c *Classifier) Windows() []ClockWindow {
	if c == nil {
		return DefaultWindows()
	}
	out := make([]ClockWindow, len(c.windows))
	copy(out, c.windows)
	return out
}

// Location returns the clock the partition is evaluated on.
func (c *Classifier) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.UTC
	}
	return c.location
}

// Thresholds renders the rules as text for diagnostics.
func (c *Classifier) Thresholds() string {
	parts := []string{"price <= 0: green"}
	for _, w := range c.Windows() {
		parts = append(parts, w.String())
	}
	parts = append(parts, "otherwise: amber ("+c.Location().String()+")")
	return strings.Join(parts, "; ")
}

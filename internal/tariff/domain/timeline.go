package tariff

import (
	"sort"
	"time"
)

// DefaultForecastWindow is the rolling forecast length: 24h of half-hours.
const DefaultForecastWindow = 48

// Timeline is a strictly increasing, duplicate-free interval sequence.
// It is built once per refresh cycle and never mutated afterwards.
type Timeline struct {
	intervals []Interval
	location  *time.Location
}

// BuildTimeline parses, classifies and sorts raw records. Any malformed
// record fails the whole build; duplicates are reported, never merged.
func BuildTimeline(raw []RawInterval, classifier *Classifier, location *time.Location) (*Timeline, error) {
	if len(raw) == 0 {
		return nil, ErrNoData
	}
	type indexed struct {
		interval Interval
		index    int
	}
	parsed := make([]indexed, 0, len(raw))
	for i, record := range raw {
		iv, err := classifyRecord(i, record, classifier)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, indexed{interval: iv, index: i})
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].interval.Start.Before(parsed[j].interval.Start)
	})

	intervals := make([]Interval, len(parsed))
	for i, item := range parsed {
		if i > 0 && item.interval.Start.Equal(parsed[i-1].interval.Start) {
			return nil, &MalformedInputError{
				Index: item.index,
				Field: "start",
				Value: item.interval.Start.Format(time.RFC3339),
				Err:   ErrDuplicateStart,
			}
		}
		intervals[i] = item.interval
	}
	return newTimeline(intervals, location), nil
}

// NewTimeline wraps already classified intervals. They must be strictly
// increasing by start.
func NewTimeline(intervals []Interval, location *time.Location) (*Timeline, error) {
	if len(intervals) == 0 {
		return nil, ErrNoData
	}
	copied := make([]Interval, len(intervals))
	for i, iv := range intervals {
		if !iv.End.After(iv.Start) {
			return nil, &MalformedInputError{Index: i, Field: "end", Err: ErrInvalidSpan}
		}
		if i > 0 {
			prev := intervals[i-1].Start
			if iv.Start.Equal(prev) {
				return nil, &MalformedInputError{Index: i, Field: "start", Err: ErrDuplicateStart}
			}
			if iv.Start.Before(prev) {
				return nil, &MalformedInputError{Index: i, Field: "start", Err: ErrUnsorted}
			}
		}
		iv.Start = iv.Start.UTC()
		iv.End = iv.End.UTC()
		copied[i] = iv
	}
	return newTimeline(copied, location), nil
}

func newTimeline(intervals []Interval, location *time.Location) *Timeline {
	if location == nil {
		location = time.UTC
	}
	return &Timeline{intervals: intervals, location: location}
}

// Len returns the number of intervals.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.intervals)
}

// Location returns the zone used for calendar-day windows.
func (t *Timeline) Location() *time.Location {
	if t == nil || t.location == nil {
		return time.UTC
	}
	return t.location
}

// All returns every interval in order.
func (t *Timeline) All() []Interval {
	if t == nil {
		return nil
	}
	return cloneIntervals(t.intervals)
}

// First returns the earliest interval.
func (t *Timeline) First() (Interval, bool) {
	if t.Len() == 0 {
		return Interval{}, false
	}
	return t.intervals[0], true
}

// Coverage returns the first start and the last end.
func (t *Timeline) Coverage() (time.Time, time.Time) {
	if t.Len() == 0 {
		return time.Time{}, time.Time{}
	}
	return t.intervals[0].Start, t.intervals[len(t.intervals)-1].End
}

// RollingForecast returns up to n intervals whose start is at or after ref.
func (t *Timeline) RollingForecast(ref time.Time, n int) []Interval {
	if t.Len() == 0 || n <= 0 {
		return []Interval{}
	}
	from := sort.Search(len(t.intervals), func(i int) bool {
		return !t.intervals[i].Start.Before(ref)
	})
	to := from + n
	if to > len(t.intervals) {
		to = len(t.intervals)
	}
	return cloneIntervals(t.intervals[from:to])
}

// ForDate returns intervals whose start falls on day's calendar date in
// the timeline's location.
func (t *Timeline) ForDate(day time.Time) []Interval {
	out := []Interval{}
	if t.Len() == 0 {
		return out
	}
	y, m, d := day.In(t.Location()).Date()
	for _, iv := range t.intervals {
		iy, im, id := iv.Start.In(t.Location()).Date()
		if iy == y && im == m && id == d {
			out = append(out, iv)
		}
	}
	return out
}

// Current returns the interval with start <= ref < end.
func (t *Timeline) Current(ref time.Time) (Interval, bool) {
	if t.Len() == 0 {
		return Interval{}, false
	}
	idx := sort.Search(len(t.intervals), func(i int) bool {
		return t.intervals[i].Start.After(ref)
	})
	if idx == 0 {
		return Interval{}, false
	}
	candidate := t.intervals[idx-1]
	if !candidate.Contains(ref) {
		return Interval{}, false
	}
	return candidate, true
}

// NextAfter returns the first interval starting strictly after ref.
func (t *Timeline) NextAfter(ref time.Time) (Interval, bool) {
	if t.Len() == 0 {
		return Interval{}, false
	}
	idx := sort.Search(len(t.intervals), func(i int) bool {
		return t.intervals[i].Start.After(ref)
	})
	if idx >= len(t.intervals) {
		return Interval{}, false
	}
	return t.intervals[idx], true
}

// Clip returns intervals overlapping [from, to), with edges trimmed.
func (t *Timeline) Clip(from, to time.Time) []Interval {
	out := []Interval{}
	if t.Len() == 0 || !to.After(from) {
		return out
	}
	for _, iv := range t.intervals {
		if !iv.End.After(from) || !iv.Start.Before(to) {
			continue
		}
		if iv.Start.Before(from) {
			iv.Start = from
		}
		if iv.End.After(to) {
			iv.End = to
		}
		out = append(out, iv)
	}
	return out
}

// Windows groups the named views computed from one reference instant.
type Windows struct {
	RollingForecast []Interval `json:"rolling_forecast"`
	Today           []Interval `json:"today"`
	Tomorrow        []Interval `json:"tomorrow"`
	Yesterday       []Interval `json:"yesterday"`
	AllSorted       []Interval `json:"all_sorted"`
}

// Windows derives every named view from ref.
func (t *Timeline) Windows(ref time.Time, n int) Windows {
	local := ref.In(t.Location())
	return Windows{
		RollingForecast: t.RollingForecast(ref, n),
		Today:           t.ForDate(local),
		Tomorrow:        t.ForDate(local.AddDate(0, 0, 1)),
		Yesterday:       t.ForDate(local.AddDate(0, 0, -1)),
		AllSorted:       t.All(),
	}
}

// DayBounds returns [midnight, next midnight) of day in location.
func DayBounds(day time.Time, location *time.Location) (time.Time, time.Time) {
	if location == nil {
		location = time.UTC
	}
	local := day.In(location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func cloneIntervals(in []Interval) []Interval {
	out := make([]Interval, len(in))
	copy(out, in)
	return out
}

package refresh

import (
	"time"

	tariff "tariffwatch/internal/tariff/domain"
)

// TransitionType names a change between consecutive snapshots.
type TransitionType string

const (
	TransitionPhaseChanged     TransitionType = "phase_changed"
	TransitionNextPhaseChanged TransitionType = "next_phase_changed"
	TransitionPhaseEndingSoon  TransitionType = "phase_ending_soon"
)

// DefaultEndingSoonWindow is how close to a block's end the warning fires.
const DefaultEndingSoonWindow = 30 * time.Minute

// Transition is one detected change, ready for notification.
type Transition struct {
	Type             TransitionType `json:"type"`
	TariffCode       string         `json:"tariff_code"`
	CycleID          string         `json:"cycle_id"`
	At               time.Time      `json:"at"`
	From             tariff.Phase   `json:"from,omitempty"`
	To               tariff.Phase   `json:"to,omitempty"`
	BlockStart       time.Time      `json:"block_start"`
	BlockEnd         time.Time      `json:"block_end"`
	MinutesRemaining int            `json:"minutes_remaining,omitempty"`
}

// TransitionDetector compares each published snapshot with the previous
// one. It warns about a block ending at most once per block.
type TransitionDetector struct {
	window time.Duration
	last   *Snapshot
	warned time.Time
}

// NewTransitionDetector constructs a detector; window <= 0 uses the default.
func NewTransitionDetector(window time.Duration) *TransitionDetector {
	if window <= 0 {
		window = DefaultEndingSoonWindow
	}
	return &TransitionDetector{window: window}
}

// Observe records next and returns the transitions since the previous
// observation. Error snapshots are ignored.
func (d *TransitionDetector) Observe(next *Snapshot, now time.Time) []Transition {
	if d == nil || next == nil || next.Outcome == OutcomeError {
		return nil
	}
	prev := d.last
	d.last = next

	var out []Transition
	cur := next.CurrentBlockSummary
	if prev != nil {
		if t, ok := phaseChange(TransitionPhaseChanged, prev.CurrentBlockSummary, cur); ok {
			out = append(out, stamp(t, next, now))
		}
		if t, ok := phaseChange(TransitionNextPhaseChanged, prev.NextBlockSummary, next.NextBlockSummary); ok {
			out = append(out, stamp(t, next, now))
		}
	}
	if cur != nil && !cur.Start.Equal(d.warned) {
		remaining := cur.End.Sub(now)
		if remaining > 0 && remaining <= d.window {
			d.warned = cur.Start
			out = append(out, stamp(Transition{
				Type:             TransitionPhaseEndingSoon,
				From:             cur.Phase,
				BlockStart:       cur.Start,
				BlockEnd:         cur.End,
				MinutesRemaining: int(remaining.Round(time.Minute) / time.Minute),
			}, next, now))
		}
	}
	return out
}

func phaseChange(kind TransitionType, before, after *tariff.BlockSummary) (Transition, bool) {
	if before == nil || after == nil || tariff.SamePhase(before.Phase, after.Phase) {
		return Transition{}, false
	}
	return Transition{
		Type:       kind,
		From:       before.Phase,
		To:         after.Phase,
		BlockStart: after.Start,
		BlockEnd:   after.End,
	}, true
}

func stamp(t Transition, s *Snapshot, now time.Time) Transition {
	t.TariffCode = s.TariffCode
	t.CycleID = s.CycleID
	t.At = now
	return t
}

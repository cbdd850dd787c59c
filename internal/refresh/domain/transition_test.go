package refresh

import (
	"testing"
	"time"

	tariff "tariffwatch/internal/tariff/domain"
)

func block(phase tariff.Phase, start time.Time, d time.Duration) *tariff.BlockSummary {
	return &tariff.BlockSummary{Phase: phase, Start: start, End: start.Add(d)}
}

func TestTransitionDetector_PhaseChanges(t *testing.T) {
	start := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	d := NewTransitionDetector(0)

	first := &Snapshot{
		CycleID:             "c1",
		Outcome:             OutcomeOK,
		CurrentBlockSummary: block(tariff.PhaseAmber, start.Add(-10*time.Hour), 10*time.Hour),
		NextBlockSummary:    block(tariff.PhaseRed, start, 3*time.Hour),
	}
	if got := d.Observe(first, start.Add(-2*time.Hour)); len(got) != 0 {
		t.Fatalf("expected no transitions on first observation, got %+v", got)
	}

	second := &Snapshot{
		CycleID:             "c2",
		Outcome:             OutcomeOK,
		CurrentBlockSummary: block(tariff.PhaseRed, start, 3*time.Hour),
		NextBlockSummary:    block(tariff.PhaseAmber, start.Add(3*time.Hour), 4*time.Hour),
	}
	got := d.Observe(second, start.Add(time.Minute))
	if len(got) != 2 {
		t.Fatalf("expected 2 transitions, got %+v", got)
	}
	if got[0].Type != TransitionPhaseChanged || got[0].From != tariff.PhaseAmber || got[0].To != tariff.PhaseRed {
		t.Fatalf("unexpected phase change %+v", got[0])
	}
	if got[1].Type != TransitionNextPhaseChanged || got[1].CycleID != "c2" {
		t.Fatalf("unexpected next change %+v", got[1])
	}
}

func TestTransitionDetector_EndingSoonOncePerBlock(t *testing.T) {
	start := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	d := NewTransitionDetector(30 * time.Minute)
	snap := &Snapshot{
		Outcome:             OutcomeOK,
		CurrentBlockSummary: block(tariff.PhaseRed, start, 3*time.Hour),
	}

	if got := d.Observe(snap, start.Add(time.Hour)); len(got) != 0 {
		t.Fatalf("expected nothing two hours out, got %+v", got)
	}
	got := d.Observe(snap, start.Add(2*time.Hour+40*time.Minute))
	if len(got) != 1 || got[0].Type != TransitionPhaseEndingSoon || got[0].MinutesRemaining != 20 {
		t.Fatalf("expected ending soon, got %+v", got)
	}
	if again := d.Observe(snap, start.Add(2*time.Hour+45*time.Minute)); len(again) != 0 {
		t.Fatalf("expected single warning per block, got %+v", again)
	}
}

func TestTransitionDetector_IgnoresErrorSnapshots(t *testing.T) {
	d := NewTransitionDetector(0)
	start := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	ok := &Snapshot{Outcome: OutcomeOK, CurrentBlockSummary: block(tariff.PhaseAmber, start, time.Hour)}
	d.Observe(ok, start)
	if got := d.Observe(&Snapshot{Outcome: OutcomeError}, start.Add(time.Minute)); got != nil {
		t.Fatalf("expected nil for error snapshot, got %+v", got)
	}
	next := &Snapshot{Outcome: OutcomeOK, CurrentBlockSummary: block(tariff.PhaseRed, start.Add(time.Hour), time.Hour)}
	got := d.Observe(next, start.Add(61*time.Minute))
	if len(got) == 0 || got[0].Type != TransitionPhaseChanged {
		t.Fatalf("expected phase change across error gap, got %+v", got)
	}
}

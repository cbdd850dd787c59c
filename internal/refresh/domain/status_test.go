package refresh

import (
	"errors"
	"testing"
	"time"
)

func TestPrimaryStatus_SeverityOrder(t *testing.T) {
	cases := []struct {
		raised []Flag
		want   Status
	}{
		{nil, StatusHealthy},
		{[]Flag{FlagMetadataFailed, FlagCurrentSynthesized}, StatusHealthy},
		{[]Flag{FlagPartial}, StatusPartial},
		{[]Flag{FlagPartial, FlagStale}, StatusStale},
		{[]Flag{FlagStale, FlagRateLimited}, StatusRateLimited},
		{[]Flag{FlagRateLimited, FlagUnexpectedFormat, FlagPartial}, StatusUnexpectedFormat},
		{[]Flag{FlagUnexpectedFormat, FlagNoData}, StatusNoData},
		{[]Flag{FlagNoData, FlagAPIError, FlagPartial}, StatusAPIError},
	}
	for _, tc := range cases {
		flags := NewFlags()
		for _, f := range tc.raised {
			flags.Raise(f)
		}
		if got := flags.PrimaryStatus(); got != tc.want {
			t.Fatalf("flags %v: got=%s want=%s", tc.raised, got, tc.want)
		}
	}
}

func TestNewFlags_ListsEveryFlag(t *testing.T) {
	flags := NewFlags()
	for _, f := range AllFlags() {
		raised, ok := flags[f]
		if !ok || raised {
			t.Fatalf("flag %s: present=%v raised=%v", f, ok, raised)
		}
	}
}

func TestErrorSnapshot_IsEmptyShell(t *testing.T) {
	flags := NewFlags()
	flags.Raise(FlagNoData)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := ErrorSnapshot("cycle-1", "E-1R-TEST-A", at, flags, errors.New("tariff: no usable intervals"), time.Second)

	if s.Outcome != OutcomeError || s.Status != StatusNoData {
		t.Fatalf("unexpected outcome/status %s/%s", s.Outcome, s.Status)
	}
	if s.CurrentPrice != nil || s.NextPrice != nil || s.CurrentBlockSummary != nil || s.CostSummaries.Today != nil {
		t.Fatalf("expected empty fields, got %+v", s)
	}
	if s.TimelineWindows.AllSorted == nil || len(s.TimelineWindows.AllSorted) != 0 {
		t.Fatalf("expected present empty windows")
	}
	if s.Error == "" {
		t.Fatalf("expected error text")
	}
}

func TestSnapshot_Degraded(t *testing.T) {
	price := 12.0
	good := &Snapshot{
		CycleID:         "cycle-1",
		CurrentPrice:    &price,
		Flags:           NewFlags(),
		Status:          StatusHealthy,
		Outcome:         OutcomeOK,
		LastRefreshedAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	failure := NewFlags()
	failure.Raise(FlagAPIError)

	at := good.LastRefreshedAt.Add(10 * time.Minute)
	d := good.Degraded("cycle-2", at, failure, errors.New("boom"), 2*time.Second)
	if d.Outcome != OutcomeDegraded || d.Status != StatusAPIError {
		t.Fatalf("unexpected outcome/status %s/%s", d.Outcome, d.Status)
	}
	if !d.Flags.Has(FlagDegraded) || good.Flags.Has(FlagDegraded) {
		t.Fatalf("degraded flag must not leak into the original")
	}
	if d.CurrentPrice == nil || *d.CurrentPrice != 12 {
		t.Fatalf("expected last known price")
	}
	if d.DataAgeSeconds == nil || *d.DataAgeSeconds != 600 {
		t.Fatalf("unexpected data age %v", d.DataAgeSeconds)
	}
	if d.LastRefreshedAt != good.LastRefreshedAt {
		t.Fatalf("last refreshed must keep the data time")
	}
}

package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tariffwatch/internal/audit"
	"tariffwatch/internal/auth"
	consumption "tariffwatch/internal/consumption/domain"
	refreshapp "tariffwatch/internal/refresh/application"
	refresh "tariffwatch/internal/refresh/domain"
	tariff "tariffwatch/internal/tariff/domain"
)

type staticSnapshots struct {
	snap *refresh.Snapshot
}

func (s staticSnapshots) Latest() *refresh.Snapshot {
	return s.snap
}

type stubTrigger struct {
	calls int
}

func (s *stubTrigger) Trigger() bool {
	s.calls++
	return s.calls == 1
}

func (s *stubTrigger) Info() refreshapp.ScheduleInfo {
	return refreshapp.ScheduleInfo{IntervalText: "5m0s"}
}

type stubDiagnostics []refreshapp.DiagnosticEntry

func (s stubDiagnostics) Entries() []refreshapp.DiagnosticEntry {
	return s
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func iv(offset time.Duration, price float64, phase tariff.Phase) tariff.Interval {
	start := day.Add(offset)
	return tariff.Interval{Start: start, End: start.Add(30 * time.Minute), Price: price, Phase: phase}
}

func sampleSnapshot() *refresh.Snapshot {
	today := []tariff.Interval{
		iv(15*time.Hour, 20, tariff.PhaseAmber),
		iv(15*time.Hour+30*time.Minute, 20, tariff.PhaseAmber),
		iv(16*time.Hour, 30, tariff.PhaseRed),
	}
	price := 30.0
	standing := 0.4
	withStanding := 0.6
	flags := refresh.NewFlags()
	return &refresh.Snapshot{
		CycleID:      "cycle-1",
		TariffCode:   "E-1R-TEST-A",
		CurrentPrice: &price,
		TimelineWindows: tariff.Windows{
			RollingForecast: today[2:],
			Today:           today,
			Tomorrow:        []tariff.Interval{},
			Yesterday:       []tariff.Interval{},
			AllSorted:       today,
		},
		CostSummaries: refresh.CostSummaries{
			Today: &consumption.PeriodCostSummary{
				PeriodStart:   day,
				PeriodEnd:     day.Add(16 * time.Hour),
				TotalQuantity: 1,
				TotalCost:     0.2,
				PerPhase: map[tariff.Phase]consumption.PhaseCost{
					tariff.PhaseAmber: {Quantity: 1, Cost: 0.2},
				},
				PerSlot: []consumption.SlotCost{
					{Start: today[0].Start, End: today[0].End, Quantity: 0.5, Price: 20, Cost: 0.1, Phase: tariff.PhaseAmber},
					{Start: today[1].Start, End: today[1].End, Quantity: 0.5, Price: 20, Cost: 0.1, Phase: tariff.PhaseAmber},
				},
				StandingChargeCost:         &standing,
				TotalCostIncludingStanding: &withStanding,
			},
		},
		Status:          refresh.StatusHealthy,
		Outcome:         refresh.OutcomeOK,
		Flags:           flags,
		LastRefreshedAt: day.Add(16*time.Hour + 10*time.Minute),
	}
}

func newTestHandler(t *testing.T, snap *refresh.Snapshot, opts ...HandlerOption) *Handler {
	t.Helper()
	h, err := NewHandler(staticSnapshots{snap: snap}, opts...)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func TestHandler_SnapshotNotReady(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tariff/snapshot", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got=%d want=503", rec.Code)
	}
}

func TestHandler_SnapshotShape(t *testing.T) {
	h := newTestHandler(t, sampleSnapshot())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tariff/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got=%d want=200", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{
		"current_price", "next_price", "current_interval", "current_block_summary",
		"next_block_summary", "timeline_windows", "cost_summaries", "status", "flags",
		"fetch_latency", "last_refreshed_at",
	} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing key %s", key)
		}
	}
	if string(body["next_price"]) != "null" {
		t.Fatalf("absent price must encode as null, got %s", body["next_price"])
	}
	var costs map[string]json.RawMessage
	if err := json.Unmarshal(body["cost_summaries"], &costs); err != nil {
		t.Fatalf("decode costs: %v", err)
	}
	if string(costs["yesterday"]) != "null" {
		t.Fatalf("missing period must encode as null, got %s", costs["yesterday"])
	}
}

func TestHandler_Blocks(t *testing.T) {
	h := newTestHandler(t, sampleSnapshot())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tariff/blocks?day=today", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got=%d want=200", rec.Code)
	}
	var resp blocksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Blocks) != 2 || resp.Blocks[0].Phase != tariff.PhaseAmber || resp.Blocks[0].IntervalCount != 2 {
		t.Fatalf("unexpected blocks %+v", resp.Blocks)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tariff/blocks?day=tomorrow", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Blocks == nil || len(resp.Blocks) != 0 {
		t.Fatalf("expected empty block list, got %+v", resp.Blocks)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tariff/blocks?day=someday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got=%d want=400", rec.Code)
	}
}

func TestHandler_Diagnostics(t *testing.T) {
	entries := stubDiagnostics{{CycleID: "cycle-1", Stage: "intervals", Message: "3 intervals"}}
	h := newTestHandler(t, sampleSnapshot(), WithDiagnostics(entries), WithTrigger(&stubTrigger{}), WithThresholds("green 23:00-06:00"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tariff/diagnostics", nil))
	var resp diagnosticsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CycleID != "cycle-1" || len(resp.Entries) != 1 || resp.Schedule == nil || resp.Thresholds == "" {
		t.Fatalf("unexpected diagnostics %+v", resp)
	}
}

func TestHandler_Refresh(t *testing.T) {
	trigger := &stubTrigger{}
	recorder := &recordingAudit{}
	h := newTestHandler(t, sampleSnapshot(), WithTrigger(trigger), WithAudit(recorder))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tariff/refresh", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.RoleOperator, "ops-1"))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"queued":true`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Actor != "ops-1" || recorder.entries[0].Role != "operator" {
		t.Fatalf("audit entries: got=%+v", recorder.entries)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tariff/refresh", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got=%d want=405", rec.Code)
	}

	rec = httptest.NewRecorder()
	newTestHandler(t, sampleSnapshot()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tariff/refresh", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got=%d want=503", rec.Code)
	}
}

func TestHandler_Export(t *testing.T) {
	h := newTestHandler(t, sampleSnapshot())
	cases := []struct {
		path        string
		status      int
		contentType string
		magic       []byte
	}{
		{"/api/v1/tariff/costs/today/export.xlsx", http.StatusOK, "spreadsheetml", []byte("PK")},
		{"/api/v1/tariff/costs/today/export.pdf", http.StatusOK, "application/pdf", []byte("%PDF")},
		{"/api/v1/tariff/costs/yesterday/export.pdf", http.StatusNotFound, "", nil},
		{"/api/v1/tariff/costs/today/export.csv", http.StatusNotFound, "", nil},
		{"/api/v1/tariff/costs/lastweek/export.pdf", http.StatusNotFound, "", nil},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: got=%d want=%d", tc.path, rec.Code, tc.status)
		}
		if tc.status != http.StatusOK {
			continue
		}
		if !strings.Contains(rec.Header().Get("Content-Type"), tc.contentType) {
			t.Fatalf("%s: content type %q", tc.path, rec.Header().Get("Content-Type"))
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), tc.magic) {
			t.Fatalf("%s: unexpected body prefix", tc.path)
		}
	}
}

func TestBuildCostXLSX_NilSummary(t *testing.T) {
	if _, err := BuildCostXLSX("E-1R-TEST-A", "today", nil); err == nil {
		t.Fatalf("expected error for nil summary")
	}
}

func TestStream_DeliversTransitions(t *testing.T) {
	broker := NewSSEBroker()
	server := httptest.NewServer(NewStreamHandler(broker))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		t.Helper()
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return strings.Join(lines, "\n")
			}
			lines = append(lines, line)
		}
	}

	if ready := readEvent(); !strings.HasPrefix(ready, "event: ready") {
		t.Fatalf("unexpected first event %q", ready)
	}
	err = broker.Notify(context.Background(), refresh.Transition{
		Type: refresh.TransitionPhaseChanged,
		From: tariff.PhaseAmber,
		To:   tariff.PhaseRed,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	event := readEvent()
	if !strings.HasPrefix(event, "event: transition") || !strings.Contains(event, `"type":"phase_changed"`) {
		t.Fatalf("unexpected event %q", event)
	}
}

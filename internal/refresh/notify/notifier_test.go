package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	refresh "tariffwatch/internal/refresh/domain"
	tariff "tariffwatch/internal/tariff/domain"
)

type recordingChannel struct {
	mu       sync.Mutex
	contents []string
}

func (r *recordingChannel) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.contents = append(r.contents, msg.Content)
	r.mu.Unlock()
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func redTransition() refresh.Transition {
	start := time.Date(2026, 1, 26, 16, 0, 0, 0, time.UTC)
	return refresh.Transition{
		Type:       refresh.TransitionPhaseChanged,
		TariffCode: "E-1R-TEST-A",
		CycleID:    "cycle-9",
		At:         start.Add(2 * time.Minute),
		From:       tariff.PhaseAmber,
		To:         tariff.PhaseRed,
		BlockStart: start,
		BlockEnd:   start.Add(3 * time.Hour),
	}
}

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), redTransition()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("expected msgtype text, got %s", payload.MsgType)
		}
		checks := []string{
			"[Tariff Phase Changed]",
			"Tariff: E-1R-TEST-A",
			"From: amber",
			"To: red",
			"Block: 2026-01-26 16:00 - 19:00",
			"At: 2026-01-26T16:02:00Z",
		}
		for _, expected := range checks {
			if !strings.Contains(payload.Text.Content, expected) {
				t.Fatalf("expected content to include %q, got %s", expected, payload.Text.Content)
			}
		}
		if strings.Contains(payload.Text.Content, "Ends In") {
			t.Fatalf("phase change must not carry a countdown: %s", payload.Text.Content)
		}
		block := payload.Tariff
		if block == nil {
			t.Fatalf("expected tariff block in payload")
		}
		if block.Code != "E-1R-TEST-A" || block.Event != string(refresh.TransitionPhaseChanged) || block.From != "amber" || block.To != "red" {
			t.Fatalf("unexpected tariff block %+v", block)
		}
		if block.BlockStart != "2026-01-26T16:00:00Z" || block.BlockEnd != "2026-01-26T19:00:00Z" {
			t.Fatalf("unexpected block window %s - %s", block.BlockStart, block.BlockEnd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookChannel_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{Content: "hello"}); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected http 502 error, got %v", err)
	}
	if _, err := NewWebhookChannel(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNotifierDedupeWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 16, 2, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithDedupeWindow(30*time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	tr := redTransition()
	_ = notifier.Notify(context.Background(), tr)
	clock.Add(5 * time.Minute)
	_ = notifier.Notify(context.Background(), tr)
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected 1 notification during dedupe window, got %d", got)
	}

	tr.At = tr.At.Add(5 * time.Minute)
	_ = notifier.Notify(context.Background(), tr)
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected notification when content changes, got %d", got)
	}

	clock.Add(31 * time.Minute)
	_ = notifier.Notify(context.Background(), tr)
	if got := channel.Count(); got != 3 {
		t.Fatalf("expected notification after window, got %d", got)
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, refresh.Transition) error {
	return errors.New("down")
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	channel := &recordingChannel{}
	ok, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	multi := NewMultiNotifier(failingNotifier{}, nil, ok)
	err = multi.Notify(context.Background(), redTransition())
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if channel.Count() != 1 {
		t.Fatalf("a failing notifier must not stop the others")
	}
}

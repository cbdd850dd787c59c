package kraken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchUnitRates_FollowsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/electricity-tariffs/E-1R-TEST-A/standard-unit-rates/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "":
			fmt.Fprintf(w, `{"count":3,"next":"%s%s?page=2","results":[
				{"value_exc_vat":9.5,"value_inc_vat":10,"valid_from":"2025-03-10T00:30:00Z","valid_to":"2025-03-10T01:00:00Z"},
				{"value_exc_vat":9.5,"value_inc_vat":10,"valid_from":"2025-03-10T00:00:00Z","valid_to":"2025-03-10T00:30:00Z"}]}`,
				server.URL, r.URL.Path)
		case "2":
			fmt.Fprint(w, `{"count":3,"next":null,"results":[
				{"value_exc_vat":19,"value_inc_vat":20,"valid_from":"2025-03-10T01:00:00Z","valid_to":"2025-03-10T01:30:00Z"}]}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "DYNAMIC_12M_HH", "E-1R-TEST-A", WithRetry(1, 0))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	items, err := client.FetchUnitRates(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[2].Price == nil || *items[2].Price != 20 {
		t.Fatalf("unexpected last item %+v", items[2])
	}
	if items[0].Start != "2025-03-10T00:30:00Z" {
		t.Fatalf("expected source order preserved, got %s", items[0].Start)
	}
}

func TestFetchUnitRates_StopsAtMaxPages(t *testing.T) {
	var calls int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `{"next":"%s%s?page=%d","results":[]}`, server.URL, r.URL.Path, n+1)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "P", "T", WithMaxPages(2), WithRetry(1, 0))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.FetchUnitRates(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 page requests, got %d", got)
	}
}

func TestFetchUnitRates_RateLimitedIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "P", "T", WithRetry(3, 0))
	_, err := client.FetchUnitRates(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single attempt, got %d", got)
	}
}

func TestFetchUnitRates_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"next":null,"results":[{"value_inc_vat":12,"valid_from":"2025-03-10T00:00:00Z","valid_to":"2025-03-10T00:30:00Z"}]}`)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "P", "T", WithRetry(3, time.Millisecond))
	items, err := client.FetchUnitRates(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("unexpected result items=%d calls=%d", len(items), calls)
	}
}

func TestFetchUnitRates_MissingResultsIsUnexpected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"detail":"nope"}`)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "P", "T", WithRetry(1, 0))
	if _, err := client.FetchUnitRates(context.Background()); !errors.Is(err, ErrUnexpectedPayload) {
		t.Fatalf("expected ErrUnexpectedPayload, got %v", err)
	}
}

func TestFetchProduct_CleansDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/products/DYN/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"code":"DYN","full_name":"Dynamic 12M","display_name":"Dynamic",
			"description":"<ul><li>Half-hourly prices</li><li>Green &amp; cheap overnight</li></ul>",
			"is_variable":true,"is_green":true,"term":12,"available_from":"2024-01-01T00:00:00Z","available_to":null}`)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "DYN", "T", WithRetry(1, 0))
	product, err := client.FetchProduct(context.Background())
	if err != nil {
		t.Fatalf("fetch product: %v", err)
	}
	if product.TermMonths != 12 || !product.IsVariable || product.AvailableTo != nil || product.AvailableFrom == nil {
		t.Fatalf("unexpected product %+v", product)
	}
	want := "• Half-hourly prices\n• Green & cheap overnight"
	if product.Description != want {
		t.Fatalf("description: got=%q want=%q", product.Description, want)
	}
}

func TestFetchStandingCharge_PicksActive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/standing-charges/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"results":[
			{"value_exc_vat":50,"value_inc_vat":52.5,"valid_from":"2025-04-01T00:00:00Z","valid_to":""},
			{"value_exc_vat":45,"value_inc_vat":47.25,"valid_from":"2024-10-01T00:00:00Z","valid_to":"2025-04-01T00:00:00Z"}]}`)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "P", "T", WithRetry(1, 0))
	charge, err := client.FetchStandingCharge(context.Background(), time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("fetch standing charge: %v", err)
	}
	if charge.IncVATPencePerDay != 47.25 || charge.PoundsPerDay() != 0.4725 {
		t.Fatalf("unexpected charge %+v", charge)
	}
}

func TestFetchProduct_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "P", "T", WithRetry(1, 0))
	if _, err := client.FetchProduct(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

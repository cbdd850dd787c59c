package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tariff "tariffwatch/internal/tariff/domain"
)

const pageSize = 100

type fakeTariffServer struct {
	baseURL       string
	productCode   string
	latency       time.Duration
	failRate      float64
	rateLimitRate float64
	location      *time.Location
	classifier    *tariff.Classifier

	mu       sync.Mutex
	byPath   map[string]int64
	byStatus map[int]int64
}

type rateRecord struct {
	ValueExcVAT float64 `json:"value_exc_vat"`
	ValueIncVAT float64 `json:"value_inc_vat"`
	ValidFrom   string  `json:"valid_from"`
	ValidTo     string  `json:"valid_to"`
}

func main() {
	addr := getenvDefault("FAKE_TARIFF_ADDR", ":18090")
	latencyMs := getenvIntDefault("FAKE_TARIFF_LATENCY_MS", 0)
	location, err := time.LoadLocation(getenvDefault("FAKE_TARIFF_TIMEZONE", "Europe/London"))
	if err != nil {
		log.Fatalf("load timezone: %v", err)
	}
	classifier, err := tariff.NewClassifier(tariff.DefaultWindows(), location)
	if err != nil {
		log.Fatalf("classifier: %v", err)
	}

	srv := &fakeTariffServer{
		baseURL:       strings.TrimRight(getenvDefault("FAKE_TARIFF_BASE_URL", "http://localhost"+addr), "/"),
		productCode:   getenvDefault("FAKE_TARIFF_PRODUCT", "EDF_FREEPHASE_DYNAMIC_12M_HH"),
		latency:       time.Duration(latencyMs) * time.Millisecond,
		failRate:      getenvFloatDefault("FAKE_TARIFF_FAIL_RATE", 0),
		rateLimitRate: getenvFloatDefault("FAKE_TARIFF_RATE_LIMIT_RATE", 0),
		location:      location,
		classifier:    classifier,
		byPath:        make(map[string]int64),
		byStatus:      make(map[int]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/metrics", srv.handleMetrics)
	mux.HandleFunc("/v1/products/", srv.handleProducts)

	log.Printf("fake tariff server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeTariffServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeTariffServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := make(map[string]int64, len(s.byStatus))
	for code, count := range s.byStatus {
		byStatus[strconv.Itoa(code)] = count
	}
	writeJSON(w, map[string]any{
		"by_path":   s.byPath,
		"by_status": byStatus,
	})
}

// handleProducts serves /v1/products/{product}/ and the
// electricity-tariffs/{tariff}/{standard-unit-rates|standing-charges}/ children.
func (s *fakeTariffServer) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.fail(w, r, http.StatusMethodNotAllowed)
		return
	}
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.rateLimitRate > 0 && rand.Float64() < s.rateLimitRate {
		s.fail(w, r, http.StatusTooManyRequests)
		return
	}
	if s.failRate > 0 && rand.Float64() < s.failRate {
		s.fail(w, r, http.StatusInternalServerError)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/products/"), "/"), "/")
	if len(parts) == 0 || parts[0] != s.productCode {
		s.fail(w, r, http.StatusNotFound)
		return
	}
	switch {
	case len(parts) == 1:
		s.record(r.URL.Path, http.StatusOK)
		writeJSON(w, s.product())
	case len(parts) == 4 && parts[1] == "electricity-tariffs" && parts[3] == "standard-unit-rates":
		s.handleUnitRates(w, r, parts[2])
	case len(parts) == 4 && parts[1] == "electricity-tariffs" && parts[3] == "standing-charges":
		s.record(r.URL.Path, http.StatusOK)
		writeJSON(w, map[string]any{
			"count": 1,
			"next":  nil,
			"results": []rateRecord{{
				ValueExcVAT: 45.6,
				ValueIncVAT: 47.88,
				ValidFrom:   time.Now().UTC().AddDate(0, -1, 0).Truncate(24 * time.Hour).Format(time.RFC3339),
			}},
		})
	default:
		s.fail(w, r, http.StatusNotFound)
	}
}

func (s *fakeTariffServer) handleUnitRates(w http.ResponseWriter, r *http.Request, tariffCode string) {
	page := 1
	if value := r.URL.Query().Get("page"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 {
			s.fail(w, r, http.StatusBadRequest)
			return
		}
		page = parsed
	}

	records := s.unitRates(time.Now())
	from := (page - 1) * pageSize
	if from >= len(records) {
		s.fail(w, r, http.StatusNotFound)
		return
	}
	to := from + pageSize
	if to > len(records) {
		to = len(records)
	}
	var next any
	if to < len(records) {
		next = fmt.Sprintf("%s/v1/products/%s/electricity-tariffs/%s/standard-unit-rates/?page=%d",
			s.baseURL, s.productCode, tariffCode, page+1)
	}
	s.record(r.URL.Path, http.StatusOK)
	writeJSON(w, map[string]any{
		"count":   len(records),
		"next":    next,
		"results": records[from:to],
	})
}

// unitRates publishes half-hours from yesterday's local midnight through the
// end of tomorrow, newest first. Prices follow the default clock windows with
// a small deterministic wobble.
func (s *fakeTariffServer) unitRates(now time.Time) []rateRecord {
	local := now.In(s.location)
	start := time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, s.location)
	end := time.Date(local.Year(), local.Month(), local.Day()+2, 0, 0, 0, 0, s.location)

	var out []rateRecord
	for slot := start; slot.Before(end); slot = slot.Add(30 * time.Minute) {
		inc := basePrice(s.classifier.Classify(slot, 1)) + float64(slot.Unix()/1800%5)*0.37
		out = append(out, rateRecord{
			ValueExcVAT: inc / 1.05,
			ValueIncVAT: inc,
			ValidFrom:   slot.UTC().Format(time.RFC3339),
			ValidTo:     slot.Add(30 * time.Minute).UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom > out[j].ValidFrom })
	return out
}

func basePrice(phase tariff.Phase) float64 {
	switch phase {
	case tariff.PhaseGreen:
		return 14.2
	case tariff.PhaseRed:
		return 38.5
	default:
		return 24.1
	}
}

func (s *fakeTariffServer) product() map[string]any {
	return map[string]any{
		"code":              s.productCode,
		"full_name":         "EDF FreePhase Dynamic 12 Months HH",
		"display_name":      "FreePhase Dynamic",
		"description":       "<p>Prices change by time of day.</p>\r\n<p>Green, amber and red phases.</p>",
		"is_variable":       true,
		"is_green":          true,
		"is_tracker":        false,
		"is_prepay":         false,
		"is_business":       false,
		"is_restricted":     false,
		"term":              12,
		"available_from":    "2024-06-01T00:00:00Z",
		"available_to":      nil,
		"tariffs_active_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *fakeTariffServer) fail(w http.ResponseWriter, r *http.Request, status int) {
	s.record(r.URL.Path, status)
	http.Error(w, http.StatusText(status), status)
}

func (s *fakeTariffServer) record(path string, status int) {
	s.mu.Lock()
	s.byPath[path]++
	s.byStatus[status]++
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

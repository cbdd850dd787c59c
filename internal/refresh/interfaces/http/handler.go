package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"tariffwatch/internal/audit"
	"tariffwatch/internal/auth"
	consumption "tariffwatch/internal/consumption/domain"
	"tariffwatch/internal/observability/metrics"
	refreshapp "tariffwatch/internal/refresh/application"
	refresh "tariffwatch/internal/refresh/domain"
	tariff "tariffwatch/internal/tariff/domain"
)

const routePrefix = "/api/v1/tariff/"

var errNoSummary = errors.New("tariff handler: no cost summary")

// SnapshotReader returns the latest published snapshot.
type SnapshotReader interface {
	Latest() *refresh.Snapshot
}

// DiagnosticsReader returns recent pipeline notes.
type DiagnosticsReader interface {
	Entries() []refreshapp.DiagnosticEntry
}

// RefreshTrigger queues forced refreshes and reports timing.
type RefreshTrigger interface {
	Trigger() bool
	Info() refreshapp.ScheduleInfo
}

// Handler serves the tariff read API.
type Handler struct {
	snapshots   SnapshotReader
	diagnostics DiagnosticsReader
	trigger     RefreshTrigger
	thresholds  string
	auditLogger audit.Logger
	logger      *log.Logger
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithDiagnostics exposes pipeline notes.
func WithDiagnostics(reader DiagnosticsReader) HandlerOption {
	return func(h *Handler) {
		h.diagnostics = reader
	}
}

// WithTrigger enables forced refreshes.
func WithTrigger(trigger RefreshTrigger) HandlerOption {
	return func(h *Handler) {
		h.trigger = trigger
	}
}

// WithThresholds sets the classification description shown in diagnostics.
func WithThresholds(text string) HandlerOption {
	return func(h *Handler) {
		h.thresholds = text
	}
}

// WithAudit records forced refreshes.
func WithAudit(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.auditLogger = logger
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler constructs a Handler.
func NewHandler(snapshots SnapshotReader, opts ...HandlerOption) (*Handler, error) {
	if snapshots == nil {
		return nil, errors.New("tariff handler: nil snapshot reader")
	}
	h := &Handler{snapshots: snapshots}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP routes tariff requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, routePrefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, routePrefix), "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "snapshot" && r.Method == http.MethodGet:
		h.handleSnapshot(w)
	case len(parts) == 1 && parts[0] == "blocks" && r.Method == http.MethodGet:
		h.handleBlocks(w, r)
	case len(parts) == 1 && parts[0] == "diagnostics" && r.Method == http.MethodGet:
		h.handleDiagnostics(w)
	case len(parts) == 1 && parts[0] == "refresh" && r.Method == http.MethodPost:
		h.handleRefresh(w, r)
	case len(parts) == 3 && parts[0] == "costs" && r.Method == http.MethodGet:
		h.handleExport(w, parts[1], parts[2])
	case knownRoute(parts[0]):
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func knownRoute(name string) bool {
	switch name {
	case "snapshot", "blocks", "diagnostics", "refresh", "costs":
		return true
	}
	return false
}

func (h *Handler) latest(w http.ResponseWriter) (*refresh.Snapshot, bool) {
	snap := h.snapshots.Latest()
	if snap == nil {
		http.Error(w, "snapshot not ready", http.StatusServiceUnavailable)
		return nil, false
	}
	return snap, true
}

func (h *Handler) handleSnapshot(w http.ResponseWriter) {
	snap, ok := h.latest(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type blocksResponse struct {
	Day    string                 `json:"day"`
	Blocks []*tariff.BlockSummary `json:"blocks"`
}

func (h *Handler) handleBlocks(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.latest(w)
	if !ok {
		return
	}
	day := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("day")))
	if day == "" {
		day = "today"
	}
	var intervals []tariff.Interval
	switch day {
	case "today":
		intervals = snap.TimelineWindows.Today
	case "tomorrow":
		intervals = snap.TimelineWindows.Tomorrow
	case "yesterday":
		intervals = snap.TimelineWindows.Yesterday
	case "next":
		intervals = snap.TimelineWindows.RollingForecast
	default:
		http.Error(w, "invalid day", http.StatusBadRequest)
		return
	}
	index := tariff.BuildBlockIndex(intervals)
	resp := blocksResponse{Day: day, Blocks: []*tariff.BlockSummary{}}
	for _, block := range index.Blocks() {
		resp.Blocks = append(resp.Blocks, block.Summary())
	}
	writeJSON(w, http.StatusOK, resp)
}

type diagnosticsResponse struct {
	CycleID         string                       `json:"cycle_id,omitempty"`
	Status          refresh.Status               `json:"status,omitempty"`
	Outcome         refresh.Outcome              `json:"outcome,omitempty"`
	Flags           refresh.Flags                `json:"flags,omitempty"`
	LastRefreshedAt *time.Time                   `json:"last_refreshed_at,omitempty"`
	Thresholds      string                       `json:"thresholds,omitempty"`
	Schedule        *refreshapp.ScheduleInfo     `json:"schedule,omitempty"`
	Entries         []refreshapp.DiagnosticEntry `json:"entries"`
}

func (h *Handler) handleDiagnostics(w http.ResponseWriter) {
	resp := diagnosticsResponse{Thresholds: h.thresholds, Entries: []refreshapp.DiagnosticEntry{}}
	if snap := h.snapshots.Latest(); snap != nil {
		resp.CycleID = snap.CycleID
		resp.Status = snap.Status
		resp.Outcome = snap.Outcome
		resp.Flags = snap.Flags
		at := snap.LastRefreshedAt
		resp.LastRefreshedAt = &at
	}
	if h.trigger != nil {
		info := h.trigger.Info()
		resp.Schedule = &info
	}
	if h.diagnostics != nil {
		if entries := h.diagnostics.Entries(); entries != nil {
			resp.Entries = entries
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		http.Error(w, "refresh not available", http.StatusServiceUnavailable)
		return
	}
	queued := h.trigger.Trigger()
	h.logf("tariff refresh requested: queued=%v", queued)
	meta, _ := json.Marshal(map[string]bool{"queued": queued})
	logAudit(r, h.auditLogger, h.logger, audit.Entry{
		Action:       "tariff.refresh",
		ResourceType: "refresh",
		Metadata:     meta,
	})
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

func (h *Handler) handleExport(w http.ResponseWriter, period, file string) {
	started := time.Now()
	format := strings.TrimPrefix(file, "export.")
	if format == file || (format != "xlsx" && format != "pdf") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	snap, ok := h.latest(w)
	if !ok {
		return
	}
	var summary *consumption.PeriodCostSummary
	switch period {
	case "today":
		summary = snap.CostSummaries.Today
	case "yesterday":
		summary = snap.CostSummaries.Yesterday
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if summary == nil {
		http.Error(w, "no cost data", http.StatusNotFound)
		return
	}

	var (
		body        []byte
		err         error
		contentType string
	)
	if format == "xlsx" {
		body, err = BuildCostXLSX(snap.TariffCode, period, summary)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else {
		body, err = BuildCostPDF(snap.TariffCode, period, summary)
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.ObserveCostExport(format, metrics.ResultError, time.Since(started))
		h.logf("tariff export error: period=%s format=%s err=%v", period, format, err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveCostExport(format, metrics.ResultSuccess, time.Since(started))

	name := "cost-" + period + "-" + summary.PeriodStart.Format("2006-01-02") + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func logAudit(r *http.Request, auditLogger audit.Logger, logger *log.Logger, entry audit.Entry) {
	if auditLogger == nil {
		return
	}
	entry = audit.FromRequest(r, entry)
	entry.Actor = auth.SubjectFromContext(r.Context())
	entry.Role = string(auth.RoleFromContext(r.Context()))
	if err := auditLogger.Log(r.Context(), entry); err != nil && logger != nil {
		logger.Printf("audit log failed: action=%s err=%v", entry.Action, err)
	}
}

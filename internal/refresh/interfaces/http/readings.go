package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tariffwatch/internal/audit"
	consumption "tariffwatch/internal/consumption/domain"
)

const maxReadingsBody = 1 << 20

// ReadingsHandler accepts cumulative meter samples.
type ReadingsHandler struct {
	repo         consumption.ReadingRepository
	defaultMeter string
	auditLogger  audit.Logger
	logger       *log.Logger
}

// NewReadingsHandler constructs a readings handler. Requests that omit a
// meter id are stored under defaultMeter. auditLogger may be nil.
func NewReadingsHandler(repo consumption.ReadingRepository, defaultMeter string, auditLogger audit.Logger, logger *log.Logger) (*ReadingsHandler, error) {
	if repo == nil {
		return nil, errors.New("readings handler: nil repository")
	}
	return &ReadingsHandler{repo: repo, defaultMeter: defaultMeter, auditLogger: auditLogger, logger: logger}, nil
}

type readingsRequest struct {
	MeterID  string                   `json:"meter_id"`
	Readings []consumption.RawReading `json:"readings"`
}

// ServeHTTP handles POST /api/v1/tariff/readings.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req readingsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReadingsBody)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	meterID := req.MeterID
	if meterID == "" {
		meterID = h.defaultMeter
	}
	if meterID == "" {
		http.Error(w, "meter_id required", http.StatusBadRequest)
		return
	}
	if len(req.Readings) == 0 {
		http.Error(w, "readings required", http.StatusBadRequest)
		return
	}
	readings, err := consumption.ParseReadings(req.Readings)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.Append(r.Context(), meterID, readings); err != nil {
		if h.logger != nil {
			h.logger.Printf("readings append failed: meter=%s err=%v", meterID, err)
		}
		http.Error(w, "store failed", http.StatusInternalServerError)
		return
	}
	meta, _ := json.Marshal(map[string]any{"count": len(readings)})
	logAudit(r, h.auditLogger, h.logger, audit.Entry{
		Action:       "readings.append",
		ResourceType: "meter",
		ResourceID:   meterID,
		Metadata:     meta,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"meter_id": meterID, "accepted": len(readings)})
}

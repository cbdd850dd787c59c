package refresh

import (
	"time"

	consumption "tariffwatch/internal/consumption/domain"
	tariff "tariffwatch/internal/tariff/domain"
)

// CostSummaries holds the per-period cost results. A nil entry means no
// usable consumption data for that period.
type CostSummaries struct {
	Yesterday *consumption.PeriodCostSummary `json:"yesterday"`
	Today     *consumption.PeriodCostSummary `json:"today"`
}

// Snapshot is the immutable result of one refresh cycle.
type Snapshot struct {
	CycleID    string `json:"cycle_id"`
	TariffCode string `json:"tariff_code"`

	CurrentPrice        *float64             `json:"current_price"`
	NextPrice           *float64             `json:"next_price"`
	CurrentInterval     *tariff.Interval     `json:"current_interval"`
	NextInterval        *tariff.Interval     `json:"next_interval"`
	CurrentBlockSummary *tariff.BlockSummary `json:"current_block_summary"`
	NextBlockSummary    *tariff.BlockSummary `json:"next_block_summary"`
	NextGreenBlock      *tariff.BlockSummary `json:"next_green_block"`

	TimelineWindows tariff.Windows   `json:"timeline_windows"`
	CostSummaries   CostSummaries    `json:"cost_summaries"`
	Metadata        *tariff.Metadata `json:"metadata,omitempty"`

	Status  Status  `json:"status"`
	Outcome Outcome `json:"outcome"`
	Flags   Flags   `json:"flags"`
	Error   string  `json:"error,omitempty"`

	FetchLatencySeconds float64   `json:"fetch_latency"`
	LastRefreshedAt     time.Time `json:"last_refreshed_at"`
	DataAgeSeconds      *float64  `json:"data_age_seconds,omitempty"`
}

// EmptyWindows returns windows with every view present and empty.
func EmptyWindows() tariff.Windows {
	return tariff.Windows{
		RollingForecast: []tariff.Interval{},
		Today:           []tariff.Interval{},
		Tomorrow:        []tariff.Interval{},
		Yesterday:       []tariff.Interval{},
		AllSorted:       []tariff.Interval{},
	}
}

// ErrorSnapshot is the shape-stable result of a failed cycle: every price,
// summary and window is empty. Outcome is always "error"; Status names the
// most severe raised flag (for example "api_error" or "rate_limited").
func ErrorSnapshot(cycleID, tariffCode string, at time.Time, flags Flags, cause error, latency time.Duration) *Snapshot {
	s := &Snapshot{
		CycleID:             cycleID,
		TariffCode:          tariffCode,
		TimelineWindows:     EmptyWindows(),
		Status:              flags.PrimaryStatus(),
		Outcome:             OutcomeError,
		Flags:               flags,
		FetchLatencySeconds: latency.Seconds(),
		LastRefreshedAt:     at,
	}
	if cause != nil {
		s.Error = cause.Error()
	}
	return s
}

// Degraded re-publishes s as a last-known-good fallback. The copy carries
// the new cycle's failure flags on top of its own.
func (s *Snapshot) Degraded(cycleID string, at time.Time, failure Flags, cause error, latency time.Duration) *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.CycleID = cycleID
	out.Flags = s.Flags.Clone()
	out.Flags.Merge(failure)
	out.Flags.Raise(FlagDegraded)
	out.Status = out.Flags.PrimaryStatus()
	out.Outcome = OutcomeDegraded
	out.FetchLatencySeconds = latency.Seconds()
	out.Error = ""
	if cause != nil {
		out.Error = cause.Error()
	}
	age := at.Sub(s.LastRefreshedAt).Seconds()
	out.DataAgeSeconds = &age
	return &out
}

// OK reports whether the snapshot carries fresh data.
func (s *Snapshot) OK() bool {
	return s != nil && s.Outcome == OutcomeOK
}

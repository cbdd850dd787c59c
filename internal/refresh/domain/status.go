package refresh

// Status is the single headline state surfaced for a refresh.
type Status string

const (
	StatusAPIError         Status = "api_error"
	StatusNoData           Status = "no_data"
	StatusUnexpectedFormat Status = "unexpected_format"
	StatusRateLimited      Status = "rate_limited"
	StatusStale            Status = "stale"
	StatusPartial          Status = "partial"
	StatusHealthy          Status = "healthy"
)

// SeverityOrder lists statuses most severe first.
func SeverityOrder() []Status {
	return []Status{
		StatusAPIError,
		StatusNoData,
		StatusUnexpectedFormat,
		StatusRateLimited,
		StatusStale,
		StatusPartial,
		StatusHealthy,
	}
}

// Flag names one condition raised during a refresh.
type Flag string

const (
	FlagAPIError         Flag = "api_error"
	FlagNoData           Flag = "no_data"
	FlagUnexpectedFormat Flag = "unexpected_format"
	FlagRateLimited      Flag = "rate_limited"
	FlagStale            Flag = "stale"
	FlagPartial          Flag = "partial"

	FlagMetadataFailed      Flag = "metadata_failed"
	FlagCostYesterdayFailed Flag = "cost_yesterday_failed"
	FlagCostTodayFailed     Flag = "cost_today_failed"
	FlagHistoryMissing      Flag = "history_missing"
	FlagNoDeltas            Flag = "no_deltas"
	FlagCurrentSynthesized  Flag = "current_synthesized"
	FlagDegraded            Flag = "degraded"
)

// AllFlags lists every flag a snapshot reports.
func AllFlags() []Flag {
	return []Flag{
		FlagAPIError,
		FlagNoData,
		FlagUnexpectedFormat,
		FlagRateLimited,
		FlagStale,
		FlagPartial,
		FlagMetadataFailed,
		FlagCostYesterdayFailed,
		FlagCostTodayFailed,
		FlagHistoryMissing,
		FlagNoDeltas,
		FlagCurrentSynthesized,
		FlagDegraded,
	}
}

// Flags records every condition, raised or not.
type Flags map[Flag]bool

// NewFlags returns a set with every known flag cleared.
func NewFlags() Flags {
	f := make(Flags, len(AllFlags()))
	for _, name := range AllFlags() {
		f[name] = false
	}
	return f
}

// Raise sets a flag.
func (f Flags) Raise(name Flag) {
	f[name] = true
}

// Has reports whether a flag is raised.
func (f Flags) Has(name Flag) bool {
	return f[name]
}

// Merge raises every flag raised in other.
func (f Flags) Merge(other Flags) {
	for name, raised := range other {
		if raised {
			f[name] = true
		}
	}
}

// Clone copies the set.
func (f Flags) Clone() Flags {
	out := make(Flags, len(f))
	for name, raised := range f {
		out[name] = raised
	}
	return out
}

// PrimaryStatus picks the most severe raised condition.
func (f Flags) PrimaryStatus() Status {
	for _, status := range SeverityOrder() {
		if status == StatusHealthy {
			break
		}
		if f[Flag(status)] {
			return status
		}
	}
	return StatusHealthy
}

// Outcome tells consumers whether the snapshot is fresh, a re-published
// last-known-good, or an error shell.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeDegraded Outcome = "degraded"
	OutcomeError    Outcome = "error"
)

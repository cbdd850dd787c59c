package consumption

import (
	"time"

	"github.com/shopspring/decimal"

	tariff "tariffwatch/internal/tariff/domain"
)

// PriceUnitDivisor converts interval prices (pence per kWh) into the major
// currency used for every cost figure (pounds). Proration and summaries
// both divide by it.
const PriceUnitDivisor = 100.0

// presentationPlaces is the rounding applied to published summaries.
const presentationPlaces = 4

// SlotCost is the consumption and cost attributed to one interval.
type SlotCost struct {
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Quantity float64      `json:"quantity"`
	Price    float64      `json:"price"`
	Cost     float64      `json:"cost"`
	Phase    tariff.Phase `json:"phase,omitempty"`
}

// Prorate spreads every delta over the intervals it overlaps, weighted by
// overlap duration. Intervals that receive nothing are left out.
func Prorate(intervals []tariff.Interval, deltas []Delta) []SlotCost {
	out := []SlotCost{}
	for _, iv := range intervals {
		if iv.Duration() <= 0 {
			continue
		}
		var quantity float64
		for _, d := range deltas {
			span := d.Duration()
			if span <= 0 {
				continue
			}
			overlap := earlierOf(iv.End, d.End).Sub(laterOf(iv.Start, d.Start))
			if overlap <= 0 {
				continue
			}
			quantity += d.Quantity * (overlap.Seconds() / span.Seconds())
		}
		if quantity <= 0 {
			continue
		}
		out = append(out, SlotCost{
			Start:    iv.Start,
			End:      iv.End,
			Quantity: quantity,
			Price:    iv.Price,
			Cost:     quantity * (iv.Price / PriceUnitDivisor),
			Phase:    iv.Phase,
		})
	}
	return out
}

// PhaseCost is the per-phase aggregate inside a summary.
type PhaseCost struct {
	Quantity float64 `json:"quantity"`
	Cost     float64 `json:"cost"`
}

// PeriodCostSummary aggregates slot costs for one period.
type PeriodCostSummary struct {
	PeriodStart   time.Time                  `json:"period_start"`
	PeriodEnd     time.Time                  `json:"period_end"`
	TotalQuantity float64                    `json:"total_quantity"`
	TotalCost     float64                    `json:"total_cost"`
	PerPhase      map[tariff.Phase]PhaseCost `json:"per_phase"`
	PerSlot       []SlotCost                 `json:"per_slot"`

	StandingChargeCost         *float64 `json:"standing_charge_cost,omitempty"`
	TotalCostIncludingStanding *float64 `json:"total_cost_including_standing,omitempty"`
}

// SummaryOption adjusts Summarize.
type SummaryOption func(*summaryOptions)

type summaryOptions struct {
	standingPence *float64
}

// WithStandingCharge adds one day's standing charge, given in the same
// minor unit as interval prices.
func WithStandingCharge(pencePerDay float64) SummaryOption {
	return func(o *summaryOptions) {
		o.standingPence = &pencePerDay
	}
}

// Summarize totals slot costs. It returns nil for no slots so that "no
// usable data" stays distinct from "used nothing". Rounding happens here
// and nowhere earlier.
func Summarize(slots []SlotCost, from, to time.Time, opts ...SummaryOption) *PeriodCostSummary {
	if len(slots) == 0 {
		return nil
	}
	var o summaryOptions
	for _, opt := range opts {
		opt(&o)
	}

	var totalQuantity, totalCost float64
	phases := make(map[tariff.Phase]PhaseCost)
	perSlot := make([]SlotCost, 0, len(slots))
	for _, s := range slots {
		totalQuantity += s.Quantity
		totalCost += s.Cost

		phase := s.Phase
		if phase == "" {
			phase = tariff.PhaseUnknown
		} else if normalized, ok := tariff.ParsePhase(string(phase)); ok {
			phase = normalized
		}
		bucket := phases[phase]
		bucket.Quantity += s.Quantity
		bucket.Cost += s.Cost
		phases[phase] = bucket

		s.Phase = phase
		s.Quantity = round(s.Quantity)
		s.Cost = round(s.Cost)
		perSlot = append(perSlot, s)
	}

	perPhase := make(map[tariff.Phase]PhaseCost, len(phases))
	for phase, bucket := range phases {
		perPhase[phase] = PhaseCost{Quantity: round(bucket.Quantity), Cost: round(bucket.Cost)}
	}

	summary := &PeriodCostSummary{
		PeriodStart:   from,
		PeriodEnd:     to,
		TotalQuantity: round(totalQuantity),
		TotalCost:     round(totalCost),
		PerPhase:      perPhase,
		PerSlot:       perSlot,
	}
	if o.standingPence != nil {
		standing := *o.standingPence / PriceUnitDivisor
		withStanding := round(totalCost + standing)
		standing = round(standing)
		summary.StandingChargeCost = &standing
		summary.TotalCostIncludingStanding = &withStanding
	}
	return summary
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(presentationPlaces).InexactFloat64()
}

// PeriodResult carries a summary with the counts behind it, so callers can
// tell missing history from missing consumption.
type PeriodResult struct {
	Summary  *PeriodCostSummary
	Readings int
	Deltas   int
	Slots    int
}

// ComputePeriod runs delta extraction, proration and summary for one
// period. Intervals are expected to be clipped to [from, to] already. A pair
// that straddles from keeps its whole quantity on the clipped span.
func ComputePeriod(intervals []tariff.Interval, readings []MeterReading, from, to time.Time, opts ...SummaryOption) PeriodResult {
	deltas := ExtractDeltas(readings, from, to)
	slots := Prorate(intervals, deltas)
	return PeriodResult{
		Summary:  Summarize(slots, from, to, opts...),
		Readings: len(readings),
		Deltas:   len(deltas),
		Slots:    len(slots),
	}
}

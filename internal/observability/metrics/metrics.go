package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "tariff_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	refreshTotal   *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec
	refreshFlags   *prometheus.CounterVec

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	currentPrice *prometheus.GaugeVec
	periodCost   *prometheus.GaugeVec
	dataAge      prometheus.Gauge

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	transitionsTotal *prometheus.CounterVec
)

// Init registers refresh metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		refreshTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_total",
				Help: "Total refresh cycles by status and outcome",
			},
			[]string{"status", "outcome"},
		)
		refreshLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "refresh_latency_seconds",
				Help:    "Refresh cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)
		refreshFlags = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "refresh_flags_total",
				Help: "Total raised refresh flags by name",
			},
			[]string{"flag"},
		)

		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fetch_total",
				Help: "Total tariff source fetches by resource and result",
			},
			[]string{"resource", "result"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "fetch_latency_seconds",
				Help:    "Tariff source fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource", "result"},
		)

		currentPrice = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "current_price",
				Help: "Unit price of the current interval",
			},
			[]string{"phase"},
		)
		periodCost = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "period_cost",
				Help: "Prorated consumption cost by period",
			},
			[]string{"period"},
		)
		dataAge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "data_age_seconds",
				Help: "Age of the published snapshot data in seconds",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cost_export_total",
				Help: "Total cost export operations by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cost_export_latency_seconds",
				Help:    "Cost export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		transitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transitions_total",
				Help: "Total detected phase transitions by type",
			},
			[]string{"type"},
		)

		prometheus.MustRegister(
			refreshTotal,
			refreshLatency,
			refreshFlags,
			fetchTotal,
			fetchLatency,
			currentPrice,
			periodCost,
			dataAge,
			exportTotal,
			exportLatency,
			transitionsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveRefresh records one refresh cycle.
func ObserveRefresh(status, outcome string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if refreshTotal != nil {
		refreshTotal.WithLabelValues(status, outcome).Inc()
	}
	if refreshLatency != nil {
		refreshLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// IncRefreshFlag increments the raised flag counter.
func IncRefreshFlag(flag string) {
	if flag == "" {
		return
	}
	if refreshFlags != nil {
		refreshFlags.WithLabelValues(flag).Inc()
	}
}

// ObserveFetch records a source fetch.
func ObserveFetch(resource, result string, duration time.Duration) {
	if resource == "" {
		resource = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(resource, result).Inc()
	}
	if fetchLatency != nil {
		fetchLatency.WithLabelValues(resource, result).Observe(duration.Seconds())
	}
}

// SetCurrentPrice sets the current price gauge, clearing other phases.
func SetCurrentPrice(phase string, price float64) {
	if currentPrice == nil {
		return
	}
	currentPrice.Reset()
	if phase == "" {
		phase = "unknown"
	}
	currentPrice.WithLabelValues(phase).Set(price)
}

// SetPeriodCost sets the cost gauge for a period.
func SetPeriodCost(period string, cost float64) {
	if period == "" {
		period = "unknown"
	}
	if periodCost != nil {
		periodCost.WithLabelValues(period).Set(cost)
	}
}

// SetDataAge sets the snapshot data age.
func SetDataAge(age time.Duration) {
	if age < 0 {
		age = 0
	}
	if dataAge != nil {
		dataAge.Set(age.Seconds())
	}
}

// ObserveCostExport records export latency and result.
func ObserveCostExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncTransition increments the transition counter.
func IncTransition(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if transitionsTotal != nil {
		transitionsTotal.WithLabelValues(kind).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

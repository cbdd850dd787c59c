package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	consumption "tariffwatch/internal/consumption/domain"
	"tariffwatch/internal/observability/metrics"
	refresh "tariffwatch/internal/refresh/domain"
	tariff "tariffwatch/internal/tariff/domain"
)

const (
	stageMetadata  = "metadata"
	stageIntervals = "intervals"
	stageCost      = "cost"

	periodYesterday = "yesterday"
	periodToday     = "today"

	synthesizedSpan = 30 * time.Minute
)

// Pipeline runs refresh cycles: metadata, intervals, then cost per period.
// Cycles are serialized; each one builds new objects and publishes a
// single immutable snapshot.
type Pipeline struct {
	mu sync.Mutex

	cfg        Config
	classifier *tariff.Classifier
	location   *time.Location

	intervals IntervalSource
	metadata  MetadataSource
	readings  consumption.ReadingRepository
	notifier  TransitionNotifier

	publisher   *Publisher
	diagnostics DiagnosticsSink
	detector    *refresh.TransitionDetector
	logger      *log.Logger
	newID       func() string

	lastSuccess time.Time
}

// PipelineOption customizes the pipeline.
type PipelineOption func(*Pipeline)

// WithMetadataSource enables the metadata stage.
func WithMetadataSource(source MetadataSource) PipelineOption {
	return func(p *Pipeline) {
		p.metadata = source
	}
}

// WithReadingRepository enables the cost stage.
func WithReadingRepository(repo consumption.ReadingRepository) PipelineOption {
	return func(p *Pipeline) {
		p.readings = repo
	}
}

// WithNotifier assigns a transition notifier.
func WithNotifier(notifier TransitionNotifier) PipelineOption {
	return func(p *Pipeline) {
		p.notifier = notifier
	}
}

// WithPublisher shares a publisher with readers.
func WithPublisher(publisher *Publisher) PipelineOption {
	return func(p *Pipeline) {
		if publisher != nil {
			p.publisher = publisher
		}
	}
}

// WithDiagnostics replaces the diagnostics sink.
func WithDiagnostics(sink DiagnosticsSink) PipelineOption {
	return func(p *Pipeline) {
		if sink != nil {
			p.diagnostics = sink
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithCycleIDs replaces the cycle id generator.
func WithCycleIDs(next func() string) PipelineOption {
	return func(p *Pipeline) {
		if next != nil {
			p.newID = next
		}
	}
}

// NewPipeline constructs a refresh pipeline.
func NewPipeline(cfg Config, intervals IntervalSource, opts ...PipelineOption) (*Pipeline, error) {
	if intervals == nil {
		return nil, errors.New("refresh: nil interval source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:         cfg,
		classifier:  classifier,
		location:    classifier.Location(),
		intervals:   intervals,
		publisher:   NewPublisher(),
		diagnostics: NewDiagnostics(cfg.DiagnosticsSize),
		detector:    refresh.NewTransitionDetector(cfg.EndingSoonWindow),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publisher returns the snapshot publisher.
func (p *Pipeline) Publisher() *Publisher {
	return p.publisher
}

// Classifier returns the phase classifier in use.
func (p *Pipeline) Classifier() *tariff.Classifier {
	return p.classifier
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

type cycle struct {
	id    string
	now   time.Time
	flags refresh.Flags
	sink  DiagnosticsSink
}

func (c *cycle) note(stage, format string, args ...any) {
	if c.sink == nil {
		return
	}
	c.sink.Record(DiagnosticEntry{
		At:      c.now,
		CycleID: c.id,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
	})
}

// Run executes one refresh cycle at now and publishes the result. It never
// returns nil and never panics.
func (p *Pipeline) Run(ctx context.Context, now time.Time) *refresh.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	c := &cycle{
		id:    p.newID(),
		now:   now.UTC(),
		flags: refresh.NewFlags(),
		sink:  p.diagnostics,
	}
	if !p.lastSuccess.IsZero() && c.now.Sub(p.lastSuccess) > 2*p.cfg.ScanInterval {
		c.flags.Raise(refresh.FlagStale)
		c.note(stageIntervals, "stale: last success %s", p.lastSuccess.Format(time.RFC3339))
	}

	meta := p.metadataStage(ctx, c)
	timeline, err := p.intervalStage(ctx, c)
	latency := time.Since(started)

	var snap *refresh.Snapshot
	if err != nil {
		snap = p.failed(c, err, latency)
	} else {
		snap = p.assemble(c, timeline)
		snap.Metadata = meta
		p.costStage(ctx, c, timeline, meta, snap)
		snap.Flags = c.flags
		snap.Status = c.flags.PrimaryStatus()
		snap.FetchLatencySeconds = latency.Seconds()
		p.lastSuccess = c.now
	}
	p.publish(ctx, snap, c.now, time.Since(started))
	return snap
}

func (p *Pipeline) metadataStage(ctx context.Context, c *cycle) *tariff.Metadata {
	if p.metadata == nil {
		return nil
	}
	meta := &tariff.Metadata{TariffCode: p.cfg.TariffCode, RegionLabel: p.cfg.RegionLabel}
	err := guard(stageMetadata, func() error {
		var errs []error
		started := time.Now()
		product, err := p.metadata.FetchProduct(ctx)
		observeFetch("product", err, time.Since(started))
		if err != nil {
			errs = append(errs, fmt.Errorf("product: %w", err))
		} else {
			meta.Product = product
		}

		started = time.Now()
		charge, err := p.metadata.FetchStandingCharge(ctx, c.now)
		observeFetch("standing_charges", err, time.Since(started))
		if err != nil {
			errs = append(errs, fmt.Errorf("standing charge: %w", err))
		} else {
			meta.StandingCharge = charge
		}
		return errors.Join(errs...)
	})
	if err != nil {
		c.flags.Raise(refresh.FlagMetadataFailed)
		c.flags.Raise(refresh.FlagPartial)
		c.note(stageMetadata, "%v", err)
		p.logf("refresh metadata error: cycle=%s err=%v", c.id, err)
	}
	return meta
}

func (p *Pipeline) intervalStage(ctx context.Context, c *cycle) (*tariff.Timeline, error) {
	var timeline *tariff.Timeline
	err := guard(stageIntervals, func() error {
		started := time.Now()
		raw, err := p.intervals.FetchUnitRates(ctx)
		observeFetch("unit_rates", err, time.Since(started))
		if err != nil {
			return err
		}
		timeline, err = tariff.BuildTimeline(raw, p.classifier, p.location)
		return err
	})
	if err != nil {
		c.flags.Raise(fetchFlag(err))
		c.note(stageIntervals, "%v", err)
		p.logf("refresh intervals error: cycle=%s err=%v", c.id, err)
		return nil, err
	}
	first, last := timeline.Coverage()
	c.note(stageIntervals, "%d intervals from %s to %s", timeline.Len(), first.Format(time.RFC3339), last.Format(time.RFC3339))
	return timeline, nil
}

// failed builds the result of a cycle whose interval stage failed. Transport
// failures re-publish the last good snapshot when there is one.
func (p *Pipeline) failed(c *cycle, err error, latency time.Duration) *refresh.Snapshot {
	switch fetchFlag(err) {
	case refresh.FlagAPIError, refresh.FlagRateLimited:
		if good := p.publisher.LastGood(); good != nil {
			c.note(stageIntervals, "re-publishing snapshot %s", good.CycleID)
			return good.Degraded(c.id, c.now, c.flags, err, latency)
		}
	}
	return refresh.ErrorSnapshot(c.id, p.cfg.TariffCode, c.now, c.flags, err, latency)
}

func (p *Pipeline) assemble(c *cycle, timeline *tariff.Timeline) *refresh.Snapshot {
	snap := &refresh.Snapshot{
		CycleID:         c.id,
		TariffCode:      p.cfg.TariffCode,
		TimelineWindows: timeline.Windows(c.now, p.cfg.ForecastWindow),
		Outcome:         refresh.OutcomeOK,
		LastRefreshedAt: c.now,
	}
	index := tariff.BuildBlockIndex(timeline.All())

	current, ok := timeline.Current(c.now)
	synthesized := false
	if !ok && p.cfg.FallbackEarliestEnabled() {
		if first, found := timeline.First(); found {
			current = tariff.Interval{
				Start: c.now,
				End:   c.now.Add(synthesizedSpan),
				Price: first.Price,
				Phase: first.Phase,
			}
			ok, synthesized = true, true
			c.flags.Raise(refresh.FlagCurrentSynthesized)
			c.note(stageIntervals, "no interval covers %s, synthesized from %s", c.now.Format(time.RFC3339), first.Start.Format(time.RFC3339))
		}
	}

	var currentBlock tariff.PhaseBlock
	hasBlock := false
	if ok {
		price := current.Price
		snap.CurrentInterval = &current
		snap.CurrentPrice = &price
		if !synthesized {
			currentBlock, hasBlock = index.BlockForInterval(current)
		}
	}
	if hasBlock {
		snap.CurrentBlockSummary = currentBlock.Summary()
		if after, found := index.BlockAfter(currentBlock); found {
			snap.NextBlockSummary = after.Summary()
		}
	}

	if next, found := timeline.NextAfter(c.now); found {
		price := next.Price
		snap.NextInterval = &next
		snap.NextPrice = &price
		if !hasBlock {
			if block, found := index.BlockForInterval(next); found {
				snap.NextBlockSummary = block.Summary()
			}
		}
	}
	if green, found := index.NextBlockOfPhaseFrom(tariff.PhaseGreen, c.now); found {
		snap.NextGreenBlock = green.Summary()
	}
	return snap
}

type costPeriod struct {
	name   string
	from   time.Time
	to     time.Time
	failed refresh.Flag
	target **consumption.PeriodCostSummary
}

func (p *Pipeline) costStage(ctx context.Context, c *cycle, timeline *tariff.Timeline, meta *tariff.Metadata, snap *refresh.Snapshot) {
	if p.readings == nil || p.cfg.MeterID == "" {
		return
	}
	todayStart, _ := tariff.DayBounds(c.now, p.location)
	yesterdayStart, _ := tariff.DayBounds(c.now.In(p.location).AddDate(0, 0, -1), p.location)

	var opts []consumption.SummaryOption
	if meta != nil && meta.StandingCharge != nil {
		opts = append(opts, consumption.WithStandingCharge(meta.StandingCharge.IncVATPencePerDay))
	}

	periods := []costPeriod{
		{name: periodYesterday, from: yesterdayStart, to: todayStart, failed: refresh.FlagCostYesterdayFailed, target: &snap.CostSummaries.Yesterday},
		{name: periodToday, from: todayStart, to: c.now, failed: refresh.FlagCostTodayFailed, target: &snap.CostSummaries.Today},
	}
	for _, period := range periods {
		summary, err := p.cost(ctx, c, timeline, period, opts)
		if err != nil {
			c.flags.Raise(period.failed)
			c.flags.Raise(refresh.FlagPartial)
			c.note(stageCost, "%s: %v", period.name, err)
			p.logf("refresh cost error: cycle=%s period=%s err=%v", c.id, period.name, err)
			continue
		}
		*period.target = summary
		if summary != nil {
			metrics.SetPeriodCost(period.name, summary.TotalCost)
		}
	}
}

func (p *Pipeline) cost(ctx context.Context, c *cycle, timeline *tariff.Timeline, period costPeriod, opts []consumption.SummaryOption) (*consumption.PeriodCostSummary, error) {
	var summary *consumption.PeriodCostSummary
	err := guard(stageCost, func() error {
		started := time.Now()
		readings, err := p.readings.ReadingsBetween(ctx, p.cfg.MeterID, period.from, period.to)
		observeFetch("meter_readings", err, time.Since(started))
		if err != nil {
			return err
		}
		result := consumption.ComputePeriod(timeline.Clip(period.from, period.to), readings, period.from, period.to, opts...)
		switch {
		case result.Readings < 2:
			c.flags.Raise(refresh.FlagHistoryMissing)
			c.note(stageCost, "%s: %d readings", period.name, result.Readings)
		case result.Deltas == 0:
			c.flags.Raise(refresh.FlagNoDeltas)
			c.note(stageCost, "%s: no positive deltas in %d readings", period.name, result.Readings)
		}
		summary = result.Summary
		return nil
	})
	return summary, err
}

func (p *Pipeline) publish(ctx context.Context, snap *refresh.Snapshot, now time.Time, elapsed time.Duration) {
	p.publisher.Publish(snap)

	metrics.ObserveRefresh(string(snap.Status), string(snap.Outcome), elapsed)
	for flag, raised := range snap.Flags {
		if raised {
			metrics.IncRefreshFlag(string(flag))
		}
	}
	if snap.CurrentInterval != nil {
		metrics.SetCurrentPrice(string(snap.CurrentInterval.Phase), snap.CurrentInterval.Price)
	}
	if snap.DataAgeSeconds != nil {
		metrics.SetDataAge(time.Duration(*snap.DataAgeSeconds * float64(time.Second)))
	} else {
		metrics.SetDataAge(0)
	}
	p.logf("refresh cycle: id=%s status=%s outcome=%s elapsed=%s", snap.CycleID, snap.Status, snap.Outcome, elapsed)

	for _, transition := range p.detector.Observe(snap, now) {
		metrics.IncTransition(string(transition.Type))
		if p.notifier == nil {
			continue
		}
		if err := p.notifier.Notify(ctx, transition); err != nil {
			p.logf("refresh notify error: type=%s err=%v", transition.Type, err)
		}
	}
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// guard runs one stage, converting a panic into an error.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh: %s stage panic: %v", stage, r)
		}
	}()
	return fn()
}

// fetchFlag maps an interval stage failure to its status flag.
func fetchFlag(err error) refresh.Flag {
	switch {
	case errors.Is(err, tariff.ErrNoData):
		return refresh.FlagNoData
	case errors.Is(err, tariff.ErrRateLimited):
		return refresh.FlagRateLimited
	case errors.Is(err, tariff.ErrUnexpectedFormat), tariff.IsMalformed(err):
		return refresh.FlagUnexpectedFormat
	default:
		return refresh.FlagAPIError
	}
}

func observeFetch(resource string, err error, duration time.Duration) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveFetch(resource, result, duration)
}

// Package engine drives the forecasting cycle: on every tick it scores
// each station's feature window, persists the forecast, evaluates it
// against policy, and applies the resulting directives through the
// alert lifecycle manager.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coastsense/floodwatch/internal/alerting"
	"github.com/coastsense/floodwatch/internal/alerting/database"
	"github.com/coastsense/floodwatch/internal/ingest"
	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/observability"
	"github.com/coastsense/floodwatch/internal/policy"
	"github.com/coastsense/floodwatch/internal/scoring"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// systemStationID is the pseudo-station that carries platform health
// alerts through the same lifecycle as hazard alerts.
const systemStationID = "system"

// Engine coordinates ingestion, scoring, evaluation, and alerting.
type Engine struct {
	ingestor  *ingest.Ingestor
	scorer    scoring.Scorer
	evaluator *alerting.Evaluator
	manager   *alerting.Manager
	store     database.Store
	policy    policy.Policy
	clock     clockwork.Clock
	metrics   *observability.Metrics

	tickInterval time.Duration
	staleAge     time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options wires an Engine. All collaborators are required except
// Metrics and Clock.
type Options struct {
	Ingestor  *ingest.Ingestor
	Scorer    scoring.Scorer
	Evaluator *alerting.Evaluator
	Manager   *alerting.Manager
	Store     database.Store
	Policy    policy.Policy
	Clock     clockwork.Clock
	Metrics   *observability.Metrics

	TickInterval time.Duration // default 5m
	StaleAge     time.Duration // station considered silent past this, default 30m
}

func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 5 * time.Minute
	}
	if opts.StaleAge <= 0 {
		opts.StaleAge = 30 * time.Minute
	}
	return &Engine{
		ingestor:     opts.Ingestor,
		scorer:       opts.Scorer,
		evaluator:    opts.Evaluator,
		manager:      opts.Manager,
		store:        opts.Store,
		policy:       opts.Policy,
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		tickInterval: opts.TickInterval,
		staleAge:     opts.StaleAge,
	}
}

// Start launches the tick loop. Calling Start on a running engine is an
// error.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine already running")
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.running = true
	go e.run(ctx, e.done)
	log.Info().Dur("tick", e.tickInterval).Msg("forecast engine started")
	return nil
}

// Stop cancels the tick loop and waits for the in-flight cycle to
// finish. Safe to call on a stopped engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.running = false
	e.mu.Unlock()

	cancel()
	<-done
	log.Info().Msg("forecast engine stopped")
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := e.clock.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.RunCycle(ctx)
		}
	}
}

// RunCycle scores every station once and then checks platform health.
// Exported so operators can trigger an immediate cycle.
func (e *Engine) RunCycle(ctx context.Context) {
	stations := e.ingestor.Stations()
	for _, id := range stations {
		if ctx.Err() != nil {
			return
		}
		e.cycleStation(ctx, id)
	}
	e.checkHealth(ctx, stations)
}

// cycleStation runs one score-evaluate-apply pass. An empty feature
// window skips the station; it is a data gap, not a failure.
func (e *Engine) cycleStation(ctx context.Context, stationID string) {
	start := e.clock.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.StationCycleDur.Observe(e.clock.Since(start).Seconds())
		}
	}()

	f, err := e.forecast(ctx, stationID)
	if err != nil {
		if model.IsScoring(err) {
			if e.metrics != nil {
				e.metrics.ScoringErrors.Inc()
			}
			log.Debug().Str("station", stationID).Msg("no readings in window, station skipped")
			return
		}
		log.Error().Err(err).Str("station", stationID).Msg("station cycle failed")
		return
	}

	window := e.ingestor.Features(stationID, f.GeneratedAt)
	for _, d := range e.evaluator.Evaluate(*f, window) {
		if _, _, err := e.manager.Apply(ctx, d); err != nil {
			log.Error().Err(err).Str("station", stationID).
				Str("type", string(d.Type)).Msg("failed to apply alert directive")
		}
	}
}

func (e *Engine) forecast(ctx context.Context, stationID string) (*model.Forecast, error) {
	w := e.ingestor.Features(stationID, e.clock.Now().UTC())
	f, err := e.scorer.Score(w)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveForecast(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save forecast: %w", err)
	}
	if e.metrics != nil {
		e.metrics.ForecastsGenerated.Inc()
	}
	return &f, nil
}

// ForecastNow computes, persists, and returns a fresh forecast for one
// station outside the tick schedule.
func (e *Engine) ForecastNow(ctx context.Context, stationID string) (*model.Forecast, error) {
	return e.forecast(ctx, stationID)
}

// IngestReading validates and buffers a reading and appends it to the
// durable log. The log append is best effort; a slow or absent database
// never rejects telemetry.
func (e *Engine) IngestReading(ctx context.Context, r model.StationReading) error {
	if err := e.ingestor.Ingest(r); err != nil {
		return err
	}
	if err := e.store.AppendReading(ctx, r); err != nil {
		log.Warn().Err(err).Str("station", r.StationID).Msg("failed to persist reading")
	}
	return nil
}

// checkHealth raises a system alert when fewer than half the known
// stations have reported recently.
func (e *Engine) checkHealth(ctx context.Context, stations []string) {
	total := len(stations)
	if total == 0 {
		return
	}
	cutoff := e.clock.Now().Add(-e.staleAge)
	reporting := 0
	for _, id := range stations {
		if last, ok := e.ingestor.LastSeen(id); ok && last.After(cutoff) {
			reporting++
		}
	}
	if reporting*2 >= total {
		return
	}

	sev := model.SeverityHigh
	d := alerting.Directive{
		StationID: systemStationID,
		Type:      model.AlertSystem,
		Severity:  sev,
		Title:     fmt.Sprintf("[%s] Station network degraded", sev),
		Message: fmt.Sprintf("only %d of %d stations reported within %s",
			reporting, total, e.staleAge),
		CurrentValue: float64(reporting),
		DedupKey:     model.DedupKey(systemStationID, model.AlertSystem, sev),
		TTL:          e.policy.For(model.AlertSystem).TTL,
	}
	if _, _, err := e.manager.Apply(ctx, d); err != nil {
		log.Error().Err(err).Msg("failed to raise system health alert")
	}
}

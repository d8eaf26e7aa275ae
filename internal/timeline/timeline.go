// Package timeline projects a station's risk forward in time by
// extrapolating current sensor trends and re-scoring each projected
// window. Results are cached in Redis; the cache is an optimization
// only and every cache failure degrades to a recompute.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/observability"
	"github.com/coastsense/floodwatch/internal/policy"
	"github.com/coastsense/floodwatch/internal/scoring"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Point is one projected sample on the risk timeline.
type Point struct {
	Timestamp   time.Time       `json:"timestamp"`
	Probability float64         `json:"probability"`
	RiskLevel   model.RiskLevel `json:"risk_level"`
	Confidence  float64         `json:"confidence"`
}

// Timeline is the full projection for one station.
type Timeline struct {
	StationID   string    `json:"station_id"`
	GeneratedAt time.Time `json:"generated_at"`
	StepMinutes int       `json:"step_minutes"`
	Points      []Point   `json:"points"`
}

// FeatureSource provides the current feature window for a station.
type FeatureSource interface {
	Features(stationID string, asOf time.Time) model.FeatureWindow
}

// Builder computes timelines. It never mutates the feature source; two
// consecutive builds over unchanged readings produce identical output.
type Builder struct {
	features FeatureSource
	scorer   scoring.Scorer
	bands    policy.RiskBands
	cache    *redis.Client
	cacheTTL time.Duration
	maxDelta float64
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// BuilderOptions configures a Builder. Cache is optional; a nil client
// disables caching entirely.
type BuilderOptions struct {
	Features FeatureSource
	Scorer   scoring.Scorer
	Bands    policy.RiskBands
	Cache    *redis.Client
	CacheTTL time.Duration
	// MaxStepDelta bounds the probability change between consecutive
	// points, default 0.15.
	MaxStepDelta float64
	Clock        clockwork.Clock
	Metrics      *observability.Metrics
}

func NewBuilder(opts BuilderOptions) *Builder {
	if opts.Bands == (policy.RiskBands{}) {
		opts.Bands = policy.Default().Bands
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.MaxStepDelta <= 0 {
		opts.MaxStepDelta = 0.15
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Builder{
		features: opts.Features,
		scorer:   opts.Scorer,
		bands:    opts.Bands,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		maxDelta: opts.MaxStepDelta,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
}

// maxSteps bounds a single build regardless of what the caller asks
// for; the extrapolation carries no signal past a couple of days out.
const maxSteps = 48

// Build returns the projected timeline for a station: one point now and
// one per step up to the horizon. Defaults cover 48 hours at 2-hour
// steps; the caller's context bounds the work.
func (b *Builder) Build(ctx context.Context, stationID string, steps int, step time.Duration) (Timeline, error) {
	if steps <= 0 {
		steps = 24
	}
	if steps > maxSteps {
		steps = maxSteps
	}
	if step <= 0 {
		step = 2 * time.Hour
	}

	key := fmt.Sprintf("timeline:%s:%d:%d", stationID, steps, int(step.Minutes()))
	if tl, ok := b.cached(ctx, key); ok {
		return tl, nil
	}

	now := b.clock.Now().UTC()
	base := b.features.Features(stationID, now)
	current, err := b.scorer.Score(base)
	if err != nil {
		return Timeline{}, err
	}

	tl := Timeline{
		StationID:   stationID,
		GeneratedAt: now,
		StepMinutes: int(step.Minutes()),
		Points: []Point{{
			Timestamp:   now,
			Probability: current.Probability,
			RiskLevel:   current.RiskLevel,
			Confidence:  current.Confidence,
		}},
	}

	prev := current.Probability
	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return Timeline{}, err
		}
		at := now.Add(time.Duration(i) * step)
		projected := extrapolate(base, at)
		f, err := b.scorer.Score(projected)
		if err != nil {
			return Timeline{}, err
		}
		// trend extrapolation gets noisier the further out it reaches;
		// clamp step-to-step swings and decay confidence with horizon
		prob := clampDelta(f.Probability, prev, b.maxDelta)
		conf := math.Max(0.3, current.Confidence*(1.0-0.05*float64(i)))
		tl.Points = append(tl.Points, Point{
			Timestamp:   at,
			Probability: round3(prob),
			RiskLevel:   b.bands.Level(prob),
			Confidence:  round3(conf),
		})
		prev = prob
	}

	b.store(ctx, key, tl)
	return tl, nil
}

// extrapolate advances every aggregate's last value along its observed
// rate to the target time. The window bounds shift with it so the
// scorer sees a plausible future window.
func extrapolate(w model.FeatureWindow, at time.Time) model.FeatureWindow {
	hours := at.Sub(w.To).Hours()
	out := model.FeatureWindow{
		StationID:  w.StationID,
		From:       w.From.Add(at.Sub(w.To)),
		To:         at,
		Aggregates: make(map[model.ReadingType]model.Aggregate, len(w.Aggregates)),
	}
	for typ, agg := range w.Aggregates {
		projected := agg
		projected.Last = agg.Last + agg.Rate*hours
		projected.LastAt = at
		if projected.Last > projected.Max {
			projected.Max = projected.Last
		}
		if projected.Last < projected.Min {
			projected.Min = projected.Last
		}
		out.Aggregates[typ] = projected
	}
	return out
}

func (b *Builder) cached(ctx context.Context, key string) (Timeline, bool) {
	if b.cache == nil {
		return Timeline{}, false
	}
	data, err := b.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("timeline cache read failed")
		}
		if b.metrics != nil {
			b.metrics.TimelineCacheMisses.Inc()
		}
		return Timeline{}, false
	}
	var tl Timeline
	if err := json.Unmarshal(data, &tl); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("timeline cache entry corrupt")
		if b.metrics != nil {
			b.metrics.TimelineCacheMisses.Inc()
		}
		return Timeline{}, false
	}
	if b.metrics != nil {
		b.metrics.TimelineCacheHits.Inc()
	}
	return tl, true
}

func (b *Builder) store(ctx context.Context, key string, tl Timeline) {
	if b.cache == nil {
		return
	}
	data, err := json.Marshal(tl)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, key, data, b.cacheTTL).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("timeline cache write failed")
	}
}

func clampDelta(p, prev, maxDelta float64) float64 {
	if p > prev+maxDelta {
		return prev + maxDelta
	}
	if p < prev-maxDelta {
		return prev - maxDelta
	}
	return p
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

// Package scoring maps feature windows to probabilistic risk forecasts.
// The Scorer interface is the seam where a learned model can replace the
// default weighted-sum implementation without touching any caller.
package scoring

import (
	"math"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/policy"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Scorer turns a feature window into a forecast. Implementations must
// return a ScoringError for windows with zero readings and must keep
// probability and confidence inside [0,1].
type Scorer interface {
	Score(w model.FeatureWindow) (model.Forecast, error)
}

// Weights holds the per-channel contribution weights of the default
// scorer. They should sum to 1; Normalize enforces it.
type Weights map[model.ReadingType]float64

// DefaultWeights reflect the relative influence of each channel on
// coastal flooding. Deployments override them via configuration.
func DefaultWeights() Weights {
	return Weights{
		model.ReadingTide:        0.30,
		model.ReadingWave:        0.25,
		model.ReadingWind:        0.15,
		model.ReadingRainfall:    0.15,
		model.ReadingPressure:    0.10,
		model.ReadingTemperature: 0.05,
	}
}

// Normalize scales the weights to sum to 1. A zero map stays zero.
func (w Weights) Normalize() Weights {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return w
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v / sum
	}
	return out
}

// normalization scales per reading type: the value at which the channel
// contributes fully. Pressure and temperature are offsets from their
// nominal values rather than absolute magnitudes.
type scale struct {
	base float64 // value contributing zero
	span float64 // value range mapping to [0,1]
	inv  bool    // contribution grows as the value falls
}

var scales = map[model.ReadingType]scale{
	model.ReadingTide:        {base: 0, span: 3.0},
	model.ReadingWave:        {base: 0, span: 5.0},
	model.ReadingWind:        {base: 30.0, span: 70.0},
	model.ReadingRainfall:    {base: 0, span: 50.0},
	model.ReadingPressure:    {base: 1013.25, span: 50.0, inv: true},
	model.ReadingTemperature: {base: 25.0, span: 25.0},
}

// WeightedScorer is the default deterministic scorer: normalized feature
// values times configured weights, squashed through a logistic curve.
type WeightedScorer struct {
	weights   Weights
	bands     policy.RiskBands
	maxAge    time.Duration
	steepness float64
	midpoint  float64
	clock     clockwork.Clock
	version   string
}

// ScorerOptions configures a WeightedScorer. Zero values fall back to
// defaults.
type ScorerOptions struct {
	Weights Weights
	Bands   policy.RiskBands
	// MaxAge is the reading age past which confidence degrades, default 2h.
	MaxAge time.Duration
	Clock  clockwork.Clock
}

const modelVersion = "weighted-1.2.0"

func NewWeightedScorer(opts ScorerOptions) *WeightedScorer {
	if opts.Weights == nil {
		opts.Weights = DefaultWeights()
	}
	if opts.Bands == (policy.RiskBands{}) {
		opts.Bands = policy.Default().Bands
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 2 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &WeightedScorer{
		weights:   opts.Weights.Normalize(),
		bands:     opts.Bands,
		maxAge:    opts.MaxAge,
		steepness: 6.0,
		midpoint:  0.5,
		clock:     opts.Clock,
		version:   modelVersion,
	}
}

// Score implements Scorer.
func (s *WeightedScorer) Score(w model.FeatureWindow) (model.Forecast, error) {
	if w.Empty() {
		return model.Forecast{}, &model.ScoringError{StationID: w.StationID, Reason: "feature window has no readings"}
	}

	factors := make(map[string]float64, len(w.Aggregates))
	var raw float64
	var dominant model.ReadingType
	var dominantContrib float64
	for typ, agg := range w.Aggregates {
		if agg.Count == 0 {
			continue
		}
		weight, ok := s.weights[typ]
		if !ok {
			continue
		}
		contrib := weight * normalize(typ, agg.Last)
		factors[string(typ)] = round3(contrib)
		raw += contrib
		if contrib > dominantContrib {
			dominantContrib = contrib
			dominant = typ
		}
	}

	prob := round3(clamp01(logistic(raw, s.steepness, s.midpoint)))
	conf := round3(s.confidence(w))

	f := model.Forecast{
		ID:              uuid.NewString(),
		StationID:       w.StationID,
		GeneratedAt:     s.clock.Now().UTC(),
		ModelVersion:    s.version,
		Probability:     prob,
		Confidence:      conf,
		RiskLevel:       s.bands.Level(prob),
		TimeToPeakHours: s.timeToPeak(w, dominant, prob),
		DurationHours:   round1(2.0 + 8.0*prob),
		FactorWeights:   factors,
	}
	return f, nil
}

// confidence combines feature completeness (fraction of expected reading
// types present) with recency, degrading once the newest reading is
// older than maxAge. Stale data is a warning expressed here, not an
// error.
func (s *WeightedScorer) confidence(w model.FeatureWindow) float64 {
	present := 0
	for _, typ := range model.ReadingTypes {
		if agg, ok := w.Aggregates[typ]; ok && agg.Count > 0 {
			present++
		}
	}
	completeness := float64(present) / float64(len(model.ReadingTypes))

	recency := 1.0
	if newest, ok := w.Newest(); ok {
		if age := s.clock.Now().Sub(newest); age > s.maxAge {
			over := float64(age-s.maxAge) / float64(s.maxAge)
			recency = math.Max(0.2, 1.0-over)
		}
	}
	return math.Min(0.95, clamp01(completeness*recency))
}

// timeToPeak extrapolates the dominant factor's trend toward the value
// at which it saturates. A flat or falling trend falls back to a
// probability-scaled horizon.
func (s *WeightedScorer) timeToPeak(w model.FeatureWindow, dominant model.ReadingType, prob float64) float64 {
	if agg, ok := w.Aggregates[dominant]; ok && agg.Rate > 0 {
		sc := scales[dominant]
		peak := sc.base + sc.span
		if sc.inv {
			peak = sc.base - sc.span
		}
		remaining := (peak - agg.Last) / agg.Rate
		if sc.inv {
			remaining = (agg.Last - peak) / agg.Rate
		}
		if remaining > 0 {
			return round1(clamp(remaining, 1, 12))
		}
	}
	return round1(clamp(12.0*(1.0-prob), 1, 12))
}

func normalize(typ model.ReadingType, value float64) float64 {
	sc, ok := scales[typ]
	if !ok {
		return 0
	}
	var x float64
	if sc.inv {
		x = (sc.base - value) / sc.span
	} else {
		x = (value - sc.base) / sc.span
	}
	return clamp01(x)
}

func logistic(x, steepness, midpoint float64) float64 {
	return 1.0 / (1.0 + math.Exp(-steepness*(x-midpoint)))
}

func clamp01(x float64) float64 { return clamp(x, 0, 1) }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
func round1(x float64) float64 { return math.Round(x*10) / 10 }

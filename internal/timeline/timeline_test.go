package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/policy"
	"github.com/coastsense/floodwatch/internal/scoring"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticFeatures serves a fixed set of aggregates, shifted to whatever
// time the builder asks for.
type staticFeatures struct {
	aggregates map[model.ReadingType]model.Aggregate
}

func (s staticFeatures) Features(stationID string, asOf time.Time) model.FeatureWindow {
	w := model.FeatureWindow{
		StationID:  stationID,
		From:       asOf.Add(-6 * time.Hour),
		To:         asOf,
		Aggregates: make(map[model.ReadingType]model.Aggregate, len(s.aggregates)),
	}
	for typ, agg := range s.aggregates {
		agg.LastAt = asOf
		w.Aggregates[typ] = agg
	}
	return w
}

// stepScorer returns a probability that jumps with the window's end
// time, to exercise the delta clamp.
type stepScorer struct {
	start time.Time
	jump  float64
}

func (s stepScorer) Score(w model.FeatureWindow) (model.Forecast, error) {
	hours := w.To.Sub(s.start).Hours()
	p := s.jump * hours
	if p > 1 {
		p = 1
	}
	return model.Forecast{
		StationID:   w.StationID,
		GeneratedAt: w.To,
		Probability: p,
		Confidence:  0.9,
		RiskLevel:   policy.Default().Bands.Level(p),
	}, nil
}

func risingTide() staticFeatures {
	return staticFeatures{aggregates: map[model.ReadingType]model.Aggregate{
		model.ReadingTide: {Mean: 1.5, Max: 2.0, Min: 1.0, Last: 2.0, Rate: 0.4, Count: 6},
		model.ReadingWave: {Mean: 0.8, Max: 1.0, Min: 0.6, Last: 1.0, Rate: 0.1, Count: 6},
	}}
}

func TestBuildShape(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: risingTide(),
		Scorer:   scoring.NewWeightedScorer(scoring.ScorerOptions{Clock: clk}),
		Clock:    clk,
	})

	tl, err := b.Build(context.Background(), "st-1", 6, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "st-1", tl.StationID)
	assert.Equal(t, 60, tl.StepMinutes)
	require.Len(t, tl.Points, 7, "one point now plus one per step")
	assert.Equal(t, now, tl.Points[0].Timestamp)
	assert.Equal(t, now.Add(6*time.Hour), tl.Points[6].Timestamp)

	for _, p := range tl.Points {
		assert.GreaterOrEqual(t, p.Probability, 0.0)
		assert.LessOrEqual(t, p.Probability, 1.0)
		assert.GreaterOrEqual(t, p.Confidence, 0.3)
	}
}

func TestBuildRisingTrendRaisesRisk(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: risingTide(),
		Scorer:   scoring.NewWeightedScorer(scoring.ScorerOptions{Clock: clk}),
		Clock:    clk,
	})

	tl, err := b.Build(context.Background(), "st-1", 6, time.Hour)
	require.NoError(t, err)
	assert.Greater(t, tl.Points[6].Probability, tl.Points[0].Probability,
		"a rising tide must project increasing risk")
}

func TestBuildClampsStepDelta(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features:     risingTide(),
		Scorer:       stepScorer{start: now, jump: 0.5},
		MaxStepDelta: 0.15,
		Clock:        clk,
	})

	tl, err := b.Build(context.Background(), "st-1", 4, time.Hour)
	require.NoError(t, err)

	for i := 1; i < len(tl.Points); i++ {
		delta := tl.Points[i].Probability - tl.Points[i-1].Probability
		assert.LessOrEqual(t, delta, 0.15+1e-9, "step %d", i)
		assert.GreaterOrEqual(t, delta, -0.15-1e-9, "step %d", i)
	}
}

func TestBuildConfidenceDecays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: risingTide(),
		Scorer:   stepScorer{start: now, jump: 0.05},
		Clock:    clk,
	})

	tl, err := b.Build(context.Background(), "st-1", 12, time.Hour)
	require.NoError(t, err)
	for i := 1; i < len(tl.Points); i++ {
		assert.LessOrEqual(t, tl.Points[i].Confidence, tl.Points[i-1].Confidence)
	}
	assert.GreaterOrEqual(t, tl.Points[12].Confidence, 0.3)
}

func TestBuildIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: risingTide(),
		Scorer:   scoring.NewWeightedScorer(scoring.ScorerOptions{Clock: clk}),
		Clock:    clk,
	})

	first, err := b.Build(context.Background(), "st-1", 6, time.Hour)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), "st-1", 6, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first, second, "building twice over unchanged readings must match")
}

func TestBuildEmptyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: staticFeatures{},
		Scorer:   scoring.NewWeightedScorer(scoring.ScorerOptions{Clock: clk}),
		Clock:    clk,
	})

	_, err := b.Build(context.Background(), "st-9", 6, time.Hour)
	require.Error(t, err)
	assert.True(t, model.IsScoring(err))
}

func TestBuildCapsSteps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: risingTide(),
		Scorer:   stepScorer{start: now, jump: 0.01},
		Clock:    clk,
	})

	tl, err := b.Build(context.Background(), "st-1", 10_000_000, time.Minute)
	require.NoError(t, err)
	assert.Len(t, tl.Points, maxSteps+1, "oversized horizon requests are capped")
}

func TestBuildHonorsCancelledContext(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: risingTide(),
		Scorer:   scoring.NewWeightedScorer(scoring.ScorerOptions{Clock: clk}),
		Clock:    clk,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, "st-1", 24, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	b := NewBuilder(BuilderOptions{
		Features: risingTide(),
		Scorer:   scoring.NewWeightedScorer(scoring.ScorerOptions{Clock: clk}),
		Clock:    clk,
	})

	tl, err := b.Build(context.Background(), "st-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, tl.Points, 25, "48h horizon at 2h steps plus the current point")
	assert.Equal(t, 120, tl.StepMinutes)
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/coastsense/floodwatch/internal/alerting"
	"github.com/coastsense/floodwatch/internal/alerting/database"
	"github.com/coastsense/floodwatch/internal/ingest"
	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/policy"
	"github.com/coastsense/floodwatch/internal/scoring"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	engine *Engine
	store  *database.MemoryStore
	clock  *clockwork.FakeClock
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := database.NewMemoryStore()
	pol := policy.Default()

	ingestor := ingest.New(ingest.Options{Clock: clk})
	manager := alerting.NewManager(alerting.ManagerOptions{Store: store, Clock: clk})
	eng := New(Options{
		Ingestor:  ingestor,
		Scorer:    scoring.NewWeightedScorer(scoring.ScorerOptions{Bands: pol.Bands, Clock: clk}),
		Evaluator: alerting.NewEvaluator(pol),
		Manager:   manager,
		Store:     store,
		Policy:    pol,
		Clock:     clk,
		StaleAge:  30 * time.Minute,
	})
	return &testRig{engine: eng, store: store, clock: clk}
}

func (r *testRig) ingest(t *testing.T, station string, typ model.ReadingType, value float64) {
	t.Helper()
	require.NoError(t, r.engine.IngestReading(context.Background(), model.StationReading{
		StationID: station,
		Timestamp: r.clock.Now(),
		Type:      typ,
		Value:     value,
	}))
}

func TestCycleCreatesForecastAndAlert(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	// dangerous surf: waves past the critical cutoff
	r.ingest(t, "st-1", model.ReadingTide, 4.0)
	r.ingest(t, "st-1", model.ReadingWave, 6.0)

	r.engine.RunCycle(ctx)

	f, err := r.store.LatestForecast(ctx, "st-1")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "st-1", f.StationID)

	alerts, err := r.store.ListAlerts(ctx, database.AlertFilter{
		Station: "st-1", Type: model.AlertStormSurge,
	})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, f.ID, alerts[0].TriggeringForecastID)
}

func TestCycleSkipsSilentStations(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.ingest(t, "st-1", model.ReadingTide, 1.0)
	// the reading ages past the retention-independent feature window
	r.clock.Advance(7 * time.Hour)

	r.engine.RunCycle(ctx)

	f, err := r.store.LatestForecast(ctx, "st-1")
	require.NoError(t, err)
	assert.Nil(t, f, "an empty window must not produce a forecast")
}

func TestCalmConditionsRaiseNoAlerts(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.ingest(t, "st-1", model.ReadingTide, 0.4)
	r.ingest(t, "st-1", model.ReadingWave, 0.3)
	r.ingest(t, "st-1", model.ReadingWind, 12.0)

	r.engine.RunCycle(ctx)

	alerts, err := r.store.ListAlerts(ctx, database.AlertFilter{Station: "st-1"})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRepeatedCyclesDeduplicate(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.ingest(t, "st-1", model.ReadingWave, 6.0)
	r.engine.RunCycle(ctx)
	r.clock.Advance(5 * time.Minute)
	r.ingest(t, "st-1", model.ReadingWave, 6.2)
	r.engine.RunCycle(ctx)

	alerts, err := r.store.ListAlerts(ctx, database.AlertFilter{
		Station: "st-1", Type: model.AlertStormSurge, Status: model.StatusActive,
	})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 6.2, alerts[0].CurrentValue)
}

func TestHealthCheckRaisesSystemAlert(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.ingest(t, "st-1", model.ReadingTide, 0.5)
	r.ingest(t, "st-2", model.ReadingTide, 0.5)
	r.ingest(t, "st-3", model.ReadingTide, 0.5)

	// one hour on, only st-1 is still reporting
	r.clock.Advance(time.Hour)
	r.ingest(t, "st-1", model.ReadingTide, 0.5)

	r.engine.RunCycle(ctx)

	alerts, err := r.store.ListAlerts(ctx, database.AlertFilter{Type: model.AlertSystem})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, systemStationID, alerts[0].StationID)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, 1.0, alerts[0].CurrentValue)
}

func TestHealthCheckQuietWhenMajorityReports(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.ingest(t, "st-1", model.ReadingTide, 0.5)
	r.ingest(t, "st-2", model.ReadingTide, 0.5)

	r.engine.RunCycle(ctx)

	alerts, err := r.store.ListAlerts(ctx, database.AlertFilter{Type: model.AlertSystem})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestStartStopGuards(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	require.NoError(t, r.engine.Start(ctx))
	assert.Error(t, r.engine.Start(ctx), "double start must fail")
	r.engine.Stop()
	r.engine.Stop() // second stop is a no-op

	require.NoError(t, r.engine.Start(ctx))
	r.engine.Stop()
}

func TestForecastNowPersists(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.ingest(t, "st-1", model.ReadingTide, 2.0)

	f, err := r.engine.ForecastNow(ctx, "st-1")
	require.NoError(t, err)

	stored, err := r.store.LatestForecast(ctx, "st-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, f.ID, stored.ID)
}

func TestForecastNowUnknownStation(t *testing.T) {
	r := newTestRig(t)
	_, err := r.engine.ForecastNow(context.Background(), "nowhere")
	require.Error(t, err)
	assert.True(t, model.IsScoring(err))
}

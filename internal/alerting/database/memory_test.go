package database

import (
	"context"
	"testing"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertAt(id, station string, status model.AlertStatus, sev model.Severity, created time.Time) model.Alert {
	return model.Alert{
		ID:        id,
		StationID: station,
		Type:      model.AlertFlood,
		Severity:  sev,
		Status:    status,
		CreatedAt: created,
		DedupKey:  model.DedupKey(station, model.AlertFlood, sev),
	}
}

func TestListAlertsFiltersAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveAlert(ctx, alertAt("a1", "st-1", model.StatusActive, model.SeverityMedium, base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt("a2", "st-1", model.StatusResolved, model.SeverityHigh, base.Add(time.Hour))))
	require.NoError(t, s.SaveAlert(ctx, alertAt("a3", "st-2", model.StatusActive, model.SeverityHigh, base.Add(2*time.Hour))))

	t.Run("newest first", func(t *testing.T) {
		all, err := s.ListAlerts(ctx, AlertFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a3", all[0].ID)
		assert.Equal(t, "a1", all[2].ID)
	})

	t.Run("by status", func(t *testing.T) {
		active, err := s.ListAlerts(ctx, AlertFilter{Status: model.StatusActive})
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})

	t.Run("by station and severity", func(t *testing.T) {
		got, err := s.ListAlerts(ctx, AlertFilter{Station: "st-1", Severity: model.SeverityHigh})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a2", got[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.ListAlerts(ctx, AlertFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a3", got[0].ID)
	})
}

func TestFindActiveByDedupKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	resolved := alertAt("a1", "st-1", model.StatusResolved, model.SeverityHigh, base)
	require.NoError(t, s.SaveAlert(ctx, resolved))

	got, err := s.FindActiveByDedupKey(ctx, resolved.DedupKey)
	require.NoError(t, err)
	assert.Nil(t, got, "resolved alerts do not hold the dedup slot")

	active := alertAt("a2", "st-1", model.StatusActive, model.SeverityHigh, base.Add(time.Hour))
	require.NoError(t, s.SaveAlert(ctx, active))

	got, err = s.FindActiveByDedupKey(ctx, active.DedupKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a2", got.ID)
}

func TestListActiveExpiring(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	past := base.Add(-time.Hour)
	future := base.Add(time.Hour)

	expired := alertAt("a1", "st-1", model.StatusActive, model.SeverityMedium, base.Add(-2*time.Hour))
	expired.ExpiresAt = &past
	fresh := alertAt("a2", "st-2", model.StatusActive, model.SeverityMedium, base)
	fresh.ExpiresAt = &future
	unbounded := alertAt("a3", "st-3", model.StatusActive, model.SeverityMedium, base)

	for _, a := range []model.Alert{expired, fresh, unbounded} {
		require.NoError(t, s.SaveAlert(ctx, a))
	}

	got, err := s.ListActiveExpiring(ctx, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
}

func TestForecastHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	none, err := s.LatestForecast(ctx, "st-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, s.SaveForecast(ctx, model.Forecast{ID: "f1", StationID: "st-1", GeneratedAt: base}))
	require.NoError(t, s.SaveForecast(ctx, model.Forecast{ID: "f2", StationID: "st-1", GeneratedAt: base.Add(time.Hour)}))

	latest, err := s.LatestForecast(ctx, "st-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "f2", latest.ID)

	history, err := s.ForecastHistory(ctx, "st-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "f2", history[0].ID, "history is newest first")

	limited, err := s.ForecastHistory(ctx, "st-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "f2", limited[0].ID)
}

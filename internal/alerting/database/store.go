// Package database is the persistence collaborator for alerts, alert
// events, forecasts, and the append-only readings log. The engine talks
// to the Store interface; PgStore backs it with Postgres and
// MemoryStore keeps everything in process for tests and DB-less runs.
package database

import (
	"context"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
)

// AlertFilter narrows ListAlerts. Zero-valued fields match everything.
type AlertFilter struct {
	Status   model.AlertStatus
	Severity model.Severity
	Type     model.AlertType
	Station  string
	Limit    int
}

// Store is the persistence surface the engine depends on. Alerts are
// mutable (but only through the lifecycle manager); events, forecasts,
// and readings are append-only.
type Store interface {
	SaveAlert(ctx context.Context, a model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	FindActiveByDedupKey(ctx context.Context, key string) (*model.Alert, error)
	FindActiveByStation(ctx context.Context, stationID string) ([]model.Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error)
	ListActiveExpiring(ctx context.Context, before time.Time) ([]model.Alert, error)

	AppendEvent(ctx context.Context, e model.AlertEvent) error
	EventsForAlert(ctx context.Context, alertID string) ([]model.AlertEvent, error)

	SaveForecast(ctx context.Context, f model.Forecast) error
	LatestForecast(ctx context.Context, stationID string) (*model.Forecast, error)
	ForecastHistory(ctx context.Context, stationID string, limit int) ([]model.Forecast, error)

	AppendReading(ctx context.Context, r model.StationReading) error
}

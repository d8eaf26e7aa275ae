package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore backs the Store interface with Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore opens a pool and verifies connectivity.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

func (s *PgStore) Close() { s.pool.Close() }

// EnsureSchema creates the tables when they do not exist yet. Alerts are
// the only mutable table; events, forecasts and readings are append-only
// logs.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS alerts (
    id                     TEXT PRIMARY KEY,
    station_id             TEXT NOT NULL,
    alert_type             TEXT NOT NULL,
    severity               TEXT NOT NULL,
    title                  TEXT NOT NULL,
    message                TEXT NOT NULL DEFAULT '',
    status                 TEXT NOT NULL,
    current_value          DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ NOT NULL,
    acknowledged_at        TIMESTAMPTZ,
    acknowledged_by        TEXT NOT NULL DEFAULT '',
    resolved_at            TIMESTAMPTZ,
    resolved_by            TEXT NOT NULL DEFAULT '',
    expires_at             TIMESTAMPTZ,
    triggering_forecast_id TEXT NOT NULL DEFAULT '',
    dedup_key              TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup_status ON alerts (dedup_key, status);
CREATE INDEX IF NOT EXISTS idx_alerts_station ON alerts (station_id);

CREATE TABLE IF NOT EXISTS alert_events (
    id          TEXT PRIMARY KEY,
    alert_id    TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    actor       TEXT NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    reason      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_alert_events_alert ON alert_events (alert_id, ts);

CREATE TABLE IF NOT EXISTS forecasts (
    id                 TEXT PRIMARY KEY,
    station_id         TEXT NOT NULL,
    generated_at       TIMESTAMPTZ NOT NULL,
    model_version      TEXT NOT NULL,
    probability        DOUBLE PRECISION NOT NULL,
    confidence         DOUBLE PRECISION NOT NULL,
    risk_level         TEXT NOT NULL,
    time_to_peak_hours DOUBLE PRECISION NOT NULL,
    duration_hours     DOUBLE PRECISION NOT NULL,
    factor_weights     JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_forecasts_station_time ON forecasts (station_id, generated_at DESC);

CREATE TABLE IF NOT EXISTS readings (
    station_id TEXT NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    type       TEXT NOT NULL,
    value      DOUBLE PRECISION NOT NULL,
    unit       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_readings_station_time ON readings (station_id, ts);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const alertColumns = `id, station_id, alert_type, severity, title, message, status, current_value,
created_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by, expires_at,
triggering_forecast_id, dedup_key`

func (s *PgStore) SaveAlert(ctx context.Context, a model.Alert) error {
	const q = `INSERT INTO alerts (` + alertColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
    severity = EXCLUDED.severity,
    title = EXCLUDED.title,
    message = EXCLUDED.message,
    status = EXCLUDED.status,
    current_value = EXCLUDED.current_value,
    acknowledged_at = EXCLUDED.acknowledged_at,
    acknowledged_by = EXCLUDED.acknowledged_by,
    resolved_at = EXCLUDED.resolved_at,
    resolved_by = EXCLUDED.resolved_by,
    expires_at = EXCLUDED.expires_at`
	_, err := s.pool.Exec(ctx, q,
		a.ID, a.StationID, a.Type, a.Severity, a.Title, a.Message, a.Status, a.CurrentValue,
		a.CreatedAt, a.AcknowledgedAt, a.AcknowledgedBy, a.ResolvedAt, a.ResolvedBy, a.ExpiresAt,
		a.TriggeringForecastID, a.DedupKey)
	return err
}

func (s *PgStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *PgStore) FindActiveByDedupKey(ctx context.Context, key string) (*model.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts WHERE dedup_key = $1 AND status = 'active' LIMIT 1`
	a, err := scanAlert(s.pool.QueryRow(ctx, q, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *PgStore) FindActiveByStation(ctx context.Context, stationID string) ([]model.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts
WHERE station_id = $1 AND status <> 'resolved' ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (s *PgStore) ListAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Severity != "" {
		add("severity = $%d", f.Severity)
	}
	if f.Type != "" {
		add("alert_type = $%d", f.Type)
	}
	if f.Station != "" {
		add("station_id = $%d", f.Station)
	}
	q := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (s *PgStore) ListActiveExpiring(ctx context.Context, before time.Time) ([]model.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts
WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1
ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (s *PgStore) AppendEvent(ctx context.Context, e model.AlertEvent) error {
	const q = `INSERT INTO alert_events (id, alert_id, from_status, to_status, actor, ts, reason)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.pool.Exec(ctx, q, e.ID, e.AlertID, e.FromStatus, e.ToStatus, e.Actor, e.Timestamp, e.Reason)
	return err
}

func (s *PgStore) EventsForAlert(ctx context.Context, alertID string) ([]model.AlertEvent, error) {
	const q = `SELECT id, alert_id, from_status, to_status, actor, ts, reason
FROM alert_events WHERE alert_id = $1 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, q, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AlertEvent
	for rows.Next() {
		var e model.AlertEvent
		if err := rows.Scan(&e.ID, &e.AlertID, &e.FromStatus, &e.ToStatus, &e.Actor, &e.Timestamp, &e.Reason); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PgStore) SaveForecast(ctx context.Context, f model.Forecast) error {
	weights, err := json.Marshal(f.FactorWeights)
	if err != nil {
		return fmt.Errorf("failed to marshal factor weights: %w", err)
	}
	const q = `INSERT INTO forecasts (id, station_id, generated_at, model_version, probability,
confidence, risk_level, time_to_peak_hours, duration_hours, factor_weights)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = s.pool.Exec(ctx, q, f.ID, f.StationID, f.GeneratedAt, f.ModelVersion, f.Probability,
		f.Confidence, f.RiskLevel, f.TimeToPeakHours, f.DurationHours, weights)
	return err
}

func (s *PgStore) LatestForecast(ctx context.Context, stationID string) (*model.Forecast, error) {
	const q = `SELECT id, station_id, generated_at, model_version, probability, confidence,
risk_level, time_to_peak_hours, duration_hours, factor_weights
FROM forecasts WHERE station_id = $1 ORDER BY generated_at DESC LIMIT 1`
	var f model.Forecast
	var weights []byte
	err := s.pool.QueryRow(ctx, q, stationID).Scan(&f.ID, &f.StationID, &f.GeneratedAt,
		&f.ModelVersion, &f.Probability, &f.Confidence, &f.RiskLevel, &f.TimeToPeakHours,
		&f.DurationHours, &weights)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(weights) > 0 {
		if err := json.Unmarshal(weights, &f.FactorWeights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal factor weights: %w", err)
		}
	}
	return &f, nil
}

func (s *PgStore) ForecastHistory(ctx context.Context, stationID string, limit int) ([]model.Forecast, error) {
	q := `SELECT id, station_id, generated_at, model_version, probability, confidence,
risk_level, time_to_peak_hours, duration_hours, factor_weights
FROM forecasts WHERE station_id = $1 ORDER BY generated_at DESC`
	args := []any{stationID}
	if limit > 0 {
		args = append(args, limit)
		q += " LIMIT $2"
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Forecast
	for rows.Next() {
		var f model.Forecast
		var weights []byte
		if err := rows.Scan(&f.ID, &f.StationID, &f.GeneratedAt, &f.ModelVersion, &f.Probability,
			&f.Confidence, &f.RiskLevel, &f.TimeToPeakHours, &f.DurationHours, &weights); err != nil {
			return nil, err
		}
		if len(weights) > 0 {
			if err := json.Unmarshal(weights, &f.FactorWeights); err != nil {
				return nil, fmt.Errorf("failed to unmarshal factor weights: %w", err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PgStore) AppendReading(ctx context.Context, r model.StationReading) error {
	const q = `INSERT INTO readings (station_id, ts, type, value, unit) VALUES ($1,$2,$3,$4,$5)`
	_, err := s.pool.Exec(ctx, q, r.StationID, r.Timestamp, r.Type, r.Value, r.Unit)
	return err
}

func scanAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	err := row.Scan(&a.ID, &a.StationID, &a.Type, &a.Severity, &a.Title, &a.Message, &a.Status,
		&a.CurrentValue, &a.CreatedAt, &a.AcknowledgedAt, &a.AcknowledgedBy, &a.ResolvedAt,
		&a.ResolvedBy, &a.ExpiresAt, &a.TriggeringForecastID, &a.DedupKey)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAlerts(rows pgx.Rows) ([]model.Alert, error) {
	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

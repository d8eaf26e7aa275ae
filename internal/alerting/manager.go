package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coastsense/floodwatch/internal/alerting/database"
	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/notify"
	"github.com/coastsense/floodwatch/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Manager owns every alert mutation. All writes for one dedup key are
// serialized through a per-key mutex, so concurrent triggering events
// for the same condition cannot race a duplicate into existence.
type Manager struct {
	store    database.Store
	notifier notify.Notifier
	clock    clockwork.Clock
	metrics  *observability.Metrics

	keyLocks sync.Map // dedup key -> *sync.Mutex
}

// ManagerOptions configures a Manager. Nil collaborators fall back to
// no-op or real-clock defaults.
type ManagerOptions struct {
	Store    database.Store
	Notifier notify.Notifier
	Clock    clockwork.Clock
	Metrics  *observability.Metrics
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Manager{
		store:    opts.Store,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
}

func (m *Manager) lock(key string) *sync.Mutex {
	mu, _ := m.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Apply folds a directive into the alert set: it creates a new active
// alert when no active alert shares the dedup key, otherwise it
// refreshes the existing one, escalating severity when the directive
// outranks it. Returns the resulting alert and whether it was created.
// Notifications go out after the key lock is released so a slow
// dispatcher cannot stall lifecycle operations.
func (m *Manager) Apply(ctx context.Context, d Directive) (*model.Alert, bool, error) {
	mu := m.lock(d.DedupKey)
	mu.Lock()
	a, created, escalated, err := m.applyLocked(ctx, d)
	mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	switch {
	case created:
		m.dispatch(ctx, m.notifier.AlertRaised, *a)
	case escalated:
		m.dispatch(ctx, m.notifier.AlertEscalated, *a)
	}
	return a, created, nil
}

func (m *Manager) applyLocked(ctx context.Context, d Directive) (a *model.Alert, created, escalated bool, err error) {
	existing, err := m.store.FindActiveByDedupKey(ctx, d.DedupKey)
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to look up active alert: %w", err)
	}
	if existing == nil {
		a, err = m.create(ctx, d)
		return a, true, false, err
	}
	a, escalated, err = m.refresh(ctx, *existing, d)
	return a, false, escalated, err
}

func (m *Manager) create(ctx context.Context, d Directive) (*model.Alert, error) {
	now := m.clock.Now().UTC()
	a := model.Alert{
		ID:                   uuid.NewString(),
		StationID:            d.StationID,
		Type:                 d.Type,
		Severity:             d.Severity,
		Title:                d.Title,
		Message:              d.Message,
		Status:               model.StatusActive,
		CurrentValue:         d.CurrentValue,
		CreatedAt:            now,
		TriggeringForecastID: d.ForecastID,
		DedupKey:             d.DedupKey,
	}
	if d.TTL > 0 {
		exp := now.Add(d.TTL)
		a.ExpiresAt = &exp
	}
	if err := m.store.SaveAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}
	if err := m.appendEvent(ctx, a.ID, "", model.StatusActive, "system", "alert created"); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.AlertsCreated.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		m.metrics.ActiveAlerts.Inc()
	}
	log.Info().Str("alert_id", a.ID).Str("station", a.StationID).
		Str("type", string(a.Type)).Str("severity", string(a.Severity)).Msg("alert created")
	return &a, nil
}

// refresh folds a repeat triggering event into the existing active
// alert: current value, message, and expiry are updated in place, and a
// higher-severity directive escalates it. Severity never de-escalates
// here; easing conditions are an operator's resolve call, not a
// downgrade. Every refresh appends exactly one audit event.
func (m *Manager) refresh(ctx context.Context, a model.Alert, d Directive) (*model.Alert, bool, error) {
	escalated := model.SeverityRank(d.Severity) > model.SeverityRank(a.Severity)
	if escalated {
		a.Severity = d.Severity
		a.Title = d.Title
	}
	a.Message = d.Message
	a.CurrentValue = d.CurrentValue
	a.TriggeringForecastID = d.ForecastID
	if d.TTL > 0 {
		exp := m.clock.Now().UTC().Add(d.TTL)
		a.ExpiresAt = &exp
	}
	if err := m.store.SaveAlert(ctx, a); err != nil {
		return nil, false, fmt.Errorf("failed to update alert: %w", err)
	}
	reason := fmt.Sprintf("condition refreshed at %g", a.CurrentValue)
	if escalated {
		reason = fmt.Sprintf("severity escalated to %s", a.Severity)
		log.Info().Str("alert_id", a.ID).Str("severity", string(a.Severity)).Msg("alert escalated")
	}
	if err := m.appendEvent(ctx, a.ID, model.StatusActive, model.StatusActive, "system", reason); err != nil {
		return nil, false, err
	}
	if m.metrics != nil {
		m.metrics.AlertsUpdated.Inc()
	}
	return &a, escalated, nil
}

// Acknowledge marks an active alert as seen by an operator.
// Acknowledging an alert that is already acknowledged or resolved is an
// idempotent no-op returning the current state unchanged.
func (m *Manager) Acknowledge(ctx context.Context, alertID, actor string) (*model.Alert, error) {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if a == nil {
		return nil, &model.NotFoundError{Kind: "alert", ID: alertID}
	}

	mu := m.lock(a.DedupKey)
	mu.Lock()
	defer mu.Unlock()

	// re-read under the lock; the sweep may have raced us
	a, err = m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if a == nil {
		return nil, &model.NotFoundError{Kind: "alert", ID: alertID}
	}

	if a.Status != model.StatusActive {
		return a, nil
	}

	now := m.clock.Now().UTC()
	a.Status = model.StatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = actor
	if err := m.store.SaveAlert(ctx, *a); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}
	if err := m.appendEvent(ctx, a.ID, model.StatusActive, model.StatusAcknowledged, actor, "acknowledged"); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.ActiveAlerts.Dec()
	}
	log.Info().Str("alert_id", a.ID).Str("actor", actor).Msg("alert acknowledged")
	return a, nil
}

// Resolve closes an alert from either the active or acknowledged state.
// Resolving twice is a conflict.
func (m *Manager) Resolve(ctx context.Context, alertID, actor, reason string) (*model.Alert, error) {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if a == nil {
		return nil, &model.NotFoundError{Kind: "alert", ID: alertID}
	}

	mu := m.lock(a.DedupKey)
	mu.Lock()
	a, err = m.resolveLocked(ctx, alertID, actor, reason)
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, m.notifier.AlertResolved, *a)
	return a, nil
}

func (m *Manager) resolveLocked(ctx context.Context, alertID, actor, reason string) (*model.Alert, error) {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if a == nil {
		return nil, &model.NotFoundError{Kind: "alert", ID: alertID}
	}
	if a.Status == model.StatusResolved {
		return nil, &model.ConflictError{AlertID: alertID, From: a.Status, To: model.StatusResolved}
	}

	from := a.Status
	now := m.clock.Now().UTC()
	a.Status = model.StatusResolved
	a.ResolvedAt = &now
	a.ResolvedBy = actor
	if err := m.store.SaveAlert(ctx, *a); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}
	if err := m.appendEvent(ctx, a.ID, from, model.StatusResolved, actor, reason); err != nil {
		return nil, err
	}
	if m.metrics != nil && from == model.StatusActive {
		m.metrics.ActiveAlerts.Dec()
	}
	log.Info().Str("alert_id", a.ID).Str("actor", actor).Str("reason", reason).Msg("alert resolved")
	return a, nil
}

// SweepExpired resolves every active alert whose expiry has passed.
// Acknowledged alerts are exempt; an operator who has seen an alert
// decides its end. Returns the number of alerts expired.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.clock.Now().UTC()
	expired, err := m.store.ListActiveExpiring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring alerts: %w", err)
	}

	swept := 0
	for _, a := range expired {
		mu := m.lock(a.DedupKey)
		mu.Lock()
		// re-check under the lock; an operator may have beaten us
		cur, err := m.store.GetAlert(ctx, a.ID)
		if err != nil || cur == nil || cur.Status != model.StatusActive ||
			cur.ExpiresAt == nil || cur.ExpiresAt.After(now) {
			mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("alert_id", a.ID).Msg("sweep skipped alert")
			}
			continue
		}
		res, err := m.resolveLocked(ctx, a.ID, "system", "expired")
		mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("alert_id", a.ID).Msg("failed to expire alert")
			continue
		}
		swept++
		if m.metrics != nil {
			m.metrics.AlertsExpired.Inc()
		}
		m.dispatch(ctx, m.notifier.AlertResolved, *res)
	}
	if swept > 0 {
		log.Info().Int("count", swept).Msg("expired alerts swept")
	}
	return swept, nil
}

// StartSweeper runs SweepExpired on the interval until the context is
// cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Dur("interval", interval).Msg("alert expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("alert expiry sweeper stopped")
			return
		case <-ticker.Chan():
			if _, err := m.SweepExpired(ctx); err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// Events returns the audit trail for one alert, oldest first.
func (m *Manager) Events(ctx context.Context, alertID string) ([]model.AlertEvent, error) {
	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if a == nil {
		return nil, &model.NotFoundError{Kind: "alert", ID: alertID}
	}
	return m.store.EventsForAlert(ctx, alertID)
}

func (m *Manager) appendEvent(ctx context.Context, alertID string, from, to model.AlertStatus, actor, reason string) error {
	e := model.AlertEvent{
		ID:         uuid.NewString(),
		AlertID:    alertID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Timestamp:  m.clock.Now().UTC(),
		Reason:     reason,
	}
	if err := m.store.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("failed to append alert event: %w", err)
	}
	return nil
}

// dispatch delivers a notification, logging and counting failures
// without failing the lifecycle operation.
func (m *Manager) dispatch(ctx context.Context, fn func(context.Context, model.Alert) error, a model.Alert) {
	if err := fn(ctx, a); err != nil {
		if m.metrics != nil {
			m.metrics.NotifyFailures.Inc()
		}
		log.Warn().Err(err).Str("alert_id", a.ID).Msg("alert notification failed")
	}
}

package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
)

// MemoryStore is an in-process Store. It backs tests and deployments
// without a reachable Postgres; the engine degrades to it at startup
// when the database cannot be opened.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    map[string]model.Alert
	events    []model.AlertEvent
	forecasts map[string][]model.Forecast // by station, append order
	readings  []model.StationReading
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:    make(map[string]model.Alert),
		forecasts: make(map[string][]model.Forecast),
	}
}

func (s *MemoryStore) SaveAlert(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a
	return nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *MemoryStore) FindActiveByDedupKey(_ context.Context, key string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.DedupKey == key && a.Status == model.StatusActive {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindActiveByStation(_ context.Context, stationID string) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if a.StationID == stationID && a.Status != model.StatusResolved {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out, nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, f AlertFilter) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Station != "" && a.StationID != f.Station {
			continue
		}
		out = append(out, a)
	}
	sortAlerts(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListActiveExpiring(_ context.Context, before time.Time) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if a.Status == model.StatusActive && a.ExpiresAt != nil && a.ExpiresAt.Before(before) {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e model.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) EventsForAlert(_ context.Context, alertID string) ([]model.AlertEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AlertEvent
	for _, e := range s.events {
		if e.AlertID == alertID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveForecast(_ context.Context, f model.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts[f.StationID] = append(s.forecasts[f.StationID], f)
	return nil
}

func (s *MemoryStore) LatestForecast(_ context.Context, stationID string) (*model.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.forecasts[stationID]
	if len(history) == 0 {
		return nil, nil
	}
	f := history[len(history)-1]
	return &f, nil
}

// ForecastHistory returns up to limit forecasts, newest first. A zero
// limit returns everything.
func (s *MemoryStore) ForecastHistory(_ context.Context, stationID string, limit int) ([]model.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.forecasts[stationID]
	out := make([]model.Forecast, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendReading(_ context.Context, r model.StationReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return nil
}

// newest first, ties broken by id for stable output
func sortAlerts(alerts []model.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
}

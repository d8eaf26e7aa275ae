// Package notify fans alert lifecycle events out to external consumers.
package notify

import (
	"context"

	"github.com/coastsense/floodwatch/internal/model"
)

// Notifier receives alert lifecycle events. Implementations must be safe
// for concurrent use; delivery failures are the caller's to count and
// log, never to block the lifecycle on.
type Notifier interface {
	AlertRaised(ctx context.Context, a model.Alert) error
	AlertEscalated(ctx context.Context, a model.Alert) error
	AlertResolved(ctx context.Context, a model.Alert) error
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

func (Noop) AlertRaised(context.Context, model.Alert) error    { return nil }
func (Noop) AlertEscalated(context.Context, model.Alert) error { return nil }
func (Noop) AlertResolved(context.Context, model.Alert) error  { return nil }

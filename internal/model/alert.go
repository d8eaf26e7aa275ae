package model

import (
	"fmt"
	"time"
)

// AlertType classifies the hazard an alert warns about.
type AlertType string

const (
	AlertFlood      AlertType = "flood"
	AlertStormSurge AlertType = "storm_surge"
	AlertTsunami    AlertType = "tsunami"
	AlertCyclone    AlertType = "cyclone"
	AlertSystem     AlertType = "system"
)

// Severity of an alert. Shares label values with RiskLevel but is a
// distinct concept: risk level describes a forecast, severity describes
// an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank orders severities for comparison; unknown values rank
// below low.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// SeverityBucket collapses the four severities into the two dedup
// buckets: a medium event and a low event for the same station and type
// describe the same condition, while a critical event is a different
// condition from a routine one.
func SeverityBucket(s Severity) string {
	if SeverityRank(s) >= SeverityRank(SeverityHigh) {
		return "severe"
	}
	return "routine"
}

// DedupKey builds the composite key that guarantees at most one active
// alert per (station, type, severity bucket).
func DedupKey(stationID string, typ AlertType, sev Severity) string {
	return fmt.Sprintf("%s|%s|%s", stationID, typ, SeverityBucket(sev))
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// Alert is the mutable record of a raised condition. Only the lifecycle
// manager mutates it; everyone else reads.
type Alert struct {
	ID                   string      `json:"id"`
	StationID            string      `json:"station_id"`
	Type                 AlertType   `json:"type"`
	Severity             Severity    `json:"severity"`
	Title                string      `json:"title"`
	Message              string      `json:"message"`
	Status               AlertStatus `json:"status"`
	CurrentValue         float64     `json:"current_value"`
	CreatedAt            time.Time   `json:"created_at"`
	AcknowledgedAt       *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy       string      `json:"acknowledged_by,omitempty"`
	ResolvedAt           *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy           string      `json:"resolved_by,omitempty"`
	ExpiresAt            *time.Time  `json:"expires_at,omitempty"`
	TriggeringForecastID string      `json:"triggering_forecast_id,omitempty"`
	DedupKey             string      `json:"dedup_key"`
}

// AlertEvent is one append-only audit record of a lifecycle transition.
type AlertEvent struct {
	ID         string      `json:"id"`
	AlertID    string      `json:"alert_id"`
	FromStatus AlertStatus `json:"from_status"`
	ToStatus   AlertStatus `json:"to_status"`
	Actor      string      `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Reason     string      `json:"reason"`
}

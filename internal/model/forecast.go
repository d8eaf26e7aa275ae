package model

import "time"

// RiskLevel is the discrete label derived from forecast probability via
// the configured risk bands.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Forecast is an immutable probabilistic risk snapshot for one station.
// Later forecasts supersede earlier ones; history is retained for audit
// and model evaluation.
type Forecast struct {
	ID              string             `json:"id"`
	StationID       string             `json:"station_id"`
	GeneratedAt     time.Time          `json:"generated_at"`
	ModelVersion    string             `json:"model_version"`
	Probability     float64            `json:"probability"`
	Confidence      float64            `json:"confidence"`
	RiskLevel       RiskLevel          `json:"risk_level"`
	TimeToPeakHours float64            `json:"time_to_peak_hours"`
	DurationHours   float64            `json:"duration_hours"`
	FactorWeights   map[string]float64 `json:"factor_weights"`
}

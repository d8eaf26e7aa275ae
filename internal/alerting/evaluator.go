// Package alerting turns forecasts into alert directives and owns the
// alert lifecycle: evaluation against policy, deduplicated creation,
// acknowledgement, resolution, and expiry sweeping.
package alerting

import (
	"fmt"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/policy"
)

// Directive is an evaluator verdict: the condition warrants an alert of
// this type and severity. The lifecycle manager decides whether that
// means creating a new alert or updating an existing one.
type Directive struct {
	StationID    string
	Type         model.AlertType
	Severity     model.Severity
	Title        string
	Message      string
	CurrentValue float64
	ForecastID   string
	DedupKey     string
	TTL          time.Duration
}

// scorerTypes are the alert types derived from forecasts. Tsunami alerts
// come from upstream bulletins and system alerts from the health check;
// neither is the evaluator's to raise.
var scorerTypes = []model.AlertType{
	model.AlertFlood,
	model.AlertStormSurge,
	model.AlertCyclone,
}

// Evaluator applies the alerting policy to forecasts.
type Evaluator struct {
	policy policy.Policy
}

func NewEvaluator(p policy.Policy) *Evaluator {
	return &Evaluator{policy: p}
}

// Evaluate returns one directive per alert type whose thresholds the
// forecast or raw readings meet. A nil slice means no condition
// qualifies.
func (e *Evaluator) Evaluate(f model.Forecast, w model.FeatureWindow) []Directive {
	var out []Directive
	for _, typ := range scorerTypes {
		tp := e.policy.For(typ)

		sev, value, ok := e.severityFor(tp, f, w)
		if !ok {
			continue
		}
		if model.SeverityRank(sev) < model.SeverityRank(tp.MinSeverity) {
			continue
		}

		out = append(out, Directive{
			StationID:    f.StationID,
			Type:         typ,
			Severity:     sev,
			Title:        title(typ, sev, f.StationID),
			Message:      message(typ, f),
			CurrentValue: value,
			ForecastID:   f.ID,
			DedupKey:     model.DedupKey(f.StationID, typ, sev),
			TTL:          tp.TTL,
		})
	}
	return out
}

// severityFor resolves severity from probability thresholds and then
// lets raw-value cutoffs escalate it. Cutoffs can qualify a type even
// when no probability threshold is met.
func (e *Evaluator) severityFor(tp policy.TypePolicy, f model.Forecast, w model.FeatureWindow) (model.Severity, float64, bool) {
	sev, ok := tp.SeverityFromProbability(f.Probability)
	value := f.Probability

	for _, c := range tp.Cutoffs {
		agg, present := w.Aggregates[c.Reading]
		if !present || agg.Count == 0 {
			continue
		}
		if !c.Triggered(agg.Last) {
			continue
		}
		if model.SeverityRank(c.Severity) > model.SeverityRank(sev) {
			sev = c.Severity
			value = agg.Last
			ok = true
		}
	}
	return sev, value, ok
}

func title(typ model.AlertType, sev model.Severity, stationID string) string {
	var hazard string
	switch typ {
	case model.AlertFlood:
		hazard = "Flood risk"
	case model.AlertStormSurge:
		hazard = "Storm surge"
	case model.AlertCyclone:
		hazard = "Cyclone conditions"
	case model.AlertTsunami:
		hazard = "Tsunami warning"
	case model.AlertSystem:
		hazard = "System health"
	default:
		hazard = string(typ)
	}
	return fmt.Sprintf("[%s] %s at station %s", sev, hazard, stationID)
}

func message(typ model.AlertType, f model.Forecast) string {
	return fmt.Sprintf("%s probability %.0f%% (%s risk), peak expected in %.1fh, estimated duration %.1fh",
		typ, f.Probability*100, f.RiskLevel, f.TimeToPeakHours, f.DurationHours)
}

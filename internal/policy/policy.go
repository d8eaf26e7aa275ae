// Package policy holds the externally supplied alerting thresholds: risk
// bands, per-type severity thresholds, raw-value cutoffs that bypass the
// model, and expiry TTLs. Numbers live in configuration, not code.
package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"gopkg.in/yaml.v3"
)

// RiskBands maps probability to a discrete risk level. Values are lower
// bounds; everything below Medium is low. Bands are non-overlapping by
// construction.
type RiskBands struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// Level returns the risk level for a probability.
func (b RiskBands) Level(p float64) model.RiskLevel {
	switch {
	case p >= b.Critical:
		return model.RiskCritical
	case p >= b.High:
		return model.RiskHigh
	case p >= b.Medium:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// Cutoff forces a minimum severity from a raw reading, bypassing the
// model entirely. Min triggers at or above the value, Max at or below
// (pressure drops below a floor, for example).
type Cutoff struct {
	Reading  model.ReadingType `yaml:"reading"`
	Min      *float64          `yaml:"min,omitempty"`
	Max      *float64          `yaml:"max,omitempty"`
	Severity model.Severity    `yaml:"severity"`
}

// Triggered reports whether the cutoff fires for a value.
func (c Cutoff) Triggered(v float64) bool {
	if c.Min != nil && v >= *c.Min {
		return true
	}
	if c.Max != nil && v <= *c.Max {
		return true
	}
	return false
}

// TypePolicy configures alerting for one alert type.
type TypePolicy struct {
	// MinSeverity is the lowest severity that produces a directive.
	MinSeverity model.Severity `yaml:"min_severity"`
	// TTL bounds the life of an unacknowledged alert; zero means no
	// auto-expiry.
	TTL time.Duration `yaml:"-"`
	// Probability holds lower-bound probability thresholds per severity.
	// Empty means the type is cutoff-driven only.
	Probability map[model.Severity]float64 `yaml:"probability,omitempty"`
	Cutoffs     []Cutoff                   `yaml:"cutoffs,omitempty"`

	RawTTL string `yaml:"ttl,omitempty"`
}

// Policy is the full alerting policy.
type Policy struct {
	Bands RiskBands                      `yaml:"risk_bands"`
	Types map[model.AlertType]TypePolicy `yaml:"types"`
}

func f64(v float64) *float64 { return &v }

// Default returns the shipped policy. Every number here is a default the
// deployment is expected to override.
func Default() Policy {
	return Policy{
		Bands: RiskBands{Medium: 0.25, High: 0.5, Critical: 0.75},
		Types: map[model.AlertType]TypePolicy{
			model.AlertFlood: {
				MinSeverity: model.SeverityMedium,
				TTL:         12 * time.Hour,
				Probability: map[model.Severity]float64{
					model.SeverityLow:      0.2,
					model.SeverityMedium:   0.4,
					model.SeverityHigh:     0.7,
					model.SeverityCritical: 0.9,
				},
				Cutoffs: []Cutoff{
					{Reading: model.ReadingTide, Min: f64(8.0), Severity: model.SeverityCritical},
				},
			},
			model.AlertStormSurge: {
				MinSeverity: model.SeverityMedium,
				TTL:         8 * time.Hour,
				Cutoffs: []Cutoff{
					{Reading: model.ReadingWave, Min: f64(3.0), Severity: model.SeverityMedium},
					{Reading: model.ReadingWave, Min: f64(4.0), Severity: model.SeverityHigh},
					{Reading: model.ReadingWave, Min: f64(5.0), Severity: model.SeverityCritical},
				},
			},
			model.AlertCyclone: {
				MinSeverity: model.SeverityMedium,
				TTL:         24 * time.Hour,
				Cutoffs: []Cutoff{
					{Reading: model.ReadingWind, Min: f64(60.0), Severity: model.SeverityMedium},
					{Reading: model.ReadingWind, Min: f64(90.0), Severity: model.SeverityHigh},
					{Reading: model.ReadingWind, Min: f64(120.0), Severity: model.SeverityCritical},
					{Reading: model.ReadingPressure, Max: f64(990.0), Severity: model.SeverityHigh},
				},
			},
			// Tsunami alerts come from upstream bulletins, never from the
			// scorer, and never expire on their own.
			model.AlertTsunami: {
				MinSeverity: model.SeverityHigh,
				TTL:         0,
			},
			model.AlertSystem: {
				MinSeverity: model.SeverityMedium,
				TTL:         4 * time.Hour,
			},
		},
	}
}

// Load reads a policy file, falling back to Default when path is empty.
// File values override the defaults per alert type.
func Load(path string) (Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	var file Policy
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if file.Bands != (RiskBands{}) {
		p.Bands = file.Bands
	}
	for typ, tp := range file.Types {
		if tp.RawTTL != "" {
			ttl, perr := time.ParseDuration(tp.RawTTL)
			if perr != nil {
				return Policy{}, fmt.Errorf("invalid ttl for %s: %w", typ, perr)
			}
			tp.TTL = ttl
		}
		p.Types[typ] = tp
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks band ordering and severity names.
func (p Policy) Validate() error {
	b := p.Bands
	if !(0 < b.Medium && b.Medium < b.High && b.High < b.Critical && b.Critical <= 1) {
		return fmt.Errorf("risk bands must satisfy 0 < medium < high < critical <= 1, got %+v", b)
	}
	for typ, tp := range p.Types {
		if tp.MinSeverity != "" && model.SeverityRank(tp.MinSeverity) == 0 {
			return fmt.Errorf("unknown min_severity %q for type %s", tp.MinSeverity, typ)
		}
		for sev := range tp.Probability {
			if model.SeverityRank(sev) == 0 {
				return fmt.Errorf("unknown severity %q in probability thresholds for type %s", sev, typ)
			}
		}
		for _, c := range tp.Cutoffs {
			if !c.Reading.Valid() {
				return fmt.Errorf("unknown reading type %q in cutoff for type %s", c.Reading, typ)
			}
			if c.Min == nil && c.Max == nil {
				return fmt.Errorf("cutoff for type %s needs min or max", typ)
			}
		}
	}
	return nil
}

// For returns the policy for an alert type, defaulting to a policy that
// never alerts when the type is not configured.
func (p Policy) For(typ model.AlertType) TypePolicy {
	if tp, ok := p.Types[typ]; ok {
		return tp
	}
	return TypePolicy{MinSeverity: model.SeverityCritical}
}

// SeverityFromProbability resolves the highest severity whose threshold
// the probability meets; ok is false when none do.
func (tp TypePolicy) SeverityFromProbability(prob float64) (model.Severity, bool) {
	best := model.Severity("")
	for sev, min := range tp.Probability {
		if prob >= min && model.SeverityRank(sev) > model.SeverityRank(best) {
			best = sev
		}
	}
	return best, best != ""
}

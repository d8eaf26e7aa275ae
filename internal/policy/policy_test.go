package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	assert.Equal(t, 12*time.Hour, p.For(model.AlertFlood).TTL)
	assert.Equal(t, 8*time.Hour, p.For(model.AlertStormSurge).TTL)
	assert.Equal(t, 24*time.Hour, p.For(model.AlertCyclone).TTL)
	assert.Equal(t, time.Duration(0), p.For(model.AlertTsunami).TTL)
	assert.Equal(t, 4*time.Hour, p.For(model.AlertSystem).TTL)
}

func TestRiskBandLevels(t *testing.T) {
	b := RiskBands{Medium: 0.25, High: 0.5, Critical: 0.75}

	tests := []struct {
		p    float64
		want model.RiskLevel
	}{
		{0.0, model.RiskLow},
		{0.24, model.RiskLow},
		{0.25, model.RiskMedium},
		{0.49, model.RiskMedium},
		{0.5, model.RiskHigh},
		{0.74, model.RiskHigh},
		{0.75, model.RiskCritical},
		{1.0, model.RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Level(tt.p), "p=%v", tt.p)
	}
}

func TestSeverityFromProbability(t *testing.T) {
	tp := Default().For(model.AlertFlood)

	sev, ok := tp.SeverityFromProbability(0.95)
	require.True(t, ok)
	assert.Equal(t, model.SeverityCritical, sev)

	sev, ok = tp.SeverityFromProbability(0.5)
	require.True(t, ok)
	assert.Equal(t, model.SeverityMedium, sev)

	_, ok = tp.SeverityFromProbability(0.1)
	assert.False(t, ok)
}

func TestCutoffTriggered(t *testing.T) {
	min := Cutoff{Reading: model.ReadingWave, Min: f64(4.0), Severity: model.SeverityHigh}
	assert.True(t, min.Triggered(4.0))
	assert.True(t, min.Triggered(5.5))
	assert.False(t, min.Triggered(3.9))

	max := Cutoff{Reading: model.ReadingPressure, Max: f64(990.0), Severity: model.SeverityHigh}
	assert.True(t, max.Triggered(985.0))
	assert.False(t, max.Triggered(1000.0))
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
risk_bands:
  medium: 0.3
  high: 0.6
  critical: 0.85
types:
  flood:
    min_severity: high
    ttl: 6h
    probability:
      high: 0.6
      critical: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RiskBands{Medium: 0.3, High: 0.6, Critical: 0.85}, p.Bands)

	flood := p.For(model.AlertFlood)
	assert.Equal(t, model.SeverityHigh, flood.MinSeverity)
	assert.Equal(t, 6*time.Hour, flood.TTL)

	// unmentioned types keep their defaults
	assert.Equal(t, 24*time.Hour, p.For(model.AlertCyclone).TTL)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Bands, p.Bands)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad ttl", func(t *testing.T) {
		path := filepath.Join(dir, "ttl.yaml")
		require.NoError(t, os.WriteFile(path, []byte("types:\n  flood:\n    ttl: soon\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("inverted bands", func(t *testing.T) {
		path := filepath.Join(dir, "bands.yaml")
		require.NoError(t, os.WriteFile(path, []byte("risk_bands:\n  medium: 0.9\n  high: 0.5\n  critical: 0.95\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestForUnknownTypeNeverAlerts(t *testing.T) {
	p := Default()
	tp := p.For(model.AlertType("asteroid"))
	assert.Equal(t, model.SeverityCritical, tp.MinSeverity)
	assert.Empty(t, tp.Probability)
	assert.Empty(t, tp.Cutoffs)
}

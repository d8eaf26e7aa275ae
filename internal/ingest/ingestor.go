// Package ingest validates and buffers per-station sensor readings and
// computes rolling feature windows over them. Per-station state is
// isolated; ingesting for one station never touches another.
package ingest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/coastsense/floodwatch/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// physicalRange bounds a reading type to physically plausible values.
// Readings outside the range are rejected before any state change.
type physicalRange struct {
	Min, Max float64
}

var physicalRanges = map[model.ReadingType]physicalRange{
	model.ReadingTide:        {Min: -3, Max: 12},    // metres relative to datum
	model.ReadingWave:        {Min: 0, Max: 25},     // metres
	model.ReadingWind:        {Min: 0, Max: 300},    // km/h
	model.ReadingRainfall:    {Min: 0, Max: 500},    // mm/h
	model.ReadingPressure:    {Min: 870, Max: 1085}, // hPa, recorded extremes
	model.ReadingTemperature: {Min: -10, Max: 50},   // °C
}

type stationBuffer struct {
	mu       sync.RWMutex
	readings []model.StationReading
	lastSeen time.Time
}

// Ingestor owns the per-station sliding buffers.
type Ingestor struct {
	mu       sync.RWMutex
	stations map[string]*stationBuffer

	retention time.Duration
	window    time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

// Options configures an Ingestor. Zero durations fall back to defaults.
type Options struct {
	Retention time.Duration // buffer retention, default 48h
	Window    time.Duration // feature window span, default 6h
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
}

func New(opts Options) *Ingestor {
	if opts.Retention <= 0 {
		opts.Retention = 48 * time.Hour
	}
	if opts.Window <= 0 {
		opts.Window = 6 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Ingestor{
		stations:  make(map[string]*stationBuffer),
		retention: opts.Retention,
		window:    opts.Window,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
	}
}

// Ingest validates the reading and appends it to the station's buffer.
// On validation failure nothing changes and a ValidationError is
// returned.
func (i *Ingestor) Ingest(r model.StationReading) error {
	if err := validate(r); err != nil {
		if i.metrics != nil {
			i.metrics.ReadingsRejected.Inc()
		}
		return err
	}

	buf := i.buffer(r.StationID)
	buf.mu.Lock()
	defer buf.mu.Unlock()

	n := len(buf.readings)
	buf.readings = append(buf.readings, r)
	// readings usually arrive in order; sort only on the rare late sample
	if n > 0 && buf.readings[n-1].Timestamp.After(r.Timestamp) {
		sort.SliceStable(buf.readings, func(a, b int) bool {
			return buf.readings[a].Timestamp.Before(buf.readings[b].Timestamp)
		})
	}
	if r.Timestamp.After(buf.lastSeen) {
		buf.lastSeen = r.Timestamp
	}
	i.compactLocked(buf)

	if i.metrics != nil {
		i.metrics.ReadingsIngested.Inc()
	}
	log.Debug().Str("station", r.StationID).Str("type", string(r.Type)).Float64("value", r.Value).Msg("reading ingested")
	return nil
}

func validate(r model.StationReading) error {
	if r.StationID == "" {
		return &model.ValidationError{Field: "station_id", Value: "", Reason: "required"}
	}
	if !r.Type.Valid() {
		return &model.ValidationError{Field: "type", Value: string(r.Type), Reason: "unknown reading type"}
	}
	if r.Timestamp.IsZero() {
		return &model.ValidationError{Field: "timestamp", Value: "", Reason: "required"}
	}
	pr := physicalRanges[r.Type]
	if r.Value < pr.Min || r.Value > pr.Max {
		return &model.ValidationError{
			Field:  "value",
			Value:  fmt.Sprintf("%g", r.Value),
			Reason: fmt.Sprintf("%s outside physical range [%g, %g]", r.Type, pr.Min, pr.Max),
		}
	}
	return nil
}

// compactLocked discards readings older than the retention horizon.
// Caller holds buf.mu.
func (i *Ingestor) compactLocked(buf *stationBuffer) {
	horizon := i.clock.Now().Add(-i.retention)
	cut := 0
	for cut < len(buf.readings) && buf.readings[cut].Timestamp.Before(horizon) {
		cut++
	}
	if cut > 0 {
		buf.readings = append(buf.readings[:0:0], buf.readings[cut:]...)
	}
}

func (i *Ingestor) buffer(stationID string) *stationBuffer {
	i.mu.RLock()
	buf, ok := i.stations[stationID]
	i.mu.RUnlock()
	if ok {
		return buf
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if buf, ok = i.stations[stationID]; ok {
		return buf
	}
	buf = &stationBuffer{}
	i.stations[stationID] = buf
	return buf
}

// Features computes the feature window for a station as of the given
// time: mean, max, min, last value and first derivative per reading
// type present in the window.
func (i *Ingestor) Features(stationID string, asOf time.Time) model.FeatureWindow {
	from := asOf.Add(-i.window)
	w := model.FeatureWindow{
		StationID:  stationID,
		From:       from,
		To:         asOf,
		Aggregates: make(map[model.ReadingType]model.Aggregate),
	}

	i.mu.RLock()
	buf, ok := i.stations[stationID]
	i.mu.RUnlock()
	if !ok {
		return w
	}

	buf.mu.RLock()
	defer buf.mu.RUnlock()

	type series struct {
		first   model.StationReading
		last    model.StationReading
		sum     float64
		max     float64
		min     float64
		count   int
	}
	byType := make(map[model.ReadingType]*series)
	for _, r := range buf.readings {
		if r.Timestamp.Before(from) || r.Timestamp.After(asOf) {
			continue
		}
		s, ok := byType[r.Type]
		if !ok {
			s = &series{first: r, max: r.Value, min: r.Value}
			byType[r.Type] = s
		}
		s.last = r
		s.sum += r.Value
		if r.Value > s.max {
			s.max = r.Value
		}
		if r.Value < s.min {
			s.min = r.Value
		}
		s.count++
	}

	for typ, s := range byType {
		agg := model.Aggregate{
			Mean:   s.sum / float64(s.count),
			Max:    s.max,
			Min:    s.min,
			Last:   s.last.Value,
			LastAt: s.last.Timestamp,
			Count:  s.count,
		}
		if hours := s.last.Timestamp.Sub(s.first.Timestamp).Hours(); hours > 0 {
			agg.Rate = (s.last.Value - s.first.Value) / hours
		}
		w.Aggregates[typ] = agg
	}
	return w
}

// Stations lists every station with buffered readings.
func (i *Ingestor) Stations() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, 0, len(i.stations))
	for id := range i.stations {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LastSeen returns the newest reading timestamp for a station.
func (i *Ingestor) LastSeen(stationID string) (time.Time, bool) {
	i.mu.RLock()
	buf, ok := i.stations[stationID]
	i.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	buf.mu.RLock()
	defer buf.mu.RUnlock()
	if buf.lastSeen.IsZero() {
		return time.Time{}, false
	}
	return buf.lastSeen, true
}

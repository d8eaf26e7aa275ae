package model

import "time"

// ReadingType identifies the sensor channel a reading came from.
type ReadingType string

const (
	ReadingTide        ReadingType = "tide"
	ReadingWave        ReadingType = "wave"
	ReadingWind        ReadingType = "wind"
	ReadingRainfall    ReadingType = "rainfall"
	ReadingPressure    ReadingType = "pressure"
	ReadingTemperature ReadingType = "temperature"
)

// ReadingTypes lists every channel a station may report, in canonical order.
var ReadingTypes = []ReadingType{
	ReadingTide,
	ReadingWave,
	ReadingWind,
	ReadingRainfall,
	ReadingPressure,
	ReadingTemperature,
}

// Valid reports whether t is a known reading type.
func (t ReadingType) Valid() bool {
	switch t {
	case ReadingTide, ReadingWave, ReadingWind, ReadingRainfall, ReadingPressure, ReadingTemperature:
		return true
	}
	return false
}

// StationReading is a single sensor sample from a monitoring station.
// Immutable once recorded.
type StationReading struct {
	StationID string      `json:"station_id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      ReadingType `json:"type"`
	Value     float64     `json:"value"`
	Unit      string      `json:"unit"`
}

// Aggregate summarizes one reading type inside a feature window.
// Rate is the first derivative in value units per hour.
type Aggregate struct {
	Mean   float64   `json:"mean"`
	Max    float64   `json:"max"`
	Min    float64   `json:"min"`
	Last   float64   `json:"last"`
	LastAt time.Time `json:"last_at"`
	Rate   float64   `json:"rate"`
	Count  int       `json:"count"`
}

// FeatureWindow is the rolling aggregation of recent readings for one
// station. It is recomputed from the buffer on every read and never
// persisted.
type FeatureWindow struct {
	StationID  string                    `json:"station_id"`
	From       time.Time                 `json:"from"`
	To         time.Time                 `json:"to"`
	Aggregates map[ReadingType]Aggregate `json:"aggregates"`
}

// Empty reports whether the window holds no readings at all.
func (w FeatureWindow) Empty() bool {
	for _, a := range w.Aggregates {
		if a.Count > 0 {
			return false
		}
	}
	return true
}

// Newest returns the timestamp of the most recent reading in the window
// and false when the window is empty.
func (w FeatureWindow) Newest() (time.Time, bool) {
	var newest time.Time
	found := false
	for _, a := range w.Aggregates {
		if a.Count > 0 && a.LastAt.After(newest) {
			newest = a.LastAt
			found = true
		}
	}
	return newest, found
}

package domain

import (
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// Severity is the four-level hazard classification used for display.
type Severity string

const (
	SeverityUnknown  Severity = "unknown"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityExtreme  Severity = "extreme"
)

// Hazard is a time- and geometry-bounded weather warning. Hazards are read
// from the upstream feed and never mutated.
type Hazard struct {
	ID         string            `json:"id"`
	Event      string            `json:"event"`
	Headline   string            `json:"headline,omitempty"`
	Severity   Severity          `json:"severity"`
	Color      string            `json:"color,omitempty"`
	ValidFrom  time.Time         `json:"valid_from"`
	ValidTo    time.Time         `json:"valid_to"`
	ExpiresURL string            `json:"expires_url,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
}

// ValidAt reports whether t falls inside [ValidFrom, ValidTo], inclusive.
func (h Hazard) ValidAt(t time.Time) bool {
	return !t.Before(h.ValidFrom) && !t.After(h.ValidTo)
}

// Bounds is the rectangular geographic extent of a map viewport, in degrees.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Contains reports whether the point lies inside the bounds, edges included.
func (b Bounds) Contains(lon, lat float64) bool {
	return lon >= b.West && lon <= b.East && lat >= b.South && lat <= b.North
}

// Valid reports whether the bounds describe a non-degenerate rectangle.
func (b Bounds) Valid() bool {
	return b.West < b.East && b.South < b.North &&
		b.West >= -180 && b.East <= 180 && b.South >= -90 && b.North <= 90
}

package radar

import (
	"time"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
)

// Layer is a radar image layer owned by the map.
type Layer interface {
	SetOpacity(opacity float64)
}

// Map is the map widget the frames are drawn on. AddLayer starts loading
// the layer's imagery and must not block on it.
type Map interface {
	NewRadarLayer(ts time.Time, opacity float64) Layer
	AddLayer(layer Layer)
	RemoveLayer(layer Layer)
}

// ViewportSetter is implemented by maps that track the viewport.
type ViewportSetter interface {
	SetViewport(bounds domain.Bounds)
}

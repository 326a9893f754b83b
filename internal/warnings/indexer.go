package warnings

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// Index maps each frame of one frame set to the IDs of the hazards active
// at that frame's timestamp. It is bound to the generation it was computed
// for and never reused across generations.
type Index struct {
	Generation uuid.UUID
	Sets       [][]string
}

// EmptyIndex returns an index with no hazards for any of n frames.
func EmptyIndex(generation uuid.UUID, n int) Index {
	sets := make([][]string, n)
	for i := range sets {
		sets[i] = []string{}
	}
	return Index{Generation: generation, Sets: sets}
}

// Active returns the hazard IDs for frame i, or nil when i is out of range.
func (x Index) Active(i int) []string {
	if i < 0 || i >= len(x.Sets) {
		return nil
	}
	return x.Sets[i]
}

// Indexer slices hazards per frame.
type Indexer struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIndexer creates a warning indexer.
func NewIndexer(logger *slog.Logger, metrics *observability.Metrics) *Indexer {
	return &Indexer{logger: logger, metrics: metrics}
}

// ComputeIndex returns, for each timestamp, the hazards valid at that
// instant (bounds inclusive) whose outline reaches into bounds. Hazards with
// unusable geometry are excluded from every frame.
func (ix *Indexer) ComputeIndex(hazards []domain.Hazard, generation uuid.UUID, timestamps []time.Time, bounds domain.Bounds) Index {
	idx := EmptyIndex(generation, len(timestamps))

	visible := make([]domain.Hazard, 0, len(hazards))
	for _, h := range hazards {
		ok, err := FirstRingIntersects(h.Geometry, bounds)
		if err != nil {
			ix.metrics.HazardsSkipped.Inc()
			ix.logger.Debug("hazard excluded", "hazard", h.ID, "error", err)
			continue
		}
		if ok {
			visible = append(visible, h)
		}
	}

	for i, ts := range timestamps {
		for _, h := range visible {
			if h.ValidAt(ts) {
				idx.Sets[i] = append(idx.Sets[i], h.ID)
			}
		}
	}
	return idx
}

// FirstRingIntersects approximates polygon/viewport intersection by testing
// whether any vertex of the outer ring lies inside bounds. For a
// MultiPolygon only the first polygon is considered. A polygon that fully
// encloses the viewport without a vertex inside it is reported as not
// intersecting.
func FirstRingIntersects(g *geojson.Geometry, bounds domain.Bounds) (bool, error) {
	if g == nil {
		return false, fmt.Errorf("%w: no geometry", domain.ErrGeometry)
	}

	var ring [][]float64
	switch {
	case g.IsPolygon():
		if len(g.Polygon) > 0 {
			ring = g.Polygon[0]
		}
	case g.IsMultiPolygon():
		if len(g.MultiPolygon) > 0 && len(g.MultiPolygon[0]) > 0 {
			ring = g.MultiPolygon[0][0]
		}
	default:
		return false, fmt.Errorf("%w: unsupported geometry type %s", domain.ErrGeometry, g.Type)
	}
	if len(ring) == 0 {
		return false, fmt.Errorf("%w: empty outer ring", domain.ErrGeometry)
	}

	for _, pt := range ring {
		if len(pt) < 2 {
			return false, fmt.Errorf("%w: short coordinate", domain.ErrGeometry)
		}
		if bounds.Contains(pt[0], pt[1]) {
			return true, nil
		}
	}
	return false, nil
}

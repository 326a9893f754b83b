// Package tilemap is a headless radar.Map. Each radar layer is a WMS-T
// GetMap image for the current viewport, preloaded through the fetch
// dispatcher so it lands in the tile cache.
package tilemap

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/fetch"
	"github.com/couchcryptid/storm-radar-overlay/internal/radar"
)

// Fetcher resolves a URL through the offline-aware dispatcher.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Status is a layer's imagery state.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// Options configures the WMS requests.
type Options struct {
	WMSURL   string
	Layer    string
	Format   string
	Width    int
	Height   int
	Viewport domain.Bounds
	// TimeStep aligns the TIME parameter down to the radar scan cadence.
	TimeStep time.Duration
}

// Layer is one radar image on the map.
type Layer struct {
	ID        uuid.UUID
	Timestamp time.Time
	URL       string

	mu      sync.Mutex
	opacity float64
	status  Status
}

// SetOpacity implements radar.Layer.
func (l *Layer) SetOpacity(opacity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opacity = opacity
}

// Opacity returns the current opacity.
func (l *Layer) Opacity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opacity
}

// Status returns the imagery state.
func (l *Layer) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Layer) setStatus(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = s
}

// LayerInfo is a read-only view of an attached layer.
type LayerInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Opacity   float64   `json:"opacity"`
	Status    Status    `json:"status"`
}

// Map holds the attached radar layers.
type Map struct {
	ctx     context.Context
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	viewport domain.Bounds
	layers   []*Layer
	onLoaded func(*Layer)
	wg       sync.WaitGroup
}

// New creates a headless map. Preloads run until ctx is cancelled.
func New(ctx context.Context, fetcher Fetcher, opts Options, logger *slog.Logger) *Map {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	if opts.Format == "" {
		opts.Format = "image/png"
	}
	return &Map{
		ctx:      ctx,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
		viewport: opts.Viewport,
	}
}

// OnLoaded registers a callback run when a layer's imagery arrives.
func (m *Map) OnLoaded(fn func(*Layer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLoaded = fn
}

// NewRadarLayer implements radar.Map.
func (m *Map) NewRadarLayer(ts time.Time, opacity float64) radar.Layer {
	m.mu.Lock()
	bounds := m.viewport
	m.mu.Unlock()

	return &Layer{
		ID:        uuid.New(),
		Timestamp: ts,
		URL:       m.getMapURL(ts, bounds),
		opacity:   opacity,
		status:    StatusPending,
	}
}

// AddLayer implements radar.Map. The layer's image is requested in the
// background.
func (m *Map) AddLayer(layer radar.Layer) {
	l, ok := layer.(*Layer)
	if !ok {
		m.logger.Error("foreign layer added to tile map", "type", fmt.Sprintf("%T", layer))
		return
	}

	m.mu.Lock()
	m.layers = append(m.layers, l)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.preload(l)
}

// RemoveLayer implements radar.Map.
func (m *Map) RemoveLayer(layer radar.Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, l := range m.layers {
		if radar.Layer(l) == layer {
			m.layers = append(m.layers[:i], m.layers[i+1:]...)
			return
		}
	}
}

// SetViewport implements radar.ViewportSetter. Layers created afterwards
// cover the new bounds.
func (m *Map) SetViewport(bounds domain.Bounds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport = bounds
}

// Layers returns the attached layers in the order they were added.
func (m *Map) Layers() []LayerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LayerInfo, len(m.layers))
	for i, l := range m.layers {
		out[i] = LayerInfo{
			ID:        l.ID.String(),
			Timestamp: l.Timestamp,
			URL:       l.URL,
			Opacity:   l.Opacity(),
			Status:    l.Status(),
		}
	}
	return out
}

// Wait blocks until every preload has finished.
func (m *Map) Wait() {
	m.wg.Wait()
}

func (m *Map) preload(l *Layer) {
	defer m.wg.Done()

	resp, err := m.fetcher.Fetch(m.ctx, l.URL)
	if err != nil || !resp.OK() {
		l.setStatus(StatusFailed)
		m.logger.Debug("radar image unavailable", "layer", l.ID, "timestamp", l.Timestamp, "error", err)
		return
	}
	l.setStatus(StatusLoaded)

	m.mu.Lock()
	fn := m.onLoaded
	m.mu.Unlock()
	if fn != nil {
		fn(l)
	}
}

// getMapURL builds the WMS-T GetMap request for one frame. Opacity is a
// layer property applied when compositing, never a query parameter, so one
// cached image serves every opacity a frame passes through.
func (m *Map) getMapURL(ts time.Time, b domain.Bounds) string {
	t := ts.UTC()
	if m.opts.TimeStep > 0 {
		t = t.Truncate(m.opts.TimeStep)
	}
	q := url.Values{
		"SERVICE":     {"WMS"},
		"VERSION":     {"1.1.1"},
		"REQUEST":     {"GetMap"},
		"LAYERS":      {m.opts.Layer},
		"STYLES":      {""},
		"FORMAT":      {m.opts.Format},
		"TRANSPARENT": {"true"},
		"SRS":         {"EPSG:4326"},
		"BBOX":        {formatBBox(b)},
		"WIDTH":       {strconv.Itoa(m.opts.Width)},
		"HEIGHT":      {strconv.Itoa(m.opts.Height)},
		"TIME":        {t.Format(time.RFC3339)},
	}
	return m.opts.WMSURL + "?" + q.Encode()
}

func formatBBox(b domain.Bounds) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.West) + "," + f(b.South) + "," + f(b.East) + "," + f(b.North)
}

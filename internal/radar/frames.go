package radar

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// Frame is one timestamped radar layer in the animation.
type Frame struct {
	Timestamp time.Time
	Layer     Layer
	Opacity   float64
	Loaded    bool
}

// FrameSet is the ordered frames of one load cycle, oldest first.
type FrameSet struct {
	Generation uuid.UUID
	Frames     []Frame
}

// Len returns the number of frames.
func (fs *FrameSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Frames)
}

// Timestamps returns the frame timestamps in order.
func (fs *FrameSet) Timestamps() []time.Time {
	if fs == nil {
		return nil
	}
	out := make([]time.Time, len(fs.Frames))
	for i, f := range fs.Frames {
		out[i] = f.Timestamp
	}
	return out
}

// Animated reports whether the set has more than one frame to play.
func (fs *FrameSet) Animated() bool {
	return fs.Len() > 1
}

// FrameManager builds frame sets on a map. At most one frame set exists at
// a time.
type FrameManager struct {
	m       Map
	clock   clockwork.Clock
	visible float64
	current *FrameSet
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFrameManager creates a frame manager drawing on m.
func NewFrameManager(m Map, clock clockwork.Clock, visibleOpacity float64, logger *slog.Logger, metrics *observability.Metrics) *FrameManager {
	return &FrameManager{
		m:       m,
		clock:   clock,
		visible: visibleOpacity,
		logger:  logger,
		metrics: metrics,
	}
}

// Build tears down the current frame set and creates count frames spaced
// interval apart, the newest at the current time. Frame 0 starts visible.
// Every layer is added to the map before Build returns; their imagery loads
// in the background. A count below 2 yields a single static frame.
func (fm *FrameManager) Build(count int, interval time.Duration) *FrameSet {
	fm.Teardown()

	if count < 1 {
		count = 1
	}
	now := fm.clock.Now()
	fs := &FrameSet{Generation: uuid.New(), Frames: make([]Frame, count)}

	for i := range fs.Frames {
		ts := now.Add(-time.Duration(count-1-i) * interval)
		opacity := 0.0
		if i == 0 {
			opacity = fm.visible
		}
		fs.Frames[i] = Frame{
			Timestamp: ts,
			Layer:     fm.m.NewRadarLayer(ts, opacity),
			Opacity:   opacity,
		}
	}
	for _, f := range fs.Frames {
		fm.m.AddLayer(f.Layer)
	}

	fm.current = fs
	fm.metrics.FrameSetBuilds.Inc()
	fm.logger.Info("frame set built",
		"generation", fs.Generation,
		"frames", count,
		"oldest", fs.Frames[0].Timestamp,
		"newest", fs.Frames[count-1].Timestamp,
	)
	return fs
}

// Teardown removes every layer of the current frame set from the map.
func (fm *FrameManager) Teardown() {
	if fm.current == nil {
		return
	}
	for _, f := range fm.current.Frames {
		fm.m.RemoveLayer(f.Layer)
	}
	fm.logger.Debug("frame set torn down", "generation", fm.current.Generation, "frames", len(fm.current.Frames))
	fm.current = nil
}

// Current returns the live frame set, or nil.
func (fm *FrameManager) Current() *FrameSet {
	return fm.current
}

// MarkLoaded flags the frame owning layer as loaded. Layers that belong to
// no live frame are ignored.
func (fm *FrameManager) MarkLoaded(layer Layer) bool {
	if fm.current == nil {
		return false
	}
	for i := range fm.current.Frames {
		f := &fm.current.Frames[i]
		if f.Layer != layer {
			continue
		}
		if !f.Loaded {
			f.Loaded = true
			fm.metrics.FramesLoaded.Inc()
		}
		return true
	}
	return false
}

// SetOpacity applies opacity to frame i and its layer.
func (fm *FrameManager) SetOpacity(i int, opacity float64) {
	if fm.current == nil || i < 0 || i >= len(fm.current.Frames) {
		return
	}
	f := &fm.current.Frames[i]
	f.Opacity = opacity
	f.Layer.SetOpacity(opacity)
}

// VisibleOpacity returns the opacity of the shown frame.
func (fm *FrameManager) VisibleOpacity() float64 {
	return fm.visible
}

package radar

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/events"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
	"github.com/couchcryptid/storm-radar-overlay/internal/warnings"
)

var (
	// ErrStopped is returned by engine methods once Run has returned.
	ErrStopped = errors.New("radar engine stopped")
	// ErrNoFrames is returned when an operation needs a built frame set.
	ErrNoFrames = errors.New("no frame set loaded")
	// ErrAnimationDisabled is returned by Start for single-frame sets.
	ErrAnimationDisabled = errors.New("animation disabled for single-frame sets")
)

// HazardSource fetches the current hazards.
type HazardSource interface {
	Fetch(ctx context.Context) ([]domain.Hazard, error)
}

// Publisher receives engine notifications.
type Publisher interface {
	Publish(typ events.Type, data any)
}

// Options configures the animation.
type Options struct {
	FrameCount         int
	FrameInterval      time.Duration
	PlaybackInterval   time.Duration
	TransitionDuration time.Duration
	RedrawInterval     time.Duration
	VisibleOpacity     float64
	Viewport           domain.Bounds
}

// FrameState is the externally visible view of one frame.
type FrameState struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Opacity   float64   `json:"opacity"`
	Loaded    bool      `json:"loaded"`
}

// State is a point-in-time snapshot of the engine.
type State struct {
	Generation     string          `json:"generation,omitempty"`
	Frames         []FrameState    `json:"frames"`
	Current        int             `json:"current"`
	Phase          string          `json:"phase"`
	Playing        bool            `json:"playing"`
	OverlayVisible bool            `json:"overlay_visible"`
	Viewport       domain.Bounds   `json:"viewport"`
	ActiveHazards  []domain.Hazard `json:"active_hazards"`
	HazardCount    int             `json:"hazard_count"`
}

type hazardResult struct {
	generation uuid.UUID
	hazards    []domain.Hazard
	err        error
}

// Engine runs the radar animation. All state is owned by the goroutine
// executing Run; public methods hand closures to it and wait for them.
type Engine struct {
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	m          Map
	frames     *FrameManager
	transition *Transition
	scheduler  *Scheduler
	hazards    HazardSource
	indexer    *warnings.Indexer
	publisher  Publisher

	cmds    chan func()
	results chan hazardResult
	stopped chan struct{}
	ready   atomic.Bool

	// Owned by the loop.
	runCtx         context.Context
	redraw         clockwork.Ticker
	hazardList     []domain.Hazard
	hazardByID     map[string]domain.Hazard
	index          warnings.Index
	viewport       domain.Bounds
	overlayVisible bool
}

// NewEngine creates an engine drawing on m. Call Run to start it.
func NewEngine(opts Options, m Map, hazards HazardSource, indexer *warnings.Indexer, publisher Publisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	frames := NewFrameManager(m, clock, opts.VisibleOpacity, logger, metrics)
	e := &Engine{
		opts:           opts,
		clock:          clock,
		logger:         logger,
		metrics:        metrics,
		m:              m,
		frames:         frames,
		transition:     NewTransition(frames, opts.TransitionDuration),
		scheduler:      NewScheduler(clock, opts.PlaybackInterval, metrics),
		hazards:        hazards,
		indexer:        indexer,
		publisher:      publisher,
		cmds:           make(chan func()),
		results:        make(chan hazardResult),
		stopped:        make(chan struct{}),
		hazardByID:     make(map[string]domain.Hazard),
		viewport:       opts.Viewport,
		overlayVisible: true,
	}
	e.transition.OnComplete(e.onTransitionComplete)
	return e
}

// CheckReadiness returns nil once a frame set has been built.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("radar frames have not been loaded yet")
	}
	return nil
}

// Run executes the event loop until ctx is cancelled, then stops playback
// and removes every layer from the map.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	e.logger.Info("radar engine started",
		"frames", e.opts.FrameCount,
		"frame_interval", e.opts.FrameInterval,
		"playback_interval", e.opts.PlaybackInterval,
	)
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			e.logger.Info("radar engine stopping", "reason", ctx.Err())
			return nil
		case fn := <-e.cmds:
			fn()
		case now := <-e.scheduler.C():
			e.onTick(now)
		case <-e.redrawC():
			e.onRedraw()
		case res := <-e.results:
			e.onHazards(res)
		}
	}
}

// Load builds a fresh frame set and starts a hazard fetch for it. Playback
// is stopped and stays stopped.
func (e *Engine) Load(ctx context.Context) error {
	return e.do(ctx, func() {
		e.overlayVisible = true
		e.load()
	})
}

// ShowFrame asks for a cross-fade to frame index. It reports whether the
// request was accepted.
func (e *Engine) ShowFrame(ctx context.Context, index int) (bool, error) {
	var accepted bool
	var err error
	doErr := e.do(ctx, func() {
		if e.frames.Current() == nil {
			err = ErrNoFrames
			return
		}
		accepted = e.requestShow(index)
	})
	if doErr != nil {
		return false, doErr
	}
	return accepted, err
}

// Start begins playback. Starting a running animation is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	var err error
	doErr := e.do(ctx, func() {
		fs := e.frames.Current()
		switch {
		case fs == nil:
			err = ErrNoFrames
		case !fs.Animated():
			err = ErrAnimationDisabled
		case e.scheduler.Start():
			e.logger.Info("animation started", "generation", fs.Generation)
			e.publisher.Publish(events.TypeAnimationStarted, nil)
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Stop halts playback. Stopping a stopped animation is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	return e.do(ctx, e.stopPlayback)
}

// SetViewport re-slices the loaded hazards for new bounds without
// fetching them again.
func (e *Engine) SetViewport(ctx context.Context, bounds domain.Bounds) error {
	return e.do(ctx, func() {
		e.viewport = bounds
		if vs, ok := e.m.(ViewportSetter); ok {
			vs.SetViewport(bounds)
		}
		fs := e.frames.Current()
		if fs == nil {
			return
		}
		e.index = e.indexer.ComputeIndex(e.hazardList, fs.Generation, fs.Timestamps(), e.viewport)
		e.publishWarnings()
	})
}

// SetOverlayVisible shows or hides the radar overlay. Hiding stops
// playback and removes the frames from the map; showing loads a fresh
// frame set if none is present.
func (e *Engine) SetOverlayVisible(ctx context.Context, visible bool) error {
	return e.do(ctx, func() {
		if e.overlayVisible == visible {
			return
		}
		e.overlayVisible = visible
		if !visible {
			e.stopPlayback()
			e.stopRedraw()
			e.transition.Reset()
			e.frames.Teardown()
			e.index = warnings.Index{}
			e.logger.Info("radar overlay hidden")
			return
		}
		if e.frames.Current() == nil {
			e.load()
		}
	})
}

// LayerLoaded records that a layer's imagery arrived. Layers from
// discarded frame sets are ignored.
func (e *Engine) LayerLoaded(layer Layer) {
	fn := func() {
		e.frames.MarkLoaded(layer)
	}
	select {
	case e.cmds <- fn:
	case <-e.stopped:
	}
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := e.do(ctx, func() {
		st = e.snapshot()
	})
	return st, err
}

func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case e.cmds <- wrapped:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

func (e *Engine) load() {
	e.stopPlayback()
	e.stopRedraw()
	e.transition.Reset()

	fs := e.frames.Build(e.opts.FrameCount, e.opts.FrameInterval)
	e.index = warnings.EmptyIndex(fs.Generation, fs.Len())
	e.hazardList = nil
	e.hazardByID = make(map[string]domain.Hazard)
	e.ready.Store(true)

	e.publisher.Publish(events.TypeRadarLoaded, events.RadarLoaded{Timestamp: fs.Frames[fs.Len()-1].Timestamp})
	e.fetchHazards(fs.Generation)
}

// fetchHazards runs the feed request off the loop. The result is delivered
// tagged with the generation it was requested for.
func (e *Engine) fetchHazards(generation uuid.UUID) {
	ctx := e.runCtx
	go func() {
		hazards, err := e.hazards.Fetch(ctx)
		select {
		case e.results <- hazardResult{generation: generation, hazards: hazards, err: err}:
		case <-e.stopped:
		}
	}()
}

func (e *Engine) onHazards(res hazardResult) {
	fs := e.frames.Current()
	if fs == nil || fs.Generation != res.generation {
		e.logger.Debug("discarding stale hazard result", "generation", res.generation)
		return
	}
	if res.err != nil {
		e.logger.Warn("hazard feed unavailable", "error", res.err)
		e.index = warnings.EmptyIndex(fs.Generation, fs.Len())
		e.metrics.HazardsActive.Set(0)
		e.publisher.Publish(events.TypeError, events.Error{Source: "warnings", Message: res.err.Error()})
		return
	}

	e.hazardList = res.hazards
	e.hazardByID = make(map[string]domain.Hazard, len(res.hazards))
	for _, h := range res.hazards {
		e.hazardByID[h.ID] = h
	}
	e.index = e.indexer.ComputeIndex(e.hazardList, fs.Generation, fs.Timestamps(), e.viewport)
	e.publishWarnings()
}

func (e *Engine) onTick(now time.Time) {
	fs := e.frames.Current()
	if fs == nil {
		return
	}
	if e.scheduler.Advance(e.transition, fs.Len(), now) {
		e.startRedraw()
	}
}

func (e *Engine) onRedraw() {
	if e.transition.Step(e.clock.Now()) {
		e.stopRedraw()
	}
}

func (e *Engine) requestShow(index int) bool {
	if !e.transition.RequestShow(index, e.clock.Now()) {
		return false
	}
	e.startRedraw()
	return true
}

func (e *Engine) onTransitionComplete(index int) {
	fs := e.frames.Current()
	e.metrics.Transitions.Inc()
	e.publisher.Publish(events.TypeFrameChanged, events.FrameChanged{
		Index:     index,
		Timestamp: fs.Frames[index].Timestamp,
		Total:     fs.Len(),
	})
	e.publishWarnings()
}

func (e *Engine) publishWarnings() {
	active := e.activeHazards()
	e.metrics.HazardsActive.Set(float64(len(active)))
	e.publisher.Publish(events.TypeWarningsLoaded, events.WarningsLoaded{Count: len(active), Warnings: active})
}

func (e *Engine) activeHazards() []domain.Hazard {
	fs := e.frames.Current()
	if fs == nil || e.index.Generation != fs.Generation {
		return []domain.Hazard{}
	}
	ids := e.index.Active(e.transition.Current())
	out := make([]domain.Hazard, 0, len(ids))
	for _, id := range ids {
		if h, ok := e.hazardByID[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (e *Engine) stopPlayback() {
	if e.scheduler.Stop() {
		e.logger.Info("animation stopped")
		e.publisher.Publish(events.TypeAnimationStopped, nil)
	}
}

func (e *Engine) startRedraw() {
	if e.redraw == nil {
		e.redraw = e.clock.NewTicker(e.opts.RedrawInterval)
	}
}

func (e *Engine) stopRedraw() {
	if e.redraw != nil {
		e.redraw.Stop()
		e.redraw = nil
	}
}

func (e *Engine) redrawC() <-chan time.Time {
	if e.redraw == nil {
		return nil
	}
	return e.redraw.Chan()
}

func (e *Engine) shutdown() {
	e.stopPlayback()
	e.stopRedraw()
	e.frames.Teardown()
}

func (e *Engine) snapshot() State {
	st := State{
		Frames:         []FrameState{},
		Current:        e.transition.Current(),
		Phase:          e.transition.Phase().String(),
		Playing:        e.scheduler.Running(),
		OverlayVisible: e.overlayVisible,
		Viewport:       e.viewport,
		ActiveHazards:  []domain.Hazard{},
		HazardCount:    len(e.hazardList),
	}
	fs := e.frames.Current()
	if fs == nil {
		return st
	}
	st.Generation = fs.Generation.String()
	for i, f := range fs.Frames {
		st.Frames = append(st.Frames, FrameState{Index: i, Timestamp: f.Timestamp, Opacity: f.Opacity, Loaded: f.Loaded})
	}
	st.ActiveHazards = e.activeHazards()
	return st
}

package radar

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// Scheduler drives playback with a recurring tick.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	ticker   clockwork.Ticker
	metrics  *observability.Metrics
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(clock clockwork.Clock, interval time.Duration, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{clock: clock, interval: interval, metrics: metrics}
}

// Start begins ticking. It returns false if already running.
func (s *Scheduler) Start() bool {
	if s.ticker != nil {
		return false
	}
	s.ticker = s.clock.NewTicker(s.interval)
	s.metrics.PlaybackRunning.Set(1)
	return true
}

// Stop cancels the tick. It returns false if already stopped.
func (s *Scheduler) Stop() bool {
	if s.ticker == nil {
		return false
	}
	s.ticker.Stop()
	s.ticker = nil
	s.metrics.PlaybackRunning.Set(0)
	return true
}

// Running reports whether the scheduler is ticking.
func (s *Scheduler) Running() bool {
	return s.ticker != nil
}

// C returns the tick channel, or nil while stopped.
func (s *Scheduler) C() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.Chan()
}

// Advance handles one tick: it asks tr to show the next frame, wrapping at
// the end. A tick that lands while tr is transitioning is dropped.
func (s *Scheduler) Advance(tr *Transition, frames int, now time.Time) bool {
	s.metrics.PlaybackTicks.Inc()
	if frames < 2 {
		return false
	}
	if tr.Phase() != PhaseIdle {
		s.metrics.PlaybackTicksDropped.Inc()
		return false
	}
	return tr.RequestShow((tr.Current()+1)%frames, now)
}

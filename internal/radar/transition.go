package radar

import (
	"time"
)

// Phase is the transition controller state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTransitioning
)

func (p Phase) String() string {
	if p == PhaseTransitioning {
		return "transitioning"
	}
	return "idle"
}

// TransitionState is a snapshot of the controller.
type TransitionState struct {
	From     int
	To       int
	Start    time.Time
	Duration time.Duration
	Phase    Phase
}

// Transition cross-fades from the current frame to a requested one. A
// running transition is never preempted and requests made during one are
// dropped.
type Transition struct {
	frames     *FrameManager
	duration   time.Duration
	current    int
	state      TransitionState
	onComplete func(index int)
}

// NewTransition creates an idle controller at frame 0.
func NewTransition(frames *FrameManager, duration time.Duration) *Transition {
	return &Transition{frames: frames, duration: duration}
}

// OnComplete registers the callback run after a transition lands.
func (tr *Transition) OnComplete(fn func(index int)) {
	tr.onComplete = fn
}

// Current returns the index of the visible frame.
func (tr *Transition) Current() int {
	return tr.current
}

// Phase returns the controller state.
func (tr *Transition) Phase() Phase {
	return tr.state.Phase
}

// State returns a copy of the transition state.
func (tr *Transition) State() TransitionState {
	return tr.state
}

// RequestShow starts a transition to target. It returns false without side
// effects when target is the current frame, is out of range, or another
// transition is running.
func (tr *Transition) RequestShow(target int, now time.Time) bool {
	if tr.state.Phase != PhaseIdle || target == tr.current {
		return false
	}
	if target < 0 || target >= tr.frames.Current().Len() {
		return false
	}
	tr.state = TransitionState{
		From:     tr.current,
		To:       target,
		Start:    now,
		Duration: tr.duration,
		Phase:    PhaseTransitioning,
	}
	return true
}

// Step advances the cross-fade to now. Both opacities derive from the same
// eased progress. It returns true when this step completed the transition.
func (tr *Transition) Step(now time.Time) bool {
	if tr.state.Phase != PhaseTransitioning {
		return false
	}

	visible := tr.frames.VisibleOpacity()
	p := progress(now.Sub(tr.state.Start), tr.state.Duration)
	if p < 1 {
		e := easeInOutCubic(p)
		tr.frames.SetOpacity(tr.state.From, visible*(1-e))
		tr.frames.SetOpacity(tr.state.To, visible*e)
		return false
	}

	tr.frames.SetOpacity(tr.state.From, 0)
	tr.frames.SetOpacity(tr.state.To, visible)
	tr.current = tr.state.To
	tr.state = TransitionState{Phase: PhaseIdle}
	if tr.onComplete != nil {
		tr.onComplete(tr.current)
	}
	return true
}

// Reset returns the controller to idle at frame 0 without touching
// opacities. It is used when the frame set is rebuilt.
func (tr *Transition) Reset() {
	tr.current = 0
	tr.state = TransitionState{Phase: PhaseIdle}
}

func progress(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 1
	}
	p := float64(elapsed) / float64(duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func easeInOutCubic(p float64) float64 {
	if p < 0.5 {
		return 4 * p * p * p
	}
	q := -2*p + 2
	return 1 - q*q*q/2
}

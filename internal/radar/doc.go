// Package radar animates a fixed-length sequence of timestamped radar
// frames over a map.
//
// A FrameManager builds and tears down frame sets, a Transition cross-fades
// between two frames, and a Scheduler advances playback on a fixed tick.
// The Engine owns all three on a single event-loop goroutine; every public
// Engine method is executed on that loop, so none of the components below
// it need locking.
//
// Frame 0 is the oldest frame. Outside a transition exactly one frame is at
// the visible opacity and every other frame is at exactly 0.
package radar

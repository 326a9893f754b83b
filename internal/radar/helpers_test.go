package radar

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/storm-radar-overlay/internal/events"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

const visible = 0.7

var t0 = time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLayer struct {
	ts      time.Time
	mu      sync.Mutex
	opacity float64
}

func (l *fakeLayer) SetOpacity(o float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opacity = o
}

func (l *fakeLayer) Opacity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opacity
}

type fakeMap struct {
	mu       sync.Mutex
	created  []*fakeLayer
	attached map[*fakeLayer]bool
	removed  int
}

func newFakeMap() *fakeMap {
	return &fakeMap{attached: make(map[*fakeLayer]bool)}
}

func (m *fakeMap) NewRadarLayer(ts time.Time, opacity float64) Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &fakeLayer{ts: ts, opacity: opacity}
	m.created = append(m.created, l)
	return l
}

func (m *fakeMap) AddLayer(layer Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached[layer.(*fakeLayer)] = true
}

func (m *fakeMap) RemoveLayer(layer Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attached, layer.(*fakeLayer))
	m.removed++
}

func (m *fakeMap) Attached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attached)
}

func (m *fakeMap) Removed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removed
}

type recordingPublisher struct {
	mu    sync.Mutex
	notes []events.Notification
}

func (p *recordingPublisher) Publish(typ events.Type, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, events.Notification{Type: typ, Data: data})
}

func (p *recordingPublisher) Count(typ events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, note := range p.notes {
		if note.Type == typ {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) Last(typ events.Type) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.notes) - 1; i >= 0; i-- {
		if p.notes[i].Type == typ {
			return p.notes[i].Data, true
		}
	}
	return nil, false
}

func newTestFrameManager(m Map) (*FrameManager, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(t0)
	return NewFrameManager(m, clock, visible, discardLogger(), observability.NewMetricsForTesting()), clock
}

// assertSingleVisible checks that exactly one frame, at index want, is at
// the visible opacity and all others are at 0.
func assertSingleVisible(t *testing.T, fs *FrameSet, want int) {
	t.Helper()
	for i, f := range fs.Frames {
		if i == want {
			assert.Equal(t, visible, f.Opacity, "frame %d", i)
			assert.Equal(t, visible, f.Layer.(*fakeLayer).Opacity(), "layer %d", i)
			continue
		}
		assert.Zero(t, f.Opacity, "frame %d", i)
		assert.Zero(t, f.Layer.(*fakeLayer).Opacity(), "layer %d", i)
	}
}

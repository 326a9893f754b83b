package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/storm-radar-overlay/internal/adapter/http"
	"github.com/couchcryptid/storm-radar-overlay/internal/adapter/tilemap"
	"github.com/couchcryptid/storm-radar-overlay/internal/cache"
	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/events"
	"github.com/couchcryptid/storm-radar-overlay/internal/fetch"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
	"github.com/couchcryptid/storm-radar-overlay/internal/radar"
)

type mockEngine struct {
	mu        sync.Mutex
	readyErr  error
	cmdErr    error
	accept    bool
	shown     []int
	viewport  domain.Bounds
	visible   *bool
	loads     int
	starts    int
	stops     int
	snapshots int
}

func (m *mockEngine) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockEngine) Load(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.cmdErr
}

func (m *mockEngine) ShowFrame(_ context.Context, index int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = append(m.shown, index)
	return m.accept, m.cmdErr
}

func (m *mockEngine) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.cmdErr
}

func (m *mockEngine) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return m.cmdErr
}

func (m *mockEngine) SetViewport(_ context.Context, b domain.Bounds) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport = b
	return m.cmdErr
}

func (m *mockEngine) SetOverlayVisible(_ context.Context, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = &v
	return m.cmdErr
}

func (m *mockEngine) Snapshot(_ context.Context) (radar.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
	return radar.State{Current: 2, Phase: "idle", Playing: true, OverlayVisible: true}, nil
}

type mockLayers struct{ layers []tilemap.LayerInfo }

func (m mockLayers) Layers() []tilemap.LayerInfo { return m.layers }

type mockCache struct {
	cleared  bool
	clearErr error
}

func (m *mockCache) Stats() []cache.TierStats {
	entries := 4
	if m.cleared {
		entries = 0
	}
	return []cache.TierStats{{Name: cache.TierTile, Entries: entries, MaxBytes: 1024}}
}

func (m *mockCache) ClearAll() error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cleared = true
	return nil
}

type mockFetcher struct {
	resp *fetch.Response
	err  error
	urls []string
}

func (m *mockFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	m.urls = append(m.urls, rawURL)
	return m.resp, m.err
}

type fixture struct {
	srv     *httpadapter.Server
	engine  *mockEngine
	cache   *mockCache
	fetcher *mockFetcher
	bus     *events.Bus
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClock()
	f := &fixture{
		engine:  &mockEngine{accept: true},
		cache:   &mockCache{},
		fetcher: &mockFetcher{},
		bus:     events.NewBus(clock, logger, observability.NewMetricsForTesting()),
	}
	f.srv = httpadapter.NewServer(":0", httpadapter.Deps{
		Engine:     f.engine,
		Layers:     mockLayers{layers: []tilemap.LayerInfo{{ID: "l1", Opacity: 0.7, Status: tilemap.StatusLoaded}}},
		Cache:      f.cache,
		Events:     f.bus,
		Proxy:      f.fetcher,
		ProxyHosts: []string{"tile.example.com", "API.example.com"},
		Clock:      clock,
	}, logger)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	f := newFixture()
	f.engine.readyErr = fmt.Errorf("radar frames have not been loaded yet")
	rec := f.do(http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "radar frames have not been loaded yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestState(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/api/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 2, body["current"], 0)
	assert.Equal(t, true, body["playing"])
}

func TestCommandsReturnState(t *testing.T) {
	f := newFixture()

	for _, path := range []string{"/api/load", "/api/animation/start", "/api/animation/stop"} {
		rec := f.do(http.MethodPost, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"phase":"idle"`, path)
	}
	assert.Equal(t, 1, f.engine.loads)
	assert.Equal(t, 1, f.engine.starts)
	assert.Equal(t, 1, f.engine.stops)
}

func TestEngineErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{radar.ErrNoFrames, http.StatusConflict},
		{radar.ErrAnimationDisabled, http.StatusConflict},
		{radar.ErrStopped, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newFixture()
			f.engine.cmdErr = tt.err
			rec := f.do(http.MethodPost, "/api/animation/start", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.err.Error(), decode(t, rec)["error"])
		})
	}
}

func TestShowFrame(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/frames/3/show", "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int{3}, f.engine.shown)
}

func TestShowFrame_Rejected(t *testing.T) {
	f := newFixture()
	f.engine.accept = false
	rec := f.do(http.MethodPost, "/api/frames/42/show", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, decode(t, rec)["accepted"])
}

func TestShowFrame_BadIndex(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/frames/latest/show", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.engine.shown)
}

func TestViewport(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPut, "/api/viewport", `{"west":-100,"south":30,"east":-90,"north":40}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Bounds{West: -100, South: 30, East: -90, North: 40}, f.engine.viewport)
}

func TestViewport_Invalid(t *testing.T) {
	for _, body := range []string{
		`{"west":10,"south":30,"east":-10,"north":40}`,
		`{"west":-100,"south":30,"east":-90,"north":40,"zoom":3}`,
		`not json`,
	} {
		f := newFixture()
		rec := f.do(http.MethodPut, "/api/viewport", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestOverlay(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPut, "/api/overlay", `{"visible":false}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.engine.visible)
	assert.False(t, *f.engine.visible)

	rec = f.do(http.MethodPut, "/api/overlay", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLayers(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/api/layers", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"l1"`)
	assert.Contains(t, rec.Body.String(), `"status":"loaded"`)
}

func TestCacheStatsAndClear(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/api/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":4`)

	rec = f.do(http.MethodDelete, "/api/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.cache.cleared)
	assert.Contains(t, rec.Body.String(), `"entries":0`)
}

func TestCacheClear_Failure(t *testing.T) {
	f := newFixture()
	f.cache.clearErr = errors.New("disk full")

	rec := f.do(http.MethodDelete, "/api/cache", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProxy(t *testing.T) {
	f := newFixture()
	f.fetcher.resp = &fetch.Response{
		StatusCode:  http.StatusOK,
		ContentType: "image/png",
		Body:        []byte("png-bytes"),
		Source:      fetch.SourceCache,
		Class:       fetch.ClassTile,
	}

	rec := f.do(http.MethodGet, "/proxy?url="+"https%3A%2F%2Ftile.example.com%2F4%2F3%2F5.png", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "cache", rec.Header().Get("X-Cache-Source"))
	assert.Equal(t, "tile", rec.Header().Get("X-Resource-Class"))
	assert.Equal(t, []string{"https://tile.example.com/4/3/5.png"}, f.fetcher.urls)
}

func TestProxy_OfflinePassesStatusThrough(t *testing.T) {
	f := newFixture()
	f.fetcher.resp = &fetch.Response{
		StatusCode:  http.StatusServiceUnavailable,
		ContentType: "application/json",
		Body:        []byte(`{"offline":true}`),
		Source:      fetch.SourceOffline,
		Class:       fetch.ClassHazardFeed,
	}

	rec := f.do(http.MethodGet, "/proxy?url=https://api.example.com/alerts", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"offline":true}`, rec.Body.String())
}

func TestProxy_Errors(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/proxy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.fetcher.err = errors.New("tile upstream unreachable")
	rec = f.do(http.MethodGet, "/proxy?url=https://tile.example.com/1/2/3.png", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxy_RejectsHostsOutsideAllowList(t *testing.T) {
	f := newFixture()

	for _, target := range []string{
		"https://internal.example.net/admin",
		"http://169.254.169.254/latest/meta-data/",
		"https://tile.example.com.evil.test/1/2/3.png",
	} {
		rec := f.do(http.MethodGet, "/proxy?url="+url.QueryEscape(target), "")
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
	assert.Empty(t, f.fetcher.urls, "disallowed hosts are never fetched")
}

// openStream connects to /api/events and consumes the connected comment.
func openStream(ctx context.Context, t *testing.T, baseURL, clientID string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Client-Id", clientID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected "+clientID+"\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)
	return resp, reader
}

func TestEventsStream_ReconnectWithSameClientID(t *testing.T) {
	f := newFixture()
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, firstReader := openStream(ctx, t, ts.URL, "tab-1")
	defer first.Body.Close()
	second, secondReader := openStream(ctx, t, ts.URL, "tab-1")
	defer second.Body.Close()

	// The takeover ends the first stream; wait for its handler to exit.
	_, err := io.ReadAll(firstReader)
	require.NoError(t, err)
	assert.Equal(t, 1, f.bus.SubscriberCount())

	f.bus.Publish(events.TypeAnimationStarted, nil)

	var frame []string
	for range 2 {
		line, err := secondReader.ReadString('\n')
		require.NoError(t, err)
		frame = append(frame, strings.TrimSuffix(line, "\n"))
	}
	assert.Equal(t, "event: animation-started", frame[1])
}

func TestEventsStream(t *testing.T) {
	f := newFixture()
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Client-Id", "ui-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected ui-1\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	f.bus.Publish(events.TypeFrameChanged, events.FrameChanged{Index: 4, Total: 10})

	var frame []string
	for range 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		frame = append(frame, strings.TrimSuffix(line, "\n"))
	}
	assert.Equal(t, "id: 1", frame[0])
	assert.Equal(t, "event: frame-changed", frame[1])
	assert.Contains(t, frame[2], `"index":4`)

	cancel()
	require.Eventually(t, func() bool { return f.bus.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-radar-overlay/internal/adapter/tilemap"
	"github.com/couchcryptid/storm-radar-overlay/internal/cache"
	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/events"
	"github.com/couchcryptid/storm-radar-overlay/internal/fetch"
	"github.com/couchcryptid/storm-radar-overlay/internal/radar"
)

// Controller drives the radar animation.
type Controller interface {
	sharedobs.ReadinessChecker
	Load(ctx context.Context) error
	ShowFrame(ctx context.Context, index int) (bool, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetViewport(ctx context.Context, bounds domain.Bounds) error
	SetOverlayVisible(ctx context.Context, visible bool) error
	Snapshot(ctx context.Context) (radar.State, error)
}

// LayerLister reports the layers attached to the map.
type LayerLister interface {
	Layers() []tilemap.LayerInfo
}

// CacheAdmin exposes cache statistics and purging.
type CacheAdmin interface {
	Stats() []cache.TierStats
	ClearAll() error
}

// Subscriber hands out notification streams.
type Subscriber interface {
	Subscribe(id string) <-chan events.Notification
	Unsubscribe(id string, ch <-chan events.Notification)
}

// Fetcher resolves proxied resources.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Deps are the components the server exposes.
type Deps struct {
	Engine Controller
	Layers LayerLister
	Cache  CacheAdmin
	Events Subscriber
	Proxy  Fetcher
	// ProxyHosts lists the hostnames /proxy may fetch from. Others get 403.
	ProxyHosts []string
	Clock      clockwork.Clock
}

// Server exposes health, metrics, the radar control API, the notification
// stream and the offline resource proxy.
type Server struct {
	httpServer *http.Server
	deps       Deps
	proxyHosts map[string]struct{}
	keepAlive  time.Duration
	logger     *slog.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:       deps,
		proxyHosts: make(map[string]struct{}, len(deps.ProxyHosts)),
		keepAlive:  30 * time.Second,
		logger:     logger,
	}
	for _, h := range deps.ProxyHosts {
		s.proxyHosts[strings.ToLower(h)] = struct{}{}
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Engine))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/load", s.handleLoad)
	mux.HandleFunc("POST /api/frames/{index}/show", s.handleShowFrame)
	mux.HandleFunc("POST /api/animation/start", s.handleStart)
	mux.HandleFunc("POST /api/animation/stop", s.handleStop)
	mux.HandleFunc("PUT /api/viewport", s.handleViewport)
	mux.HandleFunc("PUT /api/overlay", s.handleOverlay)
	mux.HandleFunc("GET /api/layers", s.handleLayers)
	mux.HandleFunc("GET /api/cache", s.handleCacheStats)
	mux.HandleFunc("DELETE /api/cache", s.handleCacheClear)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /proxy", s.handleProxy)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

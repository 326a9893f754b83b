package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-radar-overlay/internal/cache"
	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// DefaultMaxBodyBytes caps a single upstream payload.
const DefaultMaxBodyBytes = 16 << 20

// Source names what answered a request.
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourcePlaceholder Source = "placeholder"
	SourceOffline     Source = "offline"
)

// Response is a fully buffered answer to a dispatched request.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Source      Source
	Class       Class
}

// OK reports whether the response carries real upstream or cached content.
func (r *Response) OK() bool {
	return r.Source == SourceCache || r.Source == SourceNetwork
}

// Cache is the tiered storage the dispatcher reads through.
type Cache interface {
	Get(tier cache.TierName, key string) ([]byte, bool)
	Put(tier cache.TierName, key string, payload []byte) error
}

// Options configures a Dispatcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// HazardFeedURL's host is always classified as the hazard feed.
	HazardFeedURL string
	// MaxBodyBytes rejects larger upstream bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	Clock        clockwork.Clock
}

// Dispatcher applies a per-class fetch strategy to every outbound request,
// backed by the tiered cache.
type Dispatcher struct {
	client    *http.Client
	cache     Cache
	userAgent string
	maxBody   int64
	feedHosts map[string]struct{}
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewDispatcher creates a dispatcher over the given cache.
func NewDispatcher(c Cache, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	d := &Dispatcher{
		client:    &http.Client{Timeout: opts.Timeout},
		cache:     c,
		userAgent: opts.UserAgent,
		maxBody:   maxBody,
		feedHosts: make(map[string]struct{}),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
	if u, err := url.Parse(opts.HazardFeedURL); err == nil && u.Hostname() != "" {
		d.feedHosts[strings.ToLower(u.Hostname())] = struct{}{}
	}
	return d
}

// Fetch resolves rawURL through the strategy for its class.
//
// Tiles are cache-first and degrade to a transparent placeholder. The hazard
// feed is network-first and degrades to the cached copy, then to a
// structured offline payload. Static assets are cache-first with no
// revalidation. An error is returned only when nothing at all can be served.
func (d *Dispatcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid resource url %q", rawURL)
	}

	class := d.Classify(u)
	var resp *Response
	switch class {
	case ClassTile:
		resp, err = d.cacheFirst(ctx, u, class, cache.TierTile)
		if err != nil {
			d.logger.Debug("tile fetch failed, serving placeholder", "url", rawURL, "error", err)
			resp = &Response{StatusCode: http.StatusOK, ContentType: "image/png", Body: placeholderPNG, Source: SourcePlaceholder, Class: class}
			err = nil
		}
	case ClassHazardFeed:
		resp = d.networkFirst(ctx, u, class, cache.TierAPI)
	default:
		resp, err = d.cacheFirst(ctx, u, class, cache.TierStatic)
	}

	if err != nil {
		d.metrics.FetchRequests.WithLabelValues(class.String(), "error").Inc()
		return nil, err
	}
	d.metrics.FetchRequests.WithLabelValues(class.String(), string(resp.Source)).Inc()
	return resp, nil
}

// Precache warms the static tier with the given manifest URLs. Failures
// are logged and skipped.
func (d *Dispatcher) Precache(ctx context.Context, manifest []string) int {
	warmed := 0
	for _, raw := range manifest {
		if _, err := d.Fetch(ctx, raw); err != nil {
			d.logger.Warn("precache failed", "url", raw, "error", err)
			continue
		}
		warmed++
	}
	return warmed
}

func (d *Dispatcher) cacheFirst(ctx context.Context, u *url.URL, class Class, tier cache.TierName) (*Response, error) {
	key := u.String()
	if body, ok := d.cache.Get(tier, key); ok {
		return &Response{StatusCode: http.StatusOK, ContentType: contentTypeFor(u, body), Body: body, Source: SourceCache, Class: class}, nil
	}

	body, contentType, err := d.fetchUpstream(ctx, u, class)
	if err != nil {
		return nil, err
	}
	d.store(tier, key, body)
	return &Response{StatusCode: http.StatusOK, ContentType: contentType, Body: body, Source: SourceNetwork, Class: class}, nil
}

func (d *Dispatcher) networkFirst(ctx context.Context, u *url.URL, class Class, tier cache.TierName) *Response {
	key := u.String()
	body, contentType, err := d.fetchUpstream(ctx, u, class)
	if err == nil {
		d.store(tier, key, body)
		return &Response{StatusCode: http.StatusOK, ContentType: contentType, Body: body, Source: SourceNetwork, Class: class}
	}

	if cached, ok := d.cache.Get(tier, key); ok {
		d.logger.Info("serving cached hazard feed", "url", key, "error", err)
		return &Response{StatusCode: http.StatusOK, ContentType: "application/geo+json", Body: cached, Source: SourceCache, Class: class}
	}

	d.logger.Warn("hazard feed offline and not cached", "url", key, "error", err)
	return &Response{
		StatusCode:  http.StatusServiceUnavailable,
		ContentType: "application/json",
		Body:        offlinePayload(err),
		Source:      SourceOffline,
		Class:       class,
	}
}

func (d *Dispatcher) fetchUpstream(ctx context.Context, u *url.URL, class Class) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	start := d.clock.Now()
	resp, err := d.client.Do(req)
	d.metrics.FetchDuration.WithLabelValues(class.String()).Observe(d.clock.Since(start).Seconds())
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s request: %w", domain.ErrNetwork, class, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("%w: %s upstream status %d: %s", domain.ErrNetwork, class, resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s body: %w", domain.ErrNetwork, class, err)
	}
	if int64(len(body)) > d.maxBody {
		return nil, "", fmt.Errorf("%w: %s body exceeds %d bytes", domain.ErrNetwork, class, d.maxBody)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFor(u, body)
	}
	return body, contentType, nil
}

// store writes through to the cache. Cache writes are best-effort.
func (d *Dispatcher) store(tier cache.TierName, key string, body []byte) {
	err := d.cache.Put(tier, key, body)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnsupported):
		// Caching is disabled on this host.
	default:
		d.logger.Warn("cache write failed", "tier", tier, "key", key, "error", err)
	}
}

func contentTypeFor(u *url.URL, body []byte) string {
	if ct := mime.TypeByExtension(path.Ext(u.Path)); ct != "" {
		return ct
	}
	return http.DetectContentType(body)
}

type offlineError struct {
	Type     string `json:"type"`
	Features []any  `json:"features"`
	Error    string `json:"error"`
	Message  string `json:"message"`
	Offline  bool   `json:"offline"`
}

func offlinePayload(cause error) []byte {
	body, _ := json.Marshal(offlineError{
		Type:     "FeatureCollection",
		Features: []any{},
		Error:    "offline",
		Message:  cause.Error(),
		Offline:  true,
	})
	return body
}

// placeholderPNG is a 1x1 fully transparent image served in place of tiles
// that could not be fetched.
var placeholderPNG = func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

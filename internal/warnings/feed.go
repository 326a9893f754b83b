package warnings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/fetch"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// Fetcher resolves a URL through the offline-aware dispatcher.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// FeedClient reads active hazards from the alerts feed.
type FeedClient struct {
	fetcher Fetcher
	feedURL string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFeedClient creates a hazard feed client.
func NewFeedClient(fetcher Fetcher, feedURL string, logger *slog.Logger, metrics *observability.Metrics) *FeedClient {
	return &FeedClient{
		fetcher: fetcher,
		feedURL: feedURL,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch returns every parseable hazard in the feed. A feed that is offline
// and uncached is an ErrNetwork; individual bad features are skipped.
func (c *FeedClient) Fetch(ctx context.Context) ([]domain.Hazard, error) {
	resp, err := c.fetcher.Fetch(ctx, c.feedURL)
	if err != nil {
		c.metrics.HazardFetchErrors.Inc()
		return nil, fmt.Errorf("hazard feed: %w", err)
	}
	if resp.Source == fetch.SourceOffline {
		c.metrics.HazardFetchErrors.Inc()
		return nil, fmt.Errorf("%w: hazard feed offline (status %d)", domain.ErrNetwork, resp.StatusCode)
	}

	hazards, skipped, err := ParseFeatureCollection(resp.Body)
	if err != nil {
		c.metrics.HazardFetchErrors.Inc()
		return nil, err
	}
	if skipped > 0 {
		c.metrics.HazardsSkipped.Add(float64(skipped))
		c.logger.Warn("skipped unparseable hazard features", "skipped", skipped, "parsed", len(hazards))
	}
	c.logger.Debug("hazard feed loaded", "hazards", len(hazards), "source", resp.Source)
	return hazards, nil
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection one feature at
// a time so a malformed feature is skipped rather than failing the whole
// collection. It returns the hazards and the number of features skipped.
func ParseFeatureCollection(body []byte) ([]domain.Hazard, int, error) {
	var envelope struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, fmt.Errorf("decode hazard feed: %w", err)
	}

	hazards := make([]domain.Hazard, 0, len(envelope.Features))
	skipped := 0
	for _, raw := range envelope.Features {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			skipped++
			continue
		}
		h, ok := hazardFromFeature(f)
		if !ok {
			skipped++
			continue
		}
		hazards = append(hazards, h)
	}
	return hazards, skipped, nil
}

func hazardFromFeature(f *geojson.Feature) (domain.Hazard, bool) {
	from, ok := propTime(f, "effective", "onset")
	if !ok {
		return domain.Hazard{}, false
	}
	to, ok := propTime(f, "expires", "ends")
	if !ok {
		return domain.Hazard{}, false
	}

	id := propString(f, "id")
	if id == "" {
		if s, ok := f.ID.(string); ok {
			id = s
		}
	}
	if id == "" {
		return domain.Hazard{}, false
	}

	event := propString(f, "event")
	severity, color := Style(event, ParseSeverity(propString(f, "severity")))

	expiresURL := propString(f, "url")
	if expiresURL == "" {
		expiresURL = propString(f, "@id")
	}

	return domain.Hazard{
		ID:         id,
		Event:      event,
		Headline:   propString(f, "headline"),
		Severity:   severity,
		Color:      color,
		ValidFrom:  from,
		ValidTo:    to,
		ExpiresURL: expiresURL,
		Geometry:   f.Geometry,
	}, true
}

func propString(f *geojson.Feature, key string) string {
	s, _ := f.Properties[key].(string)
	return strings.TrimSpace(s)
}

// propTime reads the first present key as an RFC 3339 timestamp.
func propTime(f *geojson.Feature, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		s := propString(f, k)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

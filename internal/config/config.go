package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
)

const mebibyte = 1 << 20

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Animation settings.
	FrameCount         int
	FrameInterval      time.Duration
	PlaybackInterval   time.Duration
	TransitionDuration time.Duration
	RedrawInterval     time.Duration
	VisibleOpacity     float64
	Viewport           domain.Bounds

	// Upstream sources.
	HazardFeedURL    string
	RadarWMSURL      string
	RadarLayer       string
	RadarImageFormat string
	RadarTimeStep    time.Duration
	UserAgent        string
	FetchTimeout     time.Duration
	// ProxyAllowedHosts are extra hosts /proxy may reach, such as base map
	// tile servers. The radar, feed and manifest hosts are always allowed.
	ProxyAllowedHosts []string

	// Offline cache configuration.
	CacheBackend            string
	CachePath               string
	CacheTileMaxBytes       int64
	CacheAPIMaxBytes        int64
	CacheAPIMaxAge          time.Duration
	CacheStaticMaxBytes     int64
	CacheEvictionMinEntries int
	StaticManifest          []string

	// Kafka notification sink.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopic         string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	frameCount, err := parseInt("FRAME_COUNT", 10, 0)
	if err != nil {
		return nil, err
	}
	frameInterval, err := parseDuration("FRAME_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	playbackInterval, err := parseDuration("PLAYBACK_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}
	transitionDuration, err := parseDuration("TRANSITION_DURATION", "300ms")
	if err != nil {
		return nil, err
	}
	redrawInterval, err := parseDuration("REDRAW_INTERVAL", "16ms")
	if err != nil {
		return nil, err
	}
	radarTimeStep, err := parseDuration("RADAR_TIME_STEP", "5m")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	apiMaxAge, err := parseDuration("CACHE_API_MAX_AGE", "30m")
	if err != nil {
		return nil, err
	}

	opacity, err := parseOpacity()
	if err != nil {
		return nil, err
	}

	viewport, err := parseViewport(sharedcfg.EnvOrDefault("VIEWPORT", "-125,24,-66,50"))
	if err != nil {
		return nil, err
	}

	tileMax, err := parseInt("CACHE_TILE_MAX_BYTES", 50*mebibyte, 1)
	if err != nil {
		return nil, err
	}
	apiMax, err := parseInt("CACHE_API_MAX_BYTES", 5*mebibyte, 1)
	if err != nil {
		return nil, err
	}
	staticMax, err := parseInt("CACHE_STATIC_MAX_BYTES", 10*mebibyte, 1)
	if err != nil {
		return nil, err
	}
	minEntries, err := parseInt("CACHE_EVICTION_MIN_ENTRIES", 10, 0)
	if err != nil {
		return nil, err
	}

	brokers := sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092"))
	kafkaEnabled := os.Getenv("KAFKA_ENABLED") == "true"

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FrameCount:         frameCount,
		FrameInterval:      frameInterval,
		PlaybackInterval:   playbackInterval,
		TransitionDuration: transitionDuration,
		RedrawInterval:     redrawInterval,
		VisibleOpacity:     opacity,
		Viewport:           viewport,

		HazardFeedURL:    sharedcfg.EnvOrDefault("HAZARD_FEED_URL", "https://api.weather.gov/alerts/active?status=actual"),
		RadarWMSURL:      sharedcfg.EnvOrDefault("RADAR_WMS_URL", "https://mesonet.agron.iastate.edu/cgi-bin/wms/nexrad/n0q-t.cgi"),
		RadarLayer:       sharedcfg.EnvOrDefault("RADAR_LAYER", "nexrad-n0q-wmst"),
		RadarImageFormat: sharedcfg.EnvOrDefault("RADAR_IMAGE_FORMAT", "image/png"),
		RadarTimeStep:    radarTimeStep,
		UserAgent:        sharedcfg.EnvOrDefault("USER_AGENT", "storm-radar-overlay (ops@example.com)"),
		FetchTimeout:     fetchTimeout,

		ProxyAllowedHosts: parseList(sharedcfg.EnvOrDefault("PROXY_ALLOWED_HOSTS", "tile.openstreetmap.org")),

		CacheBackend:            sharedcfg.EnvOrDefault("CACHE_BACKEND", "bolt"),
		CachePath:               sharedcfg.EnvOrDefault("CACHE_PATH", "radar-cache.db"),
		CacheTileMaxBytes:       int64(tileMax),
		CacheAPIMaxBytes:        int64(apiMax),
		CacheAPIMaxAge:          apiMaxAge,
		CacheStaticMaxBytes:     int64(staticMax),
		CacheEvictionMinEntries: minEntries,
		StaticManifest:          parseList(os.Getenv("STATIC_MANIFEST")),

		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       brokers,
		KafkaTopic:         sharedcfg.EnvOrDefault("KAFKA_TOPIC", "radar-notifications"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	switch cfg.CacheBackend {
	case "bolt", "memory", "disabled":
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q (supported: bolt, memory, disabled)", cfg.CacheBackend)
	}
	if cfg.CacheBackend == "bolt" && cfg.CachePath == "" {
		return nil, errors.New("CACHE_PATH is required when CACHE_BACKEND is bolt")
	}
	if cfg.HazardFeedURL == "" {
		return nil, errors.New("HAZARD_FEED_URL is required")
	}
	if cfg.RadarWMSURL == "" {
		return nil, errors.New("RADAR_WMS_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, minValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minValue {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minValue)
	}
	return n, nil
}

func parseOpacity() (float64, error) {
	s := sharedcfg.EnvOrDefault("VISIBLE_OPACITY", "0.7")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || v > 1 {
		return 0, errors.New("invalid VISIBLE_OPACITY: must be in (0, 1]")
	}
	return v, nil
}

// parseViewport reads "west,south,east,north".
func parseViewport(s string) (domain.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, errors.New("invalid VIEWPORT: want west,south,east,north")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("invalid VIEWPORT: %w", err)
		}
		v[i] = f
	}
	b := domain.Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	if !b.Valid() {
		return domain.Bounds{}, errors.New("invalid VIEWPORT: degenerate or out of range")
	}
	return b, nil
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

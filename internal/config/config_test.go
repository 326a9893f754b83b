package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, 10, cfg.FrameCount)
	assert.Equal(t, 5*time.Minute, cfg.FrameInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.PlaybackInterval)
	assert.Equal(t, 300*time.Millisecond, cfg.TransitionDuration)
	assert.Equal(t, 16*time.Millisecond, cfg.RedrawInterval)
	assert.InDelta(t, 0.7, cfg.VisibleOpacity, 1e-9)
	assert.Equal(t, domain.Bounds{West: -125, South: 24, East: -66, North: 50}, cfg.Viewport)

	assert.Equal(t, "nexrad-n0q-wmst", cfg.RadarLayer)
	assert.Equal(t, 5*time.Minute, cfg.RadarTimeStep)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, []string{"tile.openstreetmap.org"}, cfg.ProxyAllowedHosts)

	assert.Equal(t, "bolt", cfg.CacheBackend)
	assert.Equal(t, "radar-cache.db", cfg.CachePath)
	assert.Equal(t, int64(50*mebibyte), cfg.CacheTileMaxBytes)
	assert.Equal(t, int64(5*mebibyte), cfg.CacheAPIMaxBytes)
	assert.Equal(t, 30*time.Minute, cfg.CacheAPIMaxAge)
	assert.Equal(t, int64(10*mebibyte), cfg.CacheStaticMaxBytes)
	assert.Equal(t, 10, cfg.CacheEvictionMinEntries)
	assert.Empty(t, cfg.StaticManifest)

	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "radar-notifications", cfg.KafkaTopic)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("FRAME_COUNT", "5")
	t.Setenv("FRAME_INTERVAL", "10m")
	t.Setenv("PLAYBACK_INTERVAL", "1s")
	t.Setenv("TRANSITION_DURATION", "250ms")
	t.Setenv("VISIBLE_OPACITY", "0.5")
	t.Setenv("VIEWPORT", "-100, 30, -90, 40")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("CACHE_TILE_MAX_BYTES", "1024")
	t.Setenv("CACHE_API_MAX_AGE", "1h")
	t.Setenv("STATIC_MANIFEST", "https://example.com/index.html, https://example.com/app.js,,")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-topic")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("PROXY_ALLOWED_HOSTS", "a.tile.example.com, b.tile.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5, cfg.FrameCount)
	assert.Equal(t, 10*time.Minute, cfg.FrameInterval)
	assert.Equal(t, time.Second, cfg.PlaybackInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.TransitionDuration)
	assert.InDelta(t, 0.5, cfg.VisibleOpacity, 1e-9)
	assert.Equal(t, domain.Bounds{West: -100, South: 30, East: -90, North: 40}, cfg.Viewport)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, int64(1024), cfg.CacheTileMaxBytes)
	assert.Equal(t, time.Hour, cfg.CacheAPIMaxAge)
	assert.Equal(t, []string{"https://example.com/index.html", "https://example.com/app.js"}, cfg.StaticManifest)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-topic", cfg.KafkaTopic)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, []string{"a.tile.example.com", "b.tile.example.com"}, cfg.ProxyAllowedHosts)
}

func TestLoad_FrameCountZeroAllowed(t *testing.T) {
	t.Setenv("FRAME_COUNT", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.FrameCount)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"BATCH_SIZE", "0", "BATCH_SIZE"},
		{"FRAME_COUNT", "-1", "FRAME_COUNT"},
		{"FRAME_COUNT", "ten", "FRAME_COUNT"},
		{"FRAME_INTERVAL", "-5m", "FRAME_INTERVAL"},
		{"PLAYBACK_INTERVAL", "fast", "PLAYBACK_INTERVAL"},
		{"TRANSITION_DURATION", "0s", "TRANSITION_DURATION"},
		{"VISIBLE_OPACITY", "1.5", "VISIBLE_OPACITY"},
		{"VISIBLE_OPACITY", "0", "VISIBLE_OPACITY"},
		{"VIEWPORT", "1,2,3", "VIEWPORT"},
		{"VIEWPORT", "10,0,-10,5", "VIEWPORT"},
		{"VIEWPORT", "a,b,c,d", "VIEWPORT"},
		{"CACHE_BACKEND", "redis", "CACHE_BACKEND"},
		{"CACHE_TILE_MAX_BYTES", "0", "CACHE_TILE_MAX_BYTES"},
		{"CACHE_API_MAX_AGE", "soon", "CACHE_API_MAX_AGE"},
		{"RADAR_TIME_STEP", "0", "RADAR_TIME_STEP"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

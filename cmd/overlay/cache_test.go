package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-radar-overlay/internal/cache"
	"github.com/couchcryptid/storm-radar-overlay/internal/config"
)

func TestTiersFor(t *testing.T) {
	cfg := &config.Config{
		CacheTileMaxBytes:   100,
		CacheAPIMaxBytes:    200,
		CacheAPIMaxAge:      time.Hour,
		CacheStaticMaxBytes: 300,
		StaticManifest:      []string{"https://example.com/app.js"},
	}

	tiers := tiersFor(cfg)
	require.Len(t, tiers, 3)

	byName := make(map[cache.TierName]cache.TierConfig, len(tiers))
	for _, tc := range tiers {
		byName[tc.Name] = tc
	}
	assert.Equal(t, int64(100), byName[cache.TierTile].MaxBytes)
	assert.Zero(t, byName[cache.TierTile].MaxAge)
	assert.Equal(t, int64(200), byName[cache.TierAPI].MaxBytes)
	assert.Equal(t, time.Hour, byName[cache.TierAPI].MaxAge)
	assert.Equal(t, int64(300), byName[cache.TierStatic].MaxBytes)
	assert.Equal(t, []string{"https://example.com/app.js"}, byName[cache.TierStatic].Manifest)
}

func TestPrintStats(t *testing.T) {
	stats := []cache.TierStats{
		{Name: cache.TierAPI, Entries: 2, Bytes: 512, MaxBytes: 1024, MaxAge: 30 * time.Minute},
		{Name: cache.TierTile, Entries: 0, Bytes: 0, MaxBytes: 2048},
	}

	var buf bytes.Buffer
	require.NoError(t, printStats(&buf, stats, false))
	out := buf.String()
	assert.Contains(t, out, "TIER")
	assert.Contains(t, out, "30m0s")
	assert.Regexp(t, `tile\s+0\s+0\s+2048\s+-`, out)

	buf.Reset()
	require.NoError(t, printStats(&buf, stats, true))
	assert.Contains(t, buf.String(), `"name": "api"`)
}

func TestCacheStats_Memory(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memory")

	var out bytes.Buffer
	cmd := newCacheCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"stats", "--json"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"name": "static"`)
}

func TestCacheClear_Memory(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "memory")

	var out bytes.Buffer
	cmd := newCacheCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"clear"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "cache cleared\n", out.String())
}

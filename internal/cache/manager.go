package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
)

// TierName identifies an independently budgeted cache partition.
type TierName string

const (
	TierTile   TierName = "tile"
	TierAPI    TierName = "api"
	TierStatic TierName = "static"
)

// TierConfig describes one tier's budget.
type TierConfig struct {
	Name     TierName
	MaxBytes int64
	// MaxAge bounds how long an entry is served. Zero means no age limit.
	MaxAge time.Duration
	// Manifest, when non-empty, is the complete set of keys the tier admits.
	Manifest []string
}

// TierStats is a point-in-time view of a tier.
type TierStats struct {
	Name     TierName      `json:"name"`
	Entries  int           `json:"entries"`
	Bytes    int64         `json:"bytes"`
	MaxBytes int64         `json:"max_bytes"`
	MaxAge   time.Duration `json:"max_age,omitempty"`
}

// DefaultEvictionMinEntries is the entry count at or below which eviction
// passes are skipped.
const DefaultEvictionMinEntries = 10

// Config configures a Manager.
type Config struct {
	Tiers []TierConfig
	// MinEntries skips eviction while a tier holds this many entries or
	// fewer, bounding scan cost on hot caches. A tier holding a handful of
	// oversized entries can therefore stay over budget.
	MinEntries int
}

// DefaultTiers returns the three standard tiers: a large tile tier with no
// age limit, a small api tier with a 30 minute staleness window, and a
// manifest-bounded static tier.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{Name: TierTile, MaxBytes: 50 << 20},
		{Name: TierAPI, MaxBytes: 5 << 20, MaxAge: 30 * time.Minute},
		{Name: TierStatic, MaxBytes: 10 << 20},
	}
}

type entryMeta struct {
	storedAt time.Time
	size     int64
}

type tier struct {
	cfg          TierConfig
	entries      map[string]entryMeta
	currentBytes int64
	manifest     map[string]struct{}
}

func (t *tier) admits(key string) bool {
	if len(t.manifest) == 0 {
		return true
	}
	_, ok := t.manifest[key]
	return ok
}

func (t *tier) expired(m entryMeta, now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(m.storedAt) > maxAge
}

// Manager stores payloads in named tiers, each bounded by bytes and,
// optionally, by age. It keeps an in-memory index of entry sizes and
// timestamps over a Store that holds the payloads.
type Manager struct {
	mu         sync.Mutex
	store      Store
	tiers      map[TierName]*tier
	minEntries int
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewManager creates a manager over store and rebuilds the tier index from
// whatever the store already holds.
func NewManager(store Store, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Manager, error) {
	m := &Manager{
		store:      store,
		tiers:      make(map[TierName]*tier, len(cfg.Tiers)),
		minEntries: cfg.MinEntries,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}

	for _, tc := range cfg.Tiers {
		t := &tier{cfg: tc, entries: make(map[string]entryMeta)}
		if len(tc.Manifest) > 0 {
			t.manifest = make(map[string]struct{}, len(tc.Manifest))
			for _, k := range tc.Manifest {
				t.manifest[k] = struct{}{}
			}
		}

		metas, err := store.List(tc.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: load tier %s: %w", domain.ErrCache, tc.Name, err)
		}
		for _, em := range metas {
			t.entries[em.Key] = entryMeta{storedAt: em.StoredAt, size: em.Size}
			t.currentBytes += em.Size
		}
		m.tiers[tc.Name] = t
		m.metrics.CacheBytes.WithLabelValues(string(tc.Name)).Set(float64(t.currentBytes))
	}

	return m, nil
}

// Put stores payload under key. When the tier exceeds its byte budget
// afterwards an eviction pass runs. Errors wrap domain.ErrCache and are
// advisory: callers log them and carry on.
func (m *Manager) Put(name TierName, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tiers[name]
	if !ok {
		return fmt.Errorf("%w: unknown tier %q", domain.ErrCache, name)
	}
	if !t.admits(key) {
		return fmt.Errorf("%w: %q is not in the %s manifest", domain.ErrCache, key, name)
	}

	now := m.clock.Now()
	size := int64(len(payload))
	err := m.store.Put(name, Entry{Key: key, Payload: payload, StoredAt: now, Size: size, Tier: name})
	if err != nil {
		m.metrics.CacheErrors.WithLabelValues(string(name), "put").Inc()
		return fmt.Errorf("%w: put %s/%s: %w", domain.ErrCache, name, key, err)
	}

	if old, ok := t.entries[key]; ok {
		t.currentBytes -= old.size
	}
	t.entries[key] = entryMeta{storedAt: now, size: size}
	t.currentBytes += size

	if t.currentBytes > t.cfg.MaxBytes {
		m.evictLocked(t)
	}
	m.metrics.CacheBytes.WithLabelValues(string(name)).Set(float64(t.currentBytes))
	return nil
}

// Get returns the payload for key, applying the tier's own age limit.
func (m *Manager) Get(name TierName, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tiers[name]
	if !ok {
		return nil, false
	}
	return m.getLocked(t, key, t.cfg.MaxAge)
}

// GetWithin is Get with an explicit age limit; zero disables the check.
func (m *Manager) GetWithin(name TierName, key string, maxAge time.Duration) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tiers[name]
	if !ok {
		return nil, false
	}
	return m.getLocked(t, key, maxAge)
}

// getLocked never deletes a stale entry; it stays until an eviction pass.
func (m *Manager) getLocked(t *tier, key string, maxAge time.Duration) ([]byte, bool) {
	label := string(t.cfg.Name)

	meta, ok := t.entries[key]
	if !ok {
		m.metrics.CacheLookups.WithLabelValues(label, "miss").Inc()
		return nil, false
	}
	if t.expired(meta, m.clock.Now(), maxAge) {
		m.metrics.CacheLookups.WithLabelValues(label, "stale").Inc()
		return nil, false
	}

	payload, err := m.store.Get(t.cfg.Name, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The store lost the entry behind our back; drop it from the index.
			t.currentBytes -= meta.size
			delete(t.entries, key)
		} else {
			m.metrics.CacheErrors.WithLabelValues(label, "get").Inc()
			m.logger.Warn("cache read failed", "tier", label, "key", key, "error", err)
		}
		m.metrics.CacheLookups.WithLabelValues(label, "miss").Inc()
		return nil, false
	}

	m.metrics.CacheLookups.WithLabelValues(label, "hit").Inc()
	return payload, true
}

// Evict runs an eviction pass on the tier and returns the number of entries
// removed.
func (m *Manager) Evict(name TierName) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tiers[name]
	if !ok {
		return 0
	}
	n := m.evictLocked(t)
	m.metrics.CacheBytes.WithLabelValues(string(name)).Set(float64(t.currentBytes))
	return n
}

// evictLocked removes entries oldest-stored-first until the tier is back
// within budget. For age-limited tiers, entries past their max age go
// before any others. Tiers holding minEntries or fewer are left alone.
func (m *Manager) evictLocked(t *tier) int {
	if len(t.entries) <= m.minEntries || t.currentBytes <= t.cfg.MaxBytes {
		return 0
	}

	now := m.clock.Now()
	type candidate struct {
		key     string
		meta    entryMeta
		expired bool
	}
	candidates := make([]candidate, 0, len(t.entries))
	for k, meta := range t.entries {
		candidates = append(candidates, candidate{key: k, meta: meta, expired: t.expired(meta, now, t.cfg.MaxAge)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.expired != b.expired {
			return a.expired
		}
		if !a.meta.storedAt.Equal(b.meta.storedAt) {
			return a.meta.storedAt.Before(b.meta.storedAt)
		}
		return a.key < b.key
	})

	remaining := t.currentBytes
	var victims []string
	for _, c := range candidates {
		if remaining <= t.cfg.MaxBytes {
			break
		}
		victims = append(victims, c.key)
		remaining -= c.meta.size
	}
	if len(victims) == 0 {
		return 0
	}

	label := string(t.cfg.Name)
	if err := m.store.Delete(t.cfg.Name, victims...); err != nil {
		m.metrics.CacheErrors.WithLabelValues(label, "delete").Inc()
		m.logger.Warn("cache eviction failed", "tier", label, "victims", len(victims), "error", err)
		return 0
	}
	for _, k := range victims {
		t.currentBytes -= t.entries[k].size
		delete(t.entries, k)
	}

	m.metrics.CacheEvictions.WithLabelValues(label).Add(float64(len(victims)))
	m.logger.Debug("cache tier evicted", "tier", label, "removed", len(victims), "bytes", t.currentBytes)
	return len(victims)
}

// ClearAll purges every tier unconditionally.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, t := range m.tiers {
		if err := m.store.Clear(name); err != nil {
			m.metrics.CacheErrors.WithLabelValues(string(name), "clear").Inc()
			errs = append(errs, fmt.Errorf("%w: clear %s: %w", domain.ErrCache, name, err))
			continue
		}
		t.entries = make(map[string]entryMeta)
		t.currentBytes = 0
		m.metrics.CacheBytes.WithLabelValues(string(name)).Set(0)
	}
	return errors.Join(errs...)
}

// Stats reports every tier, ordered by name.
func (m *Manager) Stats() []TierStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TierStats, 0, len(m.tiers))
	for _, t := range m.tiers {
		out = append(out, TierStats{
			Name:     t.cfg.Name,
			Entries:  len(t.entries),
			Bytes:    t.currentBytes,
			MaxBytes: t.cfg.MaxBytes,
			MaxAge:   t.cfg.MaxAge,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

package cache

import (
	"fmt"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
)

// NoopStore stands in when caching is disabled or unavailable on the host.
// Every lookup misses and every write is refused with domain.ErrUnsupported,
// so callers fall through to the network.
type NoopStore struct{}

func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (NoopStore) List(TierName) ([]EntryMeta, error) { return nil, nil }

func (NoopStore) Get(TierName, string) ([]byte, error) { return nil, ErrNotFound }

func (NoopStore) Put(tier TierName, _ Entry) error {
	return fmt.Errorf("%w: caching disabled for tier %s", domain.ErrUnsupported, tier)
}

func (NoopStore) Delete(TierName, ...string) error { return nil }

func (NoopStore) Clear(TierName) error { return nil }

func (NoopStore) Close() error { return nil }

package cache

import (
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when the key is absent from the tier.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one stored payload.
type Entry struct {
	Key      string
	Payload  []byte
	StoredAt time.Time
	Size     int64
	Tier     TierName
}

// EntryMeta is the payload-free view of an entry, used to rebuild the
// manager's index when a persistent store is reopened.
type EntryMeta struct {
	Key      string
	StoredAt time.Time
	Size     int64
}

// Store is a keyed byte store partitioned into tiers.
type Store interface {
	// List returns metadata for every entry stored in the tier.
	List(tier TierName) ([]EntryMeta, error)
	// Get returns the payload for key, or ErrNotFound.
	Get(tier TierName, key string) ([]byte, error)
	// Put stores or replaces an entry.
	Put(tier TierName, e Entry) error
	// Delete removes keys from the tier. Missing keys are ignored.
	Delete(tier TierName, keys ...string) error
	// Clear removes every entry in the tier.
	Clear(tier TierName) error
	Close() error
}

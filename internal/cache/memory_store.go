package cache

import (
	"sync"
)

// MemoryStore keeps entries in process memory. Contents do not survive a
// restart.
type MemoryStore struct {
	mu    sync.RWMutex
	tiers map[TierName]map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tiers: make(map[TierName]map[string]Entry)}
}

func (s *MemoryStore) List(tier TierName) ([]EntryMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]EntryMeta, 0, len(s.tiers[tier]))
	for _, e := range s.tiers[tier] {
		out = append(out, EntryMeta{Key: e.Key, StoredAt: e.StoredAt, Size: e.Size})
	}
	return out, nil
}

func (s *MemoryStore) Get(tier TierName, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tiers[tier][key]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Payload, nil
}

func (s *MemoryStore) Put(tier TierName, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.tiers[tier]
	if !ok {
		m = make(map[string]Entry)
		s.tiers[tier] = m
	}
	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)
	e.Payload = payload
	m[e.Key] = e
	return nil
}

func (s *MemoryStore) Delete(tier TierName, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.tiers[tier], k)
	}
	return nil
}

func (s *MemoryStore) Clear(tier TierName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tiers, tier)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// storedAtLen is the size of the big-endian Unix-millisecond prefix written
// ahead of every payload.
const storedAtLen = 8

// BoltStore persists entries in a bbolt file, one bucket per tier.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the cache database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) List(tier TierName) ([]EntryMeta, error) {
	var out []EntryMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tier))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			storedAt, payload, err := decodeValue(v)
			if err != nil {
				return fmt.Errorf("decode %s/%s: %w", tier, k, err)
			}
			out = append(out, EntryMeta{
				Key:      string(k),
				StoredAt: storedAt,
				Size:     int64(len(payload)),
			})
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Get(tier TierName, key string) ([]byte, error) {
	var payload []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tier))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		_, p, err := decodeValue(v)
		if err != nil {
			return err
		}
		// bbolt memory is only valid for the lifetime of the transaction.
		payload = append([]byte(nil), p...)
		return nil
	})
	return payload, err
}

func (s *BoltStore) Put(tier TierName, e Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(tier))
		if err != nil {
			return err
		}
		return b.Put([]byte(e.Key), encodeValue(e.StoredAt, e.Payload))
	})
}

func (s *BoltStore) Delete(tier TierName, keys ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tier))
		if b == nil {
			return nil
		}
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Clear(tier TierName) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(tier))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func encodeValue(storedAt time.Time, payload []byte) []byte {
	buf := make([]byte, storedAtLen+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(storedAt.UnixMilli()))
	copy(buf[storedAtLen:], payload)
	return buf
}

func decodeValue(v []byte) (time.Time, []byte, error) {
	if len(v) < storedAtLen {
		return time.Time{}, nil, errors.New("truncated cache value")
	}
	ms := int64(binary.BigEndian.Uint64(v[:storedAtLen]))
	return time.UnixMilli(ms), v[storedAtLen:], nil
}

package replay

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSeen = []byte("seen_signatures")

// BoltStore keeps fingerprints in a BoltDB bucket keyed by fingerprint with the
// unix time as value.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at the given path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := checkLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSeen)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Seen records key unless present.
func (s *BoltStore) Seen(_ context.Context, key string, at time.Time) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSeen)
		if v := b.Get([]byte(key)); v != nil {
			existed = true
			return nil
		}
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(at.Unix()))
		return b.Put([]byte(key), ts[:])
	})
	return existed, err
}

// Forget deletes key. Deleting a missing key is not an error.
func (s *BoltStore) Forget(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSeen).Delete([]byte(key))
	})
}

// Prune deletes fingerprints recorded before cutoff.
func (s *BoltStore) Prune(_ context.Context, cutoff time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSeen)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if len(v) == 8 && int64(binary.BigEndian.Uint64(v)) < cutoff.Unix() {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying DB handle.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

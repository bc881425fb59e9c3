// Package revocation implements the persistent key-hash revocation set
// described in spec §4.2: an embedded, single-writer key-value store
// mapping a credential's content hash to the millisecond timestamp it
// was first revoked at.
package revocation

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aimoverse/aimo-node/internal/credential"
)

const dbFileName = "keys.db"

var bucketName = []byte("revocations")

// Store is a persistent, content-addressed revocation set backed by a
// single bbolt file. Opening it is fatal at startup on failure (spec §4.2);
// per-operation failures are returned as errors and never swallowed.
type Store struct {
	db *bolt.DB
}

// Open creates dir if absent and opens (or creates) the keys.db store
// inside it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("revocation: creating state dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, dbFileName), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("revocation: opening store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("revocation: initializing bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Revoke decodes the given encoded secret-key string, computes its
// content hash, and inserts hash -> now() only if the hash is absent.
// Re-revocation does not update the stored timestamp (idempotent).
func (s *Store) Revoke(encodedKey string) error {
	_, key, err := credential.Decode(encodedKey)
	if err != nil {
		return fmt.Errorf("revocation: decoding key: %w", err)
	}
	hash, err := credential.ContentHash(key)
	if err != nil {
		return fmt.Errorf("revocation: hashing key: %w", err)
	}
	return s.revokeHash(hash)
}

func (s *Store) revokeHash(hash [32]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(hash[:]) != nil {
			return nil
		}
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixMilli()))
		return b.Put(hash[:], ts[:])
	})
}

// IsRevoked reports whether key's content hash has been revoked.
func (s *Store) IsRevoked(key credential.SecretKey) (bool, error) {
	hash, err := credential.ContentHash(key)
	if err != nil {
		return false, fmt.Errorf("revocation: hashing key: %w", err)
	}

	var found bool
	err = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketName).Get(hash[:]) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("revocation: lookup: %w", err)
	}
	return found, nil
}

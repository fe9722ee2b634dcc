package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rezoningwatch/rezoningwatch/internal/cache"
	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

var (
	bucketRecords    = []byte("records")
	bucketToken      = []byte("token")
	bucketCache      = []byte("cache")
	bucketOutbox     = []byte("outbox")
	bucketDeadLetter = []byte("deadletter")

	tokenKey = []byte("current")
)

// ErrNotFound is returned by Get for an id the store has never seen.
var ErrNotFound = errors.New("snapshot: record not found")

// Store is the durable snapshot of the upstream catalog.
type Store struct {
	db   *bolt.DB
	path string
	now  func() time.Time // injectable for deterministic tests
}

// Open creates or opens the bbolt file at path and ensures every bucket
// exists. Only one process may hold the file at a time; a second Open fails
// after one second.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("snapshot: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: ensure dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", trimmed, err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: trimmed, now: time.Now}, nil
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketToken, bucketCache, bucketOutbox, bucketDeadLetter} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("snapshot: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a run-scoped view of the records bucket.
type Tx struct {
	records *bolt.Bucket
}

// Update runs fn in a single read-write transaction. The transaction commits
// only if fn returns nil; any error rolls back every Upsert made through tx.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{records: btx.Bucket(bucketRecords)})
	})
}

// View runs fn in a read-only transaction. Upsert fails inside View.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{records: btx.Bucket(bucketRecords)})
	})
}

// Contains reports whether a record with id is stored.
func (tx *Tx) Contains(id string) bool {
	return tx.records.Get([]byte(id)) != nil
}

// Get returns the stored record with id. Callers are expected to check
// Contains first; an unknown id yields ErrNotFound.
func (tx *Tx) Get(id string) (types.Record, error) {
	raw := tx.records.Get([]byte(id))
	if raw == nil {
		return types.Record{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	var r types.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Record{}, fmt.Errorf("snapshot: decode record %q: %w", id, err)
	}
	return r, nil
}

// Upsert inserts r or fully replaces the stored version with the same id.
func (tx *Tx) Upsert(r types.Record) error {
	if r.ID == "" {
		return fmt.Errorf("snapshot: upsert: record has no id")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("snapshot: encode record %q: %w", r.ID, err)
	}
	if err := tx.records.Put([]byte(r.ID), raw); err != nil {
		return fmt.Errorf("snapshot: put record %q: %w", r.ID, err)
	}
	return nil
}

// Count returns the number of stored records.
func (tx *Tx) Count() int {
	n := 0
	c := tx.records.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

// ForEach calls fn for every stored record in id order. Iteration stops at
// the first error.
func (tx *Tx) ForEach(fn func(types.Record) error) error {
	return tx.records.ForEach(func(k, v []byte) error {
		var r types.Record
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("snapshot: decode record %q: %w", k, err)
		}
		return fn(r)
	})
}

// Contains reports whether a record with id is stored.
func (s *Store) Contains(id string) (bool, error) {
	var ok bool
	err := s.View(func(tx *Tx) error {
		ok = tx.Contains(id)
		return nil
	})
	return ok, err
}

// Get returns the stored record with id, or an error wrapping ErrNotFound.
func (s *Store) Get(id string) (types.Record, error) {
	var r types.Record
	err := s.View(func(tx *Tx) error {
		var err error
		r, err = tx.Get(id)
		return err
	})
	return r, err
}

// Upsert stores r in its own transaction.
func (s *Store) Upsert(r types.Record) error {
	return s.Update(func(tx *Tx) error { return tx.Upsert(r) })
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.View(func(tx *Tx) error {
		n = tx.Count()
		return nil
	})
	return n, err
}

// ForEach calls fn for every stored record in id order.
func (s *Store) ForEach(fn func(types.Record) error) error {
	return s.View(func(tx *Tx) error { return tx.ForEach(fn) })
}

// storedToken is the token bucket row: expiration in unix
// milliseconds plus the raw token string.
type storedToken struct {
	Expiration int64  `json:"expiration"`
	Token      string `json:"token"`
}

// GetToken returns the cached token, if any.
func (s *Store) GetToken() (types.Token, bool, error) {
	var (
		tok   types.Token
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketToken).Get(tokenKey)
		if raw == nil {
			return nil
		}
		var st storedToken
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("snapshot: decode token: %w", err)
		}
		tok = types.Token{Value: st.Token, Expiration: time.UnixMilli(st.Expiration).UTC()}
		found = true
		return nil
	})
	return tok, found, err
}

// SetToken atomically replaces the cached token.
func (s *Store) SetToken(t types.Token) error {
	raw, err := json.Marshal(storedToken{Expiration: t.Expiration.UnixMilli(), Token: t.Value})
	if err != nil {
		return fmt.Errorf("snapshot: encode token: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketToken); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("snapshot: clear token: %w", err)
		}
		b, err := tx.CreateBucket(bucketToken)
		if err != nil {
			return fmt.Errorf("snapshot: recreate token bucket: %w", err)
		}
		return b.Put(tokenKey, raw)
	})
}

// LoadCacheEntry implements cache.Backend.
func (s *Store) LoadCacheEntry(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCache).Get([]byte(key))
		if raw == nil {
			return cache.ErrNotFound
		}
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, err
}

// SaveCacheEntry implements cache.Backend.
func (s *Store) SaveCacheEntry(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(key), value)
	})
}

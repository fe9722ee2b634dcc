package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// ErrOutboxEntryNotFound is returned when an outbox id is unknown.
var ErrOutboxEntryNotFound = errors.New("snapshot: outbox entry not found")

// OutboxEntry is a report whose delivery failed and is waiting to be retried.
type OutboxEntry struct {
	ID          uint64       `json:"id"`
	Report      types.Report `json:"report"`
	Attempts    int          `json:"attempts"`
	CreatedAt   time.Time    `json:"created_at"`
	LastAttempt time.Time    `json:"last_attempt"`
	LastError   string       `json:"last_error,omitempty"`
	MovedAt     *time.Time   `json:"moved_at,omitempty"`
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Enqueue stores a report after a failed delivery attempt. The entry starts
// with one recorded attempt.
func (s *Store) Enqueue(r types.Report, deliveryErr error) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("snapshot: outbox sequence: %w", err)
		}
		now := s.now().UTC()
		e := OutboxEntry{
			ID:          seq,
			Report:      r,
			Attempts:    1,
			CreatedAt:   now,
			LastAttempt: now,
		}
		if deliveryErr != nil {
			e.LastError = deliveryErr.Error()
		}
		id = seq
		return putEntry(b, e)
	})
	return id, err
}

// Pending returns every queued entry, oldest first.
func (s *Store) Pending() ([]OutboxEntry, error) {
	return s.listEntries(bucketOutbox)
}

// DeadLetters returns every entry that ran out of attempts, oldest first.
func (s *Store) DeadLetters() ([]OutboxEntry, error) {
	return s.listEntries(bucketDeadLetter)
}

// Ack removes a delivered entry from the outbox.
func (s *Store) Ack(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		if b.Get(itob(id)) == nil {
			return fmt.Errorf("%w: %d", ErrOutboxEntryNotFound, id)
		}
		return b.Delete(itob(id))
	})
}

// Retry records another failed attempt for id and returns the updated entry.
func (s *Store) Retry(id uint64, deliveryErr error) (OutboxEntry, error) {
	var e OutboxEntry
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		var err error
		e, err = getEntry(b, id)
		if err != nil {
			return err
		}
		e.Attempts++
		e.LastAttempt = s.now().UTC()
		if deliveryErr != nil {
			e.LastError = deliveryErr.Error()
		}
		return putEntry(b, e)
	})
	return e, err
}

// DeadLetter moves id from the outbox to the dead-letter bucket.
func (s *Store) DeadLetter(id uint64, reason error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		out := tx.Bucket(bucketOutbox)
		e, err := getEntry(out, id)
		if err != nil {
			return err
		}
		moved := s.now().UTC()
		e.MovedAt = &moved
		if reason != nil {
			e.LastError = reason.Error()
		}
		if err := putEntry(tx.Bucket(bucketDeadLetter), e); err != nil {
			return err
		}
		return out.Delete(itob(id))
	})
}

func (s *Store) listEntries(bucket []byte) ([]OutboxEntry, error) {
	var out []OutboxEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var e OutboxEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("snapshot: decode %s entry %d: %w", bucket, binary.BigEndian.Uint64(k), err)
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func getEntry(b *bolt.Bucket, id uint64) (OutboxEntry, error) {
	raw := b.Get(itob(id))
	if raw == nil {
		return OutboxEntry{}, fmt.Errorf("%w: %d", ErrOutboxEntryNotFound, id)
	}
	var e OutboxEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return OutboxEntry{}, fmt.Errorf("snapshot: decode outbox entry %d: %w", id, err)
	}
	return e, nil
}

func putEntry(b *bolt.Bucket, e OutboxEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("snapshot: encode outbox entry %d: %w", e.ID, err)
	}
	return b.Put(itob(e.ID), raw)
}

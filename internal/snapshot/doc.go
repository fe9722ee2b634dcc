// Package snapshot persists the last-known state of every catalog record in a
// bbolt file, together with the single cached API token, the fetch cache and
// the notification outbox.
//
// Buckets:
//   - records:    id → JSON types.Record
//   - token:      "current" → JSON {expiration (unix ms), token}
//   - cache:      sha256 key → JSON cache entry (see internal/cache)
//   - outbox:     sequence → JSON OutboxEntry awaiting delivery
//   - deadletter: sequence → JSON OutboxEntry that ran out of attempts
//
// A pipeline run wraps its whole diff-and-upsert pass in Store.Update, so a
// failure before commit leaves the records bucket untouched. Store methods
// that open their own transaction must not be called from inside an Update or
// View callback; use the Tx methods there instead.
package snapshot

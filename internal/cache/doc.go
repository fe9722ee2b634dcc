// Package cache memoizes expensive upstream fetches behind a TTL.
//
// Cache[T] hashes every caller key with SHA-256 before it reaches the
// Backend, so long URLs never leak into storage and never collide. Values are
// stored as JSON alongside an absolute expiration.
//
// Every failure inside the cache (missing entry, expired entry, corrupt
// payload, backend I/O error) surfaces to the caller as a plain miss. Faults
// other than absence are reported through the FaultFunc hook so a
// persistently broken backend is visible in logs and metrics.
//
// GetOrFetch composes a cache lookup with the real fetch; a nil *Cache turns
// it into a direct call.
package cache

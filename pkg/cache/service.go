package cache

import "time"

// CacheService is the in-process key/value cache used for settings, enums and
// the single-node fallbacks of the lock and idempotency stores.
type CacheService interface {
	// Get returns the value and true when the key is present and not expired.
	Get(key string) (interface{}, bool)

	// Set stores a value for duration.
	Set(key string, value interface{}, duration time.Duration)

	// Add stores a value only when the key is absent or expired.
	// Returns false when the key already exists.
	Add(key string, value interface{}, duration time.Duration) bool

	Delete(key string)

	Flush()
}

package cache

import (
	"context"
	"time"
)

// Cache is a small TTL key/value abstraction injected into components that
// would otherwise grow ad hoc in-process maps. Values are strings; callers
// own their own serialization.
type Cache interface {
	// Get returns the value and whether the key was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Invalidate removes a key. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key string) error
}

// IdempotencyStore remembers processed event identities so duplicate
// webhook deliveries can be ignored.
type IdempotencyStore interface {
	// MarkProcessed records an event id with a TTL. Returns true if the id
	// was newly recorded, false if it was already processed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Forget releases an event id so a redelivery can be processed again.
	// Called when handling failed after the id was claimed.
	Forget(ctx context.Context, eventID string) error
	Close() error
}

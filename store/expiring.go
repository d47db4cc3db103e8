package store

import (
	"context"
	"time"

	"github.com/localfirst/syncd/errors"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// ExpiringStore is a key/value store whose entries carry a TTL. It backs the
// session-group counters, the revocation markers and the connection tickets.
type ExpiringStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Del removes key; a missing key is not an error.
	Del(ctx context.Context, key string) error
	// Take reads and removes key in one step.
	Take(ctx context.Context, key string) (string, error)
	// CompareAndSwap replaces the value of key with next and resets its TTL
	// only if the current value equals old. It returns ErrNotFound when key
	// is absent and false when another writer got there first.
	CompareAndSwap(ctx context.Context, key, old, next string, ttl time.Duration) (bool, error)
	Close() error
}

// minTTL keeps sub-millisecond lifetimes from turning into "no expiry".
const minTTL = time.Millisecond

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

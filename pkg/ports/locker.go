package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for cross-process concurrency control.
// The executor holds one lock per project for the whole invocation, so two
// processes never clean and rebuild the same output directory at once.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is cancelled.
	// The lock expires after ttl if the holder dies without releasing it.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// Package lock serializes engine mutations per process instance. A
// single in-process mutex set suffices for one replica; the Redis
// variant extends the same guarantee across replicas.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when the lock is already held elsewhere.
// Callers treat it as a transient conflict and retry or surface it.
var ErrLockHeld = errors.New("lock already held")

// InstanceLock runs fn while holding an exclusive lock on key.
// Acquisition is non-blocking: if the lock is held elsewhere,
// ErrLockHeld is returned without running fn. Re-entrant within the
// same call chain via the context.
type InstanceLock interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

type lockToken string

// Package lock provides single-flight locks keyed by assessment, in process or in Redis.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another worker")

// Release frees a lock acquired by Acquire. Releasing twice is harmless.
type Release func(ctx context.Context) error

// Locker grants at most one holder per key at a time.
type Locker interface {
	// Acquire takes the lock for key or fails with ErrLocked. The lock expires after ttl
	// even if it is never released.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// AssessmentKey is the lock key for one (document, user) assessment.
func AssessmentKey(documentID, userID string) string {
	return "assessment:" + documentID + ":" + userID
}

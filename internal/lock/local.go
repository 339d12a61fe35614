package lock

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	token   uint64
	expires time.Time
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	held  map[string]localEntry
	next  uint64
	clock func() time.Time
}

// NewLocal creates an empty in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), clock: time.Now}
}

// Acquire implements Locker.
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if entry, ok := l.held[key]; ok && (entry.expires.IsZero() || now.Before(entry.expires)) {
		return nil, ErrLocked
	}

	l.next++
	token := l.next
	entry := localEntry{token: token}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	l.held[key] = entry

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.held[key]; ok && current.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

package lock

import (
	"context"
	"sync"
	"time"

	"logiplatform/internal/common/clock"
)

// MemoryLocker is an in-process Locker for tests and single-node runs. TTL
// expiry is honored so tests can exercise crashed-holder behavior.
type MemoryLocker struct {
	mu        sync.Mutex
	held      map[string]memEntry
	clock     clock.Clock
	nextToken uint64
}

type memEntry struct {
	token     uint64
	expiresAt time.Time
}

// NewMemoryLocker creates an in-memory locker.
func NewMemoryLocker(clk clock.Clock) *MemoryLocker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryLocker{
		held:  make(map[string]memEntry),
		clock: clk,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if e, ok := l.held[key]; ok && e.expiresAt.After(now) {
		return nil, false, nil
	}

	l.nextToken++
	token := l.nextToken
	l.held[key] = memEntry{token: token, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.token == token {
			delete(l.held, key)
		}
		return nil
	}
	return release, true, nil
}

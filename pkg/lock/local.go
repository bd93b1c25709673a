package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker. Locks expire after their ttl like Redis keys.
type Local struct {
	now  func() time.Time
	held map[string]localEntry
	mu   sync.Mutex
	seq  uint64
}

type localEntry struct {
	until time.Time
	seq  uint64
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{now: time.Now, held: make(map[string]localEntry)}
}

// TryLock takes key unless an unexpired holder exists.
func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.until) {
		return nil, false, nil
	}

	l.seq++
	mine := l.seq
	l.held[key] = localEntry{until: now.Add(ttl), seq: mine}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if e, ok := l.held[key]; ok && e.seq == mine {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}

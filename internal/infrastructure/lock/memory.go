package lock

import (
	"context"
	"sync"
	"time"
)

type holder struct {
	token   string
	expires time.Time
}

// MemoryLock is a TTL lock for single-instance deployments. It does not
// coordinate across processes.
type MemoryLock struct {
	mu   sync.Mutex
	held map[string]holder
	now  func() time.Time
}

// NewMemoryLock creates an in-process lock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{held: make(map[string]holder), now: time.Now}
}

// Acquire takes key for ttl. It returns ok=false while another token holds
// an unexpired lock.
func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return "", false, nil
	}
	token := newToken()
	l.held[key] = holder{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release frees key if token still owns it.
func (l *MemoryLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.held[key]
	if !ok || h.token != token {
		return ErrNotHeld
	}
	delete(l.held, key)
	return nil
}

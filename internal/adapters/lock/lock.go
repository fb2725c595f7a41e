// Package lock keeps two runs of the same job from overlapping, within one
// process or across processes that share a Redis.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires named, expiring locks.
type Locker interface {
	// TryAcquire takes the lock for key without waiting. It returns
	// ErrNotAcquired when another holder has it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease releases a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

// TryAcquire implements Locker. An expired lock is taken over.
func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrNotAcquired
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	return &localLease{l: l, key: key, exp: exp}, nil
}

type localLease struct {
	l    *LocalLocker
	key  string
	exp  time.Time
	once sync.Once
}

// Release frees the lock unless it expired and was taken by someone else.
func (r *localLease) Release(_ context.Context) error {
	r.once.Do(func() {
		r.l.mu.Lock()
		defer r.l.mu.Unlock()
		if exp, ok := r.l.held[r.key]; ok && exp.Equal(r.exp) {
			delete(r.l.held, r.key)
		}
	})
	return nil
}

package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is the single-process Locker used when no redis is configured.
// Each key maps to a one-slot channel; holding the slot is holding the lock.
type LocalLocker struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

// NewLocalLocker returns a locker whose Obtain gives up after timeout.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Obtain(ctx context.Context, key, _ string) (Lock, error) {
	ch := l.slot(key)
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return localLock{ch: ch}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrLockFailed
	}
}

type localLock struct {
	ch chan struct{}
}

func (l localLock) Release(context.Context) error {
	<-l.ch
	return nil
}

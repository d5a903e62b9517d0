package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Lock serializes requests to a service and enforces a minimum wait
// between consecutive acquisitions.
type Lock interface {
	Lock(ctx context.Context) func()
}

func New(wait time.Duration) Lock {
	return &lock{wait: wait}
}

type lock struct {
	lck  sync.Mutex
	wait time.Duration
	last time.Time
}

func (l *lock) Lock(ctx context.Context) func() {
	l.lck.Lock()
	if !l.last.IsZero() {
		elapsed := time.Since(l.last)
		if elapsed < l.wait {
			t := time.NewTimer(l.wait - elapsed)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
	return func() {
		l.last = time.Now()
		l.lck.Unlock()
	}
}

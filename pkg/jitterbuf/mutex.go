package jitterbuf

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// mutex is a weight-1 semaphore used as the buffer's single lock. Unlike
// sync.Mutex, Acquire takes a context, which lets write/read/reset bound
// their wait the same way the original implementation bounds
// xSemaphoreTake with a tick timeout: on expiry they return ErrTimeout
// instead of blocking forever.
type mutex struct {
	sem *semaphore.Weighted
}

func newMutex() *mutex {
	return &mutex{sem: semaphore.NewWeighted(1)}
}

// lock acquires the mutex, waiting at most timeout. It reports whether the
// acquisition succeeded.
func (m *mutex) lock(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.sem.Acquire(ctx, 1) == nil
}

func (m *mutex) unlock() {
	m.sem.Release(1)
}

package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const maxReaders = 1 << 20

// rwLock is a read/write lock whose acquisition gives up after a timeout.
// Readers take one unit, writers take all of them.
type rwLock struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

var (
	fileLocksMu sync.Mutex
	fileLocks   = map[string]*rwLock{}
)

// lockFor returns the process-wide lock for path.
func lockFor(path string, timeout time.Duration) *rwLock {
	fileLocksMu.Lock()
	defer fileLocksMu.Unlock()
	l, ok := fileLocks[path]
	if !ok {
		l = &rwLock{sem: semaphore.NewWeighted(maxReaders), timeout: timeout}
		fileLocks[path] = l
	}
	return l
}

func (l *rwLock) acquire(ctx context.Context, n int64, path string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, n); err != nil {
		return nil, fmt.Errorf("lock state file %s: %w", path, err)
	}
	return func() { l.sem.Release(n) }, nil
}

func (l *rwLock) rlock(ctx context.Context, path string) (func(), error) {
	return l.acquire(ctx, 1, path)
}

func (l *rwLock) lock(ctx context.Context, path string) (func(), error) {
	return l.acquire(ctx, maxReaders, path)
}

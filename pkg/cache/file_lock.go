package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const lockRetryInterval = 10 * time.Millisecond

// fileLock is a held flock(2) on <root>/.locks/<partition>.lock.
type fileLock struct {
	mu   sync.Mutex
	file *os.File
}

// Lock acquires an exclusive advisory lock for the partition. It polls with a
// non-blocking flock until the lock is free, the context is done, or the lock
// timeout expires (ErrLockHeld).
//
// flock is advisory: only processes that also call Lock are excluded.
func (s *FileStore) Lock(ctx context.Context, partition string) (Unlocker, error) {
	if _, err := s.partitionDir(partition); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, locksDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		CacheErrors.WithLabelValues(layerFile, "lock").Inc()
		return nil, fmt.Errorf("create locks dir: %w", err)
	}

	path := filepath.Join(dir, partition+".lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // partition is validated
	if err != nil {
		CacheErrors.WithLabelValues(layerFile, "lock").Inc()
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(s.lockTimeout)

	for {
		flockErr := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if flockErr == nil {
			return &fileLock{file: file}, nil
		}

		if !errors.Is(flockErr, unix.EWOULDBLOCK) && !errors.Is(flockErr, unix.EINTR) {
			_ = file.Close()
			CacheErrors.WithLabelValues(layerFile, "lock").Inc()
			return nil, fmt.Errorf("flock %s: %w", path, flockErr)
		}

		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, partition)
		}

		select {
		case <-ctx.Done():
			_ = file.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// Unlock releases the lock. Calling it more than once is safe.
func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking: %w", unlockErr)
	}
	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}
	return errors.Join(unlockErr, closeErr)
}

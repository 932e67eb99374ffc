package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// DefaultLockTimeout bounds how long Lock waits for a held partition lock.
const DefaultLockTimeout = 5 * time.Second

// locksDirName holds lock files outside every partition directory, so
// invalidating a partition never unlinks a lock somebody holds.
const locksDirName = ".locks"

// FileStore caches pages as files: <root>/<partition>/<sha256(url)>.
type FileStore struct {
	root        string
	lockTimeout time.Duration
}

// NewFileStore creates a file store rooted at root, creating the directory if
// it does not exist.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &FileStore{
		root:        root,
		lockTimeout: DefaultLockTimeout,
	}, nil
}

// Root returns the cache root directory.
func (s *FileStore) Root() string {
	return s.root
}

// SetLockTimeout changes how long Lock waits (for testing).
func (s *FileStore) SetLockTimeout(d time.Duration) {
	s.lockTimeout = d
}

func (s *FileStore) partitionDir(partition string) (string, error) {
	if err := validatePartition(partition); err != nil {
		return "", err
	}
	return filepath.Join(s.root, partition), nil
}

func (s *FileStore) entryPath(key CacheKey) (string, error) {
	dir, err := s.partitionDir(key.Partition)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, key.Hash()), nil
}

// Exists reports whether a file exists for key.
func (s *FileStore) Exists(_ context.Context, key CacheKey) (bool, error) {
	path, err := s.entryPath(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		CacheErrors.WithLabelValues(layerFile, "exists").Inc()
		return false, fmt.Errorf("stat entry: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Get reads the entry for key.
// Returns ErrCacheMiss if the file doesn't exist.
func (s *FileStore) Get(_ context.Context, key CacheKey) ([]byte, error) {
	path, err := s.entryPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			CacheMisses.WithLabelValues(layerFile).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(layerFile, "get").Inc()
		return nil, fmt.Errorf("read entry: %w", err)
	}

	CacheHits.WithLabelValues(layerFile).Inc()
	return data, nil
}

// Set writes the entry atomically (temp file + rename), so concurrent readers
// see either the old or the new page, never a partial one.
func (s *FileStore) Set(_ context.Context, key CacheKey, data []byte) error {
	path, err := s.entryPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		CacheErrors.WithLabelValues(layerFile, "set").Inc()
		return fmt.Errorf("create partition dir: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		CacheErrors.WithLabelValues(layerFile, "set").Inc()
		return fmt.Errorf("write entry: %w", err)
	}

	CacheWrites.WithLabelValues(layerFile).Inc()
	CacheWrittenBytes.WithLabelValues(layerFile).Add(float64(len(data)))
	return nil
}

// Invalidate removes the partition directory and everything below it.
func (s *FileStore) Invalidate(_ context.Context, partition string) error {
	dir, err := s.partitionDir(partition)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPartitionNotFound, partition)
		}
		CacheErrors.WithLabelValues(layerFile, "invalidate").Inc()
		return fmt.Errorf("stat partition: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		CacheErrors.WithLabelValues(layerFile, "invalidate").Inc()
		return fmt.Errorf("remove partition: %w", err)
	}

	CacheInvalidations.WithLabelValues(layerFile).Inc()
	return nil
}

// Scan reads every entry file of the partition. Files whose names are not
// entry hashes (for example leftover temp files of an interrupted write) are
// skipped.
func (s *FileStore) Scan(ctx context.Context, partition string, fn func(name string, data []byte) error) error {
	dir, err := s.partitionDir(partition)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		CacheErrors.WithLabelValues(layerFile, "scan").Inc()
		return fmt.Errorf("list partition: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() || !isEntryName(entry.Name()) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			CacheErrors.WithLabelValues(layerFile, "scan").Inc()
			return fmt.Errorf("read entry %s: %w", entry.Name(), err)
		}

		if err := fn(entry.Name(), data); err != nil {
			return err
		}
	}

	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// isEntryName reports whether name looks like a CacheKey hash.
func isEntryName(name string) bool {
	if len(name) != 64 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrPartitionNotFound indicates an invalidation targeted a partition
	// that has no cached entries.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrInvalidPartition is returned for partition names that cannot be
	// used as a directory or key segment.
	ErrInvalidPartition = errors.New("invalid partition name")

	// ErrLockHeld is returned when a partition lock could not be acquired
	// before the deadline.
	ErrLockHeld = errors.New("partition lock held")
)

// Store is a content cache of raw page bodies, partitioned by collector id.
//
// An entry, once written, is authoritative for its exact URL until the whole
// partition is invalidated. Implementations must store bytes verbatim.
type Store interface {
	// Exists reports whether an entry exists for key.
	Exists(ctx context.Context, key CacheKey) (bool, error)

	// Get returns the stored bytes, or ErrCacheMiss.
	Get(ctx context.Context, key CacheKey) ([]byte, error)

	// Set stores data for key, creating the partition if needed and
	// overwriting any previous entry.
	Set(ctx context.Context, key CacheKey, data []byte) error

	// Invalidate removes every entry of the partition. It returns
	// ErrPartitionNotFound if the partition never existed.
	Invalidate(ctx context.Context, partition string) error

	// Scan calls fn for every entry of the partition. Enumeration order is
	// unspecified. A missing partition yields no calls and no error.
	Scan(ctx context.Context, partition string, fn func(name string, data []byte) error) error

	// Lock takes the advisory lock of a partition.
	Lock(ctx context.Context, partition string) (Unlocker, error)

	// Close releases backend resources.
	Close() error
}

// Unlocker releases a partition lock.
type Unlocker interface {
	Unlock() error
}

// InvalidateIfExists invalidates a partition and treats a missing partition as
// a no-op. It reports whether anything was removed.
func InvalidateIfExists(ctx context.Context, s Store, partition string) (bool, error) {
	err := s.Invalidate(ctx, partition)
	if errors.Is(err, ErrPartitionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("invalidate %s: %w", partition, err)
	}
	return true, nil
}

// validatePartition rejects names that would escape the cache root or act as
// a glob when used as a Redis key segment.
func validatePartition(partition string) error {
	if partition == "" || strings.HasPrefix(partition, ".") ||
		strings.ContainsAny(partition, "/\\:*?[]") {
		return fmt.Errorf("%w: %q", ErrInvalidPartition, partition)
	}
	return nil
}

package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisKeyPrefix namespaces every key written by RedisStore.
	redisKeyPrefix = "monscrape"

	// redisLockPrefix namespaces lock keys. It differs from redisKeyPrefix so
	// no partition pattern can match a lock.
	redisLockPrefix = "monscrape-lock"

	// redisLockTTL caps how long a crashed holder keeps a partition locked.
	redisLockTTL = 10 * time.Minute

	redisScanCount = 200
)

// unlockScript deletes the lock key only if it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore caches pages in Redis as monscrape:<partition>:<hash>.
// Entries have no TTL; they live until the partition is invalidated.
type RedisStore struct {
	redis       *redis.Client
	lockTimeout time.Duration
}

// NewRedisStore creates a new store with Redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:       redisClient,
		lockTimeout: DefaultLockTimeout,
	}
}

func redisEntryKey(key CacheKey) string {
	return redisKeyPrefix + ":" + key.Partition + ":" + key.Hash()
}

func redisPartitionPattern(partition string) string {
	return redisKeyPrefix + ":" + partition + ":*"
}

func redisLockKey(partition string) string {
	return redisLockPrefix + ":" + partition
}

// Exists reports whether the entry key is present.
func (s *RedisStore) Exists(ctx context.Context, key CacheKey) (bool, error) {
	if err := validatePartition(key.Partition); err != nil {
		return false, err
	}

	n, err := s.redis.Exists(ctx, redisEntryKey(key)).Result()
	if err != nil {
		CacheErrors.WithLabelValues(layerRedis, "exists").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key CacheKey) ([]byte, error) {
	if err := validatePartition(key.Partition); err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, redisEntryKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(layerRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(layerRedis, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	CacheHits.WithLabelValues(layerRedis).Inc()
	return data, nil
}

// Set stores the entry without expiry.
func (s *RedisStore) Set(ctx context.Context, key CacheKey, data []byte) error {
	if err := validatePartition(key.Partition); err != nil {
		return err
	}

	if err := s.redis.Set(ctx, redisEntryKey(key), data, 0).Err(); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrites.WithLabelValues(layerRedis).Inc()
	CacheWrittenBytes.WithLabelValues(layerRedis).Add(float64(len(data)))
	return nil
}

// Invalidate deletes every entry key of the partition.
func (s *RedisStore) Invalidate(ctx context.Context, partition string) error {
	if err := validatePartition(partition); err != nil {
		return err
	}

	deleted := int64(0)
	iter := s.redis.Scan(ctx, 0, redisPartitionPattern(partition), redisScanCount).Iterator()
	batch := make([]string, 0, redisScanCount)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.redis.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += n
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanCount {
			if err := flush(); err != nil {
				CacheErrors.WithLabelValues(layerRedis, "invalidate").Inc()
				return fmt.Errorf("redis del: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "invalidate").Inc()
		return fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "invalidate").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrPartitionNotFound, partition)
	}

	CacheInvalidations.WithLabelValues(layerRedis).Inc()
	return nil
}

// Scan reads every entry of the partition. Keys deleted between SCAN and GET
// are skipped.
func (s *RedisStore) Scan(ctx context.Context, partition string, fn func(name string, data []byte) error) error {
	if err := validatePartition(partition); err != nil {
		return err
	}

	prefix := redisKeyPrefix + ":" + partition + ":"
	iter := s.redis.Scan(ctx, 0, redisPartitionPattern(partition), redisScanCount).Iterator()

	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.redis.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			CacheErrors.WithLabelValues(layerRedis, "scan").Inc()
			return fmt.Errorf("redis get %s: %w", key, err)
		}

		if err := fn(strings.TrimPrefix(key, prefix), data); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues(layerRedis, "scan").Inc()
		return fmt.Errorf("redis scan: %w", err)
	}

	return nil
}

// redisLock is a held SET NX lock identified by a random token.
type redisLock struct {
	redis *redis.Client
	key   string
	token string
}

// Lock acquires the partition lock with SET NX, polling until the lock
// timeout expires (ErrLockHeld) or the context is done.
func (s *RedisStore) Lock(ctx context.Context, partition string) (Unlocker, error) {
	if err := validatePartition(partition); err != nil {
		return nil, err
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}
	lock := &redisLock{
		redis: s.redis,
		key:   redisLockKey(partition),
		token: hex.EncodeToString(buf),
	}

	deadline := time.Now().Add(s.lockTimeout)

	for {
		ok, err := s.redis.SetNX(ctx, lock.key, lock.token, redisLockTTL).Result()
		if err != nil {
			CacheErrors.WithLabelValues(layerRedis, "lock").Inc()
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return lock, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, partition)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval * 10):
		}
	}
}

// Unlock releases the lock if it is still ours.
func (l *redisLock) Unlock() error {
	err := unlockScript.Run(context.Background(), l.redis, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis unlock: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}

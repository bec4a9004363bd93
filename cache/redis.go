package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

// RedisStore is the shared primary cache backend. Entries are written with a
// physical TTL equal to the logical TTL plus the stale retention window so
// expired entries remain readable during source fallback.
type RedisStore struct {
	ctx     context.Context
	logger  types.Logger
	config  *types.RedisConfig
	client  *redis.Client
	prefix  string
	running int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = &types.RedisConfig{}
	}

	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 6379
	}
	poolSize := config.PoolSize
	if poolSize == 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     poolSize,
		MinIdleConns: config.MinIdleConnections,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "gridfeed"
	}

	store := &RedisStore{
		ctx:    ctx,
		logger: logger,
		config: config,
		client: client,
		prefix: prefix,
	}

	return store, nil
}

func (r *RedisStore) Name() string {
	return "redis"
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if err := r.Ping(r.ctx); err != nil {
		r.logger.Warn("redis unreachable at startup, primary store degraded", zap.Error(err))
	}

	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.running) == 1
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return types.WrapError(err, "redis ping failed")
	}
	return nil
}

// Get returns the stored entry without applying logical expiry. Callers decide
// whether an expired entry is acceptable as stale.
func (r *RedisStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}

	result, err := r.client.Get(ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, types.ErrCacheEntryNotFound
		}
		return nil, types.WrapError(err, "failed to get cache entry")
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal(result, &entry); err != nil {
		r.logger.Error("failed to unmarshal cache entry, dropping", zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, r.buildFullKey(key))
		return nil, types.ErrCacheValueInvalid
	}

	return &entry, nil
}

func (r *RedisStore) Set(ctx context.Context, entry *types.CacheEntry, retention time.Duration) error {
	if entry == nil || entry.Key == "" {
		return types.ErrCacheKeyEmpty
	}

	data, err := utils.Marshal(entry)
	if err != nil {
		return types.WrapError(err, "failed to marshal cache entry")
	}

	physical := entry.TTL + retention
	if err := r.client.Set(ctx, r.buildFullKey(entry.Key), data, physical).Err(); err != nil {
		return types.WrapError(err, "failed to set cache entry")
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	if err := r.client.Del(ctx, r.buildFullKey(key)).Err(); err != nil {
		return types.WrapError(err, "failed to delete cache key")
	}

	return nil
}

// DeletePattern removes all keys matching the glob pattern using incremental
// SCAN so large keyspaces never block the server.
func (r *RedisStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		return 0, types.ErrCacheKeyEmpty
	}

	fullPattern := r.buildFullKey(pattern)
	deleted := 0

	iter := r.client.Scan(ctx, 0, fullPattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Error("failed to delete matched key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return deleted, types.WrapError(err, "failed to scan cache keys")
	}

	return deleted, nil
}

func (r *RedisStore) buildFullKey(key string) string {
	return r.prefix + ":" + key
}

package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

// RedisStore keeps counting state in Redis so limits hold across instances.
// Windows use plain INCR with expiry, sliding windows a sorted set of
// timestamps, buckets a JSON blob. Bucket read-modify-write is not atomic
// across instances; slight over-admission under contention is accepted.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) IncrWindow(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, types.Errorf(types.ErrStoreFailed, "incr %s: %v", key, err)
	}

	return incr.Val(), nil
}

func (r *RedisStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	cutoff := now.Add(-window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", formatScore(cutoff))
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, types.Errorf(types.ErrStoreFailed, "sliding count %s: %v", key, err)
	}

	var oldestAt time.Time
	if members := oldest.Val(); len(members) > 0 {
		oldestAt = time.Unix(0, int64(members[0].Score))
	}

	return card.Val(), oldestAt, nil
}

func (r *RedisStore) SlidingAdd(ctx context.Context, key string, now time.Time, window time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return types.Errorf(types.ErrStoreFailed, "sliding add %s: %v", key, err)
	}

	return nil
}

func (r *RedisStore) GetBucket(ctx context.Context, key string) (*types.BucketState, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, nil
		}
		return nil, types.Errorf(types.ErrStoreFailed, "get bucket %s: %v", key, err)
	}

	var state types.BucketState
	if err := utils.Unmarshal(data, &state); err != nil {
		return nil, types.Errorf(types.ErrStoreFailed, "decode bucket %s: %v", key, err)
	}

	return &state, nil
}

func (r *RedisStore) SetBucket(ctx context.Context, key string, state *types.BucketState, expiry time.Duration) error {
	data, err := utils.Marshal(state)
	if err != nil {
		return types.Errorf(types.ErrStoreFailed, "encode bucket %s: %v", key, err)
	}

	if err := r.client.Set(ctx, key, data, expiry).Err(); err != nil {
		return types.Errorf(types.ErrStoreFailed, "set bucket %s: %v", key, err)
	}

	return nil
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearharbor/portal/services/auth-service/internal/ports"
)

const (
	lockoutKeyPrefix = "auth:lockout:"

	// failureIdleTTL bounds how long a failure streak below the threshold
	// survives before Redis forgets it.
	failureIdleTTL = 24 * time.Hour

	// lockExpiryGrace keeps the hash readable a little past the lock window
	// so operators can inspect a lockout that just ended.
	lockExpiryGrace = 30 * time.Minute
)

// RedisLockoutStore keeps per-identifier failure streaks in a Redis hash with
// fields failed_count and locked_until (unix seconds). User rows remain the
// source of truth for known accounts; this store also counts identifiers that
// never resolve to a row.
type RedisLockoutStore struct {
	client *redis.Client
}

func NewRedisLockoutStore(client *redis.Client) *RedisLockoutStore {
	return &RedisLockoutStore{client: client}
}

func (s *RedisLockoutStore) Get(ctx context.Context, key string) (ports.LockoutState, error) {
	fields, err := s.client.HGetAll(ctx, lockoutKeyPrefix+key).Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	if len(fields) == 0 {
		return ports.LockoutState{}, nil
	}

	var state ports.LockoutState
	state.FailedCount, _ = strconv.Atoi(fields["failed_count"])
	if unix, convErr := strconv.ParseInt(fields["locked_until"], 10, 64); convErr == nil && unix > 0 {
		t := time.Unix(unix, 0).UTC()
		state.LockedUntil = &t
	}
	return state, nil
}

func (s *RedisLockoutStore) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	redisKey := lockoutKeyPrefix + key

	count, err := s.client.HIncrBy(ctx, redisKey, "failed_count", 1).Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	state := ports.LockoutState{FailedCount: int(count)}

	if state.FailedCount < threshold {
		_ = s.client.Expire(ctx, redisKey, failureIdleTTL).Err()
		return state, nil
	}

	lockedUntil := now.Add(lockoutWindow).UTC()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisKey, "locked_until", lockedUntil.Unix())
		p.Expire(ctx, redisKey, lockoutWindow+lockExpiryGrace)
		return nil
	})
	if err != nil {
		return ports.LockoutState{}, err
	}
	state.LockedUntil = &lockedUntil
	return state, nil
}

func (s *RedisLockoutStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockoutKeyPrefix+key).Err()
}

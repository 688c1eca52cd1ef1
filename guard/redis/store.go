package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelsud/webhook-gateway/endpoint"
	"github.com/marcelsud/webhook-gateway/guard"
)

/* Redis implementation of guard.Store for multi-process deployments.
 * Counters are bucketed keys updated with INCR, so concurrent gateways
 * never race on read-then-write. Keys carry TTLs slightly longer than
 * their window so Redis handles eviction.
 */

const (
	blockPrefix  = "guard:block"  // guard:block:{key} -> "1", TTL = remaining block
	minutePrefix = "guard:m"      // guard:m:{key}:{unix_minute}
	hourPrefix   = "guard:h"      // guard:h:{key}:{unix_hour}
	burstPrefix  = "guard:b"      // guard:b:{key}:{burst_slice}
)

type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed guard store
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client, used by tests
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Admit atomically records a request and evaluates the policy
func (s *Store) Admit(ctx context.Context, key string, policy endpoint.RateLimitPolicy, now time.Time) (guard.Decision, error) {
	blockKey := fmt.Sprintf("%s:%s", blockPrefix, key)

	// While blocked, deny immediately without touching counters
	remaining, err := s.client.TTL(ctx, blockKey).Result()
	if err != nil {
		return guard.Decision{}, fmt.Errorf("reading block state: %w", err)
	}
	if remaining > 0 {
		return guard.Decision{Allowed: false, RetryAfter: remaining}, nil
	}

	minuteKey := fmt.Sprintf("%s:%s:%d", minutePrefix, key, now.Unix()/60)
	hourKey := fmt.Sprintf("%s:%s:%d", hourPrefix, key, now.Unix()/3600)

	burstWindow := time.Duration(policy.BurstWindowMS) * time.Millisecond
	var burstKey string
	if policy.Burst > 0 && burstWindow > 0 {
		slice := now.UnixMilli() / int64(policy.BurstWindowMS)
		burstKey = fmt.Sprintf("%s:%s:%d", burstPrefix, key, slice)
	}

	pipe := s.client.Pipeline()
	minuteIncr := pipe.Incr(ctx, minuteKey)
	pipe.Expire(ctx, minuteKey, 2*time.Minute)
	hourIncr := pipe.Incr(ctx, hourKey)
	pipe.Expire(ctx, hourKey, 2*time.Hour)
	var burstIncr *redis.IntCmd
	if burstKey != "" {
		burstIncr = pipe.Incr(ctx, burstKey)
		pipe.Expire(ctx, burstKey, 2*burstWindow)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return guard.Decision{}, fmt.Errorf("updating counters: %w", err)
	}

	exceeded := (policy.PerMinute > 0 && minuteIncr.Val() > int64(policy.PerMinute)) ||
		(policy.PerHour > 0 && hourIncr.Val() > int64(policy.PerHour)) ||
		(burstIncr != nil && burstIncr.Val() > int64(policy.Burst))

	if exceeded {
		block := time.Duration(policy.BlockSeconds) * time.Second
		if err := s.client.Set(ctx, blockKey, "1", block).Err(); err != nil {
			return guard.Decision{}, fmt.Errorf("setting block: %w", err)
		}
		return guard.Decision{Allowed: false, RetryAfter: block}, nil
	}

	return guard.Decision{Allowed: true}, nil
}

// Healthy pings Redis
func (s *Store) Healthy(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging Redis: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}

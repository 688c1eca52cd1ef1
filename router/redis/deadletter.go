package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelsud/webhook-gateway/router"
)

/* Redis implementation of router.AuditSink.
 * Dead-lettered results land on a capped list for out-of-band
 * remediation, with per-result detail hashes for querying.
 */

const (
	listKey    = "deadletter:queue"  // newest first
	hashPrefix = "deadletter:result" // deadletter:result:{event_id}:{route}
	maxKept    = 10000
)

type Sink struct {
	client *redis.Client
}

// NewSink creates a Redis-backed audit sink
func NewSink(addr, password string, db int) (*Sink, error) {
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

	return &Sink{client: client}, nil
}

// NewSinkWithClient wraps an existing client, used by tests
func NewSinkWithClient(client *redis.Client) *Sink {
	return &Sink{client: client}
}

// Record stores a terminal dispatch result
func (s *Sink) Record(ctx context.Context, result router.DispatchResult) error {
	entry, err := json.Marshal(map[string]string{
		"event_id": result.EventID,
		"route":    result.RouteName,
	})
	if err != nil {
		return fmt.Errorf("marshaling dead-letter entry: %w", err)
	}

	hashKey := fmt.Sprintf("%s:%s:%s", hashPrefix, result.EventID, result.RouteName)

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, listKey, entry)
	pipe.LTrim(ctx, listKey, 0, maxKept-1)
	pipe.HSet(ctx, hashKey, map[string]interface{}{
		"event_id":   result.EventID,
		"event_type": result.EventType,
		"route":      result.RouteName,
		"status":     result.Status.String(),
		"attempts":   result.Attempts,
		"last_error": result.LastError,
		"first_at":   result.FirstAttemptAt.Unix(),
		"last_at":    result.LastAttemptAt.Unix(),
	})
	pipe.Expire(ctx, hashKey, 7*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording dead-letter: %w", err)
	}

	return nil
}

// Healthy pings Redis
func (s *Sink) Healthy(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging Redis: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *Sink) Close(_ context.Context) error {
	return s.client.Close()
}

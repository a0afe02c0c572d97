package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"edusync/pkg/platform/sentinel"
)

// Redis key prefix for audit metadata records.
const auditKeyPrefix = "sync:audit:"

// RedisStore keeps audit metadata in Redis with the retention window
// enforced by key TTL. This is the production implementation: the records
// survive a listener restart, unlike the in-memory dedup cache.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed audit store. The client lifecycle is
// managed by the caller.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Append(ctx context.Context, eventID string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record %s: %w", eventID, err)
	}
	if err := s.client.Set(ctx, auditKeyPrefix+eventID, payload, Retention).Err(); err != nil {
		return fmt.Errorf("append audit record %s: %w", eventID, err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, eventID string) (*Record, error) {
	raw, err := s.client.Get(ctx, auditKeyPrefix+eventID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find audit record %s: %w", eventID, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode audit record %s: %w", eventID, err)
	}
	return &rec, nil
}

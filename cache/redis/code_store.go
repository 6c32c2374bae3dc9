package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/teams-collab/cache"
	"github.com/redis/go-redis/v9"
)

// CodeStore implements cache.CodeStore on Redis so codes survive a restart
// and are shared between replicas.
type CodeStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCodeStore creates a new [CodeStore] instance.
func NewCodeStore(client *redis.Client, prefix string, ttl time.Duration) *CodeStore {
	return &CodeStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *CodeStore) redisKey(code string) string {
	return fmt.Sprintf("%s:signup-code:%s", r.prefix, cache.HashCode(code))
}

// Issue stores grant under a fresh code that expires after the store TTL.
func (r *CodeStore) Issue(ctx context.Context, grant *cache.SignupGrant) (string, error) {
	code, err := cache.GenerateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	now := time.Now()
	grant.IssuedAt = now
	grant.ExpiresAt = now.Add(r.ttl)

	payload, err := json.Marshal(grant)
	if err != nil {
		return "", fmt.Errorf("failed to marshal grant: %w", err)
	}
	if err := r.client.Set(ctx, r.redisKey(code), payload, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store code in Redis: %w", err)
	}
	return code, nil
}

// Consume atomically reads and deletes the grant behind code.
func (r *CodeStore) Consume(ctx context.Context, code string) (*cache.SignupGrant, error) {
	payload, err := r.client.GetDel(ctx, r.redisKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume code from Redis: %w", err)
	}

	var grant cache.SignupGrant
	if err := json.Unmarshal(payload, &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return &grant, nil
}

var _ cache.CodeStore = (*CodeStore)(nil)

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCodeStore implements CodeStore using ttlcache.
type MemoryCodeStore struct {
	ttl   time.Duration
	cache *ttlcache.Cache[string, *SignupGrant]
}

// NewMemoryCodeStore creates an in-memory code store whose codes live for ttl.
func NewMemoryCodeStore(ttl time.Duration) *MemoryCodeStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *SignupGrant](ttl),
		ttlcache.WithDisableTouchOnHit[string, *SignupGrant](),
	)

	go cache.Start()

	return &MemoryCodeStore{ttl: ttl, cache: cache}
}

// Issue implements CodeStore.Issue.
func (s *MemoryCodeStore) Issue(_ context.Context, grant *SignupGrant) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	now := time.Now()
	grant.IssuedAt = now
	grant.ExpiresAt = now.Add(s.ttl)
	s.cache.Set(HashCode(code), grant, ttlcache.DefaultTTL)
	return code, nil
}

// Consume implements CodeStore.Consume.
func (s *MemoryCodeStore) Consume(_ context.Context, code string) (*SignupGrant, error) {
	item, found := s.cache.GetAndDelete(HashCode(code))
	if !found || item == nil || item.IsExpired() {
		return nil, ErrCodeNotFound
	}
	return item.Value(), nil
}

// Stop ends the background expiry loop.
func (s *MemoryCodeStore) Stop() {
	s.cache.Stop()
}

var _ CodeStore = (*MemoryCodeStore)(nil)

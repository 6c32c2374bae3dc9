package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCodeStore_ConsumeOnce(t *testing.T) {
	store := NewMemoryCodeStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	code, err := store.Issue(ctx, &SignupGrant{
		Identity: domain.LinkedIdentity{ObjectID: "oid-1", TenantID: "tid-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	grant, err := store.Consume(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "oid-1", grant.Identity.ObjectID)
	assert.False(t, grant.ExpiresAt.IsZero())

	_, err = store.Consume(ctx, code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestMemoryCodeStore_UnknownAndExpired(t *testing.T) {
	store := NewMemoryCodeStore(20 * time.Millisecond)
	defer store.Stop()
	ctx := context.Background()

	_, err := store.Consume(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	code, err := store.Issue(ctx, &SignupGrant{Identity: domain.LinkedIdentity{ObjectID: "o", TenantID: "t"}})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = store.Consume(ctx, code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestGenerateCode_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestHashCode_Stable(t *testing.T) {
	assert.Equal(t, HashCode("abc"), HashCode("abc"))
	assert.NotEqual(t, HashCode("abc"), HashCode("abd"))
	assert.Len(t, HashCode("abc"), 64)
}

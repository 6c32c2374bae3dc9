package token

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSessionCodec_IssueAndVerify(t *testing.T) {
	codec := NewSessionCodec(newTestKey(t), "collab-test", 0)
	account := &domain.Account{
		ID:    "acc-1",
		Email: "ada@example.com",
		LinkedIdentity: &domain.LinkedIdentity{
			ObjectID: "oid-1", TenantID: "tid-1", PrincipalName: "ada@contoso.com",
		},
	}

	raw, err := codec.Issue(account, domain.ConnectionAAD)
	require.NoError(t, err)

	session, ok := codec.Verify(raw)
	require.True(t, ok)
	assert.Equal(t, "acc-1", session.AccountID)
	assert.Equal(t, "ada@example.com", session.Email)
	assert.Equal(t, domain.ConnectionAAD, session.Connection)
	require.NotNil(t, session.LinkedIdentity)
	assert.Equal(t, "oid-1", session.LinkedIdentity.ObjectID)
	assert.WithinDuration(t, time.Now().Add(DefaultSessionTTL), session.ExpiresAt, 5*time.Second)
	assert.Equal(t, "acc-1", session.Principal().UserKey())
	assert.Equal(t, domain.NoteOwner{AccountID: "acc-1", ObjectID: "oid-1"}, session.Principal().Owner())
}

func TestSessionCodec_IssueRejectsIncompleteInput(t *testing.T) {
	codec := NewSessionCodec(newTestKey(t), "collab-test", time.Hour)

	_, err := codec.Issue(&domain.Account{ID: "acc-1"}, domain.ConnectionPassword)
	assert.Error(t, err)

	_, err = codec.Issue(&domain.Account{ID: "acc-1", Email: "a@b.c"}, domain.Connection("magic"))
	assert.Error(t, err)
}

func TestSessionCodec_VerifyFailures(t *testing.T) {
	key := newTestKey(t)
	codec := NewSessionCodec(key, "collab-test", time.Hour)
	account := &domain.Account{ID: "acc-1", Email: "ada@example.com"}

	valid, err := codec.Issue(account, domain.ConnectionPassword)
	require.NoError(t, err)

	signWith := func(k *rsa.PrivateKey, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k)
		require.NoError(t, err)
		return s
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	testCases := []struct {
		name  string
		token func() string
	}{
		{"Empty", func() string { return "" }},
		{"Garbage", func() string { return "not.a.jwt" }},
		{"Tampered", func() string { return valid[:len(valid)-4] + "AAAA" }},
		{"Other key", func() string {
			return signWith(newTestKey(t), SessionClaims{
				AccountID: "acc-1", Email: "ada@example.com", Connection: domain.ConnectionPassword,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "collab-test", Subject: "acc-1", ExpiresAt: future},
			})
		}},
		{"Missing email", func() string {
			return signWith(key, SessionClaims{
				AccountID: "acc-1", Connection: domain.ConnectionPassword,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "collab-test", Subject: "acc-1", ExpiresAt: future},
			})
		}},
		{"Unknown connection", func() string {
			return signWith(key, SessionClaims{
				AccountID: "acc-1", Email: "ada@example.com", Connection: "sso",
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "collab-test", Subject: "acc-1", ExpiresAt: future},
			})
		}},
		{"Half linked identity", func() string {
			return signWith(key, SessionClaims{
				AccountID: "acc-1", Email: "ada@example.com", Connection: domain.ConnectionAAD,
				LinkedIdentity:   &domain.LinkedIdentity{ObjectID: "oid-1"},
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "collab-test", Subject: "acc-1", ExpiresAt: future},
			})
		}},
		{"No expiry", func() string {
			return signWith(key, SessionClaims{
				AccountID: "acc-1", Email: "ada@example.com", Connection: domain.ConnectionPassword,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "collab-test", Subject: "acc-1"},
			})
		}},
		{"Wrong issuer", func() string {
			return signWith(key, SessionClaims{
				AccountID: "acc-1", Email: "ada@example.com", Connection: domain.ConnectionPassword,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", Subject: "acc-1", ExpiresAt: future},
			})
		}},
		{"HS256 with public key bytes", func() string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
				AccountID: "acc-1", Email: "ada@example.com", Connection: domain.ConnectionPassword,
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "collab-test", Subject: "acc-1", ExpiresAt: future},
			}).SignedString([]byte("secret"))
			require.NoError(t, err)
			return s
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			session, ok := codec.Verify(tc.token())
			assert.False(t, ok)
			assert.Nil(t, session)
		})
	}
}

func TestSessionCodec_Expiry(t *testing.T) {
	codec := NewSessionCodec(newTestKey(t), "collab-test", time.Hour)
	issuedAt := time.Now().Add(-2 * time.Hour)
	codec.now = func() time.Time { return issuedAt }

	raw, err := codec.Issue(&domain.Account{ID: "acc-1", Email: "a@b.c"}, domain.ConnectionPassword)
	require.NoError(t, err)

	codec.now = time.Now
	_, ok := codec.Verify(raw)
	assert.False(t, ok)
}

package token

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pilab-dev/teams-collab/domain"
)

// DefaultSessionTTL is the lifetime of a session credential.
const DefaultSessionTTL = 24 * time.Hour

// SessionClaims is the JWT payload of a session credential.
type SessionClaims struct {
	AccountID      string                 `json:"accountId"`
	Email          string                 `json:"email"`
	LinkedIdentity *domain.LinkedIdentity `json:"linkedIdentity,omitempty"`
	Connection     domain.Connection      `json:"connection"`
	jwt.RegisteredClaims
}

// Session is a verified session credential.
type Session struct {
	AccountID      string
	Email          string
	LinkedIdentity *domain.LinkedIdentity
	Connection     domain.Connection
	ExpiresAt      time.Time
}

// Principal converts s into the request principal.
func (s *Session) Principal() *domain.Principal {
	return &domain.Principal{
		AccountID:  s.AccountID,
		Email:      s.Email,
		Identity:   s.LinkedIdentity,
		Connection: s.Connection,
	}
}

// SessionCodec issues and verifies session credentials signed with an RSA key.
// Sessions are stateless: they are never stored and only expire.
type SessionCodec struct {
	key    *rsa.PrivateKey
	keyID  string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionCodec creates a SessionCodec. ttl <= 0 means DefaultSessionTTL.
func NewSessionCodec(key *rsa.PrivateKey, issuer string, ttl time.Duration) *SessionCodec {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCodec{
		key:    key,
		keyID:  keyThumbprint(&key.PublicKey),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the lifetime of issued credentials.
func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a session credential for account produced by connection.
func (c *SessionCodec) Issue(account *domain.Account, connection domain.Connection) (string, error) {
	if account == nil || account.ID == "" || account.Email == "" {
		return "", errors.New("session requires an account with id and email")
	}
	if !connection.Valid() {
		return "", errors.New("session requires a known connection")
	}

	now := c.now()
	claims := SessionClaims{
		AccountID:      account.ID,
		Email:          account.Email,
		LinkedIdentity: account.LinkedIdentity,
		Connection:     connection,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = c.keyID
	return tok.SignedString(c.key)
}

// Verify returns the session carried by raw. Any structural, signature,
// lifetime or payload-shape problem yields false.
func (c *SessionCodec) Verify(raw string) (*Session, bool) {
	if raw == "" {
		return nil, false
	}

	var claims SessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (interface{}, error) { return &c.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, false
	}
	if !validSessionShape(&claims) {
		return nil, false
	}

	return &Session{
		AccountID:      claims.AccountID,
		Email:          claims.Email,
		LinkedIdentity: claims.LinkedIdentity,
		Connection:     claims.Connection,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, true
}

func validSessionShape(c *SessionClaims) bool {
	if c.AccountID == "" || c.Email == "" || c.Subject != c.AccountID {
		return false
	}
	if !c.Connection.Valid() {
		return false
	}
	if li := c.LinkedIdentity; li != nil && (li.ObjectID == "" || li.TenantID == "") {
		return false
	}
	return true
}

// keyThumbprint derives a stable key id from the public key.
func keyThumbprint(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "session"
	}
	sum := sha256.Sum256(der)
	return "session-" + base64.RawURLEncoding.EncodeToString(sum[:9])
}

// JWKS publishes the session verification key.
func (c *SessionCodec) JWKS() JSONWebKeySet {
	return JSONWebKeySet{Keys: []JSONWebKey{NewJSONWebKey(c.keyID, &c.key.PublicKey)}}
}

package cache

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
)

// ErrCodeNotFound is returned when a code is unknown, expired or already used.
var ErrCodeNotFound = errors.New("code not found or expired")

// SignupGrant is what a signup code stands for: an external identity that
// authenticated successfully but has no linked account yet.
type SignupGrant struct {
	Identity  domain.LinkedIdentity `json:"identity"`
	Name      string                `json:"name,omitempty"`
	IssuedAt  time.Time             `json:"issuedAt"`
	ExpiresAt time.Time             `json:"expiresAt"`
}

// CodeStore issues single-use codes. A code can be consumed exactly once;
// every later Consume returns ErrCodeNotFound.
type CodeStore interface {
	Issue(ctx context.Context, grant *SignupGrant) (string, error)
	Consume(ctx context.Context, code string) (*SignupGrant, error)
}

// GenerateCode returns a random URL-safe code.
func GenerateCode() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

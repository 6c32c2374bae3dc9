package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/pilab-dev/teams-collab/middleware"
)

var (
	// ErrInteractionRequired is returned by silent acquisition when only an
	// interactive prompt can produce a token.
	ErrInteractionRequired = errors.New("interaction required")
	// ErrPopupBlocked means the interactive prompt could not be shown.
	ErrPopupBlocked = errors.New("sign-in popup blocked")
	// ErrUserCancelled means the user dismissed the interactive prompt.
	ErrUserCancelled = errors.New("sign-in cancelled by user")
)

// IsSuppressed reports whether err is an expected sign-in outcome that
// callers should not surface as a failure.
func IsSuppressed(err error) bool {
	return errors.Is(err, ErrPopupBlocked) || errors.Is(err, ErrUserCancelled)
}

// Authentication is how a Client proves its caller. The set is closed:
// HeaderAuth, CookieAuth and EntraAuth.
type Authentication interface {
	apply(ctx context.Context, req *http.Request) error
}

// HeaderAuth sends a session credential in the Authorization header.
type HeaderAuth struct {
	Value string
}

func (a HeaderAuth) apply(_ context.Context, req *http.Request) error {
	if a.Value == "" {
		return errors.New("header authentication has no credential")
	}
	req.Header.Set(middleware.HeaderAuthorizationType, string(middleware.AuthorizationHeader))
	req.Header.Set(middleware.HeaderAuthorization, "Bearer "+a.Value)
	return nil
}

// CookieAuth names the cookie that carries the session. The cookie itself
// comes from the HTTP client's jar.
type CookieAuth struct {
	CookieKey string
}

func (a CookieAuth) apply(_ context.Context, req *http.Request) error {
	key := a.CookieKey
	if key == "" {
		key = middleware.SessionCookieName
	}
	req.Header.Set(middleware.HeaderAuthorizationType, string(middleware.AuthorizationCookie))
	req.Header.Set(middleware.HeaderAuthCookieKey, key)
	return nil
}

// EntraTokenProvider acquires Entra access tokens for the signed-in user.
type EntraTokenProvider interface {
	// AcquireSilent uses cached or refreshable tokens only. It returns
	// ErrInteractionRequired when that is not enough.
	AcquireSilent(ctx context.Context, scopes []string) (string, error)
	// AcquireInteractive prompts the user.
	AcquireInteractive(ctx context.Context, scopes []string) (string, error)
}

// EntraAuth acquires an Entra token for every request, silently first and
// interactively only when AllowInteractive is set.
type EntraAuth struct {
	Provider         EntraTokenProvider
	Scopes           []string
	AllowInteractive bool
}

func (a EntraAuth) apply(ctx context.Context, req *http.Request) error {
	raw, err := a.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.HeaderAuthorizationType, string(middleware.AuthorizationEntra))
	req.Header.Set(middleware.HeaderEntraAuthorization, "Bearer "+raw)
	return nil
}

// Token returns an access token, trying silent acquisition before the
// interactive prompt.
func (a EntraAuth) Token(ctx context.Context) (string, error) {
	if a.Provider == nil {
		return "", errors.New("entra authentication has no token provider")
	}
	raw, err := a.Provider.AcquireSilent(ctx, a.Scopes)
	if err == nil {
		return raw, nil
	}
	if !a.AllowInteractive {
		return "", fmt.Errorf("acquire entra token silently: %w", err)
	}
	raw, err = a.Provider.AcquireInteractive(ctx, a.Scopes)
	if err != nil {
		return "", fmt.Errorf("acquire entra token: %w", err)
	}
	return raw, nil
}

// TokenSourceProvider adapts an oauth2.TokenSource to EntraTokenProvider.
// It cannot prompt, so interactive acquisition always fails.
type TokenSourceProvider struct {
	Source oauth2.TokenSource
}

func (p TokenSourceProvider) AcquireSilent(_ context.Context, _ []string) (string, error) {
	tok, err := p.Source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInteractionRequired, err)
	}
	if !tok.Valid() {
		return "", ErrInteractionRequired
	}
	return tok.AccessToken, nil
}

func (p TokenSourceProvider) AcquireInteractive(_ context.Context, _ []string) (string, error) {
	return "", ErrInteractionRequired
}

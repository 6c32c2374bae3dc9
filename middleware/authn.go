// Package middleware resolves the caller of bridge and API requests from
// the credential the request carries.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/token"
)

// Request headers of the bridge protocol.
const (
	HeaderAuthorizationType  = "authorization-type"
	HeaderEntraAuthorization = "entra-authorization"
	HeaderAuthCookieKey      = "AuthCookieKey"
	HeaderAuthorization      = "Authorization"

	// SessionCookieName is the cookie holding the session credential.
	SessionCookieName = "Authorization"
)

// AuthorizationType selects which header carries the credential.
type AuthorizationType string

const (
	AuthorizationEntra  AuthorizationType = "EntraAuth"
	AuthorizationCookie AuthorizationType = "Cookie"
	AuthorizationHeader AuthorizationType = "Header"
)

var (
	// ErrMissingCredential means the request did not carry the credential
	// its authorization type asks for.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential means a credential was present but rejected.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnknownAuthorizationType is a missing or unsupported authorization-type.
	ErrUnknownAuthorizationType = errors.New("unknown authorization type")
)

// SessionVerifier verifies session credentials.
type SessionVerifier interface {
	Verify(raw string) (*token.Session, bool)
}

// ExternalTokenVerifier verifies Entra access tokens.
type ExternalTokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.ExternalIdentity, error)
}

// Authenticator turns request credentials into a domain.Principal.
type Authenticator struct {
	sessions SessionVerifier
	external ExternalTokenVerifier
	accounts domain.AccountRepository
}

// NewAuthenticator creates an Authenticator. external and accounts may be
// nil, which disables EntraAuth.
func NewAuthenticator(sessions SessionVerifier, external ExternalTokenVerifier, accounts domain.AccountRepository) *Authenticator {
	return &Authenticator{sessions: sessions, external: external, accounts: accounts}
}

// Authenticate resolves the caller of a bridge request according to its
// authorization-type header.
func (a *Authenticator) Authenticate(r *http.Request) (*domain.Principal, error) {
	switch AuthorizationType(r.Header.Get(HeaderAuthorizationType)) {
	case AuthorizationHeader:
		raw, ok := BearerToken(r.Header.Get(HeaderAuthorization))
		if !ok {
			return nil, fmt.Errorf("%w: %s header", ErrMissingCredential, HeaderAuthorization)
		}
		return a.session(raw)

	case AuthorizationCookie:
		name := r.Header.Get(HeaderAuthCookieKey)
		if name == "" {
			name = SessionCookieName
		}
		cookie, err := r.Cookie(name)
		if err != nil || cookie.Value == "" {
			return nil, fmt.Errorf("%w: cookie %q", ErrMissingCredential, name)
		}
		raw, _ := BearerToken(cookie.Value)
		return a.session(raw)

	case AuthorizationEntra:
		raw, ok := BearerToken(r.Header.Get(HeaderEntraAuthorization))
		if !ok {
			return nil, fmt.Errorf("%w: %s header", ErrMissingCredential, HeaderEntraAuthorization)
		}
		return a.entra(r.Context(), raw)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAuthorizationType, r.Header.Get(HeaderAuthorizationType))
}

// AuthenticateSession resolves the session of a first-party API request,
// taken from the Authorization header or, failing that, the session cookie.
func (a *Authenticator) AuthenticateSession(r *http.Request) (*domain.Principal, error) {
	if raw, ok := BearerToken(r.Header.Get(HeaderAuthorization)); ok {
		return a.session(raw)
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		raw, _ := BearerToken(cookie.Value)
		return a.session(raw)
	}
	return nil, ErrMissingCredential
}

// AuthenticateCookie resolves the session from the session cookie only.
func (a *Authenticator) AuthenticateCookie(r *http.Request) (*domain.Principal, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrMissingCredential
	}
	raw, _ := BearerToken(cookie.Value)
	return a.session(raw)
}

// VerifyExternal verifies a raw Entra token.
func (a *Authenticator) VerifyExternal(ctx context.Context, raw string) (*token.ExternalIdentity, error) {
	if a.external == nil {
		return nil, fmt.Errorf("%w: external tokens are not accepted", ErrInvalidCredential)
	}
	identity, err := a.external.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return identity, nil
}

func (a *Authenticator) session(raw string) (*domain.Principal, error) {
	session, ok := a.sessions.Verify(raw)
	if !ok {
		return nil, ErrInvalidCredential
	}
	return session.Principal(), nil
}

// entra resolves an Entra caller. Callers whose identity is linked act as
// their account; others act under their object id alone.
func (a *Authenticator) entra(ctx context.Context, raw string) (*domain.Principal, error) {
	identity, err := a.VerifyExternal(ctx, raw)
	if err != nil {
		return nil, err
	}
	principal := &domain.Principal{
		Identity: &domain.LinkedIdentity{
			ObjectID:      identity.ObjectID,
			TenantID:      identity.TenantID,
			PrincipalName: identity.PrincipalName,
		},
		Connection: domain.ConnectionAAD,
	}
	if a.accounts == nil {
		return principal, nil
	}

	account, err := a.accounts.FindByExternalIdentity(ctx, identity.ObjectID, identity.TenantID)
	switch {
	case err == nil:
		principal.AccountID = account.ID
		principal.Email = account.Email
	case !errors.Is(err, domain.ErrAccountNotFound):
		return nil, fmt.Errorf("resolve linked account: %w", err)
	}
	return principal, nil
}

// BearerToken strips an optional "Bearer " prefix. It reports false for an
// empty credential.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = strings.TrimSpace(header[7:])
	}
	return header, header != ""
}

package token

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExternalClaims are the claims read from Entra ID and Bot Framework tokens.
type ExternalClaims struct {
	ObjectID          string `json:"oid,omitempty"`
	TenantID          string `json:"tid,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	UPN               string `json:"upn,omitempty"`
	Name              string `json:"name,omitempty"`
	AuthorizedParty   string `json:"azp,omitempty"`
	AppID             string `json:"appid,omitempty"`
	ServiceURL        string `json:"serviceurl,omitempty"`
	jwt.RegisteredClaims
}

// ExternalIdentity is a verified externally issued token.
type ExternalIdentity struct {
	ObjectID      string
	TenantID      string
	PrincipalName string
	Name          string
	AppID         string
	ServiceURL    string
	Issuer        string
	ExpiresAt     time.Time
	// Raw is the original bearer token, needed for the on-behalf-of exchange.
	Raw string
}

// ExternalVerifierConfig configures an ExternalVerifier.
type ExternalVerifierConfig struct {
	Keys      KeyProvider
	Audiences []string
	// Issuers, when non-empty, restricts the accepted iss values. A "{tenantid}"
	// placeholder is replaced with the token's tid claim.
	Issuers []string
	// RequireIdentity demands oid and tid claims (user tokens). Bot Framework
	// channel tokens carry neither.
	RequireIdentity bool
}

// ExternalVerifier validates tokens issued by an external identity provider.
// It fails hard with a distinguishable error for every rejection reason.
type ExternalVerifier struct {
	cfg ExternalVerifierConfig
	now func() time.Time
}

// NewExternalVerifier creates an ExternalVerifier.
func NewExternalVerifier(cfg ExternalVerifierConfig) *ExternalVerifier {
	return &ExternalVerifier{cfg: cfg, now: time.Now}
}

// Verify validates raw and returns the identity it asserts.
func (v *ExternalVerifier) Verify(ctx context.Context, raw string) (*ExternalIdentity, error) {
	if raw == "" {
		return nil, ErrMalformedToken
	}

	var claims ExternalClaims
	_, err := jwt.ParseWithClaims(raw, &claims, v.keyfunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(time.Minute),
	)
	if err != nil {
		return nil, classify(err)
	}

	if !v.audienceAccepted(claims.Audience) {
		return nil, fmt.Errorf("%w: %v", ErrAudienceMismatch, []string(claims.Audience))
	}
	if !v.issuerAccepted(claims.Issuer, claims.TenantID) {
		return nil, fmt.Errorf("%w: %s", ErrIssuerMismatch, claims.Issuer)
	}
	if v.cfg.RequireIdentity && (claims.ObjectID == "" || claims.TenantID == "") {
		return nil, ErrMissingClaims
	}

	principal := claims.PreferredUsername
	if principal == "" {
		principal = claims.UPN
	}
	appID := claims.AuthorizedParty
	if appID == "" {
		appID = claims.AppID
	}

	return &ExternalIdentity{
		ObjectID:      claims.ObjectID,
		TenantID:      claims.TenantID,
		PrincipalName: principal,
		Name:          claims.Name,
		AppID:         appID,
		ServiceURL:    claims.ServiceURL,
		Issuer:        claims.Issuer,
		ExpiresAt:     claims.ExpiresAt.Time,
		Raw:           raw,
	}, nil
}

func (v *ExternalVerifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no kid header", ErrNoSigningKey)
		}
		return v.cfg.Keys.Key(ctx, kid)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrNoSigningKey):
		return fmt.Errorf("%w: %v", ErrNoSigningKey, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Key lookup failed for a reason other than a missing key, e.g. the JWKS endpoint is down.
		return fmt.Errorf("verify token: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedToken, err)
}

func (v *ExternalVerifier) audienceAccepted(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		if slices.Contains(v.cfg.Audiences, a) {
			return true
		}
	}
	return false
}

func (v *ExternalVerifier) issuerAccepted(iss, tenantID string) bool {
	if len(v.cfg.Issuers) == 0 {
		return true
	}
	for _, candidate := range v.cfg.Issuers {
		if strings.ReplaceAll(candidate, "{tenantid}", tenantID) == iss {
			return true
		}
	}
	return false
}

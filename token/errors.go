package token

import "errors"

// Errors returned by ExternalVerifier. Session verification never returns an
// error; it reports failure through its boolean result instead.
var (
	ErrNoSigningKey     = errors.New("no signing key found for token")
	ErrSignatureInvalid = errors.New("token signature is invalid")
	ErrAudienceMismatch = errors.New("token audience mismatch")
	ErrIssuerMismatch   = errors.New("token issuer mismatch")
	ErrTokenExpired     = errors.New("token is expired or not yet valid")
	ErrMissingClaims    = errors.New("token is missing required identity claims")
	ErrMalformedToken   = errors.New("token is malformed")
)

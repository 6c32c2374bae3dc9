package domain

import "context"

type sessionContextKey struct{}

// Principal is the authenticated caller of an HTTP request.
type Principal struct {
	AccountID string
	Email     string
	// Identity is set when the caller presented (or is linked to) an Entra identity.
	Identity   *LinkedIdentity
	Connection Connection
}

// UserKey returns the id used to scope per-user state. It is the account id,
// which survives link and unlink, and the Entra object id only for callers
// without an account.
func (p *Principal) UserKey() string {
	if p.AccountID != "" {
		return p.AccountID
	}
	if p.Identity != nil {
		return p.Identity.ObjectID
	}
	return ""
}

// Owner returns the identities p can own notes under.
func (p *Principal) Owner() NoteOwner {
	owner := NoteOwner{AccountID: p.AccountID}
	if p.Identity != nil {
		owner.ObjectID = p.Identity.ObjectID
	}
	return owner
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, p)
}

// PrincipalFromContext retrieves the Principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(sessionContextKey{}).(*Principal)
	return p, ok && p != nil
}

package domain

import "time"

// Connection records which login path produced a session.
type Connection string

const (
	ConnectionPassword Connection = "password"
	ConnectionAAD      Connection = "aad"
)

// Valid reports whether c is one of the known connections.
func (c Connection) Valid() bool {
	return c == ConnectionPassword || c == ConnectionAAD
}

// LinkedIdentity is the external (Entra ID) identity attached to an account.
// At most one account may hold a given (ObjectID, TenantID) pair.
type LinkedIdentity struct {
	ObjectID      string `bson:"object_id" json:"objectId"`
	TenantID      string `bson:"tenant_id" json:"tenantId"`
	PrincipalName string `bson:"principal_name,omitempty" json:"upn,omitempty"`
}

// Account represents a local user account.
type Account struct {
	ID             string          `bson:"_id,omitempty" json:"id"`
	Email          string          `bson:"email" json:"email"`
	PasswordHash   string          `bson:"password_hash" json:"-"`
	LinkedIdentity *LinkedIdentity `bson:"linked_identity,omitempty" json:"linkedIdentity,omitempty"`
	CreatedAt      time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updatedAt"`
}

// UserKey returns the id used to scope per-user state for this account.
// It matches Principal.UserKey for sessions of the same account.
func (a *Account) UserKey() string {
	return a.ID
}

// Owner returns the identities the account can own notes under.
func (a *Account) Owner() NoteOwner {
	owner := NoteOwner{AccountID: a.ID}
	if a.LinkedIdentity != nil {
		owner.ObjectID = a.LinkedIdentity.ObjectID
	}
	return owner
}

package domain

import "time"

// Note is a user-authored note, optionally bound to a conversation thread.
type Note struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	Text      string     `bson:"text" json:"text"`
	Color     string     `bson:"color" json:"color"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	EditedAt  *time.Time `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	ThreadID  string     `bson:"thread_id,omitempty" json:"threadId,omitempty"`
	// CreatedByID is the creator's account id, or the object id of an
	// Entra caller without an account.
	CreatedByID string `bson:"created_by_id" json:"createdById"`
	// CreatedByObjectID is the creator's Entra object id, when known.
	CreatedByObjectID string `bson:"created_by_object_id,omitempty" json:"createdByObjectId,omitempty"`
}

// NoteOwner is the pair of identities a caller owns notes under. Either may
// be empty.
type NoteOwner struct {
	AccountID string
	ObjectID  string
}

// IsZero reports whether o names nobody.
func (o NoteOwner) IsZero() bool {
	return o.AccountID == "" && o.ObjectID == ""
}

// Key is the value recorded as CreatedByID for notes o creates.
func (o NoteOwner) Key() string {
	if o.AccountID != "" {
		return o.AccountID
	}
	return o.ObjectID
}

// OwnedBy reports whether o created n, matching on either identity so
// ownership survives linking and unlinking.
func (n *Note) OwnedBy(o NoteOwner) bool {
	if o.AccountID != "" && n.CreatedByID == o.AccountID {
		return true
	}
	if o.ObjectID != "" && n.CreatedByObjectID == o.ObjectID {
		return true
	}
	return false
}

// NoteFilter narrows ListNotes. Empty fields are ignored.
type NoteFilter struct {
	Owner    NoteOwner
	ThreadID string
}

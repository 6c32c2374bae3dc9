package domain

import (
	"context"
)

// AccountRepository stores accounts and their linked external identity.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByExternalIdentity(ctx context.Context, objectID, tenantID string) (*Account, error)
	// UpsertLink sets (or clears, when identity is nil) the linked identity of
	// the account with the given email and returns the persisted record.
	UpsertLink(ctx context.Context, email string, identity *LinkedIdentity) (*Account, error)
}

// ConversationReferenceRepository maps a thread key to a resume handle.
type ConversationReferenceRepository interface {
	Put(ctx context.Context, threadKey string, ref *ConversationReference) error
	// Get returns ErrConversationReferenceNotFound when the key was never written.
	Get(ctx context.Context, threadKey string) (*ConversationReference, error)
}

// NoteRepository persists notes.
type NoteRepository interface {
	CreateNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, id string) (*Note, error)
	ListNotes(ctx context.Context, filter NoteFilter) ([]*Note, error)
	UpdateNote(ctx context.Context, note *Note) error
	DeleteNote(ctx context.Context, id string) error
}

package domain

import "errors"

var (
	ErrAccountNotFound               = errors.New("account not found")
	ErrAccountExists                 = errors.New("account with this email already exists")
	ErrIdentityAlreadyLinked         = errors.New("external identity is already linked to another account")
	ErrConversationReferenceNotFound = errors.New("conversation reference not found")
	ErrNoteNotFound                  = errors.New("note not found")
)

// Package memstore implements the domain repositories in process memory.
// It backs the "memory" storage backend and the handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/teams-collab/domain"
)

// Accounts implements domain.AccountRepository.
type Accounts struct {
	mu      sync.RWMutex
	byEmail map[string]*domain.Account
}

func NewAccounts() *Accounts {
	return &Accounts{byEmail: map[string]*domain.Account{}}
}

func (s *Accounts) Create(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return domain.ErrAccountExists
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	s.byEmail[account.Email] = cloneAccount(account)
	return nil
}

func (s *Accounts) FindByID(_ context.Context, id string) (*domain.Account, error) {
	return s.find(func(a *domain.Account) bool { return a.ID == id })
}

func (s *Accounts) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	return s.find(func(a *domain.Account) bool { return a.Email == email })
}

func (s *Accounts) FindByExternalIdentity(_ context.Context, objectID, tenantID string) (*domain.Account, error) {
	return s.find(func(a *domain.Account) bool {
		return a.LinkedIdentity != nil && a.LinkedIdentity.ObjectID == objectID && a.LinkedIdentity.TenantID == tenantID
	})
}

func (s *Accounts) UpsertLink(_ context.Context, email string, identity *domain.LinkedIdentity) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if identity != nil {
		li := *identity
		account.LinkedIdentity = &li
	} else {
		account.LinkedIdentity = nil
	}
	account.UpdatedAt = time.Now().UTC()
	return cloneAccount(account), nil
}

func (s *Accounts) find(match func(*domain.Account) bool) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byEmail {
		if match(a) {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func cloneAccount(a *domain.Account) *domain.Account {
	out := *a
	if a.LinkedIdentity != nil {
		li := *a.LinkedIdentity
		out.LinkedIdentity = &li
	}
	return &out
}

// ConversationReferences implements domain.ConversationReferenceRepository.
type ConversationReferences struct {
	mu   sync.RWMutex
	refs map[string]domain.ConversationReference
}

func NewConversationReferences() *ConversationReferences {
	return &ConversationReferences{refs: map[string]domain.ConversationReference{}}
}

func (s *ConversationReferences) Put(_ context.Context, threadKey string, ref *domain.ConversationReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[threadKey] = *ref
	return nil
}

func (s *ConversationReferences) Get(_ context.Context, threadKey string) (*domain.ConversationReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.refs[threadKey]
	if !ok {
		return nil, domain.ErrConversationReferenceNotFound
	}
	return &ref, nil
}

// Notes implements domain.NoteRepository.
type Notes struct {
	mu    sync.RWMutex
	notes map[string]domain.Note
}

func NewNotes() *Notes {
	return &Notes{notes: map[string]domain.Note{}}
}

func (s *Notes) CreateNote(_ context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	s.notes[note.ID] = *note
	return nil
}

func (s *Notes) GetNote(_ context.Context, id string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, domain.ErrNoteNotFound
	}
	return &note, nil
}

// ListNotes returns matching notes, newest first.
func (s *Notes) ListNotes(_ context.Context, filter domain.NoteFilter) ([]*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Note{}
	for _, n := range s.notes {
		if !filter.Owner.IsZero() && !n.OwnedBy(filter.Owner) {
			continue
		}
		if filter.ThreadID != "" && n.ThreadID != filter.ThreadID {
			continue
		}
		n := n
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Notes) UpdateNote(_ context.Context, note *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[note.ID]; !ok {
		return domain.ErrNoteNotFound
	}
	s.notes[note.ID] = *note
	return nil
}

func (s *Notes) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return domain.ErrNoteNotFound
	}
	delete(s.notes, id)
	return nil
}

var (
	_ domain.AccountRepository               = (*Accounts)(nil)
	_ domain.ConversationReferenceRepository = (*ConversationReferences)(nil)
	_ domain.NoteRepository                  = (*Notes)(nil)
)

// Package notes implements the notes feature shared by the HTTP API, the
// bridge actions and the bot commands.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/internal/metrics"
	"github.com/pilab-dev/teams-collab/log"
)

const DefaultColor = "yellow"

var (
	ErrEmptyText = errors.New("note text is required")
	ErrForbidden = errors.New("note belongs to another user")
	ErrBadColor  = errors.New("unsupported note color")
	ErrNoOwner   = errors.New("note owner is required")
)

var colors = map[string]bool{"yellow": true, "green": true, "blue": true, "pink": true, "purple": true}

// MessageSender posts proactive messages into a stored conversation.
type MessageSender interface {
	SendText(ctx context.Context, ref *domain.ConversationReference, text string) (string, error)
}

// NewNote is the input of Create.
type NewNote struct {
	Text     string
	Color    string
	ThreadID string
	Owner    domain.NoteOwner
	// AuthorName is used in the proactive announcement only.
	AuthorName string
	// Silent skips the thread announcement.
	Silent bool
}

// NoteUpdate changes the fields that are set.
type NoteUpdate struct {
	Text  *string `json:"text,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Service manages notes and announces new ones in their thread.
type Service struct {
	repo   domain.NoteRepository
	refs   domain.ConversationReferenceRepository
	sender MessageSender
	logger log.Logger
	now    func() time.Time
}

// NewService creates a Service. refs and sender may be nil, which disables
// announcements.
func NewService(repo domain.NoteRepository, refs domain.ConversationReferenceRepository, sender MessageSender, logger log.Logger) *Service {
	return &Service{repo: repo, refs: refs, sender: sender, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in NewNote) (*domain.Note, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	color, err := normalizeColor(in.Color)
	if err != nil {
		return nil, err
	}

	if in.Owner.IsZero() {
		return nil, ErrNoOwner
	}

	note := &domain.Note{
		Text:              text,
		Color:             color,
		CreatedAt:         s.now().UTC(),
		ThreadID:          in.ThreadID,
		CreatedByID:       in.Owner.Key(),
		CreatedByObjectID: in.Owner.ObjectID,
	}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	if note.ThreadID != "" && !in.Silent {
		s.announce(ctx, note, in.AuthorName)
	}
	return note, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Note, error) {
	return s.repo.GetNote(ctx, id)
}

func (s *Service) List(ctx context.Context, filter domain.NoteFilter) ([]*domain.Note, error) {
	return s.repo.ListNotes(ctx, filter)
}

// Update edits a note owned by editor.
func (s *Service) Update(ctx context.Context, id string, editor domain.NoteOwner, upd NoteUpdate) (*domain.Note, error) {
	note, err := s.repo.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if !note.OwnedBy(editor) {
		return nil, ErrForbidden
	}

	if upd.Text != nil {
		text := strings.TrimSpace(*upd.Text)
		if text == "" {
			return nil, ErrEmptyText
		}
		note.Text = text
	}
	if upd.Color != nil {
		color, err := normalizeColor(*upd.Color)
		if err != nil {
			return nil, err
		}
		note.Color = color
	}
	edited := s.now().UTC()
	note.EditedAt = &edited

	if err := s.repo.UpdateNote(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// Delete removes a note owned by caller.
func (s *Service) Delete(ctx context.Context, id string, caller domain.NoteOwner) error {
	note, err := s.repo.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if !note.OwnedBy(caller) {
		return ErrForbidden
	}
	return s.repo.DeleteNote(ctx, id)
}

// announce is best effort: the note is already stored.
func (s *Service) announce(ctx context.Context, note *domain.Note, author string) {
	if s.refs == nil || s.sender == nil {
		return
	}
	fields := log.Fields{"note_id": note.ID, "thread_id": note.ThreadID}

	ref, err := s.refs.Get(ctx, note.ThreadID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationReferenceNotFound) {
			s.logger.Debug(ctx, "no conversation reference for thread, skipping announcement", fields)
			metrics.ProactiveMessagesTotal.WithLabelValues("no_reference").Inc()
			return
		}
		s.logger.Error(ctx, "failed to load conversation reference", err, fields)
		metrics.ProactiveMessagesTotal.WithLabelValues("error").Inc()
		return
	}

	if author == "" {
		author = "Someone"
	}
	if _, err := s.sender.SendText(ctx, ref, fmt.Sprintf("%s added a note: %s", author, note.Text)); err != nil {
		s.logger.Error(ctx, "failed to send note announcement", err, fields)
		metrics.ProactiveMessagesTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.ProactiveMessagesTotal.WithLabelValues("sent").Inc()
}

func normalizeColor(c string) (string, error) {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultColor, nil
	}
	if !colors[c] {
		return "", fmt.Errorf("%w %q", ErrBadColor, c)
	}
	return c, nil
}

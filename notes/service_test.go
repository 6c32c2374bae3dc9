package notes

import (
	"context"
	"errors"
	"testing"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/internal/memstore"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) SendText(ctx context.Context, ref *domain.ConversationReference, text string) (string, error) {
	args := m.Called(ctx, ref, text)
	return args.String(0), args.Error(1)
}

var (
	acc1 = domain.NoteOwner{AccountID: "acc-1"}
	acc2 = domain.NoteOwner{AccountID: "acc-2"}
)

func newTestService(t *testing.T) (*Service, *memstore.ConversationReferences, *MockMessageSender) {
	t.Helper()
	refs := memstore.NewConversationReferences()
	sender := new(MockMessageSender)
	return NewService(memstore.NewNotes(), refs, sender, log.NewNopLogger()), refs, sender
}

func TestService_CreateAnnouncesInThread(t *testing.T) {
	svc, refs, sender := newTestService(t)
	ctx := context.Background()
	ref := &domain.ConversationReference{ServiceURL: "https://smba.example", Conversation: domain.ConversationAccount{ID: "19:chat"}}
	require.NoError(t, refs.Put(ctx, "19:chat", ref))

	sender.On("SendText", ctx, ref, "ada@example.com added a note: buy milk").Return("act-1", nil).Once()

	note, err := svc.Create(ctx, NewNote{Text: "  buy milk ", ThreadID: "19:chat", Owner: acc1, AuthorName: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "buy milk", note.Text)
	assert.Equal(t, DefaultColor, note.Color)
	assert.NotEmpty(t, note.ID)
	sender.AssertExpectations(t)
}

func TestService_CreateWithoutReferenceStillStores(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	note, err := svc.Create(ctx, NewNote{Text: "x", ThreadID: "19:unknown", Owner: acc1})
	require.NoError(t, err)
	sender.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)

	got, err := svc.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Text)
}

func TestService_AnnouncementFailureIsNotFatal(t *testing.T) {
	svc, refs, sender := newTestService(t)
	ctx := context.Background()
	require.NoError(t, refs.Put(ctx, "19:chat", &domain.ConversationReference{}))
	sender.On("SendText", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("503")).Once()

	_, err := svc.Create(ctx, NewNote{Text: "x", ThreadID: "19:chat", Owner: acc1})
	assert.NoError(t, err)
}

func TestService_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, NewNote{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = svc.Create(ctx, NewNote{Text: "x", Color: "octarine"})
	assert.Error(t, err)

	_, err = svc.Create(ctx, NewNote{Text: "x"})
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestService_UpdateAndDeleteOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	note, err := svc.Create(ctx, NewNote{Text: "draft", Owner: acc1})
	require.NoError(t, err)

	text := "final"
	_, err = svc.Update(ctx, note.ID, acc2, NoteUpdate{Text: &text})
	assert.ErrorIs(t, err, ErrForbidden)

	color := "Blue"
	updated, err := svc.Update(ctx, note.ID, acc1, NoteUpdate{Text: &text, Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Text)
	assert.Equal(t, "blue", updated.Color)
	require.NotNil(t, updated.EditedAt)

	empty := " "
	_, err = svc.Update(ctx, note.ID, acc1, NoteUpdate{Text: &empty})
	assert.ErrorIs(t, err, ErrEmptyText)

	assert.ErrorIs(t, svc.Delete(ctx, note.ID, acc2), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, note.ID, acc1))
	_, err = svc.Get(ctx, note.ID)
	assert.ErrorIs(t, err, domain.ErrNoteNotFound)

	_, err = svc.Update(ctx, "missing", acc1, NoteUpdate{})
	assert.ErrorIs(t, err, domain.ErrNoteNotFound)
}

func TestService_OwnershipSurvivesLinkAndUnlink(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	unlinked := &domain.Principal{AccountID: "acc-1", Connection: domain.ConnectionPassword}
	linked := &domain.Principal{
		AccountID:  "acc-1",
		Identity:   &domain.LinkedIdentity{ObjectID: "oid-1", TenantID: "tid-1"},
		Connection: domain.ConnectionAAD,
	}

	before, err := svc.Create(ctx, NewNote{Text: "before link", Owner: unlinked.Owner()})
	require.NoError(t, err)
	while, err := svc.Create(ctx, NewNote{Text: "while linked", Owner: linked.Owner()})
	require.NoError(t, err)

	text := "edited after link"
	_, err = svc.Update(ctx, before.ID, linked.Owner(), NoteUpdate{Text: &text})
	require.NoError(t, err)
	mine, err := svc.List(ctx, domain.NoteFilter{Owner: linked.Owner()})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	text = "edited after unlink"
	_, err = svc.Update(ctx, while.ID, unlinked.Owner(), NoteUpdate{Text: &text})
	require.NoError(t, err)
	mine, err = svc.List(ctx, domain.NoteFilter{Owner: unlinked.Owner()})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	require.NoError(t, svc.Delete(ctx, before.ID, linked.Owner()))
	require.NoError(t, svc.Delete(ctx, while.ID, unlinked.Owner()))
}

func TestService_EntraOnlyNotesFollowTheAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	guest := &domain.Principal{Identity: &domain.LinkedIdentity{ObjectID: "oid-1", TenantID: "tid-1"}, Connection: domain.ConnectionAAD}
	note, err := svc.Create(ctx, NewNote{Text: "from guest", Owner: guest.Owner()})
	require.NoError(t, err)
	assert.Equal(t, "oid-1", note.CreatedByID)

	signedUp := &domain.Principal{AccountID: "acc-1", Identity: guest.Identity, Connection: domain.ConnectionAAD}
	require.NoError(t, svc.Delete(ctx, note.ID, signedUp.Owner()))
}

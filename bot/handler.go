package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/notes"
	"github.com/pilab-dev/teams-collab/storage"
	"github.com/pilab-dev/teams-collab/teams"
)

const (
	helpText = "Commands: notes (list the notes of this conversation), add <text> (add a note), " +
		"get (show stored values), set <user|conversation> <key> <value> (store a value), " +
		"clear <user|conversation> (remove stored values), help."
	unlinkText = "Link your account first: open the app tab and sign in with your work account."
	maxListed  = 10
)

// Replier answers an inbound activity.
type Replier interface {
	Reply(ctx context.Context, to *teams.Activity, text string) error
}

// Handler ingests activities and answers text commands from linked users.
// Notes and scoped values are keyed exactly as the bridge keys them for the
// same conversation and user.
type Handler struct {
	ingestor *Ingestor
	accounts domain.AccountRepository
	notes    *notes.Service
	values   *storage.ScopedStore
	replier  Replier
	logger   log.Logger
}

func NewHandler(ingestor *Ingestor, accounts domain.AccountRepository, notesSvc *notes.Service, values *storage.ScopedStore, replier Replier, logger log.Logger) *Handler {
	return &Handler{ingestor: ingestor, accounts: accounts, notes: notesSvc, values: values, replier: replier, logger: logger}
}

// HandleActivity processes one inbound activity. Only message activities
// produce a reply.
func (h *Handler) HandleActivity(ctx context.Context, a *teams.Activity) error {
	h.ingestor.Ingest(ctx, a)

	if a.Type != teams.ActivityTypeMessage {
		return nil
	}
	text, err := h.respond(ctx, a)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	if err := h.replier.Reply(ctx, a, text); err != nil {
		return fmt.Errorf("reply to %s: %w", a.ID, err)
	}
	return nil
}

func (h *Handler) respond(ctx context.Context, a *teams.Activity) (string, error) {
	command, arg, _ := strings.Cut(strings.TrimSpace(a.PlainText()), " ")
	command = strings.ToLower(command)
	if command == "" || command == "help" {
		return helpText, nil
	}

	account, err := h.accounts.FindByExternalIdentity(ctx, a.From.AADObjectID, a.TenantID())
	if errors.Is(err, domain.ErrAccountNotFound) || (err == nil && account == nil) {
		return unlinkText, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve sender: %w", err)
	}

	thread := h.ingestor.Thread(a)
	ref := storage.Ref{UserID: account.UserKey(), ConversationID: thread.ID}

	switch command {
	case "notes":
		list, err := h.notes.List(ctx, domain.NoteFilter{ThreadID: thread.ID})
		if err != nil {
			return "", fmt.Errorf("list notes: %w", err)
		}
		return formatNotes(list), nil

	case "add":
		note, err := h.notes.Create(ctx, notes.NewNote{
			Text:     arg,
			ThreadID: thread.ID,
			Owner:    account.Owner(),
			Silent:   true,
		})
		if errors.Is(err, notes.ErrEmptyText) {
			return "Usage: add <text>", nil
		}
		if err != nil {
			return "", fmt.Errorf("add note: %w", err)
		}
		h.logger.Info(ctx, "note added from chat", log.Fields{"note_id": note.ID, "account_id": account.ID})
		return fmt.Sprintf("Added note: %s", note.Text), nil

	case "get":
		values, err := h.values.Get(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("get values: %w", err)
		}
		return formatValues(values), nil

	case "set":
		return h.set(ctx, ref, arg)

	case "clear":
		scope, err := storage.ParseScope(strings.ToLower(strings.TrimSpace(arg)))
		if err != nil {
			return "Usage: clear <user|conversation>", nil
		}
		if err := h.values.Delete(ctx, ref, scope); err != nil {
			return "", fmt.Errorf("clear values: %w", err)
		}
		return fmt.Sprintf("Cleared %s values.", scope), nil
	}

	return fmt.Sprintf("Unknown command %q. %s", command, helpText), nil
}

const setUsage = "Usage: set <user|conversation> <key> <value>"

// set overwrites one value. The value is stored as JSON when it parses as
// JSON and as a string otherwise.
func (h *Handler) set(ctx context.Context, ref storage.Ref, arg string) (string, error) {
	fields := strings.Fields(arg)
	if len(fields) < 3 {
		return setUsage, nil
	}
	scope, err := storage.ParseScope(strings.ToLower(fields[0]))
	if err != nil {
		return setUsage, nil
	}
	key := fields[1]
	raw := strings.Join(fields[2:], " ")

	value := json.RawMessage(raw)
	if !json.Valid(value) {
		value, _ = json.Marshal(raw)
	}

	result, err := h.values.Set(ctx, ref, scope, map[string]storage.Change{
		key: {Value: value, Version: storage.AnyVersion},
	})
	if err != nil {
		return "", fmt.Errorf("set value: %w", err)
	}
	if err := result.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Stored %s value %s.", scope, key), nil
}

func formatNotes(list []*domain.Note) string {
	if len(list) == 0 {
		return "No notes in this conversation yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d note(s):", len(list))
	for i, n := range list {
		if i == maxListed {
			fmt.Fprintf(&b, "\n... and %d more", len(list)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n- %s", n.Text)
	}
	return b.String()
}

func formatValues(v *storage.Values) string {
	if len(v.User) == 0 && len(v.Conversation) == 0 {
		return "No values stored yet."
	}
	var b strings.Builder
	writeScope := func(title string, values map[string]storage.Value) {
		if len(values) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(title)
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %s", k, values[k].Value)
		}
	}
	writeScope("Conversation values:", v.Conversation)
	writeScope("Your values:", v.User)
	return b.String()
}

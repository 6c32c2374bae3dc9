package notes

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/internal/memstore"
	"github.com/pilab-dev/teams-collab/interop"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterActions_ThroughRouter(t *testing.T) {
	svc := NewService(memstore.NewNotes(), nil, nil, log.NewNopLogger())
	router := interop.NewRouter(interop.RouterConfig{Logger: log.NewNopLogger()})
	RegisterActions(router, svc)
	assert.ElementsMatch(t, []string{ActionCreate, ActionList, ActionUpdate, ActionDelete}, router.Actions())

	ctx := context.Background()
	caller := &domain.Principal{AccountID: "acc-1", Email: "ada@example.com", Connection: domain.ConnectionAAD}

	out, err := router.Serve(ctx, caller, []byte(`{"type":"action","threadId":"19:chat@thread.v2","threadType":"groupChat",
		"action":{"type":"create-note","customData":{"text":"hello","color":"green"}}}`))
	require.NoError(t, err)
	created := out.(*domain.Note)
	assert.Equal(t, "19:chat@thread.v2", created.ThreadID)
	assert.Equal(t, "acc-1", created.CreatedByID)

	// Linking the account does not change who owns the note.
	linkedCaller := &domain.Principal{
		AccountID:  "acc-1",
		Identity:   &domain.LinkedIdentity{ObjectID: "oid-1", TenantID: "tid-1"},
		Connection: domain.ConnectionAAD,
	}
	relabel, _ := json.Marshal(map[string]any{
		"type": "action", "threadId": "19:chat@thread.v2", "threadType": "chat",
		"action": map[string]any{"type": "update-note", "customData": map[string]string{"id": created.ID, "color": "pink"}},
	})
	out, err = router.Serve(ctx, linkedCaller, relabel)
	require.NoError(t, err)
	assert.Equal(t, "pink", out.(*domain.Note).Color)

	out, err = router.Serve(ctx, caller, []byte(`{"type":"action","threadId":"19:chat@thread.v2","threadType":"chat",
		"action":{"type":"list-notes","customData":{}}}`))
	require.NoError(t, err)
	assert.Len(t, out.([]*domain.Note), 1)

	// Other threads do not see the note.
	out, err = router.Serve(ctx, caller, []byte(`{"type":"action","threadId":"19:other","threadType":"chat",
		"action":{"type":"list-notes","customData":null}}`))
	require.NoError(t, err)
	assert.Empty(t, out.([]*domain.Note))

	update, _ := json.Marshal(map[string]any{
		"type": "action", "threadId": "19:chat@thread.v2", "threadType": "chat",
		"action": map[string]any{"type": "update-note", "customData": map[string]string{"id": created.ID, "text": "edited"}},
	})
	out, err = router.Serve(ctx, caller, update)
	require.NoError(t, err)
	assert.Equal(t, "edited", out.(*domain.Note).Text)

	_, err = router.Serve(ctx, caller, []byte(`{"type":"action","threadId":"19:chat@thread.v2","threadType":"chat",
		"action":{"type":"create-note","customData":{"text":"x","pinned":true}}}`))
	assert.ErrorIs(t, err, interop.ErrInvalidRequest)

	del, _ := json.Marshal(map[string]any{
		"type": "action", "threadId": "19:chat@thread.v2", "threadType": "chat",
		"action": map[string]any{"type": "delete-note", "customData": map[string]string{"id": created.ID}},
	})
	_, err = router.Serve(ctx, &domain.Principal{AccountID: "acc-2"}, del)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = router.Serve(ctx, caller, del)
	require.NoError(t, err)
}

package teams

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func tokenHandler(t *testing.T, wantScope string, tokens *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, wantScope, r.PostForm.Get("scope"))
		tokens.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "app-token", "token_type": "Bearer", "expires_in": 3600})
	}
}

func requireBearer(t *testing.T, r *http.Request, want string) {
	t.Helper()
	assert.Equal(t, "Bearer "+want, r.Header.Get("Authorization"))
}

func TestConnectorClient_GetPagedMembers(t *testing.T) {
	var tokens atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(t, BotFrameworkScope, &tokens))
	mux.HandleFunc("/v3/conversations/19:conv@thread.v2/pagedmembers", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "app-token")
		if r.URL.Query().Get("continuationToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"continuationToken": "page-2",
				"members":           []map[string]any{{"id": "29:a", "name": "Ada", "aadObjectId": "oid-a"}},
			})
			return
		}
		assert.Equal(t, "page-2", r.URL.Query().Get("continuationToken"))
		writeJSON(w, http.StatusOK, map[string]any{"members": []map[string]any{{"id": "29:b"}}})
	})
	mux.HandleFunc("/v3/conversations/broken/pagedmembers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"value": []string{}})
	})
	mux.HandleFunc("/v3/conversations/forbidden/pagedmembers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": map[string]any{"code": "BotNotInConversationRoster", "message": "The bot is not part of the conversation roster."}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, server.Client())
	client := NewConnectorClient(ctx, ConnectorConfig{AppID: "bot", AppPassword: "secret", TokenURL: server.URL + "/token"})

	page, err := client.GetPagedMembers(ctx, server.URL+"/", "19:conv@thread.v2", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "page-2", page.ContinuationToken)
	require.Len(t, page.Members, 1)
	assert.Equal(t, "oid-a", page.Members[0].AADObjectID)

	page, err = client.GetPagedMembers(ctx, server.URL, "19:conv@thread.v2", "page-2", 50)
	require.NoError(t, err)
	assert.Empty(t, page.ContinuationToken)
	assert.Len(t, page.Members, 1)
	assert.Equal(t, int32(1), tokens.Load())

	_, err = client.GetPagedMembers(ctx, server.URL, "broken", "", 0)
	assert.ErrorIs(t, err, ErrUpstreamShape)

	_, err = client.GetPagedMembers(ctx, server.URL, "forbidden", "", 0)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusForbidden, upstream.Status)
	assert.Equal(t, "The bot is not part of the conversation roster.", upstream.Message)

	_, err = client.GetPagedMembers(ctx, "", "x", "", 0)
	assert.Error(t, err)
}

func TestConnectorClient_SendTextAndReply(t *testing.T) {
	var tokens atomic.Int32
	var sent []Activity
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(t, BotFrameworkScope, &tokens))
	mux.HandleFunc("/v3/conversations/a:conv/activities", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var a Activity
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		sent = append(sent, a)
		writeJSON(w, http.StatusCreated, map[string]string{"id": "act-1"})
	})
	mux.HandleFunc("/v3/conversations/a:conv/activities/in-1", func(w http.ResponseWriter, r *http.Request) {
		var a Activity
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		sent = append(sent, a)
		writeJSON(w, http.StatusOK, map[string]string{"id": "act-2"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, server.Client())
	client := NewConnectorClient(ctx, ConnectorConfig{AppID: "bot", AppPassword: "secret", TokenURL: server.URL + "/token"})

	ref := &domain.ConversationReference{
		User:         domain.ChannelAccount{ID: "29:user"},
		Bot:          domain.ChannelAccount{ID: "28:bot"},
		Conversation: domain.ConversationAccount{ID: "a:conv"},
		ChannelID:    "msteams",
		ServiceURL:   server.URL,
	}
	id, err := client.SendText(ctx, ref, "note added")
	require.NoError(t, err)
	assert.Equal(t, "act-1", id)

	inbound := &Activity{ID: "in-1", ServiceURL: server.URL, From: ref.User, Recipient: ref.Bot, Conversation: ref.Conversation}
	require.NoError(t, client.Reply(ctx, inbound, "pong"))

	require.Len(t, sent, 2)
	assert.Equal(t, "note added", sent[0].Text)
	assert.Equal(t, "28:bot", sent[0].From.ID)
	assert.Equal(t, "pong", sent[1].Text)
	assert.Equal(t, "in-1", sent[1].ReplyToID)
	assert.Equal(t, "29:user", sent[1].Recipient.ID)
}

func newGraphServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	var tokens atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/tid-1/token", tokenHandler(t, GraphScope, &tokens))
	mux.HandleFunc("/v1.0/chats/19:chat@thread.v2/members", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "app-token")
		if r.URL.Query().Get("page") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"value":           []map[string]any{{"id": "m1", "displayName": "Ada", "userId": "oid-a", "roles": []string{"owner"}}},
				"@odata.nextLink": "http://" + r.Host + r.URL.Path + "?page=2",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]any{{"id": "m2", "displayName": "Grace", "roles": []string{}}}})
	})
	mux.HandleFunc("/v1.0/teams/team-1/channels/19:chan@thread.tacv2/members", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]any{{"id": "m3"}}})
	})
	mux.HandleFunc("/v1.0/chats/19:broken/members", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"members": []any{}})
	})
	mux.HandleFunc("/v1.0/chats/19:chat@thread.v2/permissionGrants", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]any{
			{"id": "g1", "clientAppId": "app-1", "permissionType": "Application", "permission": "ChatMessage.Read.Chat"},
			{"id": "g2", "clientAppId": "other-app", "permissionType": "Application", "permission": "ChatSettings.Read.Chat"},
		}})
	})
	mux.HandleFunc("/v1.0/teams/team-1/permissionGrants", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]any{
			{"id": "g3", "clientAppId": "APP-1", "permissionType": "Delegated", "permission": "ChannelMessage.Read.Group"},
		}})
	})
	mux.HandleFunc("/v1.0/me", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "obo-token")
		writeJSON(w, http.StatusOK, map[string]any{"id": "oid-a", "displayName": "Ada", "mail": "ada@contoso.com"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &tokens
}

func newTestGraphClient(server *httptest.Server) *GraphClient {
	return NewGraphClient(GraphConfig{
		ClientID:       "app-1",
		ClientSecret:   "secret",
		TenantTokenURL: func(tid string) string { return server.URL + "/" + tid + "/token" },
		BaseURL:        server.URL + "/v1.0",
		HTTPClient:     server.Client(),
	})
}

func TestGraphClient_Members(t *testing.T) {
	server, tokens := newGraphServer(t)
	graph := newTestGraphClient(server)
	ctx := context.Background()

	members, err := graph.ChatMembers(ctx, "tid-1", "19:chat@thread.v2")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Ada", members[0].DisplayName)
	assert.Equal(t, "Grace", members[1].DisplayName)

	members, err = graph.ChannelMembers(ctx, "tid-1", "team-1", "19:chan@thread.tacv2")
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Equal(t, int32(1), tokens.Load())

	_, err = graph.ChatMembers(ctx, "tid-1", "19:broken")
	assert.ErrorIs(t, err, ErrUpstreamShape)

	_, err = graph.ChatMembers(ctx, "", "19:chat@thread.v2")
	assert.Error(t, err)
}

func TestGraphClient_PermissionGrants(t *testing.T) {
	server, _ := newGraphServer(t)
	graph := newTestGraphClient(server)
	ctx := context.Background()

	grants, err := graph.ChatPermissionGrants(ctx, "tid-1", "19:chat@thread.v2", "app-1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "ChatMessage.Read.Chat", grants[0].Permission)

	grants, err = graph.TeamPermissionGrants(ctx, "tid-1", "team-1", "app-1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "Delegated", grants[0].PermissionType)
}

func TestGraphClient_Me(t *testing.T) {
	server, _ := newGraphServer(t)
	graph := newTestGraphClient(server)

	me, err := graph.Me(context.Background(), "obo-token")
	require.NoError(t, err)
	assert.Equal(t, "ada@contoso.com", me.Mail)
}

func TestOBOExchanger_Exchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/tid-1/token", r.URL.Path)
		assert.Equal(t, jwtBearerGrantType, r.PostForm.Get("grant_type"))
		assert.Equal(t, "on_behalf_of", r.PostForm.Get("requested_token_use"))
		assert.Equal(t, "https://graph.microsoft.com/User.Read", r.PostForm.Get("scope"))
		if r.PostForm.Get("assertion") != "user-token" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "AADSTS50013: Assertion failed signature validation."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "obo-token", "token_type": "Bearer", "expires_in": 3600})
	}))
	defer server.Close()

	exchanger := &OBOExchanger{
		ClientID:       "app-1",
		ClientSecret:   "secret",
		TenantTokenURL: func(tid string) string { return server.URL + "/" + tid + "/token" },
		HTTPClient:     server.Client(),
	}
	ctx := context.Background()
	scopes := []string{"https://graph.microsoft.com/User.Read"}

	tok, err := exchanger.Exchange(ctx, "tid-1", "user-token", scopes)
	require.NoError(t, err)
	assert.Equal(t, "obo-token", tok.AccessToken)

	_, err = exchanger.Exchange(ctx, "tid-1", "forged", scopes)
	assert.ErrorIs(t, err, ErrOBOFailed)
	assert.True(t, strings.Contains(err.Error(), "AADSTS50013"))

	_, err = exchanger.Exchange(ctx, "tid-1", "", scopes)
	assert.ErrorIs(t, err, ErrOBOFailed)
}

func TestActivity_Helpers(t *testing.T) {
	raw := `{
		"type": "message",
		"id": "in-1",
		"serviceUrl": "https://smba.trafficmanager.net/emea/",
		"channelId": "msteams",
		"from": {"id": "29:user", "aadObjectId": "oid-1"},
		"recipient": {"id": "28:bot"},
		"conversation": {"id": "19:chan@thread.tacv2;messageid=1", "conversationType": "channel"},
		"text": "<at>Collab</at> notes ",
		"channelData": {"tenant": {"id": "tid-1"}, "team": {"id": "19:team@thread.tacv2"}}
	}`
	var a Activity
	require.NoError(t, json.NewDecoder(io.NopCloser(strings.NewReader(raw))).Decode(&a))

	assert.Equal(t, "notes", a.PlainText())
	assert.Equal(t, "tid-1", a.TenantID())
	assert.False(t, a.IsPersonal())

	ref := a.ConversationReference()
	assert.Equal(t, "19:team@thread.tacv2", ref.TeamID)
	assert.Equal(t, "tid-1", ref.Conversation.TenantID)
	assert.Equal(t, "oid-1", ref.User.AADObjectID)
	assert.Equal(t, "28:bot", ref.Bot.ID)
}

func TestConnectorClient_RateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"members": []map[string]any{}})
	}))
	defer server.Close()

	client := NewConnectorClientWithHTTP(server.Client()).WithRateLimit(rate.Every(time.Hour), 1)

	_, err := client.GetPagedMembers(context.Background(), server.URL, "a:conv", "", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.GetPagedMembers(ctx, server.URL, "a:conv", "", 0)
	assert.ErrorContains(t, err, "rate limit")
	assert.Equal(t, int32(1), calls.Load())
}

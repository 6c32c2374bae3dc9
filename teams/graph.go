package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	GraphScope          = "https://graph.microsoft.com/.default"

	maxGraphPages = 20
)

// GraphMember is a conversation member as returned by Microsoft Graph.
type GraphMember struct {
	ODataType   string   `json:"@odata.type,omitempty"`
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName,omitempty"`
	UserID      string   `json:"userId,omitempty"`
	Email       string   `json:"email,omitempty"`
	TenantID    string   `json:"tenantId,omitempty"`
	Roles       []string `json:"roles"`
}

// PermissionGrant is a resource specific consent grant.
type PermissionGrant struct {
	ID             string `json:"id"`
	ClientAppID    string `json:"clientAppId"`
	ClientID       string `json:"clientId,omitempty"`
	ResourceAppID  string `json:"resourceAppId,omitempty"`
	PermissionType string `json:"permissionType"`
	Permission     string `json:"permission"`
}

// GraphUser is the profile returned by /me.
type GraphUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// GraphConfig configures a GraphClient.
type GraphConfig struct {
	ClientID     string
	ClientSecret string
	// TenantTokenURL returns the token endpoint of a tenant.
	TenantTokenURL func(tenantID string) string
	// BaseURL defaults to DefaultGraphBaseURL.
	BaseURL string
	// HTTPClient is used for Graph and token requests; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// GraphClient reads Teams membership and consent data with app-only tokens
// of the tenant that owns the conversation.
type GraphClient struct {
	cfg     GraphConfig
	baseURL string

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewGraphClient creates a GraphClient.
func NewGraphClient(cfg GraphConfig) *GraphClient {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultGraphBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &GraphClient{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		sources: map[string]oauth2.TokenSource{},
	}
}

// ChatMembers lists the members of a chat, including personal chats.
func (g *GraphClient) ChatMembers(ctx context.Context, tenantID, chatID string) ([]GraphMember, error) {
	return listMembers(ctx, g, tenantID, "/chats/"+url.PathEscape(chatID)+"/members")
}

// ChannelMembers lists the members of a team channel.
func (g *GraphClient) ChannelMembers(ctx context.Context, tenantID, teamID, channelID string) ([]GraphMember, error) {
	return listMembers(ctx, g, tenantID, "/teams/"+url.PathEscape(teamID)+"/channels/"+url.PathEscape(channelID)+"/members")
}

// ChatPermissionGrants lists the grants of clientAppID on a chat.
func (g *GraphClient) ChatPermissionGrants(ctx context.Context, tenantID, chatID, clientAppID string) ([]PermissionGrant, error) {
	return g.permissionGrants(ctx, tenantID, "/chats/"+url.PathEscape(chatID)+"/permissionGrants", clientAppID)
}

// TeamPermissionGrants lists the grants of clientAppID on a team.
func (g *GraphClient) TeamPermissionGrants(ctx context.Context, tenantID, teamID, clientAppID string) ([]PermissionGrant, error) {
	return g.permissionGrants(ctx, tenantID, "/teams/"+url.PathEscape(teamID)+"/permissionGrants", clientAppID)
}

// Me fetches the profile of the user a delegated access token belongs to.
func (g *GraphClient) Me(ctx context.Context, accessToken string) (*GraphUser, error) {
	client := oauth2.NewClient(g.tokenContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	var user GraphUser
	if err := g.get(ctx, client, g.baseURL+"/me", &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: /me without id", ErrUpstreamShape)
	}
	return &user, nil
}

func (g *GraphClient) permissionGrants(ctx context.Context, tenantID, path, clientAppID string) ([]PermissionGrant, error) {
	all, err := collect[PermissionGrant](ctx, g, tenantID, path)
	if err != nil {
		return nil, err
	}
	grants := []PermissionGrant{}
	for _, grant := range all {
		if grant.ID == "" || grant.Permission == "" {
			return nil, fmt.Errorf("%w: permission grant without id or permission", ErrUpstreamShape)
		}
		if clientAppID == "" || strings.EqualFold(grant.ClientAppID, clientAppID) {
			grants = append(grants, grant)
		}
	}
	return grants, nil
}

func listMembers(ctx context.Context, g *GraphClient, tenantID, path string) ([]GraphMember, error) {
	members, err := collect[GraphMember](ctx, g, tenantID, path)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: member without id", ErrUpstreamShape)
		}
	}
	return members, nil
}

// collect follows @odata.nextLink and concatenates the value arrays.
func collect[T any](ctx context.Context, g *GraphClient, tenantID, path string) ([]T, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("graph: tenant id is required")
	}
	client := oauth2.NewClient(g.tokenContext(ctx), g.tokenSource(tenantID))

	out := []T{}
	next := g.baseURL + path
	for page := 0; next != ""; page++ {
		if page == maxGraphPages {
			return nil, fmt.Errorf("graph: more than %d pages at %s", maxGraphPages, path)
		}
		var body struct {
			Value    *[]T   `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := g.get(ctx, client, next, &body); err != nil {
			return nil, err
		}
		if body.Value == nil {
			return nil, fmt.Errorf("%w: collection without value array", ErrUpstreamShape)
		}
		out = append(out, *body.Value...)
		next = body.NextLink
	}
	return out, nil
}

func (g *GraphClient) get(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("graph: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("graph: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{Service: "graph", Status: resp.StatusCode, Message: upstreamMessage(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamShape, err)
	}
	return nil
}

func (g *GraphClient) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.cfg.HTTPClient)
}

// tokenSource returns the cached app token source of tenantID.
func (g *GraphClient) tokenSource(tenantID string) oauth2.TokenSource {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ts, ok := g.sources[tenantID]; ok {
		return ts
	}
	cc := clientcredentials.Config{
		ClientID:     g.cfg.ClientID,
		ClientSecret: g.cfg.ClientSecret,
		TokenURL:     g.cfg.TenantTokenURL(tenantID),
		Scopes:       []string{GraphScope},
	}
	// The token source outlives the request that created it.
	ts := cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, g.cfg.HTTPClient))
	g.sources[tenantID] = ts
	return ts
}

package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pilab-dev/teams-collab/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	// BotFrameworkScope is the scope of Bot Connector access tokens.
	BotFrameworkScope = "https://api.botframework.com/.default"
	// DefaultBotTokenURL issues Bot Connector tokens for multi-tenant bots.
	DefaultBotTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
)

// TeamsChannelAccount is a conversation member as returned by the Bot Connector.
type TeamsChannelAccount struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	AADObjectID       string `json:"aadObjectId,omitempty"`
	Email             string `json:"email,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
	GivenName         string `json:"givenName,omitempty"`
	Surname           string `json:"surname,omitempty"`
	TenantID          string `json:"tenantId,omitempty"`
	UserRole          string `json:"userRole,omitempty"`
}

// PagedMembers is one page of conversation members.
type PagedMembers struct {
	ContinuationToken string                `json:"continuationToken,omitempty"`
	Members           []TeamsChannelAccount `json:"members"`
}

// ConnectorConfig configures a ConnectorClient.
type ConnectorConfig struct {
	AppID       string
	AppPassword string
	// TokenURL defaults to DefaultBotTokenURL.
	TokenURL string
	// RatePerSecond caps outgoing Connector calls. Zero disables the limit.
	RatePerSecond float64
}

// ConnectorClient calls the Bot Connector REST API of a conversation's
// service URL with the bot's app token.
type ConnectorClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewConnectorClient creates a ConnectorClient authenticating with client
// credentials. ctx carries an optional oauth2.HTTPClient used for token requests.
func NewConnectorClient(ctx context.Context, cfg ConnectorConfig) *ConnectorClient {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultBotTokenURL
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppPassword,
		TokenURL:     tokenURL,
		Scopes:       []string{BotFrameworkScope},
	}
	c := NewConnectorClientWithHTTP(oauth2.NewClient(ctx, cc.TokenSource(ctx)))
	if cfg.RatePerSecond > 0 {
		c.WithRateLimit(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	}
	return c
}

// WithRateLimit makes every call wait for a token of a limiter allowing
// limit calls per second with the given burst.
func (c *ConnectorClient) WithRateLimit(limit rate.Limit, burst int) *ConnectorClient {
	c.limiter = rate.NewLimiter(limit, burst)
	return c
}

// NewConnectorClientWithHTTP creates a ConnectorClient using an already
// authenticated client.
func NewConnectorClientWithHTTP(httpClient *http.Client) *ConnectorClient {
	return &ConnectorClient{httpClient: httpClient}
}

// GetPagedMembers fetches one page of members of a conversation.
func (c *ConnectorClient) GetPagedMembers(ctx context.Context, serviceURL, conversationID, continuationToken string, pageSize int) (*PagedMembers, error) {
	endpoint, err := connectorURL(serviceURL, "v3/conversations", url.PathEscape(conversationID), "pagedmembers")
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	if continuationToken != "" {
		q.Set("continuationToken", continuationToken)
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var raw struct {
		ContinuationToken string                 `json:"continuationToken"`
		Members           *[]TeamsChannelAccount `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Members == nil {
		return nil, fmt.Errorf("%w: paged members without members array", ErrUpstreamShape)
	}
	for _, m := range *raw.Members {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: member without id", ErrUpstreamShape)
		}
	}
	return &PagedMembers{ContinuationToken: raw.ContinuationToken, Members: *raw.Members}, nil
}

// SendText posts a proactive text message into the conversation of ref and
// returns the id of the created activity.
func (c *ConnectorClient) SendText(ctx context.Context, ref *domain.ConversationReference, text string) (string, error) {
	endpoint, err := connectorURL(ref.ServiceURL, "v3/conversations", url.PathEscape(ref.Conversation.ID), "activities")
	if err != nil {
		return "", err
	}
	activity := Activity{
		Type:         ActivityTypeMessage,
		From:         ref.Bot,
		Recipient:    ref.User,
		Conversation: ref.Conversation,
		ChannelID:    ref.ChannelID,
		ServiceURL:   ref.ServiceURL,
		Text:         text,
		TextFormat:   "plain",
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, activity, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Reply answers an inbound activity in its conversation.
func (c *ConnectorClient) Reply(ctx context.Context, to *Activity, text string) error {
	endpoint, err := connectorURL(to.ServiceURL, "v3/conversations", url.PathEscape(to.Conversation.ID), "activities", url.PathEscape(to.ID))
	if err != nil {
		return err
	}
	reply := Activity{
		Type:         ActivityTypeMessage,
		From:         to.Recipient,
		Recipient:    to.From,
		Conversation: to.Conversation,
		ChannelID:    to.ChannelID,
		ServiceURL:   to.ServiceURL,
		ReplyToID:    to.ID,
		Text:         text,
		TextFormat:   "plain",
	}
	return c.do(ctx, http.MethodPost, endpoint, reply, nil)
}

func (c *ConnectorClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("connector: rate limit: %w", err)
		}
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("connector: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("connector: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connector: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("connector: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Service: "connector", Status: resp.StatusCode, Message: upstreamMessage(respBody)}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamShape, err)
	}
	return nil
}

func connectorURL(serviceURL string, segments ...string) (string, error) {
	if serviceURL == "" {
		return "", fmt.Errorf("connector: conversation has no service url")
	}
	base, err := url.Parse(serviceURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("connector: invalid service url %q", serviceURL)
	}
	return strings.TrimRight(serviceURL, "/") + "/" + strings.Join(segments, "/"), nil
}

// upstreamMessage extracts the error message of a Bot Framework or Graph
// error body: {"error":{"code":..., "message":...}} or {"message":...}.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Error != nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		return envelope.Error.Code
	}
	return envelope.Message
}

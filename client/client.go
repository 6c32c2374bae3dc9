// Package client is the tab-side caller of the bridge endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/interop"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/storage"
	"github.com/pilab-dev/teams-collab/teams"
)

// ErrNoThread is returned before any I/O when the current conversation
// cannot be resolved.
var ErrNoThread = errors.New("no conversation thread available")

const maxResponseBytes = 4 << 20

// ThreadResolver reports the conversation the caller is in.
type ThreadResolver interface {
	ResolveThread(ctx context.Context) (domain.Thread, error)
}

// ThreadResolverFunc adapts a function to ThreadResolver.
type ThreadResolverFunc func(ctx context.Context) (domain.Thread, error)

func (f ThreadResolverFunc) ResolveThread(ctx context.Context) (domain.Thread, error) {
	return f(ctx)
}

// StaticThread always resolves to itself.
type StaticThread domain.Thread

func (t StaticThread) ResolveThread(context.Context) (domain.Thread, error) {
	return domain.Thread(t), nil
}

// Config configures a Client.
type Config struct {
	// Endpoint is the bridge URL.
	Endpoint string
	// ID names this client in logs and the User-Agent.
	ID             string
	Authentication Authentication
	Threads        ThreadResolver
	// HTTPClient defaults to a client with a 30 second timeout. Cookie
	// authentication needs one with a cookie jar.
	HTTPClient *http.Client
	Logger     log.Logger
}

// Error is a non-2xx bridge response.
type Error struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *Error) Error() string {
	return e.Message
}

// Client posts bridge requests for the current thread.
type Client struct {
	cfg Config
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("client endpoint is required")
	}
	if cfg.Authentication == nil {
		return nil, errors.New("client authentication is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	return &Client{cfg: cfg}, nil
}

// Request posts payload to url with the current thread merged in and
// decodes the unwrapped data into out, which may be nil.
func (c *Client) Request(ctx context.Context, url string, payload any, out any) error {
	if c.cfg.Threads == nil {
		return ErrNoThread
	}
	thread, err := c.cfg.Threads.ResolveThread(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoThread, err)
	}
	if thread.ID == "" {
		return ErrNoThread
	}

	body, err := withThread(payload, thread)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if err := c.cfg.Authentication.apply(ctx, req); err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.ID != "" {
		req.Header.Set("User-Agent", "teams-collab-client/"+c.cfg.ID)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.cfg.Logger.Debug(req.Context(), "Bridge response", log.Fields{
		"url":    req.URL.Redacted(),
		"status": resp.StatusCode,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp.StatusCode, raw)
	}
	return unwrap(raw, out)
}

func withThread(payload any, thread domain.Thread) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		if err := json.Unmarshal(encoded, &fields); err != nil {
			return nil, fmt.Errorf("payload must be a JSON object: %w", err)
		}
	}

	id, _ := json.Marshal(thread.ID)
	fields["threadId"] = id
	if thread.Type != "" {
		typ, _ := json.Marshal(thread.Type)
		fields["threadType"] = typ
	}
	return json.Marshal(fields)
}

func responseError(status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return &Error{StatusCode: status, Message: body.Error, Code: body.Code}
	}
	msg := strings.TrimSpace(fmt.Sprintf("request failed with status %d %s", status, http.StatusText(status)))
	return &Error{StatusCode: status, Message: msg}
}

func unwrap(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Data) == 0 || bytes.Equal(envelope.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// InvokeAction runs a registered bridge action.
func (c *Client) InvokeAction(ctx context.Context, action string, customData any, out any) error {
	if customData == nil {
		customData = struct{}{}
	}
	payload := map[string]any{
		"type": interop.TypeAction,
		"action": map[string]any{
			"type":       action,
			"customData": customData,
		},
	}
	return c.Request(ctx, c.cfg.Endpoint, payload, out)
}

// SetValue writes one scoped value. An empty version overwrites.
func (c *Client) SetValue(ctx context.Context, scope storage.Scope, key string, value any, version string) error {
	payload := map[string]any{
		"type":  interop.TypeSetValue,
		"scope": scope,
		"key":   key,
		"value": value,
	}
	if version != "" {
		payload["version"] = version
	}
	return c.Request(ctx, c.cfg.Endpoint, payload, nil)
}

// GetValues reads both scopes of the current thread.
func (c *Client) GetValues(ctx context.Context) (*storage.Values, error) {
	var values storage.Values
	if err := c.Request(ctx, c.cfg.Endpoint, map[string]any{"type": interop.TypeGetValues}, &values); err != nil {
		return nil, err
	}
	return &values, nil
}

// GetPagedRoster reads one page of the bot's roster view.
func (c *Client) GetPagedRoster(ctx context.Context, continuationToken string, pageSize int) (*interop.PagedRoster, error) {
	payload := map[string]any{"type": interop.TypeGetPagedRoster}
	if continuationToken != "" {
		payload["continuationToken"] = continuationToken
	}
	if pageSize > 0 {
		payload["pageSize"] = pageSize
	}
	var roster interop.PagedRoster
	if err := c.Request(ctx, c.cfg.Endpoint, payload, &roster); err != nil {
		return nil, err
	}
	return &roster, nil
}

// GetGraphRoster reads the thread's members from Graph.
func (c *Client) GetGraphRoster(ctx context.Context) (*interop.GraphRoster, error) {
	var roster interop.GraphRoster
	if err := c.Request(ctx, c.cfg.Endpoint, map[string]any{"type": interop.TypeGetGraphRoster}, &roster); err != nil {
		return nil, err
	}
	return &roster, nil
}

// GetRSCPermissions reads the resource-specific consent granted in the thread.
func (c *Client) GetRSCPermissions(ctx context.Context) ([]teams.PermissionGrant, error) {
	var grants []teams.PermissionGrant
	if err := c.Request(ctx, c.cfg.Endpoint, map[string]any{"type": interop.TypeGetRSCPermissions}, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

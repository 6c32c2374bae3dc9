package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/log"
)

// Session is a session credential returned by the login endpoint.
type Session struct {
	Account   *domain.Account `json:"account"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Login exchanges email and password for a session credential at url.
// httpClient may be nil.
func Login(ctx context.Context, httpClient *http.Client, url, email, password string) (*Session, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{cfg: Config{HTTPClient: httpClient, Logger: log.NewNopLogger()}}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	var session Session
	if err := c.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

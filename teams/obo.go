package teams

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// ErrOBOFailed is returned when the identity provider refuses the exchange.
var ErrOBOFailed = errors.New("on-behalf-of exchange failed")

// OBOExchanger swaps a user's access token for one issued to this app for
// another resource, keeping the user's identity.
type OBOExchanger struct {
	ClientID       string
	ClientSecret   string
	TenantTokenURL func(tenantID string) string
	HTTPClient     *http.Client
}

// Exchange runs the on-behalf-of flow for assertion in tenantID.
func (e *OBOExchanger) Exchange(ctx context.Context, tenantID, assertion string, scopes []string) (*oauth2.Token, error) {
	if assertion == "" {
		return nil, fmt.Errorf("%w: empty assertion", ErrOBOFailed)
	}
	cc := clientcredentials.Config{
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		TokenURL:     e.TenantTokenURL(tenantID),
		Scopes:       scopes,
		EndpointParams: url.Values{
			"grant_type":          {jwtBearerGrantType},
			"assertion":           {assertion},
			"requested_token_use": {"on_behalf_of"},
		},
	}
	if e.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.HTTPClient)
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			msg := re.ErrorDescription
			if msg == "" {
				msg = re.ErrorCode
			}
			return nil, fmt.Errorf("%w: %s", ErrOBOFailed, msg)
		}
		return nil, fmt.Errorf("%w: %v", ErrOBOFailed, err)
	}
	return tok, nil
}

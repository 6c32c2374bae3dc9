package sssogin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/middleware"
	"github.com/pilab-dev/teams-collab/services"
	"github.com/pilab-dev/teams-collab/token"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type aadSignupRequest struct {
	Code     string `json:"code" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse is returned by every endpoint that signs the caller in.
type SessionResponse struct {
	Account   *domain.Account `json:"account"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// AADLoginResponse carries either a session, for linked identities, or a
// single-use signup code with the profile to prefill the signup form.
type AADLoginResponse struct {
	*SessionResponse
	SignupCode string `json:"signupCode,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
}

func (a *API) SignupHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", services.ErrInvalidInput, err))
		return
	}

	account, err := a.opts.Accounts.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	a.signIn(c, http.StatusCreated, account, domain.ConnectionPassword)
}

func (a *API) LoginHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", services.ErrInvalidInput, err))
		return
	}

	account, err := a.opts.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	a.signIn(c, http.StatusOK, account, domain.ConnectionPassword)
}

// LogoutHandler clears the session cookie. Sessions are stateless, so a
// copied credential stays valid until it expires.
func (a *API) LogoutHandler(c *gin.Context) {
	a.setSessionCookie(c, "", -1)
	respond(c, http.StatusOK, nil)
}

func (a *API) MeHandler(c *gin.Context) {
	account, err := a.opts.Accounts.Get(c.Request.Context(), principalFrom(c).AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, account)
}

// AADLoginHandler exchanges an Entra token from the Authorization header
// for a session of the linked account. When no account is linked, a
// signup code is returned instead.
func (a *API) AADLoginHandler(c *gin.Context) {
	ctx := c.Request.Context()

	raw, ok := middleware.BearerToken(c.GetHeader(middleware.HeaderAuthorization))
	if !ok {
		abortWithError(c, middleware.ErrMissingCredential)
		return
	}
	ext, err := a.opts.Authenticator.VerifyExternal(ctx, raw)
	if err != nil {
		abortWithError(c, err)
		return
	}
	profile, err := a.profile(ctx, ext)
	if err != nil {
		abortWithError(c, err)
		return
	}

	identity := domain.LinkedIdentity{ObjectID: ext.ObjectID, TenantID: ext.TenantID, PrincipalName: profile.principalName}
	result, err := a.opts.Accounts.LoginWithExternal(ctx, identity, profile.name)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if result.Account == nil {
		respond(c, http.StatusOK, AADLoginResponse{SignupCode: result.SignupCode, Email: profile.email, Name: profile.name})
		return
	}
	session, err := a.issueSession(c, result.Account, domain.ConnectionAAD)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, AADLoginResponse{SessionResponse: session})
}

// AADSignupHandler redeems a signup code and signs the new account in.
func (a *API) AADSignupHandler(c *gin.Context) {
	var req aadSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", services.ErrInvalidInput, err))
		return
	}

	account, err := a.opts.Accounts.SignupWithCode(c.Request.Context(), req.Code, req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	a.signIn(c, http.StatusCreated, account, domain.ConnectionAAD)
}

// AADLinkHandler attaches an Entra identity to the signed-in account. The
// Entra token comes from the entra-authorization header, or from the
// Authorization header when the session is carried by the cookie.
func (a *API) AADLinkHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		principal *domain.Principal
		raw       string
		err       error
	)
	if h := c.GetHeader(middleware.HeaderEntraAuthorization); h != "" {
		raw, _ = middleware.BearerToken(h)
		principal, err = a.opts.Authenticator.AuthenticateSession(c.Request)
	} else {
		raw, _ = middleware.BearerToken(c.GetHeader(middleware.HeaderAuthorization))
		principal, err = a.opts.Authenticator.AuthenticateCookie(c.Request)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	if raw == "" {
		abortWithError(c, fmt.Errorf("%w: external token", middleware.ErrMissingCredential))
		return
	}

	ext, err := a.opts.Authenticator.VerifyExternal(ctx, raw)
	if err != nil {
		abortWithError(c, err)
		return
	}
	profile, err := a.profile(ctx, ext)
	if err != nil {
		abortWithError(c, err)
		return
	}

	account, err := a.opts.Accounts.Link(ctx, principal.AccountID, domain.LinkedIdentity{
		ObjectID:      ext.ObjectID,
		TenantID:      ext.TenantID,
		PrincipalName: profile.principalName,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	a.signIn(c, http.StatusOK, account, principal.Connection)
}

func (a *API) AADUnlinkHandler(c *gin.Context) {
	principal := principalFrom(c)
	account, err := a.opts.Accounts.Unlink(c.Request.Context(), principal.AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	connection := principal.Connection
	if connection == domain.ConnectionAAD {
		connection = domain.ConnectionPassword
	}
	a.signIn(c, http.StatusOK, account, connection)
}

// signIn issues a fresh session for account, so the credential always
// reflects the account's current link.
func (a *API) signIn(c *gin.Context, status int, account *domain.Account, connection domain.Connection) {
	session, err := a.issueSession(c, account, connection)
	if err != nil {
		abortWithError(c, err)
		return
	}
	respond(c, status, session)
}

func (a *API) issueSession(c *gin.Context, account *domain.Account, connection domain.Connection) (*SessionResponse, error) {
	raw, err := a.opts.Sessions.Issue(account, connection)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	ttl := a.sessionTTL()
	a.setSessionCookie(c, raw, int(ttl.Seconds()))
	return &SessionResponse{Account: account, Token: raw, ExpiresAt: time.Now().Add(ttl).UTC()}, nil
}

func (a *API) setSessionCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   a.opts.CookieDomain,
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

type externalProfile struct {
	name          string
	email         string
	principalName string
}

// profile describes the Entra user. With an OBO exchanger configured, the
// directory profile is read on the user's behalf; a failed exchange fails
// the request.
func (a *API) profile(ctx context.Context, ext *token.ExternalIdentity) (externalProfile, error) {
	p := externalProfile{name: ext.Name, email: ext.PrincipalName, principalName: ext.PrincipalName}
	if a.opts.OBO == nil || a.opts.Profile == nil {
		return p, nil
	}

	tok, err := a.opts.OBO.Exchange(ctx, ext.TenantID, ext.Raw, a.opts.OBOScopes)
	if err != nil {
		return p, err
	}
	user, err := a.opts.Profile.Me(ctx, tok.AccessToken)
	if err != nil {
		a.opts.Logger.Warn(ctx, "failed to read directory profile", log.Fields{"object_id": ext.ObjectID, "error": err.Error()})
		return p, nil
	}
	if user.DisplayName != "" {
		p.name = user.DisplayName
	}
	if user.Mail != "" {
		p.email = user.Mail
	}
	if user.UserPrincipalName != "" {
		p.principalName = user.UserPrincipalName
	}
	return p, nil
}

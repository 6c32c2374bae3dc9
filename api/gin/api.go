// Package sssogin serves the tab-facing HTTP API: the interop bridge, the
// account and identity-linking endpoints and the notes REST resource.
package sssogin

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/teams-collab/interop"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/middleware"
	"github.com/pilab-dev/teams-collab/notes"
	"github.com/pilab-dev/teams-collab/services"
	"github.com/pilab-dev/teams-collab/teams"
	"github.com/pilab-dev/teams-collab/token"
	"golang.org/x/oauth2"
)

const maxBodyBytes = 1 << 20

// TokenExchanger runs the on-behalf-of exchange for an Entra token.
type TokenExchanger interface {
	Exchange(ctx context.Context, tenantID, assertion string, scopes []string) (*oauth2.Token, error)
}

// ProfileReader reads the signed-in user's directory profile.
type ProfileReader interface {
	Me(ctx context.Context, accessToken string) (*teams.GraphUser, error)
}

// Options holds the API's collaborators. OBO and Profile are optional;
// without them AAD logins carry only the token's own claims.
type Options struct {
	Router        *interop.Router
	Authenticator *middleware.Authenticator
	Sessions      *token.SessionCodec
	Accounts      *services.AccountService
	Notes         *notes.Service
	OBO           TokenExchanger
	OBOScopes     []string
	Profile       ProfileReader
	CookieDomain  string
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger log.Logger
}

// API holds the handlers of the tab-facing HTTP API.
type API struct {
	opts Options
}

func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &API{opts: opts}
}

// RegisterRoutes registers every route of the API on e.
func (a *API) RegisterRoutes(e *gin.Engine) {
	e.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	e.GET("/readyz", a.ReadyHandler)
	e.GET("/.well-known/jwks.json", a.JWKSHandler)

	api := e.Group("/api", bodyLimit(maxBodyBytes))
	api.POST("/bridge", a.BridgeHandler)

	auth := api.Group("/auth")
	auth.POST("/signup", a.SignupHandler)
	auth.POST("/login", a.LoginHandler)
	auth.POST("/logout", a.LogoutHandler)
	auth.GET("/me", a.RequireSession(), a.MeHandler)
	auth.POST("/aad/login", a.AADLoginHandler)
	auth.POST("/aad/signup", a.AADSignupHandler)
	auth.POST("/aad/link", a.AADLinkHandler)
	auth.POST("/aad/unlink", a.RequireSession(), a.AADUnlinkHandler)

	n := api.Group("/notes", a.RequireSession())
	n.GET("", a.ListNotesHandler)
	n.POST("", a.CreateNoteHandler)
	n.GET("/:id", a.GetNoteHandler)
	n.PATCH("/:id", a.UpdateNoteHandler)
	n.DELETE("/:id", a.DeleteNoteHandler)
}

func (a *API) sessionTTL() time.Duration {
	return a.opts.Sessions.TTL()
}

// Package sssoecho serves the Bot Framework messaging endpoint.
package sssoecho

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/middleware"
	"github.com/pilab-dev/teams-collab/teams"
	"github.com/pilab-dev/teams-collab/token"
)

const identityKey = "bot-identity"

// ActivityHandler processes inbound activities.
type ActivityHandler interface {
	HandleActivity(ctx context.Context, a *teams.Activity) error
}

// BotAPI holds the dependencies of the messaging endpoint.
type BotAPI struct {
	verifier middleware.ExternalTokenVerifier
	handler  ActivityHandler
	logger   log.Logger
}

// NewBotAPI creates the messaging endpoint. verifier must accept tokens
// issued by the Bot Framework to this bot.
func NewBotAPI(verifier middleware.ExternalTokenVerifier, handler ActivityHandler, logger log.Logger) *BotAPI {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BotAPI{verifier: verifier, handler: handler, logger: logger}
}

// RegisterRoutes registers the bot routes.
func (b *BotAPI) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.POST("/api/messages", b.MessagesHandler, b.Authenticate)
}

// Authenticate verifies the Bot Framework bearer token of the request.
func (b *BotAPI) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := middleware.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		identity, err := b.verifier.Verify(c.Request().Context(), raw)
		if err != nil {
			b.logger.Warn(c.Request().Context(), "rejected bot framework token", log.Fields{"error": err.Error()})
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		c.Set(identityKey, identity)
		return next(c)
	}
}

// MessagesHandler accepts one activity.
func (b *BotAPI) MessagesHandler(c echo.Context) error {
	ctx := c.Request().Context()

	var activity teams.Activity
	if err := c.Bind(&activity); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed activity"})
	}
	if activity.Type == "" || activity.Conversation.ID == "" || activity.ServiceURL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "activity requires type, conversation and serviceUrl"})
	}

	// The token names the service the activity came from.
	if identity, ok := c.Get(identityKey).(*token.ExternalIdentity); ok && identity.ServiceURL != "" &&
		!sameServiceURL(identity.ServiceURL, activity.ServiceURL) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "serviceUrl does not match token"})
	}

	if err := b.handler.HandleActivity(ctx, &activity); err != nil {
		b.logger.Error(ctx, "failed to handle activity", err, log.Fields{
			"activity_id": activity.ID, "type": activity.Type, "conversation_id": activity.Conversation.ID,
		})
		var upstream *teams.UpstreamError
		if errors.As(err, &upstream) {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}

	if activity.Type == teams.ActivityTypeInvoke {
		return c.JSON(http.StatusOK, map[string]any{})
	}
	return c.NoContent(http.StatusAccepted)
}

func sameServiceURL(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "/"), strings.TrimSuffix(b, "/"))
}

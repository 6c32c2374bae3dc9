package sssogin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/teams-collab/log"
)

// JWKSHandler publishes the key that verifies session credentials.
func (a *API) JWKSHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.opts.Sessions.JWKS())
}

// ReadyHandler answers 503 while a backing store is unreachable.
func (a *API) ReadyHandler(c *gin.Context) {
	if a.opts.Ready != nil {
		if err := a.opts.Ready(c.Request.Context()); err != nil {
			a.opts.Logger.Warn(c.Request.Context(), "Readiness check failed", log.Fields{"error": err.Error()})
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "not ready"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

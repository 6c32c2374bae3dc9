package sssogin

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/interop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// BridgeHandler serves interop requests from the tab. The caller is
// resolved from the authorization-type header before the body is parsed,
// so unauthenticated requests never reach a store.
func (a *API) BridgeHandler(c *gin.Context) {
	ctx, span := otel.Tracer("api").Start(c.Request.Context(), "Bridge")
	defer span.End()

	principal, err := a.opts.Authenticator.Authenticate(c.Request)
	if err != nil {
		span.RecordError(err)
		abortWithError(c, err)
		return
	}
	setPrincipal(c, principal)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", interop.ErrInvalidRequest, err))
		return
	}

	out, err := a.opts.Router.Serve(domain.WithPrincipal(ctx, principal), principal, body)
	if err != nil {
		span.RecordError(err)
		abortWithError(c, err)
		return
	}
	span.SetAttributes(attribute.String("caller.user_key", principal.UserKey()))
	respond(c, http.StatusOK, out)
}

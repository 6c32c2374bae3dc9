package sssogin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/teams-collab/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const principalKey = "principal"

// RequireSession rejects requests without a valid session credential and
// stores the caller on the context.
func (a *API) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel.Tracer("api").Start(c.Request.Context(), "RequireSession")
		defer span.End()

		principal, err := a.opts.Authenticator.AuthenticateSession(c.Request)
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		span.SetAttributes(attribute.String("account.id", principal.AccountID))

		setPrincipal(c, principal)
		c.Request = c.Request.WithContext(domain.WithPrincipal(ctx, principal))
		c.Next()
	}
}

func setPrincipal(c *gin.Context, p *domain.Principal) {
	c.Set(principalKey, p)
}

func principalFrom(c *gin.Context) *domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*domain.Principal); ok {
			return p
		}
	}
	p, _ := domain.PrincipalFromContext(c.Request.Context())
	return p
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

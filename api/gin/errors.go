package sssogin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/interop"
	"github.com/pilab-dev/teams-collab/middleware"
	"github.com/pilab-dev/teams-collab/notes"
	"github.com/pilab-dev/teams-collab/services"
	"github.com/pilab-dev/teams-collab/storage"
	"github.com/pilab-dev/teams-collab/teams"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	// Code is "internal" for lookups that should never miss.
	Code string `json:"code,omitempty"`
}

// DataResponse wraps the result of a successful API call.
type DataResponse struct {
	Data any `json:"data"`
}

const unauthorized = "Unauthorized"

// errorStatus maps err to its HTTP status and response body.
func errorStatus(err error) (int, ErrorResponse) {
	var (
		internalErr *interop.InternalError
		upstreamErr *teams.UpstreamError
	)

	switch {
	case errors.As(err, &internalErr):
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "internal"}
	case errors.Is(err, middleware.ErrInvalidCredential):
		return http.StatusUnauthorized, ErrorResponse{Error: unauthorized}
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error()}
	case errors.Is(err, middleware.ErrMissingCredential),
		errors.Is(err, middleware.ErrUnknownAuthorizationType),
		errors.Is(err, interop.ErrInvalidRequest),
		errors.Is(err, interop.ErrUnknownType),
		errors.Is(err, interop.ErrMissingThread),
		errors.Is(err, interop.ErrUnknownAction),
		errors.Is(err, storage.ErrInvalidScope),
		errors.Is(err, storage.ErrMissingID),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrSignupCodeInvalid),
		errors.Is(err, notes.ErrEmptyText),
		errors.Is(err, notes.ErrBadColor):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, notes.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrNoteNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, storage.ErrConflict),
		errors.Is(err, domain.ErrAccountExists),
		errors.Is(err, domain.ErrIdentityAlreadyLinked):
		return http.StatusConflict, ErrorResponse{Error: err.Error()}
	case errors.As(err, &upstreamErr),
		errors.Is(err, teams.ErrOBOFailed):
		return http.StatusBadGateway, ErrorResponse{Error: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
}

// abortWithError writes the mapped error response and records err on the
// context for the request logger.
func abortWithError(c *gin.Context, err error) {
	status, body := errorStatus(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, DataResponse{Data: data})
}

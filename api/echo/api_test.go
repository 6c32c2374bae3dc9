package sssoecho

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pilab-dev/teams-collab/teams"
	"github.com/pilab-dev/teams-collab/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, raw string) (*token.ExternalIdentity, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.ExternalIdentity), args.Error(1)
}

type MockActivityHandler struct {
	mock.Mock
}

func (m *MockActivityHandler) HandleActivity(ctx context.Context, a *teams.Activity) error {
	return m.Called(ctx, a).Error(0)
}

const messageBody = `{"type":"message","id":"1","serviceUrl":"https://smba.example/amer/","channelId":"msteams",
	"from":{"id":"29:u","aadObjectId":"oid-1"},"recipient":{"id":"28:bot"},
	"conversation":{"id":"a:1","conversationType":"personal","tenantId":"tid-1"},"text":"help"}`

func setupBotAPI(t *testing.T) (*echo.Echo, *MockVerifier, *MockActivityHandler) {
	t.Helper()
	verifier := new(MockVerifier)
	handler := new(MockActivityHandler)
	e := echo.New()
	NewBotAPI(verifier, handler, nil).RegisterRoutes(e)
	return e, verifier, handler
}

func post(e *echo.Echo, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMessages_Accepted(t *testing.T) {
	e, verifier, handler := setupBotAPI(t)
	verifier.On("Verify", mock.Anything, "bot-token").Return(&token.ExternalIdentity{ServiceURL: "https://smba.example/amer"}, nil)
	handler.On("HandleActivity", mock.Anything, mock.MatchedBy(func(a *teams.Activity) bool {
		return a.Text == "help" && a.From.AADObjectID == "oid-1"
	})).Return(nil).Once()

	rec := post(e, messageBody, "Bearer bot-token")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	handler.AssertExpectations(t)
}

func TestMessages_RejectsMissingOrInvalidToken(t *testing.T) {
	e, verifier, handler := setupBotAPI(t)
	verifier.On("Verify", mock.Anything, "forged").Return(nil, token.ErrSignatureInvalid)

	assert.Equal(t, http.StatusUnauthorized, post(e, messageBody, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(e, messageBody, "Bearer forged").Code)
	handler.AssertNotCalled(t, "HandleActivity", mock.Anything, mock.Anything)
}

func TestMessages_ServiceURLMismatch(t *testing.T) {
	e, verifier, handler := setupBotAPI(t)
	verifier.On("Verify", mock.Anything, "bot-token").Return(&token.ExternalIdentity{ServiceURL: "https://evil.example/"}, nil)

	assert.Equal(t, http.StatusForbidden, post(e, messageBody, "Bearer bot-token").Code)
	handler.AssertNotCalled(t, "HandleActivity", mock.Anything, mock.Anything)
}

func TestMessages_BadActivity(t *testing.T) {
	e, verifier, _ := setupBotAPI(t)
	verifier.On("Verify", mock.Anything, "bot-token").Return(&token.ExternalIdentity{}, nil)

	assert.Equal(t, http.StatusBadRequest, post(e, `{"type":"message"}`, "Bearer bot-token").Code)
	assert.Equal(t, http.StatusBadRequest, post(e, `{"type":`, "Bearer bot-token").Code)
}

func TestMessages_HandlerErrors(t *testing.T) {
	e, verifier, handler := setupBotAPI(t)
	verifier.On("Verify", mock.Anything, "bot-token").Return(&token.ExternalIdentity{}, nil)
	handler.On("HandleActivity", mock.Anything, mock.Anything).Return(&teams.UpstreamError{Service: "connector", Status: 503}).Once()
	handler.On("HandleActivity", mock.Anything, mock.Anything).Return(errors.New("boom")).Once()

	assert.Equal(t, http.StatusBadGateway, post(e, messageBody, "Bearer bot-token").Code)
	assert.Equal(t, http.StatusInternalServerError, post(e, messageBody, "Bearer bot-token").Code)
}

func TestMessages_InvokeGetsBody(t *testing.T) {
	e, verifier, handler := setupBotAPI(t)
	verifier.On("Verify", mock.Anything, "bot-token").Return(&token.ExternalIdentity{}, nil)
	handler.On("HandleActivity", mock.Anything, mock.Anything).Return(nil)

	body := strings.Replace(messageBody, `"type":"message"`, `"type":"invoke"`, 1)
	rec := post(e, body, "Bearer bot-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

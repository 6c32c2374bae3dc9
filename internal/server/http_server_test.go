package server

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sssoecho "github.com/pilab-dev/teams-collab/api/echo"
	sssogin "github.com/pilab-dev/teams-collab/api/gin"
	"github.com/pilab-dev/teams-collab/config"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/token"
)

func testConfig() *config.ServerConfig {
	return &config.ServerConfig{HTTPPort: "0", BotPort: "0", GinMode: gin.TestMode, OtelServiceName: "test"}
}

func TestNewRouter_ServesMetricsAndHealth(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	api := sssogin.NewAPI(sssogin.Options{Sessions: token.NewSessionCodec(key, "test", time.Hour)})

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "collab_probe_total", Help: "probe"}))
	router := NewRouter(testConfig(), log.NewNopLogger(), api, reg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "collab_probe_total")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNewBotServer_RoutesMessages(t *testing.T) {
	srv := NewBotServer(testConfig(), log.NewNopLogger(), sssoecho.NewBotAPI(nil, nil, nil))
	assert.Equal(t, ":0", srv.Addr)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

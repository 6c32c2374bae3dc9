package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("BOT_ID", "bot-app-id")
	t.Setenv("AAD_CLIENT_ID", "tab-app-id")
	t.Setenv("AAD_OBO_SCOPES", "scope-a, scope-b")
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.HTTPPort)
	assert.Equal(t, "3978", cfg.BotPort)
	assert.Equal(t, "bot-app-id", cfg.BotID)
	assert.Equal(t, CodeStoreMemory, cfg.CodeStore)
	assert.Equal(t, "24h0m0s", cfg.SessionTTL.String())
	assert.Equal(t, []string{"scope-a", "scope-b"}, cfg.AADOBOScopes)
	assert.Equal(t, []string{"tab-app-id", "api://tab-app-id"}, cfg.AADAudiences)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_NormalizesBotID(t *testing.T) {
	t.Setenv("BOT_ID", "28:bot-app-id")
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "bot-app-id", cfg.BotID)
}

func TestServerConfig_Validate(t *testing.T) {
	cfg := &ServerConfig{CodeStore: CodeStoreRedis, StorageBackend: "postgres"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_ID is required")
	assert.Contains(t, err.Error(), "REDIS_ADDR is required")
	assert.Contains(t, err.Error(), `unknown STORAGE_BACKEND "postgres"`)
	assert.Contains(t, err.Error(), "SESSION_TTL must be positive")
}

func TestServerConfig_TenantTokenURL(t *testing.T) {
	cfg := &ServerConfig{AADAuthority: "https://login.microsoftonline.com/"}
	assert.Equal(t, "https://login.microsoftonline.com/tid/oauth2/v2.0/token", cfg.TenantTokenURL("tid"))
}

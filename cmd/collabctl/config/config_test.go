package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_MissingFileIsEmpty(t *testing.T) {
	CfgFile = filepath.Join(t.TempDir(), "config.yaml")
	t.Cleanup(func() { CfgFile = "" })

	require.NoError(t, InitConfig())
	assert.Empty(t, GlobalConfig.Contexts)

	_, err := GetCurrentContext()
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	CfgFile = filepath.Join(t.TempDir(), "nested", "config.yaml")
	t.Cleanup(func() { CfgFile = "" })

	require.NoError(t, InitConfig())
	GlobalConfig.Contexts["dev"] = &Context{
		Name:           "dev",
		ServerEndpoint: "https://collab.example.com/",
		SessionToken:   "jwt",
		ThreadID:       "chat1",
		ThreadType:     "chat",
	}
	GlobalConfig.CurrentContext = "dev"
	require.NoError(t, SaveConfig())

	info, err := os.Stat(CfgFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	GlobalConfig = nil
	require.NoError(t, InitConfig())

	current, err := GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "dev", current.Name)
	assert.Equal(t, "jwt", current.SessionToken)
	assert.Equal(t, "chat1", current.ThreadID)
	assert.Equal(t, "https://collab.example.com/api/bridge", current.BridgeURL())
	assert.Equal(t, "https://collab.example.com/api/auth/login", current.LoginURL())
}

func TestGetCurrentContext_Unknown(t *testing.T) {
	GlobalConfig = &CLIConfig{CurrentContext: "gone", Contexts: map[string]*Context{}}
	t.Cleanup(func() { GlobalConfig = nil })

	_, err := GetCurrentContext()
	assert.ErrorContains(t, err, "gone")
}

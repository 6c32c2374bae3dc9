// Package config stores collabctl contexts in $HOME/.collabctl/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	AppName        = "collabctl"
	ConfigFileName = "config"
	ConfigFileType = "yaml"

	// DefaultBridgePath is appended to a context's server endpoint.
	DefaultBridgePath = "/api/bridge"
	loginPath         = "/api/auth/login"
)

// Context is one bridge deployment and the credential used against it.
type Context struct {
	Name           string `mapstructure:"name" yaml:"name"`
	ServerEndpoint string `mapstructure:"server_endpoint" yaml:"server_endpoint"`
	SessionToken   string `mapstructure:"session_token" yaml:"session_token,omitempty"`
	// ThreadID and ThreadType are used when no --thread flag is given.
	ThreadID   string `mapstructure:"thread_id" yaml:"thread_id,omitempty"`
	ThreadType string `mapstructure:"thread_type" yaml:"thread_type,omitempty"`
}

// BridgeURL returns the bridge endpoint of the context.
func (c *Context) BridgeURL() string {
	return strings.TrimSuffix(c.ServerEndpoint, "/") + DefaultBridgePath
}

// LoginURL returns the password login endpoint of the context.
func (c *Context) LoginURL() string {
	return strings.TrimSuffix(c.ServerEndpoint, "/") + loginPath
}

// CLIConfig holds every context and the current selection.
type CLIConfig struct {
	CurrentContext string              `mapstructure:"current_context" yaml:"current_context"`
	Contexts       map[string]*Context `mapstructure:"contexts" yaml:"contexts"`
}

var (
	GlobalConfig *CLIConfig
	CfgFile      string

	v = viper.New()
)

// InitConfig reads CfgFile, or the default config file when it is empty.
// A missing file yields an empty configuration.
func InitConfig() error {
	v = viper.New()
	if CfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		CfgFile = filepath.Join(home, "."+AppName, ConfigFileName+"."+ConfigFileType)
	}
	v.SetConfigFile(CfgFile)
	v.SetConfigType(ConfigFileType)
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.AutomaticEnv()

	GlobalConfig = &CLIConfig{Contexts: make(map[string]*Context)}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading config file %s: %w", CfgFile, err)
		}
	}

	if err := v.Unmarshal(GlobalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if GlobalConfig.Contexts == nil {
		GlobalConfig.Contexts = make(map[string]*Context)
	}
	for name, c := range GlobalConfig.Contexts {
		if c.Name == "" {
			c.Name = name
		}
	}
	return nil
}

// SaveConfig writes GlobalConfig to CfgFile.
func SaveConfig() error {
	if GlobalConfig == nil {
		return errors.New("config not initialized")
	}
	if err := os.MkdirAll(filepath.Dir(CfgFile), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v.Set("current_context", GlobalConfig.CurrentContext)
	contexts := make(map[string]any, len(GlobalConfig.Contexts))
	for name, c := range GlobalConfig.Contexts {
		contexts[name] = map[string]any{
			"name":            c.Name,
			"server_endpoint": c.ServerEndpoint,
			"session_token":   c.SessionToken,
			"thread_id":       c.ThreadID,
			"thread_type":     c.ThreadType,
		}
	}
	v.Set("contexts", contexts)

	if err := v.WriteConfigAs(CfgFile); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", CfgFile, err)
	}
	return os.Chmod(CfgFile, 0o600)
}

// GetCurrentContext returns the selected context.
func GetCurrentContext() (*Context, error) {
	if GlobalConfig == nil {
		return nil, errors.New("config not initialized")
	}
	if GlobalConfig.CurrentContext == "" {
		return nil, fmt.Errorf("no current context set. Use '%s config set-context <name> --server <url>'", AppName)
	}
	c, ok := GlobalConfig.Contexts[GlobalConfig.CurrentContext]
	if !ok {
		return nil, fmt.Errorf("current context '%s' not found in configuration", GlobalConfig.CurrentContext)
	}
	return c, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/spf13/viper"
)

// CodeStoreBackend selects where single-use signup codes live.
type CodeStoreBackend string

const (
	CodeStoreMemory CodeStoreBackend = "memory"
	CodeStoreRedis  CodeStoreBackend = "redis"
)

// StorageBackend selects where scoped bot state lives.
type StorageBackend string

const (
	StorageMemory  StorageBackend = "memory"
	StorageMongoDB StorageBackend = "mongodb"
)

// ServerConfig holds all configuration for the server.
type ServerConfig struct {
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	BotPort         string `mapstructure:"BOT_PORT"`
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDBName     string `mapstructure:"MONGO_DB_NAME"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	GinMode         string `mapstructure:"GIN_MODE"`

	// Session credential
	SessionKeyPath string        `mapstructure:"SESSION_KEY_PATH"` // RSA private key PEM; generated when empty
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	SessionIssuer  string        `mapstructure:"SESSION_ISSUER"`
	CookieDomain   string        `mapstructure:"COOKIE_DOMAIN"`

	// Entra ID (AAD) app registration used by the tab
	AADClientID     string           `mapstructure:"AAD_CLIENT_ID"`
	AADClientSecret string           `mapstructure:"AAD_CLIENT_SECRET"`
	AADAuthority    string           `mapstructure:"AAD_AUTHORITY"`
	AADJWKSURL      string           `mapstructure:"AAD_JWKS_URL"`
	AADAudiences    []string         `mapstructure:"AAD_AUDIENCES"`
	AADOBOScopes    []string         `mapstructure:"AAD_OBO_SCOPES"`
	SignupCodeTTL   time.Duration    `mapstructure:"SIGNUP_CODE_TTL"`
	CodeStore       CodeStoreBackend `mapstructure:"CODE_STORE"`
	RedisAddr       string           `mapstructure:"REDIS_ADDR"`
	RedisPrefix     string           `mapstructure:"REDIS_PREFIX"`

	// Bot Framework registration
	BotID           string         `mapstructure:"BOT_ID"`
	BotPassword     string         `mapstructure:"BOT_PASSWORD"`
	BotJWKSURL      string         `mapstructure:"BOT_JWKS_URL"`
	BotTokenURL     string         `mapstructure:"BOT_TOKEN_URL"`
	BotChannelID    string         `mapstructure:"BOT_CHANNEL_ID"`
	BotRateLimit    float64        `mapstructure:"BOT_RATE_LIMIT"` // Connector calls per second, 0 disables
	GraphBaseURL    string         `mapstructure:"GRAPH_BASE_URL"`
	StorageBackend  StorageBackend `mapstructure:"STORAGE_BACKEND"`
	VersionCacheTTL time.Duration  `mapstructure:"VERSION_CACHE_TTL"`
	JWKSCacheTTL    time.Duration  `mapstructure:"JWKS_CACHE_TTL"`
}

// TenantTokenURL returns the Entra token endpoint for a tenant.
func (c *ServerConfig) TenantTokenURL(tenantID string) string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimSuffix(c.AADAuthority, "/"), tenantID)
}

// Validate reports settings the server cannot start without.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.BotID == "" {
		errs = append(errs, errors.New("BOT_ID is required"))
	}
	if c.AADClientID == "" {
		errs = append(errs, errors.New("AAD_CLIENT_ID is required"))
	}
	switch c.CodeStore {
	case CodeStoreMemory:
	case CodeStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when CODE_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CODE_STORE %q", c.CodeStore))
	}
	switch c.StorageBackend {
	case StorageMemory, StorageMongoDB:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "3000")
	v.SetDefault("BOT_PORT", "3978")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "teams_collab")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "teams-collab")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("SESSION_KEY_PATH", "")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_ISSUER", "teams-collab")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("AAD_CLIENT_ID", "")
	v.SetDefault("AAD_CLIENT_SECRET", "")
	v.SetDefault("AAD_AUTHORITY", "https://login.microsoftonline.com")
	v.SetDefault("AAD_JWKS_URL", "https://login.microsoftonline.com/common/discovery/v2.0/keys")
	v.SetDefault("AAD_AUDIENCES", []string{})
	v.SetDefault("AAD_OBO_SCOPES", []string{"https://graph.microsoft.com/User.Read"})
	v.SetDefault("SIGNUP_CODE_TTL", "5m")
	v.SetDefault("CODE_STORE", string(CodeStoreMemory))
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PREFIX", "teams-collab")
	v.SetDefault("BOT_ID", "")
	v.SetDefault("BOT_PASSWORD", "")
	v.SetDefault("BOT_JWKS_URL", "https://login.botframework.com/v1/.well-known/keys")
	v.SetDefault("BOT_TOKEN_URL", "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token")
	v.SetDefault("BOT_CHANNEL_ID", "msteams")
	v.SetDefault("BOT_RATE_LIMIT", 7)
	v.SetDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("STORAGE_BACKEND", string(StorageMongoDB))
	v.SetDefault("VERSION_CACHE_TTL", "1h")
	v.SetDefault("JWKS_CACHE_TTL", "24h")
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/teams-collab/")
	v.AddConfigPath("$HOME/.teams-collab")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	cfg.BotID = domain.BotAppID(cfg.BotID)

	// Comma separated lists from the environment arrive as a single element.
	cfg.AADAudiences = splitList(cfg.AADAudiences)
	cfg.AADOBOScopes = splitList(cfg.AADOBOScopes)
	if len(cfg.AADAudiences) == 0 && cfg.AADClientID != "" {
		cfg.AADAudiences = []string{cfg.AADClientID, "api://" + cfg.AADClientID}
	}

	return &cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

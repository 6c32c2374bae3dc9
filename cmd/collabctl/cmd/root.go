package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/pilab-dev/teams-collab/client"
	"github.com/pilab-dev/teams-collab/cmd/collabctl/config"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/log"
	"github.com/pilab-dev/teams-collab/middleware"
)

var appLogger log.Logger

// Global flags
var (
	verbose    bool
	threadID   string
	threadType string
	authMode   string
	entraToken string
)

var rootCmd = &cobra.Command{
	Use:          config.AppName,
	Short:        "collabctl calls the Teams collab bridge from the command line",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		appLogger = log.NewZerologAdapter(level, true)

		if err := config.InitConfig(); err != nil {
			appLogger.Error(cmd.Context(), "Failed to initialize configuration", err)
			return err
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if appLogger != nil {
			appLogger.Error(context.Background(), "CLI execution failed", err)
		} else {
			fmt.Fprintln(os.Stderr, "CLI execution failed:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests")
	rootCmd.PersistentFlags().StringVar(&threadID, "thread", "", "conversation id (overrides the context)")
	rootCmd.PersistentFlags().StringVar(&threadType, "thread-type", "", "personal, chat or channel (overrides the context)")
	rootCmd.PersistentFlags().StringVar(&authMode, "auth", "header", "credential mode: header, cookie or entra")
	rootCmd.PersistentFlags().StringVar(&entraToken, "entra-token", os.Getenv("COLLABCTL_ENTRA_TOKEN"),
		"Entra access token for --auth entra")
}

// bridgeClient builds a client for the current context and flags.
func bridgeClient() (*client.Client, error) {
	current, err := config.GetCurrentContext()
	if err != nil {
		return nil, err
	}

	thread := domain.Thread{ID: current.ThreadID, Type: domain.ThreadType(current.ThreadType)}
	if threadID != "" {
		thread.ID = threadID
	}
	if threadType != "" {
		parsed, err := domain.ParseThreadType(threadType)
		if err != nil {
			return nil, err
		}
		thread.Type = parsed
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	var auth client.Authentication
	switch authMode {
	case "header":
		if current.SessionToken == "" {
			return nil, fmt.Errorf("not logged in to context '%s'. Use '%s auth login'", current.Name, config.AppName)
		}
		auth = client.HeaderAuth{Value: current.SessionToken}
	case "cookie":
		if current.SessionToken == "" {
			return nil, fmt.Errorf("not logged in to context '%s'. Use '%s auth login'", current.Name, config.AppName)
		}
		jar, err := sessionJar(current)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
		auth = client.CookieAuth{CookieKey: middleware.SessionCookieName}
	case "entra":
		if entraToken == "" {
			return nil, fmt.Errorf("--entra-token or COLLABCTL_ENTRA_TOKEN is required for --auth entra")
		}
		auth = client.EntraAuth{
			Provider: client.TokenSourceProvider{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: entraToken}),
			},
		}
	default:
		return nil, fmt.Errorf("unknown --auth %q", authMode)
	}

	return client.New(client.Config{
		Endpoint:       current.BridgeURL(),
		ID:             config.AppName,
		Authentication: auth,
		Threads:        client.StaticThread(thread),
		HTTPClient:     httpClient,
		Logger:         appLogger,
	})
}

func sessionJar(current *config.Context) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(current.ServerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid server endpoint: %w", err)
	}
	jar.SetCookies(u, []*http.Cookie{{Name: middleware.SessionCookieName, Value: current.SessionToken, Path: "/"}})
	return jar, nil
}

// printYAML prints v as YAML. It goes through JSON so raw JSON values and
// json tags render as the bridge returns them.
func printYAML(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

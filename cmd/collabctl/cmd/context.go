package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/teams-collab/cmd/collabctl/config"
	"github.com/pilab-dev/teams-collab/domain"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage collabctl configuration and contexts",
	Aliases: []string{"cfg"},
}

var getContextsCmd = &cobra.Command{
	Use:     "get-contexts",
	Short:   "Display the configured contexts",
	Aliases: []string{"get"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(config.GlobalConfig.Contexts) == 0 {
			fmt.Println("No contexts defined.")
			return nil
		}
		redacted := make(map[string]config.Context, len(config.GlobalConfig.Contexts))
		for name, c := range config.GlobalConfig.Contexts {
			entry := *c
			if entry.SessionToken != "" {
				entry.SessionToken = "REDACTED"
			}
			redacted[name] = entry
		}
		if err := printYAML(redacted); err != nil {
			return err
		}
		if config.GlobalConfig.CurrentContext != "" {
			fmt.Printf("Current context: %s\n", config.GlobalConfig.CurrentContext)
		}
		return nil
	},
}

var useContextCmd = &cobra.Command{
	Use:     "use-context CONTEXT_NAME",
	Short:   "Set the current context",
	Aliases: []string{"use"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if _, ok := config.GlobalConfig.Contexts[name]; !ok {
			return fmt.Errorf("context '%s' not found", name)
		}
		config.GlobalConfig.CurrentContext = name
		if err := config.SaveConfig(); err != nil {
			return err
		}
		fmt.Printf("Switched to context \"%s\".\n", name)
		return nil
	},
}

var setContextCmd = &cobra.Command{
	Use:     "set-context CONTEXT_NAME",
	Short:   "Create or modify a context",
	Aliases: []string{"set"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		server, _ := cmd.Flags().GetString("server")
		thread, _ := cmd.Flags().GetString("default-thread")
		kind, _ := cmd.Flags().GetString("default-thread-type")

		entry, exists := config.GlobalConfig.Contexts[name]
		if !exists {
			if server == "" {
				return errors.New("--server flag is required for a new context")
			}
			entry = &config.Context{Name: name}
			config.GlobalConfig.Contexts[name] = entry
		}
		if server != "" {
			entry.ServerEndpoint = server
		}
		if thread != "" {
			entry.ThreadID = thread
		}
		if kind != "" {
			parsed, err := domain.ParseThreadType(kind)
			if err != nil {
				return err
			}
			entry.ThreadType = string(parsed)
		}

		if config.GlobalConfig.CurrentContext == "" {
			config.GlobalConfig.CurrentContext = name
		}
		if err := config.SaveConfig(); err != nil {
			return err
		}
		fmt.Printf("Context \"%s\" created/modified.\n", name)
		return nil
	},
}

var currentContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.GlobalConfig.CurrentContext == "" {
			fmt.Println("No current context is set.")
			return nil
		}
		fmt.Println(config.GlobalConfig.CurrentContext)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(getContextsCmd, useContextCmd, setContextCmd, currentContextCmd)

	setContextCmd.Flags().String("server", "", "base URL of the collab server")
	setContextCmd.Flags().String("default-thread", "", "conversation id used when --thread is not given")
	setContextCmd.Flags().String("default-thread-type", "", "thread type used when --thread-type is not given")
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pilab-dev/teams-collab/storage"
)

var valuesCmd = &cobra.Command{
	Use:     "values",
	Short:   "Read and write scoped values of a thread",
	Aliases: []string{"value"},
}

var valuesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the user and conversation values of the thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := bridgeClient()
		if err != nil {
			return err
		}
		values, err := c.GetValues(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get values: %w", err)
		}
		return printYAML(values)
	},
}

var valuesSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Write one value. VALUE is parsed as JSON, falling back to a string",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawScope, _ := cmd.Flags().GetString("scope")
		version, _ := cmd.Flags().GetString("version")

		scope, err := storage.ParseScope(rawScope)
		if err != nil {
			return err
		}
		c, err := bridgeClient()
		if err != nil {
			return err
		}
		if err := c.SetValue(cmd.Context(), scope, args[0], parseValue(args[1]), version); err != nil {
			return fmt.Errorf("failed to set %s: %w", args[0], err)
		}
		fmt.Printf("Value %q set in %s scope.\n", args[0], scope)
		return nil
	},
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func init() {
	rootCmd.AddCommand(valuesCmd)
	valuesCmd.AddCommand(valuesGetCmd, valuesSetCmd)

	valuesSetCmd.Flags().String("scope", string(storage.ScopeConversation), "user or conversation")
	valuesSetCmd.Flags().String("version", "", "expected current version; empty or * overwrites")
}

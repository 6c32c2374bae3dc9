package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var actionCmd = &cobra.Command{
	Use:   "action NAME",
	Short: "Invoke a registered bridge action",
	Example: `  collabctl action list-notes --data '{}'
  collabctl action create-note --data '{"text":"ship it","color":"yellow"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("--data must be valid JSON")
		}

		c, err := bridgeClient()
		if err != nil {
			return err
		}
		var out any
		if err := c.InvokeAction(cmd.Context(), args[0], json.RawMessage(data), &out); err != nil {
			return fmt.Errorf("action %s failed: %w", args[0], err)
		}
		return printYAML(out)
	},
}

func init() {
	rootCmd.AddCommand(actionCmd)
	actionCmd.Flags().String("data", "{}", "custom data passed to the action, as JSON")
}

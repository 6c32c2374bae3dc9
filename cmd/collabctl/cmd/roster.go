package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Read the membership of a thread",
}

var rosterPagedCmd = &cobra.Command{
	Use:   "paged",
	Short: "Read one page of members as the bot sees them",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("continuation-token")
		size, _ := cmd.Flags().GetInt("page-size")

		c, err := bridgeClient()
		if err != nil {
			return err
		}
		roster, err := c.GetPagedRoster(cmd.Context(), token, size)
		if err != nil {
			return fmt.Errorf("failed to get roster: %w", err)
		}
		return printYAML(roster)
	},
}

var rosterGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Read members from Microsoft Graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := bridgeClient()
		if err != nil {
			return err
		}
		roster, err := c.GetGraphRoster(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get graph roster: %w", err)
		}
		return printYAML(roster)
	},
}

var rosterPermissionsCmd = &cobra.Command{
	Use:     "permissions",
	Short:   "List resource-specific consent granted to the app in the thread",
	Aliases: []string{"rsc"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := bridgeClient()
		if err != nil {
			return err
		}
		grants, err := c.GetRSCPermissions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get permissions: %w", err)
		}
		if len(grants) == 0 {
			fmt.Println("No permission grants found.")
			return nil
		}
		return printYAML(grants)
	},
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterPagedCmd, rosterGraphCmd, rosterPermissionsCmd)

	rosterPagedCmd.Flags().String("continuation-token", "", "token from the previous page")
	rosterPagedCmd.Flags().Int("page-size", 0, "members per page (server default when 0)")
}

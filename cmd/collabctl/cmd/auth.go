package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pilab-dev/teams-collab/client"
	"github.com/pilab-dev/teams-collab/cmd/collabctl/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the session credential of the current context",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password and save the session credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := config.GetCurrentContext()
		if err != nil {
			return err
		}

		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			fmt.Print("Enter email: ")
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			email = strings.TrimSpace(line)
		}

		fmt.Print("Enter password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		session, err := client.Login(cmd.Context(), nil, current.LoginURL(), email, string(password))
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		current.SessionToken = session.Token
		if err := config.SaveConfig(); err != nil {
			return fmt.Errorf("failed to save session to config: %w", err)
		}

		fmt.Printf("Login successful. Session saved for context '%s'.\n", current.Name)
		if session.Account != nil {
			fmt.Printf("Logged in as: %s (ID: %s)\n", session.Account.Email, session.Account.ID)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session credential of the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := config.GetCurrentContext()
		if err != nil {
			return err
		}
		if current.SessionToken == "" {
			fmt.Println("Not logged in.")
			return nil
		}
		current.SessionToken = ""
		if err := config.SaveConfig(); err != nil {
			return fmt.Errorf("failed to clear session from config: %w", err)
		}
		fmt.Printf("Logged out of context '%s'.\n", current.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd)
	loginCmd.Flags().String("email", "", "account email (prompted when empty)")
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/allisson/go-env"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/menu"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	username string
	password string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the platform",
	Long: `Signs in with a database-backed account and stores the session tokens in the
credentials file. Set CREDENTIALS_PASSPHRASE to seal the file.

The password is read from --password, then SUPERSET_PASSWORD, then prompted for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if username == "" {
			username = env.GetString("SUPERSET_USERNAME", "")
		}
		if username == "" {
			return fmt.Errorf("--username is required")
		}
		if password == "" {
			password = env.GetString("SUPERSET_PASSWORD", "")
		}
		if password == "" {
			var err error
			password, err = pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}

		identity, err := app.Login(cmd.Context(), username, password)
		switch {
		case errors.Is(err, errors.ErrInvalidCredentials):
			return fmt.Errorf("invalid username or password")
		case errors.Is(err, errors.ErrUnreachable):
			return fmt.Errorf("platform unreachable: %w", err)
		case err != nil:
			return err
		}

		pterm.Success.Printf("Logged in as %s (%s)\n", identity.DisplayName, identity.Username)
		pterm.Info.Printf("Tier: %s\n", app.Tier())
		keys := menu.Keys(app.Menu())
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = string(k)
		}
		pterm.Info.Printf("Menu: %s\n", strings.Join(names, ", "))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "Account name (defaults to SUPERSET_USERNAME)")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
}

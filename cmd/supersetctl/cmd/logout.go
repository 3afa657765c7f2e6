package cmd

import (
	"fmt"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := app.Restore(cmd.Context()); err != nil && !errors.Is(err, errors.ErrUnauthenticated) {
			pterm.Warning.Printf("Stored session unusable: %v\n", err)
		}
		if err := app.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
		pterm.Success.Println("Logged out")
		return nil
	},
}

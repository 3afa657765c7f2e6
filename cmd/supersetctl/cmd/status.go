package cmd

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		pterm.DefaultSection.Println("Platform")
		if err := app.Catalog.Health(cmd.Context()); err != nil {
			pterm.Error.Printf("%s is not healthy: %v\n", app.Tokens.BaseURL(), err)
		} else {
			pterm.Success.Printf("%s is up\n", app.Tokens.BaseURL())
		}

		identity, err := app.Restore(cmd.Context())
		if errors.Is(err, errors.ErrUnauthenticated) {
			pterm.Warning.Println("Not logged in")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to restore session: %w", err)
		}

		pterm.DefaultSection.Println("Session")
		roles := make([]string, len(identity.Roles))
		for i, r := range identity.Roles {
			roles[i] = string(r)
		}
		layout := app.Layout()
		table := pterm.TableData{
			{"USER", identity.Username},
			{"NAME", identity.DisplayName},
			{"EMAIL", identity.Email},
			{"ROLES", strings.Join(roles, ", ")},
			{"TIER", app.Tier().String()},
			{"CAPABILITIES", strings.Join(app.Capabilities().Strings(), ", ")},
			{"CHARTS PER ROW", fmt.Sprint(layout.ChartsPerRow)},
		}
		if exp := app.Session.Snapshot().Credential.ExpiresAt; !exp.IsZero() {
			table = append(table, []string{"TOKEN EXPIRES", exp.Local().Format("15:04:05 MST")})
		}
		_ = pterm.DefaultTable.WithData(table).Render()

		pterm.DefaultSection.Println("Menu")
		items := app.Menu()
		if len(items) == 0 {
			pterm.Warning.Println("No menu entries for this account")
			return nil
		}
		menuTable := pterm.TableData{{"KEY", "PATH", "ICON"}}
		for _, item := range items {
			menuTable = append(menuTable, []string{string(item.Key), item.Path, item.Icon})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(menuTable).Render()
		return nil
	},
}

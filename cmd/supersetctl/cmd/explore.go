package cmd

import (
	"fmt"
	"strconv"

	"github.com/jrsteele09/go-superset-kernel/discovery"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/internal/utils"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List connected databases",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := restore(cmd); err != nil {
			return err
		}
		dbs, err := app.Catalog.Databases(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list databases: %w", err)
		}
		table := pterm.TableData{{"ID", "NAME", "BACKEND"}}
		for _, db := range dbs {
			table = append(table, []string{strconv.Itoa(db.ID), db.Name, db.Backend})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}

var schemasCmd = &cobra.Command{
	Use:   "schemas <database-id>",
	Short: "List the schemas of a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid database id %q", args[0])
		}
		if err := restore(cmd); err != nil {
			return err
		}
		schemas, err := app.Discovery.Schemas(cmd.Context(), id)
		if err != nil {
			return discoveryError(err)
		}
		if len(schemas) == 0 {
			pterm.Warning.Println("No schemas")
			return nil
		}
		table := pterm.TableData{{"SCHEMA"}}
		for _, s := range schemas {
			table = append(table, []string{s.Name})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables <database-id> <schema>",
	Short: "List the tables and views of a schema",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid database id %q", args[0])
		}
		if err := restore(cmd); err != nil {
			return err
		}
		tables, err := app.Discovery.Tables(cmd.Context(), id, args[1])
		if err != nil {
			return discoveryError(err)
		}
		if len(tables) == 0 {
			pterm.Warning.Printf("Schema %s has no tables\n", args[1])
			return nil
		}
		table := pterm.TableData{{"NAME", "TYPE", "ROWS", "COMMENT"}}
		for _, t := range tables {
			table = append(table, tableRow(t))
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}

func tableRow(t discovery.Table) []string {
	rows := "-"
	if t.RowCount != nil {
		rows = strconv.FormatInt(*t.RowCount, 10)
	}
	return []string{t.Name, t.Type, rows, utils.Value(t.Comment)}
}

func discoveryError(err error) error {
	switch {
	case errors.Is(err, errors.ErrForbidden):
		return fmt.Errorf("this account may not browse that database")
	case errors.Is(err, errors.ErrDiscoveryExhausted):
		return fmt.Errorf("the platform offered no way to list it: %w", err)
	default:
		return err
	}
}

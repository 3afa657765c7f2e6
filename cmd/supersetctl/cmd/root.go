package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jrsteele09/go-superset-kernel/credentials"
	"github.com/jrsteele09/go-superset-kernel/credentials/filestore"
	"github.com/jrsteele09/go-superset-kernel/internal/config"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/internal/logging"
	"github.com/jrsteele09/go-superset-kernel/kernel"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	dataDir   string
	verbose   bool

	app *kernel.Kernel
)

// cliConfig lets flags override the environment.
type cliConfig struct {
	config.Config
}

func (c cliConfig) GetBaseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	return c.Config.GetBaseURL()
}

func (c cliConfig) GetDataFolder() string {
	if dataDir != "" {
		return dataDir
	}
	return c.Config.GetDataFolder()
}

func (c cliConfig) GetLogLevel() string {
	if verbose {
		return "debug"
	}
	return c.Config.GetLogLevel()
}

var rootCmd = &cobra.Command{
	Use:   "supersetctl",
	Short: "Superset session kernel CLI",
	Long: `supersetctl signs in to a Superset-compatible analytics platform, keeps the
session in a local credentials file and explores databases, schemas and tables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := cliConfig{Config: config.New()}

		repo, err := filestore.NewInDir(cfg.GetDataFolder(), filestore.WithPassphrase(cfg.GetCredentialsPassphrase()))
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		app, err = kernel.New(cfg, credentials.NewStore(repo), kernel.WithLogger(logging.New(cfg.GetEnv(), cfg.GetLogLevel())))
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Platform URL (defaults to SUPERSET_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding the credentials file (defaults to FOLDER)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every platform call")
	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, databasesCmd, schemasCmd, tablesCmd)
}

// restore resumes the stored session for commands that need one.
func restore(cmd *cobra.Command) error {
	if _, err := app.Restore(cmd.Context()); err != nil {
		if errors.Is(err, errors.ErrUnauthenticated) {
			return fmt.Errorf("not logged in, run supersetctl login first")
		}
		return fmt.Errorf("failed to restore session: %w", err)
	}
	return nil
}

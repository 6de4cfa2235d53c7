// Package cli implements the tablesplit command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/config"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/logging"
)

// app is the state shared by all subcommands, filled in by the root command's
// PersistentPreRunE.
type app struct {
	configPath string
	envFile    string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "tablesplit",
		Short:         "Split restaurant orders into separate bills",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(a.envFile); err != nil {
				return err
			}

			a.cfg = config.LoadOrEnv_WithPath(a.configPath)
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			loggingCfg := a.cfg.Observability.Logging
			if a.verbose {
				loggingCfg.Level = "debug"
			}
			a.logger = logging.NewLoggerTo(cmd.ErrOrStderr(), loggingCfg)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to config file (falls back to environment)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before config")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(serveCmd(a), migrateCmd(a), previewCmd(a))
	return root
}

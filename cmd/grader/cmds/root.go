package cmds

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-appgrader/internal/config"
	"github.com/noah-isme/gema-appgrader/internal/database"
	"github.com/noah-isme/gema-appgrader/internal/repository"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/internal/utils"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "grader",
	Short:         "Issue tasks to students and evaluate what they submit",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI until ctx is cancelled or the selected command returns.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// environment holds what every sweep needs: configuration, a logger and the store.
type environment struct {
	cfg    config.Config
	logger zerolog.Logger
	store  repository.Store
	close  func()
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Str("service", "grader").Logger()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	return &environment{
		cfg:    cfg,
		logger: logger,
		store:  repository.NewStore(db),
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

func (e *environment) formService() service.FormService {
	return service.NewFormService(e.store.Forms, utils.NewValidator(), e.logger)
}

func printSummary(cmd *cobra.Command, sweep string, summary service.SweepSummary) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: processed=%d skipped=%d errors=%d\n",
		sweep, summary.Processed, summary.Skipped, summary.Errors)
}

// Command syncd polls the source catalog for changes and keeps the
// search index caught up.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sammeown/postgres-to-search-sync/internal/config"
	"github.com/sammeown/postgres-to-search-sync/internal/logging"
	"github.com/sammeown/postgres-to-search-sync/internal/orchestrator"
	"github.com/sammeown/postgres-to-search-sync/internal/retry"
	"github.com/sammeown/postgres-to-search-sync/internal/searchload"
	"github.com/sammeown/postgres-to-search-sync/internal/statestore"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "syncd",
	Short:         "Sync a normalized catalog into a search index",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync loop until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to the JSON config file")
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("syncd exit")
		os.Exit(1)
	}
}

func runSync(ctx context.Context) error {
	logger := logging.New("syncd")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("config load")
		return err
	}

	connectBackoff := retry.New("postgres-connect", retry.Policy{
		Start:   cfg.PostgresDB.MinDelay(),
		Ceiling: cfg.PostgresDB.MaxDelay(),
		Budget:  cfg.PostgresDB.Budget(),
	}, isTransientConnErr, logger)

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		logger.Error().Err(err).Msg("postgres open")
		return err
	}
	defer func() { _ = db.Close() }()

	if err := connectBackoff.Do(ctx, db.PingContext); err != nil {
		logger.Error().Err(err).Msg("postgres ping")
		return err
	}

	searchBackoff := retry.New("search-bulk-load", retry.Policy{
		Start:   cfg.ESDB.MinDelay(),
		Ceiling: cfg.ESDB.MaxDelay(),
		Budget:  cfg.ESDB.Budget(),
	}, searchload.IsTransientBulkErr, logger)

	loader := searchload.New(cfg.SearchBaseURL(), cfg.IndexName(), searchBackoff)
	state := statestore.New(cfg.StateFilePath)

	o := orchestrator.New(db, state, loader, orchestrator.Config{
		BatchSize:    cfg.BatchSize,
		SyncInterval: cfg.SyncIntervalDuration(),
	}, connectBackoff, logger)

	err = o.Run(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// isTransientConnErr treats every connection error as retriable; the
// backoff budget, not error classification, bounds how long syncd
// keeps trying before giving up on the source database.
func isTransientConnErr(error) bool { return true }

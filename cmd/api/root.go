package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"epicollect/api/internal/config"
	"epicollect/api/internal/logging"
	"epicollect/api/internal/store"
)

type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "epicollect-api",
		Short:         "EpiCollect upload server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML); overrides EPICOLLECT_CONFIG")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newImportStructureCommand(opts))
	cmd.AddCommand(newGrantRoleCommand(opts))
	cmd.AddCommand(newIssueTokenCommand(opts))
	return cmd
}

// env is what every command needs: configuration, a logger and, when asked
// for, an open database.
type env struct {
	cfg   config.Config
	log   *logging.SlogLogger
	store *store.PostgresStore
	close func()
}

func setup(ctx context.Context, opts *rootOptions, withDB bool) (*env, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: logging.New(os.Stdout, cfg.LogLevel), close: func() {}}
	if !withDB {
		return e, nil
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	e.store = store.NewPostgresStore(db)
	e.close = func() { _ = db.Close() }
	return e, nil
}

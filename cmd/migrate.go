package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"smtpvoid/logging"
	"smtpvoid/storage"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the mail and rcpt tables if they don't exist",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	migrator, ok := store.(storage.Migrator)
	if !ok {
		return fmt.Errorf("%T has no schema to migrate", store)
	}
	if err := migrator.Migrate(cmd.Context()); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	return err
}

// openStore opens the configured backend for a one-shot subcommand. Logs go
// to stderr so they don't mix with command output.
func openStore(cmd *cobra.Command) (storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWriterLogger(cmd.ErrOrStderr(), &cfg.LogConfig)

	opts := cfg.Database
	// the subcommand decides whether to migrate
	opts.AutoMigrate = false
	return storage.Open(cmd.Context(), opts, logger)
}

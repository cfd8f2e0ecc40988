// Package cmd contains the CLI wiring for the smtpvoid application.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smtpvoid/logging"
	"smtpvoid/server"
	"smtpvoid/smtp"
	"smtpvoid/storage"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smtpvoid",
		Short:         "smtpvoid SMTP sink",
		Long:          "smtpvoid accepts mail over SMTP and stores every message in a database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}
	registerFlags(root)
	root.AddCommand(newMigrateCmd(), newShowCmd())
	return root
}

// registerFlags registers persistent flags shared by every subcommand.
func registerFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "Configuration file path")
	pf.StringP("bind", "b", server.DefaultBindAddress, "Address to accept SMTP connections on")
	pf.String("domain", smtp.DefaultDomain, "Domain announced in the greeting and EHLO reply")
	pf.Int("max-message-size", smtp.DefaultMaxMessageSize, "Message size advertised in the EHLO reply")

	pf.StringP("database-url", "d", "", "Datastore URL (mysql://, postgres://, maildir://, memory://) or MySQL DSN")
	pf.String("mysql", "", "Alias of --database-url")
	pf.String("database-driver", "", "Datastore driver; inferred from the URL when empty")
	pf.Bool("auto-migrate", false, "Create the schema at startup if it is missing")

	pf.String("metrics-address", "", "Serve Prometheus metrics on this address")
	pf.Duration("idle-timeout", 0, "Close sessions idle for this long (0 disables)")
	pf.Bool("case-insensitive-commands", false, "Accept command verbs in any case")
	pf.Bool("report-storage-errors", false, "Reply 451 instead of 250 when storing a message fails")

	pf.String("log-level", logging.InfoLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-format", "json", "Log format (json, text)")
	pf.String("log-output", "stdout", "Log output (stdout, syslog, tcp, udp)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(&cfg.LogConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close datastore", err)
		}
	}()

	srv := server.NewServer(cfg, store, logger)
	errCh := make(chan error, 2)

	var metrics *server.MetricsServer
	if cfg.MetricsAddress != "" {
		metrics = server.NewMetricsServer(cfg.MetricsAddress, logger)
		go func() { errCh <- metrics.ListenAndServe() }()
	}
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	logger.Info("smtpvoid started",
		logging.F("version", cmd.Root().Version),
		logging.F("bind", cfg.Bind),
		logging.F("domain", cfg.Domain),
		logging.F("metrics_address", cfg.MetricsAddress),
		logging.F("log_level", cfg.LogConfig.Level))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
	if metrics != nil {
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics endpoint shutdown failed", err)
		}
	}
	return runErr
}

// Execute sets the version and runs the root command.
func Execute(version string) error {
	root := newRootCmd()
	root.Version = version
	return root.Execute()
}

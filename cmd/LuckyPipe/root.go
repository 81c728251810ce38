package main

import (
	"github.com/spf13/cobra"
)

// app carries the resolved configuration into subcommands.
type app struct {
	cfg Config

	stateDir  string
	dbDSN     string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "LuckyPipe",
		Short: "Lucky draw entry flow for chat assistants",
		Long: `LuckyPipe runs the lucky draw entry conversation: it collects a receipt and
contact details from a chat session and records a classified entry in the ledger.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.stateDir, "state-dir", "", "state directory for LuckyPipe data (overrides $LUCKYPIPE_STATE_DIR)")
	pf.StringVar(&a.dbDSN, "db-dsn", "", "SQLite path or PostgreSQL DSN (overrides $DATABASE_URL)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text, json (overrides $LOG_FORMAT)")

	root.AddCommand(a.serveCmd())
	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.entriesCmd())
	return root
}

// initConfig resolves .env, environment and flags, in increasing precedence.
func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadEnvironmentConfig()
	if err != nil {
		return err
	}
	if a.stateDir != "" {
		cfg.StateDir = a.stateDir
	}
	if a.dbDSN != "" {
		cfg.DatabaseURL = a.dbDSN
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	a.cfg = cfg
	return setupLogging(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
}

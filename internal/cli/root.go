// Package cli implements the chronicle command-line interface: schema
// management, entity type seeding, SCD2 writes, and the temporal read
// commands (snapshot, diff, history, audit).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpattn/chronicle/internal/config"
	"github.com/rpattn/chronicle/internal/db"
	"github.com/rpattn/chronicle/internal/logging"
)

// app carries the shared state commands need: loaded configuration, the
// logger, and a database connection opened on first use.
type app struct {
	configPath string
	actor      string

	config config.Config
	logger *logging.Logger
	conn   *db.Connection
}

// NewRootCmd creates the top-level "chronicle" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "chronicle",
		Short: "Temporal record store for entities and details",
		Long: "Chronicle keeps full SCD2 version history for entities and their\n" +
			"key/value details, and answers as-of and interval-diff questions\n" +
			"about past state.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.config = cfg
			logger, err := logging.New(cfg.LogMode)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.logger = logger
			if a.actor == "" {
				a.actor = cfg.DefaultActor
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.conn != nil {
				a.conn.Close()
			}
			if a.logger != nil {
				a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config-dir", "", "directory containing config.yaml (default: .)")
	root.PersistentFlags().StringVar(&a.actor, "actor", "", "actor recorded in the audit trail (default from config)")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newSeedTypesCmd(a))
	root.AddCommand(newTypesCmd(a))
	root.AddCommand(newEntityCmd(a))
	root.AddCommand(newDetailCmd(a))
	root.AddCommand(newSnapshotCmd(a))
	root.AddCommand(newDiffCmd(a))
	root.AddCommand(newAuditCmd(a))

	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// connect opens the database connection once per invocation.
func (a *app) connect(ctx context.Context) (*db.Connection, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	conn, err := db.NewConnection(ctx, a.config.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.conn = conn
	return conn, nil
}

// printJSON writes the command result to stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// parseInstant accepts an RFC 3339 timestamp or a bare date, which is read
// as midnight UTC of that day.
func parseInstant(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: want RFC 3339 or YYYY-MM-DD", raw)
}

// parseOptionalInstant maps an empty flag to nil, meaning "now".
func parseOptionalInstant(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := parseInstant(raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

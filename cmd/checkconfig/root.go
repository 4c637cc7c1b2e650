package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kneutral-org/checkconfig/internal/config"
	"github.com/kneutral-org/checkconfig/internal/logging"
	"github.com/kneutral-org/checkconfig/internal/snapshot"
)

const serviceName = "checkconfig"

// rootOptions holds the persistent flags shared by all subcommands.
type rootOptions struct {
	snapshotPath string
	logLevel     string
	logFormat    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "checkconfig",
		Short: "Resolve the configured services of monitored hosts",
		Long: `checkconfig computes the check table of a host or cluster: the services
that will be monitored, each with its ordered parameter layers.

Hosts, clusters, plugins, time periods, rulesets and autochecks are read from a
YAML snapshot. Autochecks can alternatively be read from Redis or PostgreSQL.

Settings come from CHECKCONFIG_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.snapshotPath, "snapshot", "s", "", "snapshot file (overrides CHECKCONFIG_SNAPSHOT_PATH)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides CHECKCONFIG_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: json, pretty (overrides CHECKCONFIG_LOG_FORMAT)")

	cmd.AddCommand(
		newResolveCmd(opts),
		newValidateCmd(opts),
		newExplainCmd(opts),
		newWatchCmd(opts),
	)

	return cmd
}

// env bundles what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger zerolog.Logger
	out    io.Writer
}

func (o *rootOptions) setup(cmd *cobra.Command) (*env, error) {
	cfg := config.Load()
	if o.snapshotPath != "" {
		cfg.SnapshotPath = o.snapshotPath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLoggerWithWriter(cmd.ErrOrStderr(), serviceName, cfg.LogLevel)
	if cfg.LogFormat == "pretty" {
		logger = logging.NewPrettyLogger(serviceName, cfg.LogLevel)
	}

	return &env{cfg: cfg, logger: logger, out: cmd.OutOrStdout()}, nil
}

func (e *env) loadSnapshot() (*snapshot.Snapshot, error) {
	snap, err := snapshot.Load(e.cfg.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	e.logger.Debug().
		Str("path", snap.Path).
		Int("hosts", snap.Directory.Len()).
		Msg("snapshot loaded")
	return snap, nil
}

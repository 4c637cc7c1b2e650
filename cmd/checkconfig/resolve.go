package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kneutral-org/checkconfig/internal/checktable"
	"github.com/kneutral-org/checkconfig/internal/metrics"
	"github.com/kneutral-org/checkconfig/internal/service"
)

type resolveOptions struct {
	host   string
	filter string
	at     string
	all    bool
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the check table of a host or of all hosts",
		Long: `Resolve the check table of a host or cluster and print it as JSON.

Each service lists its parameter layers and the effective parameters at the
given time (default: now), evaluated against the snapshot's time periods.

Examples:
  # Services of a single node, hiding clustered ones
  checkconfig resolve --host node1

  # Include the services the node runs on behalf of its clusters
  checkconfig resolve --host node1 --filter include-clustered

  # Every host, effective parameters on a Sunday night
  checkconfig resolve --all --at 2026-10-18T23:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd)
			if err != nil {
				return err
			}
			return runResolve(cmd.Context(), e, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "host or cluster to resolve")
	cmd.Flags().StringVar(&opts.filter, "filter", string(checktable.FilterExcludeClustered), "filter mode: exclude-clustered, include-clustered")
	cmd.Flags().StringVar(&opts.at, "at", "", "evaluate time-specific parameters at this RFC3339 time")
	cmd.Flags().BoolVar(&opts.all, "all", false, "resolve every host and cluster")

	return cmd
}

func runResolve(ctx context.Context, e *env, opts *resolveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.host == "" && !opts.all {
		return errors.New("either --host or --all is required")
	}
	if opts.host != "" && opts.all {
		return errors.New("--host and --all are mutually exclusive")
	}

	mode, err := checktable.ParseFilterMode(opts.filter)
	if err != nil {
		return err
	}
	at, err := parseAt(opts.at)
	if err != nil {
		return err
	}

	snap, err := e.loadSnapshot()
	if err != nil {
		return err
	}
	store, release, err := e.openAutochecks(ctx)
	if err != nil {
		return err
	}
	defer release()

	r := e.resolver(snap, store)
	isActive := snap.TimePeriods.ActiveFunc(at)

	if !opts.all {
		table, err := r.Resolve(ctx, opts.host, mode)
		if err != nil {
			return err
		}
		return writeJSON(e.out, table.Render(isActive))
	}

	batch, err := r.ResolveAll(ctx, snap.HostNames(), mode)
	if err != nil {
		return err
	}
	rendered := make(map[string][]service.Rendered, len(batch.Tables))
	for name, table := range batch.Tables {
		rendered[name] = table.Render(isActive)
	}
	if e.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(e.cfg.MetricsTextfile); err != nil {
			return err
		}
	}
	return writeJSON(e.out, rendered)
}

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", s, err)
	}
	return t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

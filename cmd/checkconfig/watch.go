package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/kneutral-org/checkconfig/internal/autochecks"
	"github.com/kneutral-org/checkconfig/internal/checktable"
	"github.com/kneutral-org/checkconfig/internal/lease"
	"github.com/kneutral-org/checkconfig/internal/logging"
	"github.com/kneutral-org/checkconfig/internal/metrics"
	"github.com/kneutral-org/checkconfig/internal/snapshot"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-resolve all hosts whenever the snapshot changes",
		Long: `Keep the snapshot loaded and reload it when the file changes. After every
successful reload all hosts are resolved again and, if CHECKCONFIG_METRICS_TEXTFILE
is set, metrics are written there for the node exporter textfile collector.

A snapshot that fails to load is logged and the previous one stays in use.

With CHECKCONFIG_LEASE_KEY set, replicas compete for a Redis lease and only the
holder resolves and writes metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.setup(cmd)
			if err != nil {
				return err
			}
			mode, err := checktable.ParseFilterMode(filter)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, e, mode)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", string(checktable.FilterExcludeClustered), "filter mode used for every resolution")

	return cmd
}

func runWatch(ctx context.Context, e *env, mode checktable.FilterMode) error {
	initial, err := e.loadSnapshot()
	if err != nil {
		return err
	}
	store, release, err := e.openAutochecks(ctx)
	if err != nil {
		return err
	}
	defer release()

	holder := snapshot.NewHolder(initial)
	metrics.SetSnapshotHosts(float64(initial.Directory.Len()))

	publishing, stopPublisher, err := e.startPublisher(ctx, func() {
		resolveSnapshot(ctx, e, holder.Load(), store, mode, "initial")
	})
	if err != nil {
		return err
	}
	defer stopPublisher()

	resolveAll := func(ctx context.Context, runID string, snap *snapshot.Snapshot) {
		if !publishing() {
			e.logger.Debug().Str("reloadId", runID).Msg("not holding publisher lease, skipping resolution")
			return
		}
		resolveSnapshot(ctx, e, snap, store, mode, runID)
	}

	cfg := snapshot.DefaultWatcherConfig(e.cfg.SnapshotPath)
	cfg.Debounce = e.cfg.WatchDebounce
	w := snapshot.NewWatcher(cfg, holder, e.logger, resolveAll)

	return w.Watch(ctx)
}

// startPublisher joins the publisher election when a lease key is configured.
// onActive runs each time this instance becomes the publisher. The returned
// func reports whether it currently is. Without a lease key the instance
// publishes unconditionally and onActive runs once before returning.
func (e *env) startPublisher(ctx context.Context, onActive func()) (func() bool, func(), error) {
	if e.cfg.LeaseKey == "" {
		onActive()
		return func() bool { return true }, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: e.cfg.RedisAddr,
		DB:   e.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s for lease: %w", e.cfg.RedisAddr, err)
	}

	l := lease.NewRedisLease(client, e.cfg.LeaseKey, e.cfg.LeaseTTL)
	p := lease.NewPublisher(l, e.logger,
		lease.WithRenewInterval(e.cfg.LeaseTTL/3),
		lease.WithOnActive(onActive),
	)
	p.Start(ctx)
	e.logger.Info().
		Str("key", e.cfg.LeaseKey).
		Str("owner", l.Owner()).
		Dur("ttl", e.cfg.LeaseTTL).
		Msg("joined publisher election")

	stop := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Stop(releaseCtx)
		_ = client.Close()
	}
	return p.Active, stop, nil
}

func resolveSnapshot(ctx context.Context, e *env, snap *snapshot.Snapshot, store autochecks.Store, mode checktable.FilterMode, reloadID string) {
	logger := logging.RunLogger(e.logger, reloadID)

	batch, err := e.resolver(snap, store).ResolveAll(ctx, snap.HostNames(), mode)
	if err != nil {
		logger.Error().Err(err).Msg("resolving snapshot failed")
		return
	}

	services := 0
	for _, table := range batch.Tables {
		services += len(table)
	}
	logger.Info().
		Str("batchRunId", batch.RunID).
		Int("hosts", len(batch.Tables)).
		Int("services", services).
		Msg("snapshot resolved")

	if e.cfg.MetricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(e.cfg.MetricsTextfile); err != nil {
		logger.Error().Err(err).Str("path", e.cfg.MetricsTextfile).Msg("writing metrics textfile failed")
	}
}

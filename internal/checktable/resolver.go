package checktable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kneutral-org/checkconfig/internal/autochecks"
	"github.com/kneutral-org/checkconfig/internal/host"
	"github.com/kneutral-org/checkconfig/internal/logging"
	"github.com/kneutral-org/checkconfig/internal/metrics"
	"github.com/kneutral-org/checkconfig/internal/plugin"
	"github.com/kneutral-org/checkconfig/internal/ruleset"
	"github.com/kneutral-org/checkconfig/internal/service"
)

// Names of the rulesets the resolver consults.
const (
	RulesetStaticChecks             = "static_checks"
	RulesetClusteredServices        = "clustered_services"
	RulesetClusteredServicesMapping = "clustered_services_mapping"
	RulesetIgnoredServices          = "ignored_services"

	checkgroupPrefix = "checkgroup_parameters:"
)

// CheckgroupRuleset returns the name of a checkgroup's parameter ruleset.
func CheckgroupRuleset(group string) string {
	return checkgroupPrefix + group
}

// RuleSource provides rulesets by name.
type RuleSource interface {
	Ruleset(name string) (ruleset.Ruleset, bool)
}

// ResolverConfig holds configuration for the check table resolver.
type ResolverConfig struct {
	// Workers bounds concurrent resolutions in ResolveAll
	Workers int
	// AutochecksBackend labels autochecks query metrics
	AutochecksBackend string
	// Logger for the resolver
	Logger zerolog.Logger
}

// DefaultResolverConfig returns the default resolver configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Workers:           4,
		AutochecksBackend: "memory",
		Logger:            zerolog.Nop(),
	}
}

// Resolver computes check tables. It holds no per-request state and is safe
// for concurrent use.
type Resolver struct {
	directory  host.Directory
	autochecks autochecks.Store
	rules      RuleSource
	plugins    plugin.Catalog
	evaluator  *ruleset.Evaluator
	config     ResolverConfig
	logger     zerolog.Logger
}

// NewResolver creates a new check table resolver.
func NewResolver(
	directory host.Directory,
	store autochecks.Store,
	rules RuleSource,
	plugins plugin.Catalog,
	config ResolverConfig,
) *Resolver {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Resolver{
		directory:  directory,
		autochecks: store,
		rules:      rules,
		plugins:    plugins,
		evaluator:  ruleset.NewEvaluator(),
		config:     config,
		logger:     config.Logger,
	}
}

// Evaluator returns the resolver's ruleset evaluator.
func (r *Resolver) Evaluator() *ruleset.Evaluator {
	return r.evaluator
}

// Resolve computes the check table of a host or cluster. An unknown host is
// an error wrapping host.ErrHostNotFound. Any collaborator error fails the
// whole resolution.
func (r *Resolver) Resolve(ctx context.Context, hostName string, mode FilterMode) (service.Table, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilterMode, mode)
	}

	start := time.Now()
	logger := logging.HostLogger(r.logger, hostName, mode.String())

	p := newPass(ctx, r, logger)
	table, err := p.resolve(hostName, mode)

	latency := time.Since(start)
	logging.LogResolution(logger, hostName, len(table), latency, err)

	if err != nil {
		metrics.RecordResolution(mode.String(), "error", latency.Seconds())
		return nil, err
	}

	metrics.RecordResolution(mode.String(), "success", latency.Seconds())
	for _, svc := range table {
		if svc.IsEnforced {
			metrics.RecordServiceResolved("enforced")
		} else {
			metrics.RecordServiceResolved("discovered")
		}
	}

	return table, nil
}

// BatchResult holds the outcome of ResolveAll.
type BatchResult struct {
	RunID  string
	Tables map[string]service.Table
}

// ResolveAll resolves many hosts concurrently with at most Workers
// resolutions in flight. The first error cancels the batch.
func (r *Resolver) ResolveAll(ctx context.Context, hostNames []string, mode FilterMode) (*BatchResult, error) {
	result := &BatchResult{
		RunID:  uuid.New().String(),
		Tables: make(map[string]service.Table, len(hostNames)),
	}
	logger := logging.RunLogger(r.logger, result.RunID)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for _, name := range hostNames {
		name := name // per-iteration copy (go < 1.22 loop semantics)
		g.Go(func() error {
			table, err := r.Resolve(gctx, name, mode)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", name, err)
			}
			mu.Lock()
			result.Tables[name] = table
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Int("hosts", len(hostNames)).Msg("batch resolution failed")
		return nil, err
	}

	logger.Info().
		Int("hosts", len(hostNames)).
		Str("filterMode", mode.String()).
		Msg("batch resolution completed")

	return result, nil
}

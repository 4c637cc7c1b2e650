// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks check table resolutions by filter mode and result.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkconfig_resolutions_total",
			Help: "Total check table resolutions by filter mode and result",
		},
		[]string{"mode", "result"},
	)

	// ResolutionDuration tracks check table resolution duration.
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkconfig_resolution_duration_seconds",
			Help:    "Check table resolution duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"mode"},
	)

	// ServicesResolved tracks resolved services by source.
	ServicesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkconfig_services_resolved_total",
			Help: "Total services resolved by source (enforced/discovered)",
		},
		[]string{"source"},
	)

	// UnimplementedServices tracks services whose plugin is not in the catalog.
	UnimplementedServices = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkconfig_unimplemented_services_total",
			Help: "Total services resolved for plugins missing from the catalog",
		},
	)

	// ClusteredServices tracks discovered services reassigned to a cluster.
	ClusteredServices = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkconfig_clustered_services_total",
			Help: "Total node services reassigned to a cluster",
		},
	)

	// RuleEvaluations tracks ruleset evaluations by ruleset.
	RuleEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkconfig_rule_evaluations_total",
			Help: "Total ruleset evaluations by ruleset name",
		},
		[]string{"ruleset"},
	)

	// SnapshotReloads tracks configuration snapshot reloads by result.
	SnapshotReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkconfig_snapshot_reloads_total",
			Help: "Total configuration snapshot reloads by result",
		},
		[]string{"result"},
	)

	// SnapshotHosts tracks the number of hosts in the active snapshot.
	SnapshotHosts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkconfig_snapshot_hosts",
			Help: "Number of hosts and clusters in the active snapshot",
		},
	)

	// AutochecksQueryDuration tracks autochecks store query duration.
	AutochecksQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkconfig_autochecks_query_duration_seconds",
			Help:    "Autochecks store query duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend"},
	)

	// PublisherActive is 1 while this instance holds the publisher lease.
	PublisherActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkconfig_publisher_active",
			Help: "Whether this instance holds the publisher lease (1) or not (0)",
		},
	)
)

// WriteTextfile writes every registered metric to path in the text
// exposition format, for collection by a node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// RecordResolution records a check table resolution.
func RecordResolution(mode, result string, seconds float64) {
	ResolutionsTotal.WithLabelValues(mode, result).Inc()
	ResolutionDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordServiceResolved records a resolved service by source.
func RecordServiceResolved(source string) {
	ServicesResolved.WithLabelValues(source).Inc()
}

// RecordUnimplementedService records a service of an unknown plugin.
func RecordUnimplementedService() {
	UnimplementedServices.Inc()
}

// RecordClusteredService records a node service reassigned to a cluster.
func RecordClusteredService() {
	ClusteredServices.Inc()
}

// RecordRuleEvaluation records a ruleset evaluation.
func RecordRuleEvaluation(ruleset string) {
	RuleEvaluations.WithLabelValues(ruleset).Inc()
}

// RecordSnapshotReload records a snapshot reload.
func RecordSnapshotReload(result string) {
	SnapshotReloads.WithLabelValues(result).Inc()
}

// SetSnapshotHosts sets the number of hosts in the active snapshot.
func SetSnapshotHosts(count float64) {
	SnapshotHosts.Set(count)
}

// RecordAutochecksQuery records an autochecks store query duration.
func RecordAutochecksQuery(backend string, seconds float64) {
	AutochecksQueryDuration.WithLabelValues(backend).Observe(seconds)
}

// SetPublisherActive records whether this instance holds the publisher lease.
func SetPublisherActive(active bool) {
	if active {
		PublisherActive.Set(1)
		return
	}
	PublisherActive.Set(0)
}

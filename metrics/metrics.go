// Package metrics exposes Prometheus instrumentation for operation duration
// and snapshot cache hit/miss rates, adapted from internal/metrics/metrics.go
// to the ledger's own operation names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationCalls counts engine operations by name and outcome.
	OperationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b3ledger_operation_calls_total",
			Help: "Total engine operations by name and status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks how long engine operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "b3ledger_operation_duration_seconds",
			Help:    "Engine operation duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"operation"},
	)

	// StoreQueryDuration tracks persistent-store round trips.
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "b3ledger_store_query_duration_seconds",
			Help:    "Store query duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"query"},
	)

	// SnapshotCacheResult counts snapshot reads by hit/miss (spec §4.H).
	SnapshotCacheResult = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b3ledger_snapshot_cache_total",
			Help: "Snapshot cache lookups by result",
		},
		[]string{"result"}, // hit | miss
	)

	// RegistryCacheResult counts asset-registry lookups by source tier hit
	// (spec §4.C's lookup order).
	RegistryCacheResult = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "b3ledger_registry_lookup_total",
			Help: "Asset registry lookups by resolving tier",
		},
		[]string{"tier"},
	)
)

// RecordOperation records an engine operation's outcome and duration.
func RecordOperation(operation, status string, seconds float64) {
	OperationCalls.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordStoreQuery records a store round trip's duration.
func RecordStoreQuery(query string, seconds float64) {
	StoreQueryDuration.WithLabelValues(query).Observe(seconds)
}

// RecordSnapshotHit records a snapshot cache hit.
func RecordSnapshotHit() { SnapshotCacheResult.WithLabelValues("hit").Inc() }

// RecordSnapshotMiss records a snapshot cache miss.
func RecordSnapshotMiss() { SnapshotCacheResult.WithLabelValues("miss").Inc() }

// RecordRegistryLookup records which tier of the lookup order resolved a ticker.
func RecordRegistryLookup(tier string) { RegistryCacheResult.WithLabelValues(tier).Inc() }

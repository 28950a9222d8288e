package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackupRuns counts finished orchestration runs by outcome.
	BackupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backhaul_backup_runs_total",
		Help: "Finished backup runs by status",
	}, []string{"status"})

	// BackupDuration observes end-to-end run duration, build through upload.
	BackupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backhaul_backup_duration_seconds",
		Help:    "End-to-end backup run duration",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// ArtifactSize observes the size of successfully built artifacts.
	ArtifactSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backhaul_artifact_size_bytes",
		Help:    "Size of built backup artifacts",
		Buckets: prometheus.ExponentialBuckets(1<<20, 4, 10),
	})

	// PrunedBackups counts artifacts removed by retention pruning.
	PrunedBackups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backhaul_pruned_backups_total",
		Help: "Old backup artifacts deleted by retention pruning",
	})
)

// RegisterPgxPoolMetrics exposes pgx connection pool statistics as Prometheus gauges.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_acquired_conns",
			Help: "Number of currently acquired connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().AcquiredConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_max_conns",
			Help: "Maximum number of connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().MaxConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_total_conns",
			Help: "Total number of connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().TotalConns())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgxpool_idle_conns",
			Help: "Number of idle connections in the pool",
		}, func() float64 {
			return float64(pool.Stat().IdleConns())
		}),
	)
}

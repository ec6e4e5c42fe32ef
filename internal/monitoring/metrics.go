package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the ingestion service. Scraped at
// /internal/metrics (moved off /metrics, which this service's own core
// router reserves for POST ingestion — see SPEC_FULL.md §6).
var (
	MetricsIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestd_metrics_ingested_total",
		Help: "Total number of individual metrics accepted into the durable writer queue",
	})

	MetricsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_metrics_rejected_total",
		Help: "Total number of request batches rejected, by reason",
	}, []string{"reason"})

	WriterDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestd_writer_dropped_batches_total",
		Help: "Total number of batches dropped by the durable writer after exhausting retries",
	})

	WorkerPoolRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestd_worker_pool_rejected_total",
		Help: "Total number of connections rejected because the worker pool's queue was full",
	})

	RateLimitDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestd_ratelimit_decisions_total",
		Help: "Total number of rate limiter decisions, by outcome",
	}, []string{"allowed"})

	KnownClientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestd_ratelimit_known_clients",
		Help: "Current number of clients tracked by the rate limiter",
	})

	// Container-aware CPU gauges, populated by SystemMonitor.
	CpuUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestd_cpu_usage_percent",
		Help: "Current CPU usage percentage (container-aware when cgroup data is available)",
	})

	CpuContainerPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestd_cpu_container_percent",
		Help: "CPU usage percentage relative to the container's cgroup allocation",
	})

	CpuHostPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestd_cpu_host_percent",
		Help: "CPU usage percentage relative to total host capacity",
	})

	CpuAllocationCores = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestd_cpu_allocation_cores",
		Help: "CPU cores allocated to this container (from cgroup quota/period)",
	})

	CpuThrottleEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestd_cpu_throttle_events_total",
		Help: "Total number of cgroup CPU throttling events observed",
	})

	CpuThrottledSecondsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestd_cpu_throttled_seconds_total",
		Help: "Total time (seconds) this container has been CPU-throttled by the kernel",
	})
)

func init() {
	prometheus.MustRegister(
		MetricsIngestedTotal,
		MetricsRejectedTotal,
		WriterDroppedTotal,
		WorkerPoolRejectedTotal,
		RateLimitDecisionsTotal,
		KnownClientsGauge,
		CpuUsagePercent,
		CpuContainerPercent,
		CpuHostPercent,
		CpuAllocationCores,
		CpuThrottleEventsTotal,
		CpuThrottledSecondsTotal,
	)
}

// Handler returns the Prometheus scrape handler, mounted at
// /internal/metrics by cmd/ingestd.
func Handler() http.Handler {
	return promhttp.Handler()
}

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scheduler's Prometheus instruments. Each Scheduler
// and each test gets its own registry so tests never collide on the
// global default registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsAdmitted prometheus.Counter
	JobsReaped   prometheus.Counter
	JobsFailed   prometheus.Counter
	CoresUsed    prometheus.Gauge
	MemMBUsed    prometheus.Gauge
	QueueDepth   prometheus.Gauge
}

// NewMetrics registers and returns a fresh instrument set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry:     reg,
		JobsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{Name: "jqs_jobs_admitted_total", Help: "Jobs moved from queued to running"}),
		JobsReaped:   prometheus.NewCounter(prometheus.CounterOpts{Name: "jqs_jobs_reaped_total", Help: "Running jobs finalized after exit"}),
		JobsFailed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "jqs_jobs_failed_total", Help: "Reaped jobs that exited non-zero plus quarantined corrupt records; oversized, orphaned and launch-failed jobs are not counted"}),
		CoresUsed:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "jqs_cores_used", Help: "Cores currently reserved by running jobs"}),
		MemMBUsed:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "jqs_mem_mb_used", Help: "Memory in MB currently reserved by running jobs"}),
		QueueDepth:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "jqs_queue_depth", Help: "Jobs currently in queue/"}),
	}
	reg.MustRegister(m.JobsAdmitted, m.JobsReaped, m.JobsFailed, m.CoresUsed, m.MemMBUsed, m.QueueDepth)
	return m
}

// Handler serves this instrument set's /metrics page.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

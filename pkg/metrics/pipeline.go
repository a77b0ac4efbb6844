package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records queue and delivery outcomes. It is constructed once
// per process and injected into each worker so tests can observe collectors
// in isolation instead of sharing ambient global state.
type PipelineMetrics struct {
	jobDuration *prometheus.HistogramVec
	jobs        *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	replays     *prometheus.CounterVec
	matchmaking *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline collectors on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of queue job attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_total",
		Help: "Queue job attempts by terminal status of the attempt.",
	}, []string{"queue", "status"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Webhook delivery outcomes.",
	}, []string{"status"})
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_replays_total",
		Help: "Dead-letter replay outcomes by replay mode.",
	}, []string{"mode", "status"})
	matchmaking := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaking_jobs_total",
		Help: "Matchmaking job terminal states.",
	}, []string{"status"})
	reg.MustRegister(jobDuration, jobs, deliveries, replays, matchmaking)
	return &PipelineMetrics{
		jobDuration: jobDuration,
		jobs:        jobs,
		deliveries:  deliveries,
		replays:     replays,
		matchmaking: matchmaking,
	}
}

// ObserveJobDuration records the duration of one job attempt.
func (m *PipelineMetrics) ObserveJobDuration(queue string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(normalizeLabel(queue)).Observe(duration.Seconds())
}

// IncJob counts one job attempt outcome for the named queue.
func (m *PipelineMetrics) IncJob(queue, status string) {
	if m == nil || m.jobs == nil {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(queue), normalizeLabel(status)).Inc()
}

// IncDelivery counts a webhook delivery outcome.
func (m *PipelineMetrics) IncDelivery(status string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncReplay counts a replay outcome tagged with its mode (single or bulk).
func (m *PipelineMetrics) IncReplay(mode, status string) {
	if m == nil || m.replays == nil {
		return
	}
	m.replays.WithLabelValues(normalizeLabel(mode), normalizeLabel(status)).Inc()
}

// IncMatchmaking counts a matchmaking job reaching a terminal state.
func (m *PipelineMetrics) IncMatchmaking(status string) {
	if m == nil || m.matchmaking == nil {
		return
	}
	m.matchmaking.WithLabelValues(normalizeLabel(status)).Inc()
}

// RegisterQueueDepth exposes the ready-list depth of a named queue as a
// gauge sampled at scrape time. An unreachable backend reports -1 so a
// stuck scrape is distinguishable from an empty queue.
func RegisterQueueDepth(reg prometheus.Registerer, queueName string, depth func(context.Context) (int64, error)) {
	if reg == nil || depth == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "queue_depth",
		Help:        "Jobs currently waiting on the ready list.",
		ConstLabels: prometheus.Labels{"queue": normalizeLabel(queueName)},
	}, func() float64 {
		n, err := depth(context.Background())
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelcast/internal/reconcile"
	"reelcast/internal/store"
	"reelcast/internal/workflow"
)

const namespace = "reelcast"

// Metrics holds every collector.
type Metrics struct {
	registry *prometheus.Registry

	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	Tasks            *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	Transitions      *prometheus.CounterVec
	Webhooks         *prometheus.CounterVec
	ReconcileRecords *prometheus.CounterVec
	ReconcilePasses  *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider API calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider API call latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_tasks_total",
			Help:      "Background tasks by name and final outcome.",
		}, []string{"task", "outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_task_duration_seconds",
			Help:      "Background task run time including retries.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"task"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Committed workflow status transitions.",
		}, []string{"kind", "from", "to", "event", "source"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Inbound provider webhooks by outcome.",
		}, []string{"provider", "outcome"}),
		ReconcileRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_records_total",
			Help:      "Records visited by failsafe passes by verdict.",
		}, []string{"stage", "verdict"}),
		ReconcilePasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_passes_total",
			Help:      "Completed failsafe passes.",
		}, []string{"stage"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests served.",
		}, []string{"method", "endpoint", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ProviderCalls,
		m.ProviderDuration,
		m.Tasks,
		m.TaskDuration,
		m.Transitions,
		m.Webhooks,
		m.ReconcileRecords,
		m.ReconcilePasses,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackQueueDepth publishes fn as the dispatcher queue depth gauge.
func (m *Metrics) TrackQueueDepth(fn func() int) {
	if m == nil || fn == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Tasks waiting for a dispatcher worker.",
	}, func() float64 { return float64(fn()) }))
}

// ObserveProviderCall records one provider API call.
func (m *Metrics) ObserveProviderCall(provider, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// ObserveTask records a finished background task.
func (m *Metrics) ObserveTask(name, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(name, outcome).Inc()
	m.TaskDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ObserveTransition records a committed transition.
func (m *Metrics) ObserveTransition(kind store.Kind, from, to store.Status, event workflow.EventType, source workflow.Source) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(kind), string(from), string(to), string(event), string(source)).Inc()
}

// ObserveWebhook records one inbound webhook.
func (m *Metrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(provider, outcome).Inc()
}

// ObserveReconcile records a failsafe pass.
func (m *Metrics) ObserveReconcile(report reconcile.Report) {
	if m == nil {
		return
	}
	stage := string(report.Stage)
	m.ReconcilePasses.WithLabelValues(stage).Inc()
	for verdict, n := range map[string]int{
		"advanced":         report.Advanced,
		"failed":           report.Failed,
		"still_processing": report.StillProcessing,
		"skipped":          report.Skipped,
		"error":            report.Errors,
	} {
		if n > 0 {
			m.ReconcileRecords.WithLabelValues(stage, verdict).Add(float64(n))
		}
	}
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

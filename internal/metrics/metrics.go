package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmflow_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmflow_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	jobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmflow_jobs_enqueued_total",
			Help: "Total jobs enqueued by queue and job name",
		},
		[]string{"queue", "name"},
	)

	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmflow_jobs_processed_total",
			Help: "Total jobs processed by queue, job name and outcome",
		},
		[]string{"queue", "name", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmflow_job_duration_seconds",
			Help:    "Handler execution time per queue",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30, 120},
		},
		[]string{"queue"},
	)

	schedulerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmflow_scheduler_state",
			Help: "Current worker pool state (0=init 1=checking 2=available 3=unavailable 4=running 5=disabled)",
		},
	)

	ruleEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmflow_rule_evaluations_total",
			Help: "Rule engine evaluations by event type",
		},
		[]string{"event_type"},
	)

	ruleActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmflow_rule_actions_total",
			Help: "Actions produced by rule evaluation by event type",
		},
		[]string{"event_type"},
	)

	channelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmflow_channel_deliveries_total",
			Help: "Notification channel delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordJobEnqueued records a job accepted by the broker
func RecordJobEnqueued(queue, name string) {
	jobsEnqueued.WithLabelValues(queue, name).Inc()
}

// RecordJobProcessed records a job outcome ("completed", "failed", "unknown")
func RecordJobProcessed(queue, name, status string) {
	jobsProcessed.WithLabelValues(queue, name, status).Inc()
}

// RecordJobDuration records how long a handler ran
func RecordJobDuration(queue string, d time.Duration) {
	jobDuration.WithLabelValues(queue).Observe(d.Seconds())
}

// SetSchedulerState publishes the worker pool state
func SetSchedulerState(state int) {
	schedulerState.Set(float64(state))
}

// RecordRuleEvaluation records one Evaluate call and the number of actions it produced
func RecordRuleEvaluation(eventType string, actions int) {
	ruleEvaluations.WithLabelValues(eventType).Inc()
	if actions > 0 {
		ruleActions.WithLabelValues(eventType).Add(float64(actions))
	}
}

// RecordChannelDelivery records a per-channel dispatch outcome ("sent", "failed", "skipped")
func RecordChannelDelivery(channel, status string) {
	channelDeliveries.WithLabelValues(channel, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}

package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	transitionCounter     *prometheus.CounterVec
	webhookRejections     *prometheus.CounterVec
	unmappedStatusCounter *prometheus.CounterVec
	activationCounter     *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_transitions_total",
			Help: "Applied deposit state transitions",
		}, []string{"from", "to", "source"})

		webhookRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_rejections_total",
			Help: "Inbound notifications rejected before reaching the reconciler",
		}, []string{"gateway", "reason"})

		unmappedStatusCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_status_unmapped_total",
			Help: "Gateway statuses with no canonical translation",
		}, []string{"gateway", "raw_status"})

		activationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "investment_activations_total",
			Help: "Investments activated by confirmed deposits",
		}, []string{"plan"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transitionCounter,
			webhookRejections,
			unmappedStatusCounter,
			activationCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementDepositTransition(from, to, source string) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.WithLabelValues(from, to, source).Inc()
}

func IncrementWebhookRejection(gateway, reason string) {
	if webhookRejections == nil {
		return
	}
	webhookRejections.WithLabelValues(gateway, reason).Inc()
}

func IncrementUnmappedStatus(gateway, rawStatus string) {
	if unmappedStatusCounter == nil {
		return
	}
	unmappedStatusCounter.WithLabelValues(gateway, rawStatus).Inc()
}

func IncrementInvestmentActivation(plan string) {
	if activationCounter == nil {
		return
	}
	activationCounter.WithLabelValues(plan).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

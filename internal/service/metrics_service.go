package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the bidding domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	bidsSubmitted   prometheus.Counter
	bidsWithdrawn   prometheus.Counter
	selectionRuns   prometheus.Counter
	tokensRefunded  prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers the collectors on a dedicated registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	bidsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bids_submitted_total",
		Help: "Total bids accepted",
	})

	bidsWithdrawn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bids_withdrawn_total",
		Help: "Total bids withdrawn with a token refund",
	})

	selectionRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "selection_runs_total",
		Help: "Total winner selection executions",
	})

	tokensRefunded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_refunded_total",
		Help: "Total tokens credited back outside withdrawal",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, bidsSubmitted, bidsWithdrawn, selectionRuns, tokensRefunded, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		bidsSubmitted:   bidsSubmitted,
		bidsWithdrawn:   bidsWithdrawn,
		selectionRuns:   selectionRuns,
		tokensRefunded:  tokensRefunded,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one request's method, path, status and latency.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordBidSubmitted counts an accepted bid.
func (m *MetricsService) RecordBidSubmitted() {
	if m == nil {
		return
	}
	m.bidsSubmitted.Inc()
}

// RecordBidWithdrawn counts a withdrawn bid.
func (m *MetricsService) RecordBidWithdrawn() {
	if m == nil {
		return
	}
	m.bidsWithdrawn.Inc()
}

// RecordSelectionRun counts a selection or auto-selection execution.
func (m *MetricsService) RecordSelectionRun() {
	if m == nil {
		return
	}
	m.selectionRuns.Inc()
}

// RecordTokensRefunded counts tokens credited back by refund paths.
func (m *MetricsService) RecordTokensRefunded(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensRefunded.Add(float64(count))
}

// RecordCacheOperation counts a cache lookup outcome.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

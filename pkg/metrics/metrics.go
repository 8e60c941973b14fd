// Package metrics exposes Prometheus counters and histograms for a sync run.
//
// # Basic Usage
//
//	m := metrics.Default()
//	m.RecordsEmitted.WithLabelValues("tickets").Inc()
//
//	srv := metrics.Serve(":9090", prometheus.DefaultGatherer, logger)
//	defer srv.Close()
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "omnivore_tap"

// Skip reasons used with RecordsSkipped.
const (
	ReasonMissingPrimaryKey     = "missing_primary_key"
	ReasonMissingReplicationKey = "missing_replication_key"
)

// Metrics groups the collectors updated by the stream engine.
type Metrics struct {
	RecordsEmitted  *prometheus.CounterVec
	RecordsSkipped  *prometheus.CounterVec
	PagesFetched    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPRetries     *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	StreamFailures  *prometheus.CounterVec
	StreamDurations *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns collectors registered with the default Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates collectors registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Records written to the sink",
		}, []string{"stream"}),
		RecordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records dropped during post-processing",
		}, []string{"stream", "reason"}),
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Response pages read",
		}, []string{"stream"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by final status code",
		}, []string{"stream", "code"}),
		HTTPRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "HTTP attempts that were retried",
		}, []string{"stream"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP round trip latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"stream"}),
		StreamFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_failures_total",
			Help:      "Stream invocations that ended in an error",
		}, []string{"stream"}),
		StreamDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of one stream invocation",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stream"}),
	}
}

// ObserveRequest records one finished HTTP attempt. A code of 0 means the
// request failed before a response arrived.
func (m *Metrics) ObserveRequest(stream string, code int, d time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.HTTPRequests.WithLabelValues(stream, label).Inc()
	m.HTTPDuration.WithLabelValues(stream).Observe(d.Seconds())
}

// Serve exposes gatherer on addr under /metrics in a background goroutine.
func Serve(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

// Shutdown stops a server started by Serve.
func Shutdown(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

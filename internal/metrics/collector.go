// Package metrics exposes prometheus metrics for validation, the replay
// buffer and rollout workers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns its registry so several collectors can coexist in one
// process (and in tests).
type Collector struct {
	registry *prometheus.Registry

	validationsTotal   *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	bufferInserted  prometheus.Counter
	bufferEvictions prometheus.Counter
	bufferReads     *prometheus.CounterVec

	enqueueTotal       *prometheus.CounterVec
	enqueueTransitions *prometheus.CounterVec

	logger *zap.Logger
}

func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.validationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Documents validated, by kind and result",
		},
		[]string{"kind", "result"},
	)
	c.validationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent validating one document",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"kind"},
	)

	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.bufferSize = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "size",
		Help:      "Records currently held by the ring buffer",
	})
	c.bufferCapacity = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "capacity",
		Help:      "Ring buffer capacity from memory_spec",
	})
	c.bufferInserted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "inserted_total",
		Help:      "Records inserted into the ring buffer",
	})
	c.bufferEvictions = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "buffer",
		Name:      "evictions_total",
		Help:      "Records evicted because the ring buffer was full",
	})
	c.bufferReads = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "reads_total",
			Help:      "Records handed out, by operation",
		},
		[]string{"op"}, // op: dequeue, sample
	)

	c.enqueueTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "enqueue_requests_total",
			Help:      "Enqueue requests sent by rollout workers, by outcome",
		},
		[]string{"outcome"},
	)
	c.enqueueTransitions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "transitions_total",
			Help:      "Transitions shipped by rollout workers, by outcome",
		},
		[]string{"outcome"},
	)

	return c
}

// ObserveValidation records one validated document.
func (c *Collector) ObserveValidation(kind string, valid bool, elapsed time.Duration) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	c.validationsTotal.WithLabelValues(kind, result).Inc()
	c.validationDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) SetBufferStats(size, capacity int) {
	c.bufferSize.Set(float64(size))
	c.bufferCapacity.Set(float64(capacity))
}

func (c *Collector) RecordInsert(inserted, evicted int) {
	c.bufferInserted.Add(float64(inserted))
	c.bufferEvictions.Add(float64(evicted))
	if evicted > 0 {
		c.logger.Debug("ring buffer evicted records", zap.Int("evicted", evicted))
	}
}

func (c *Collector) RecordRead(op string, n int) {
	c.bufferReads.WithLabelValues(op).Add(float64(n))
}

// RecordEnqueue records one rollout enqueue attempt.
func (c *Collector) RecordEnqueue(batches, transitions int, outcome string) {
	c.enqueueTotal.WithLabelValues(outcome).Inc()
	c.enqueueTransitions.WithLabelValues(outcome).Add(float64(transitions))
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records count and latency of requests to h under the label path.
func (c *Collector) Middleware(path string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		c.RecordHTTPRequest(r.Method, path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Package metrics exposes Prometheus counters for the cache layer and the
// HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Cache metrics, labelled by cache name
	CacheHits      *prometheus.CounterVec
	CacheFetches   *prometheus.CounterVec
	CacheCoalesced *prometheus.CounterVec
	FetchErrors    *prometheus.CounterVec
	Rollbacks      *prometheus.CounterVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
}

// NewCollector creates a collector backed by its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "GetData calls served without a fetch",
		}, []string{"cache"}),
		CacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetches_total",
			Help:      "Fetches issued to the remote store",
		}, []string{"cache"}),
		CacheCoalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_coalesced_total",
			Help:      "Callers that joined an in-flight fetch",
		}, []string{"cache"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fetch_errors_total",
			Help:      "Fetches that failed",
		}, []string{"cache"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_rollbacks_total",
			Help:      "Optimistic mutations rolled back after a failed write",
		}, []string{"cache", "operation"}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Remote store operations by outcome",
		}, []string{"operation", "outcome"}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.CacheHits,
		c.CacheFetches,
		c.CacheCoalesced,
		c.FetchErrors,
		c.Rollbacks,
		c.StoreOperations,
	)
	return c
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CacheHit(cache string) {
	if c != nil {
		c.CacheHits.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) CacheFetch(cache string) {
	if c != nil {
		c.CacheFetches.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) Coalesced(cache string) {
	if c != nil {
		c.CacheCoalesced.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) FetchError(cache string) {
	if c != nil {
		c.FetchErrors.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) Rollback(cache, operation string) {
	if c != nil {
		c.Rollbacks.WithLabelValues(cache, operation).Inc()
	}
}

func (c *Collector) StoreOperation(operation string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.StoreOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveHTTP records one finished request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

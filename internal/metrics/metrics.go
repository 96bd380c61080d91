package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stonecode/pickmyroute/server/internal/cache"
	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
)

// CacheStatser reports route cache occupancy. *cache.Cache implements it.
type CacheStatser interface {
	Stats() cache.Stats
}

// Collector holds the server's Prometheus metrics on a private registry.
type Collector struct {
	reg       *prometheus.Registry
	namespace string

	ActiveSessions prometheus.Gauge

	FixesProcessed       prometheus.Counter
	ProgressEmitted      prometheus.Counter
	ProgressSuppressed   prometheus.Counter
	StepAdvances         prometheus.Counter
	OffRouteTransitions  *prometheus.CounterVec // state label: entered|exited
	PolylineDecodeErrors prometheus.Counter
	UpdateDuration       prometheus.Histogram

	DirectionsRequests *prometheus.CounterVec // result label: ok|no_routes|error
	DirectionsDuration prometheus.Histogram
	RouteCache         *prometheus.CounterVec // result label: hit|miss

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

// NewCollector creates and registers every metric under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg:       reg,
		namespace: namespace,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open navigation sessions.",
		}),
		FixesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_processed_total",
			Help:      "Total location fixes matched against a route.",
		}),
		ProgressEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_emitted_total",
			Help:      "Total progress updates published.",
		}),
		ProgressSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_suppressed_total",
			Help:      "Total progress updates suppressed by the emission throttle.",
		}),
		StepAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_advances_total",
			Help:      "Total route steps completed.",
		}),
		OffRouteTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "off_route_transitions_total",
			Help:      "Off-route flag changes.",
		}, []string{"state"}),
		PolylineDecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polyline_decode_errors_total",
			Help:      "Step polylines that could not be decoded.",
		}),
		UpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Duration of matching one fix.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		DirectionsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directions_requests_total",
			Help:      "Directions API requests by result.",
		}, []string{"result"}),
		DirectionsDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directions_duration_seconds",
			Help:      "Duration of Directions API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RouteCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_cache_lookups_total",
			Help:      "Route plan cache lookups by result.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_published_total",
			Help:      "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_publish_errors_total",
			Help:      "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration to marshal and publish a NATS message.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.ActiveSessions,
		c.FixesProcessed, c.ProgressEmitted, c.ProgressSuppressed,
		c.StepAdvances, c.OffRouteTransitions, c.PolylineDecodeErrors, c.UpdateDuration,
		c.DirectionsRequests, c.DirectionsDuration, c.RouteCache,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)

	return c
}

// WatchCache exports the cache's entry counts by state and the age of its
// oldest entry. Values are read from src at scrape time.
func (c *Collector) WatchCache(src CacheStatser, now func() time.Time) {
	entries := func(state string, count func(cache.Stats) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   c.namespace,
			Name:        "route_cache_entries",
			Help:        "Route plan cache entries by state.",
			ConstLabels: prometheus.Labels{"state": state},
		}, func() float64 { return float64(count(src.Stats())) })
	}

	c.reg.MustRegister(
		entries("fresh", func(s cache.Stats) int { return s.FreshEntries }),
		entries("stale", func(s cache.Stats) int { return s.StaleEntries }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "route_cache_oldest_entry_age_seconds",
			Help:      "Age of the oldest route plan cache entry, 0 when empty.",
		}, func() float64 {
			oldest := src.Stats().OldestEntry
			if oldest.IsZero() {
				return 0
			}
			return now().Sub(oldest).Seconds()
		}),
	)
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the private registry for gathering in tests and
// diagnostics.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) SessionOpened() { c.ActiveSessions.Inc() }
func (c *Collector) SessionClosed() { c.ActiveSessions.Dec() }

// ObserveUpdate records the outcome of matching one fix.
func (c *Collector) ObserveUpdate(res navigation.Result, d time.Duration) {
	c.FixesProcessed.Inc()
	c.UpdateDuration.Observe(d.Seconds())
	if res.Emitted {
		c.ProgressEmitted.Inc()
	} else {
		c.ProgressSuppressed.Inc()
	}
	if res.StepsAdvanced > 0 {
		c.StepAdvances.Add(float64(res.StepsAdvanced))
	}
	if res.DecodeErrors > 0 {
		c.PolylineDecodeErrors.Add(float64(res.DecodeErrors))
	}
	if res.OffRouteChanged {
		state := "exited"
		if res.Progress.OffRoute {
			state = "entered"
		}
		c.OffRouteTransitions.WithLabelValues(state).Inc()
	}
}

// ObserveDirections records one Directions request.
func (c *Collector) ObserveDirections(result string, d time.Duration) {
	c.DirectionsRequests.WithLabelValues(result).Inc()
	c.DirectionsDuration.Observe(d.Seconds())
}

// ObserveRouteCache records a route plan cache lookup.
func (c *Collector) ObserveRouteCache(hit bool) {
	if hit {
		c.RouteCache.WithLabelValues("hit").Inc()
	} else {
		c.RouteCache.WithLabelValues("miss").Inc()
	}
}

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

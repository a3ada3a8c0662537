package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service's collectors; it is not the global default registry.
	Registry = prometheus.NewRegistry()

	rewardQuotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casevault",
			Subsystem: "reward",
			Name:      "quotes_total",
			Help:      "Total number of reward quote attempts by randomness source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	rewardQuoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casevault",
			Subsystem: "reward",
			Name:      "quote_duration_seconds",
			Help:      "Duration of reward quote computation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"source"},
	)

	priceResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casevault",
			Subsystem: "price",
			Name:      "resolutions_total",
			Help:      "Reference price resolutions by the source that answered.",
		},
		[]string{"source"},
	)

	ledgerPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "casevault",
			Subsystem: "ledger",
			Name:      "pruned_total",
			Help:      "Total number of ledger entries removed by retention.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casevault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casevault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		rewardQuotes,
		rewardQuoteDuration,
		priceResolutions,
		ledgerPruned,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordQuote(source, outcome string, duration time.Duration) {
	rewardQuotes.WithLabelValues(source, outcome).Inc()
	rewardQuoteDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordPriceResolution(source string) {
	priceResolutions.WithLabelValues(source).Inc()
}

func RecordPruned(n int) {
	if n > 0 {
		ledgerPruned.Add(float64(n))
	}
}

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

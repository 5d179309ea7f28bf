// Package metrics provides Prometheus metrics for the price feed.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal is a counter of normalized ticks received from venues.
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_ticks_total",
			Help: "Total number of normalized ticks received from venues",
		},
		[]string{"venue", "asset"},
	)

	// VenueConnected is a gauge of venue connection state.
	VenueConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_venue_connected",
			Help: "Venue connection state (1=connected, 0=disconnected)",
		},
		[]string{"venue"},
	)

	// VenueReconnectsTotal is a counter of venue reconnect attempts.
	VenueReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_venue_reconnects_total",
			Help: "Total number of venue reconnect attempts",
		},
		[]string{"venue"},
	)

	// StaleExclusionsTotal is a counter of quotes excluded for staleness.
	StaleExclusionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_stale_exclusions_total",
			Help: "Total number of quotes excluded from aggregation for staleness",
		},
		[]string{"venue", "asset"},
	)

	// AggregationsTotal is a counter of consensus price emissions.
	AggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_aggregations_total",
			Help: "Total number of aggregated price emissions",
		},
		[]string{"asset"},
	)

	// AggregationSkippedTotal counts cycles that produced no emission.
	AggregationSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_aggregation_skipped_total",
			Help: "Total number of aggregation cycles with no valid sources",
		},
		[]string{"asset"},
	)

	// AggregationDuration is a histogram of aggregation compute time.
	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_aggregation_duration_seconds",
			Help:    "Duration of a single aggregation cycle",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
	)

	// HubClients is a gauge of connected hub subscribers.
	HubClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_hub_clients",
			Help: "Number of connected price stream subscribers",
		},
	)

	// HubDropsTotal counts subscribers pruned for slow consumption.
	HubDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_hub_drops_total",
			Help: "Total number of subscribers pruned for buffer overflow or write failure",
		},
	)

	// HubMessagesTotal counts messages delivered to subscribers.
	HubMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_hub_messages_total",
			Help: "Total number of price messages delivered to subscribers",
		},
	)

	// ChainSubmissionsTotal counts on-chain batch submissions by status.
	ChainSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_chain_submissions_total",
			Help: "Total number of on-chain price submissions",
		},
		[]string{"status"},
	)

	// ChainSubmissionDuration is a histogram of submit-to-confirm latency.
	ChainSubmissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_chain_submission_duration_seconds",
			Help:    "Time from batch submission to confirmation",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30},
		},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

// Init registers all metrics with the default Prometheus registry.
func Init() {
	prometheus.MustRegister(
		TicksTotal,
		VenueConnected,
		VenueReconnectsTotal,
		StaleExclusionsTotal,
		AggregationsTotal,
		AggregationSkippedTotal,
		AggregationDuration,
		HubClients,
		HubDropsTotal,
		HubMessagesTotal,
		ChainSubmissionsTotal,
		ChainSubmissionDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordTick records a normalized tick from a venue.
func RecordTick(venue, asset string) {
	TicksTotal.WithLabelValues(venue, asset).Inc()
}

// RecordVenueState records the connection state of a venue.
func RecordVenueState(venue string, connected bool) {
	val := 0.0
	if connected {
		val = 1.0
	}
	VenueConnected.WithLabelValues(venue).Set(val)
}

// RecordReconnect records a reconnect attempt for a venue.
func RecordReconnect(venue string) {
	VenueReconnectsTotal.WithLabelValues(venue).Inc()
}

// RecordStaleExclusion records a quote excluded for staleness.
func RecordStaleExclusion(venue, asset string) {
	StaleExclusionsTotal.WithLabelValues(venue, asset).Inc()
}

// RecordAggregation records a consensus price emission.
func RecordAggregation(asset string, duration time.Duration) {
	AggregationsTotal.WithLabelValues(asset).Inc()
	AggregationDuration.Observe(duration.Seconds())
}

// RecordAggregationSkipped records a cycle with no valid sources.
func RecordAggregationSkipped(asset string) {
	AggregationSkippedTotal.WithLabelValues(asset).Inc()
}

// RecordHubClients records the number of connected subscribers.
func RecordHubClients(n int) {
	HubClients.Set(float64(n))
}

// RecordHubDrop records a dropped update or pruned subscriber.
func RecordHubDrop() {
	HubDropsTotal.Inc()
}

// RecordHubMessage records a price message delivered to a subscriber.
func RecordHubMessage() {
	HubMessagesTotal.Inc()
}

// RecordChainSubmission records an on-chain submission outcome.
func RecordChainSubmission(status string, duration time.Duration) {
	ChainSubmissionsTotal.WithLabelValues(status).Inc()
	if status == "confirmed" {
		ChainSubmissionDuration.Observe(duration.Seconds())
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "gallerykeeper"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "route"},
	)

	PinsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "pins_issued_total",
			Help:      "Total download PINs issued",
		},
		[]string{"scope", "resolution"},
	)

	// Verification outcomes: verified, invalid_pin, attempts_exceeded, access_mismatch, error
	PinVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "pin_verifications_total",
			Help:      "Total download PIN verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	SignedURLChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "signed_url_checks_total",
			Help:      "Total signed download URL verifications by outcome",
		},
		[]string{"outcome"},
	)

	BytesServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "bytes_served_total",
			Help:      "Total bytes of secure downloads served",
		},
	)

	FavoriteTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "favorites",
			Name:      "toggles_total",
			Help:      "Total favorite add/remove operations",
		},
		[]string{"action", "status"},
	)

	FavoriteSessionsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "favorites",
			Name:      "sessions_purged_total",
			Help:      "Total favorite sessions removed by retention cleanup",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordPinIssued records a PIN issued for a collection or photo scope
func RecordPinIssued(scope, resolution string) {
	PinsIssuedTotal.WithLabelValues(scope, resolution).Inc()
}

// RecordPinVerification records the outcome of one verification attempt
func RecordPinVerification(outcome string) {
	PinVerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSignedURLCheck records a signed URL verification
func RecordSignedURLCheck(outcome string, bytes int64) {
	SignedURLChecksTotal.WithLabelValues(outcome).Inc()
	if outcome == StatusSuccess && bytes > 0 {
		BytesServedTotal.Add(float64(bytes))
	}
}

// RecordFavoriteToggle records a favorites update
func RecordFavoriteToggle(action, status string) {
	FavoriteTogglesTotal.WithLabelValues(action, status).Inc()
}

// RecordSessionsPurged records sessions removed by the cleaner
func RecordSessionsPurged(n int) {
	if n > 0 {
		FavoriteSessionsPurgedTotal.Add(float64(n))
	}
}

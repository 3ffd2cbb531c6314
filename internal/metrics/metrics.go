// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portal"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	offerSearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offers",
			Name:      "searches_total",
			Help:      "Offer searches by search type and result.",
		},
		[]string{"type", "result"},
	)
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "submissions_total",
			Help:      "Application submissions by result.",
		},
		[]string{"result"},
	)
	uploadedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of documents written to object storage.",
		},
	)
	statusUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "applications",
			Name:      "status_updates_total",
			Help:      "Application status changes by new status.",
		},
		[]string{"status"},
	)
	adminLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "logins_total",
			Help:      "Admin login attempts by result.",
		},
		[]string{"result"},
	)
)

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			offerSearches, submissions, uploadedBytes, statusUpdates,
			adminLogins,
		)
	})
}

// RecordHTTPRequest observes one finished request. route is the gin route
// template, not the raw path.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	Register()
	if route == "" {
		route = "unmatched"
	}
	method = methodLabel(method)
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// RecordOfferSearch counts a search; result is found, not_found, invalid or error.
// Search types other than caseNumber and name are counted as "other".
func RecordOfferSearch(searchType, result string) {
	Register()
	offerSearches.WithLabelValues(SearchTypeLabel(searchType), result).Inc()
}

// SearchTypeLabel maps a client supplied search type onto a fixed label set.
func SearchTypeLabel(searchType string) string {
	switch searchType {
	case "caseNumber", "name":
		return searchType
	default:
		return "other"
	}
}

func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return method
	default:
		return "other"
	}
}

// RecordSubmission counts an application submission outcome.
func RecordSubmission(result string) {
	Register()
	submissions.WithLabelValues(result).Inc()
}

func RecordUploadedBytes(n int64) {
	Register()
	uploadedBytes.Add(float64(n))
}

func RecordStatusUpdate(status string) {
	Register()
	statusUpdates.WithLabelValues(status).Inc()
}

// RecordAdminLogin counts a login attempt; result is ok, invalid, throttled or error.
func RecordAdminLogin(result string) {
	Register()
	adminLogins.WithLabelValues(result).Inc()
}

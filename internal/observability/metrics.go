package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	consolidationsTotal   *prometheus.CounterVec
	closureChangesTotal   *prometheus.CounterVec
	uploadsTotal          *prometheus.CounterVec
	uploadRejectedTotal   *prometheus.CounterVec
	uploadLatencySeconds  prometheus.Histogram
	workbookLatencySecond *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libreta_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "libreta_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libreta_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		consolidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libreta_consolidations_total",
			Help: "Consolidation attempts by scope and outcome.",
		}, []string{"scope", "outcome"})

		closureChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libreta_closure_changes_total",
			Help: "Closure transitions by target state.",
		}, []string{"state"})

		uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libreta_uploads_total",
			Help: "Accepted workbook uploads by detected MIME type.",
		}, []string{"mime"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "libreta_upload_rejected_total",
			Help: "Rejected workbook uploads by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "libreta_upload_latency_seconds",
			Help:    "Time spent validating and storing uploads.",
			Buckets: prometheus.DefBuckets,
		})

		workbookLatencySecond = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "libreta_workbook_latency_seconds",
			Help:    "Time spent reading or writing workbooks.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			consolidationsTotal,
			closureChangesTotal,
			uploadsTotal,
			uploadRejectedTotal,
			uploadLatencySeconds,
			workbookLatencySecond,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Consolidations counts bimester and annual consolidation outcomes.
func Consolidations() *prometheus.CounterVec {
	RegisterMetrics()
	return consolidationsTotal
}

// ClosureChanges counts closure transitions.
func ClosureChanges() *prometheus.CounterVec {
	RegisterMetrics()
	return closureChangesTotal
}

// UploadRequests counts accepted uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsTotal
}

// UploadRejected counts rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency tracks upload handling time.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// WorkbookLatency tracks workbook read/write time.
func WorkbookLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return workbookLatencySecond
}

// MetricsHandler serves the default registry in the OpenMetrics format when
// the scraper asks for it.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	uploadLatencySeconds  prometheus.Histogram
	uploadRejectedTotal   *prometheus.CounterVec
	uploadsTotal          *prometheus.CounterVec
	extractionSeconds     *prometheus.HistogramVec
	gradingSeconds        prometheus.Histogram
	sheetsGradedTotal     *prometheus.CounterVec
	answersScoredTotal    *prometheus.CounterVec
	gradingEventsTotal    *prometheus.CounterVec
	progressClientsActive prometheus.Gauge
	summaryCacheTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the API and
// the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scriba_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scriba_sheet_upload_seconds",
			Help:    "Time spent validating and storing answer sheet uploads.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_sheet_uploads_rejected_total",
			Help: "Answer sheet uploads rejected during validation.",
		}, []string{"reason"})

		uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_sheet_uploads_total",
			Help: "Answer sheet uploads accepted, by detected type.",
		}, []string{"type"})

		extractionSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scriba_extraction_seconds",
			Help:    "Time spent extracting answers from sheets, by engine.",
			Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		}, []string{"engine"})

		gradingSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scriba_grading_seconds",
			Help:    "Time spent grading one answer sheet end to end.",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		})

		sheetsGradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_sheets_graded_total",
			Help: "Answer sheets graded, by letter grade.",
		}, []string{"grade"})

		answersScoredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_answers_scored_total",
			Help: "Individual answers scored, by classified cognitive level.",
		}, []string{"level"})

		gradingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_grading_events_total",
			Help: "Grading lifecycle events published, by type.",
		}, []string{"type"})

		progressClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scriba_progress_clients_active",
			Help: "WebSocket clients currently subscribed to grading progress.",
		})

		summaryCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scriba_summary_cache_total",
			Help: "Student summary cache lookups, by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			uploadLatencySeconds,
			uploadRejectedTotal,
			uploadsTotal,
			extractionSeconds,
			gradingSeconds,
			sheetsGradedTotal,
			answersScoredTotal,
			gradingEventsTotal,
			progressClientsActive,
			summaryCacheTotal,
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

// UploadLatency exposes the histogram for sheet upload handling time.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// UploadRejected exposes the counter for rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadsAccepted exposes the counter for accepted uploads.
func UploadsAccepted() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsTotal
}

// ExtractionDuration exposes the histogram for answer extraction time.
func ExtractionDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return extractionSeconds
}

// GradingDuration exposes the histogram for sheet grading time.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingSeconds
}

// SheetsGraded exposes the counter for graded sheets.
func SheetsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return sheetsGradedTotal
}

// AnswersScored exposes the counter for scored answers.
func AnswersScored() *prometheus.CounterVec {
	RegisterMetrics()
	return answersScoredTotal
}

// GradingEvents exposes the counter for published grading events.
func GradingEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingEventsTotal
}

// ProgressClients exposes the gauge for active progress subscribers.
func ProgressClients() prometheus.Gauge {
	RegisterMetrics()
	return progressClientsActive
}

// SummaryCache exposes the counter for summary cache outcomes.
func SummaryCache() *prometheus.CounterVec {
	RegisterMetrics()
	return summaryCacheTotal
}

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	tasksIssuedTotal *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	checkScores      *prometheus.HistogramVec
	sweepItemsTotal  *prometheus.CounterVec
	buildsTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the sweeps.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgrader_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appgrader_request_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgrader_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		tasksIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgrader_tasks_issued_total",
			Help: "Tasks persisted and delivered, by round and delivery outcome.",
		}, []string{"round", "outcome"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgrader_submissions_total",
			Help: "Submission notifications by gate decision.",
		}, []string{"decision"})

		checkScores = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appgrader_check_score",
			Help:    "Distribution of evaluation check scores.",
			Buckets: []float64{0, 0.2, 0.4, 0.5, 0.6, 0.8, 1.0},
		}, []string{"check"})

		sweepItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgrader_sweep_items_total",
			Help: "Items handled by batch sweeps, by sweep and result.",
		}, []string{"sweep", "result"})

		buildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appgrader_agent_builds_total",
			Help: "Build requests handled by the student agent, by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			tasksIssuedTotal, submissionsTotal, checkScores, sweepItemsTotal, buildsTotal,
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

// TasksIssued counts issued tasks.
func TasksIssued() *prometheus.CounterVec {
	RegisterMetrics()
	return tasksIssuedTotal
}

// Submissions counts gate decisions.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// CheckScores records evaluation scores per check.
func CheckScores() *prometheus.HistogramVec {
	RegisterMetrics()
	return checkScores
}

// SweepItems counts batch sweep items.
func SweepItems() *prometheus.CounterVec {
	RegisterMetrics()
	return sweepItemsTotal
}

// Builds counts agent build requests.
func Builds() *prometheus.CounterVec {
	RegisterMetrics()
	return buildsTotal
}

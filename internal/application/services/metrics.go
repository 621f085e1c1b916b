package services

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_jobs_started_total",
			Help: "The total number of job executions handed to the runner",
		},
		[]string{"action"},
	)

	jobsRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_jobs_rate_limited_total",
			Help: "The total number of job executions deferred by rate limits",
		},
		[]string{"action"},
	)

	jobResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_job_results_total",
			Help: "The total number of job results by outcome",
		},
		[]string{"action", "result"},
	)

	occurrencesRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_occurrences_recorded_total",
			Help: "The total number of frequency-limit occurrences recorded",
		},
		[]string{"constraint_id"},
	)

	authTokensMintedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_auth_tokens_minted_total",
			Help: "The total number of bearer tokens minted from the auth API",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsStartedTotal)
	prometheus.MustRegister(jobsRateLimitedTotal)
	prometheus.MustRegister(jobResultsTotal)
	prometheus.MustRegister(occurrencesRecordedTotal)
	prometheus.MustRegister(authTokensMintedTotal)
}

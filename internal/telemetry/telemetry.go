package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the validation pipeline.
var (
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketcheck_validations_total",
			Help: "Total pipeline runs by verdict (valid, invalid, failed)",
		},
		[]string{"verdict"},
	)

	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcheck_cache_hits_total",
			Help: "Extraction cache hits",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcheck_cache_misses_total",
			Help: "Extraction cache misses",
		},
	)

	CacheErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcheck_cache_errors_total",
			Help: "Extraction cache storage errors (non-fatal)",
		},
	)

	ProviderCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcheck_provider_calls_total",
			Help: "Successful recognition provider invocations",
		},
	)

	ProviderFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcheck_provider_failures_total",
			Help: "Failed recognition provider invocations",
		},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketcheck_extraction_duration_seconds",
			Help:    "Duration of the extraction stage including cache lookups",
			Buckets: prometheus.DefBuckets,
		},
	)

	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketcheck_verifications_total",
			Help: "Flight verification outcomes (verified, rejected, inconclusive)",
		},
		[]string{"outcome"},
	)

	VerifierRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcheck_verifier_retries_total",
			Help: "Retried calls toward the flight-data backend",
		},
	)

	VerificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketcheck_verification_duration_seconds",
			Help:    "Duration of the verification stage including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all pipeline metrics with the default registry.
// Safe to call once from main; tests exercise the vars directly.
func Register() {
	prometheus.MustRegister(
		ValidationsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheErrorsTotal,
		ProviderCallsTotal,
		ProviderFailuresTotal,
		ExtractionDuration,
		VerificationsTotal,
		VerifierRetriesTotal,
		VerificationDuration,
	)
}

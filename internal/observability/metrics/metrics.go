package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fuelmap_"

	ResultSuccess = "success"
	ResultError   = "error"

	// Candidate check outcomes.
	CheckResultClear             = "clear"
	CheckResultNameDuplicate     = "name_duplicate"
	CheckResultLocationDuplicate = "location_duplicate"

	// Nearest-neighbor query paths.
	PathIndexed = "indexed"
	PathScan    = "scan"
)

var (
	registerOnce sync.Once

	candidateChecks       *prometheus.CounterVec
	candidateCheckLatency *prometheus.HistogramVec

	duplicateIndexRuns    *prometheus.CounterVec
	duplicateIndexFlagged prometheus.Counter

	resolveRuns    *prometheus.CounterVec
	resolveLatency *prometheus.HistogramVec
	resolveDeletes *prometheus.CounterVec

	nearestQueries *prometheus.CounterVec
	nearestLatency *prometheus.HistogramVec

	importRows *prometheus.CounterVec
)

// Init registers the directory service metrics.
func Init() {
	registerOnce.Do(func() {
		candidateChecks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "candidate_checks_total",
				Help: "Total pre-insert duplicate checks by outcome",
			},
			[]string{"result"},
		)
		candidateCheckLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "candidate_check_latency_seconds",
				Help:    "Pre-insert duplicate check latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		duplicateIndexRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "duplicate_index_runs_total",
				Help: "Total pairwise duplicate index passes by result",
			},
			[]string{"result"},
		)
		duplicateIndexFlagged = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "duplicate_index_flagged_total",
				Help: "Total records flagged as duplicates by index passes",
			},
		)

		resolveRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "resolve_runs_total",
				Help: "Total duplicate resolution runs by result",
			},
			[]string{"result"},
		)
		resolveLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "resolve_latency_seconds",
				Help:    "Duplicate resolution run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		resolveDeletes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "resolve_deletes_total",
				Help: "Total per-item deletes issued by resolution runs",
			},
			[]string{"result"},
		)

		nearestQueries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "nearest_queries_total",
				Help: "Total nearest-station queries by path and result",
			},
			[]string{"path", "result"},
		)
		nearestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "nearest_latency_seconds",
				Help:    "Nearest-station query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		)

		importRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_rows_total",
				Help: "Total imported spreadsheet rows by outcome",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			candidateChecks,
			candidateCheckLatency,
			duplicateIndexRuns,
			duplicateIndexFlagged,
			resolveRuns,
			resolveLatency,
			resolveDeletes,
			nearestQueries,
			nearestLatency,
			importRows,
		)
	})
}

// ObserveCandidateCheck records one pre-insert check outcome.
func ObserveCandidateCheck(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if candidateChecks != nil {
		candidateChecks.WithLabelValues(result).Inc()
	}
	if candidateCheckLatency != nil {
		candidateCheckLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveDuplicateIndex records one pairwise index pass.
func ObserveDuplicateIndex(result string, flagged int) {
	if result == "" {
		result = ResultSuccess
	}
	if duplicateIndexRuns != nil {
		duplicateIndexRuns.WithLabelValues(result).Inc()
	}
	if flagged > 0 && duplicateIndexFlagged != nil {
		duplicateIndexFlagged.Add(float64(flagged))
	}
}

// ObserveResolve records one resolution run.
func ObserveResolve(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if resolveRuns != nil {
		resolveRuns.WithLabelValues(result).Inc()
	}
	if resolveLatency != nil {
		resolveLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncResolveDelete counts one per-item delete by result.
func IncResolveDelete(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if resolveDeletes != nil {
		resolveDeletes.WithLabelValues(result).Inc()
	}
}

// ObserveNearest records one nearest-station query.
func ObserveNearest(path, result string, duration time.Duration) {
	if path == "" {
		path = PathIndexed
	}
	if result == "" {
		result = ResultSuccess
	}
	if nearestQueries != nil {
		nearestQueries.WithLabelValues(path, result).Inc()
	}
	if nearestLatency != nil {
		nearestLatency.WithLabelValues(path).Observe(duration.Seconds())
	}
}

// IncImportRow counts one spreadsheet row by outcome.
func IncImportRow(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if importRows != nil {
		importRows.WithLabelValues(result).Inc()
	}
}

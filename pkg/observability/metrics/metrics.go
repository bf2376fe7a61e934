package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	filesProcessed    atomic.Int64
	filesRejected     atomic.Int64
	registryRecords   atomic.Int64
	registryPatients  atomic.Int64
	lastRunUnix       atomic.Int64
	aggregateRequests atomic.Int64
)

// ObserveRun records the outcome of the latest pipeline run.
func ObserveRun(processed, rejected, records, patients int, completedUnix int64) {
	filesProcessed.Store(int64(processed))
	filesRejected.Store(int64(rejected))
	registryRecords.Store(int64(records))
	registryPatients.Store(int64(patients))
	lastRunUnix.Store(completedUnix)
}

// ObserveAggregateRequest counts one served aggregates API request.
func ObserveAggregateRequest() {
	aggregateRequests.Add(1)
}

// WritePrometheus renders the current gauges in Prometheus text format.
// Everything here is run-level and aggregate-level; no patient-level
// value is ever exposed as a metric.
func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP icuregistry_pipeline_files_processed Number of source files merged in the latest run.\n")
	fmt.Fprintf(w, "# TYPE icuregistry_pipeline_files_processed gauge\n")
	fmt.Fprintf(w, "icuregistry_pipeline_files_processed %d\n", filesProcessed.Load())

	fmt.Fprintf(w, "# HELP icuregistry_pipeline_files_rejected Number of source files rejected in the latest run.\n")
	fmt.Fprintf(w, "# TYPE icuregistry_pipeline_files_rejected gauge\n")
	fmt.Fprintf(w, "icuregistry_pipeline_files_rejected %d\n", filesRejected.Load())

	fmt.Fprintf(w, "# HELP icuregistry_registry_records Total admission records in the master registry.\n")
	fmt.Fprintf(w, "# TYPE icuregistry_registry_records gauge\n")
	fmt.Fprintf(w, "icuregistry_registry_records %d\n", registryRecords.Load())

	fmt.Fprintf(w, "# HELP icuregistry_registry_patients Unique patients in the master registry.\n")
	fmt.Fprintf(w, "# TYPE icuregistry_registry_patients gauge\n")
	fmt.Fprintf(w, "icuregistry_registry_patients %d\n", registryPatients.Load())

	fmt.Fprintf(w, "# HELP icuregistry_pipeline_last_run_timestamp_seconds Unix time of the latest completed run.\n")
	fmt.Fprintf(w, "# TYPE icuregistry_pipeline_last_run_timestamp_seconds gauge\n")
	fmt.Fprintf(w, "icuregistry_pipeline_last_run_timestamp_seconds %d\n", lastRunUnix.Load())

	fmt.Fprintf(w, "# HELP icuregistry_aggregates_requests_total Aggregates API requests served since start.\n")
	fmt.Fprintf(w, "# TYPE icuregistry_aggregates_requests_total counter\n")
	fmt.Fprintf(w, "icuregistry_aggregates_requests_total %d\n", aggregateRequests.Load())
}

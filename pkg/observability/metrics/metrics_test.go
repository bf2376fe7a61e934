package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWritePrometheusReflectsObservedRun(t *testing.T) {
	ObserveRun(3, 1, 120, 87, 1700000000)
	ObserveAggregateRequest()

	rec := httptest.NewRecorder()
	WritePrometheus(rec)

	body := rec.Body.String()
	for _, line := range []string{
		"icuregistry_pipeline_files_processed 3",
		"icuregistry_pipeline_files_rejected 1",
		"icuregistry_registry_records 120",
		"icuregistry_registry_patients 87",
		"icuregistry_pipeline_last_run_timestamp_seconds 1700000000",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected %q in output:\n%s", line, body)
		}
	}
	if rec.Header().Get("Content-Type") != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestObserveRunOverwritesPreviousValues(t *testing.T) {
	ObserveRun(5, 2, 10, 8, 100)
	ObserveRun(1, 0, 11, 9, 200)

	rec := httptest.NewRecorder()
	WritePrometheus(rec)

	body := rec.Body.String()
	if !strings.Contains(body, "icuregistry_pipeline_files_processed 1") ||
		!strings.Contains(body, "icuregistry_pipeline_files_rejected 0") {
		t.Fatalf("gauges must track the latest run only:\n%s", body)
	}
}

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New(Config{Enabled: true, Namespace: "test"})
	m.FileProcessed("trip_events", "SUCCEEDED")
	m.FileProcessed("trip_events", "SUCCEEDED")
	m.LoadCompleted("trip_events", 5, 40)
	m.RecordsCleansed(6, 4)
	m.ObserveStatement("merge", "FINISHED", 20*time.Millisecond)
	m.NotificationFailed()

	if got := testutil.ToFloat64(m.FilesProcessed.WithLabelValues("trip_events", "SUCCEEDED")); got != 2 {
		t.Fatalf("files processed: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.FinalRows.WithLabelValues("trip_events")); got != 40 {
		t.Fatalf("final rows: want=40 got=%v", got)
	}
	if got := testutil.ToFloat64(m.CleansedRecords.WithLabelValues("ProcessingFailed")); got != 4 {
		t.Fatalf("failed records: want=4 got=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "test_files_processed_total") {
		t.Fatalf("exposition misses the files counter:\n%s", rec.Body.String())
	}
}

func TestNilAndDisabledMetrics(t *testing.T) {
	var m *Metrics
	m.FileProcessed("d", "s")
	m.StageRecorded("s", "FAILED")
	if m.Registry() != nil {
		t.Fatalf("nil metrics has no registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("nil handler: status=%d", rec.Code)
	}

	off := New(Config{})
	off.LoadCompleted("d", 1, 1)
	if n, _ := off.Registry().Gather(); len(n) != 0 {
		t.Fatalf("disabled metrics must register nothing, got %d families", len(n))
	}
}

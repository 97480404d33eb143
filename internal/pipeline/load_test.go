package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go-trip-pipeline/internal/model"
)

func newTestLoader(exec *fakeExec) *Loader {
	return NewLoader(exec, newFakeClock(), LoaderConfig{StatementTimeout: time.Minute}, nil, nil)
}

func TestLoadRunsStepsInOrder(t *testing.T) {
	exec := newFakeExec()
	exec.counts["trip_events_staging"] = 3
	exec.counts["trip_events"] = 10
	ds := testDataset()

	res, err := newTestLoader(exec).Load(context.Background(), ds, "data/sink/a.parquet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StagedRows != 3 || res.FinalRows != 10 {
		t.Fatalf("counts: want staged=3 final=10 got %+v", res)
	}

	sqls := exec.sqls()
	want := []string{
		"DELETE FROM trip_events_staging",
		"INSERT INTO trip_events_staging (trip_id, pickup_datetime, fare_amount) SELECT trip_id, pickup_datetime, fare_amount FROM read_parquet('data/sink/a.parquet')",
		"SELECT COUNT(*) FROM trip_events_staging",
		"INSERT INTO trip_events (",
		"DELETE FROM trip_events_staging",
		"SELECT COUNT(*) FROM trip_events",
	}
	if len(sqls) != len(want) {
		t.Fatalf("statements: want=%d got=%d: %q", len(want), len(sqls), sqls)
	}
	for i := range want {
		if !strings.HasPrefix(sqls[i], want[i]) {
			t.Fatalf("statement %d: want prefix=%q got=%q", i, want[i], sqls[i])
		}
	}
}

func TestLoadEmptySource(t *testing.T) {
	exec := newFakeExec()
	res, err := newTestLoader(exec).Load(context.Background(), testDataset(), "a.parquet")

	var empty *EmptySourceError
	if !errors.As(err, &empty) {
		t.Fatalf("want EmptySourceError, got %v", err)
	}
	if !errors.Is(err, ErrEmptySource) {
		t.Fatalf("EmptySourceError must match ErrEmptySource")
	}
	if res.StagedRows != 0 {
		t.Fatalf("staged rows: want=0 got=%d", res.StagedRows)
	}
	for _, sql := range exec.sqls() {
		if strings.HasPrefix(sql, "INSERT INTO trip_events (") {
			t.Fatalf("merge must not run for an empty source")
		}
	}
}

func TestLoadFailedStatement(t *testing.T) {
	exec := newFakeExec()
	exec.counts["trip_events_staging"] = 1
	exec.fail["INSERT INTO trip_events ("] = "constraint violated"

	_, err := newTestLoader(exec).Load(context.Background(), testDataset(), "a.parquet")
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("want LoadError, got %v", err)
	}
	if le.Step != StepMerge || le.Status != model.StatementFailed {
		t.Fatalf("want merge/FAILED, got %s/%s", le.Step, le.Status)
	}
	if !strings.Contains(err.Error(), "constraint violated") {
		t.Fatalf("error must carry the warehouse message: %v", err)
	}
}

func TestLoadTimeout(t *testing.T) {
	exec := newFakeExec()
	exec.hang = "INSERT INTO trip_events_staging"

	_, err := newTestLoader(exec).Load(context.Background(), testDataset(), "a.parquet")
	var le *LoadError
	if !errors.As(err, &le) || le.Step != StepCopy {
		t.Fatalf("want copy LoadError, got %v", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("want TimeoutError inside LoadError, got %v", err)
	}
	if te.LastStatus != model.StatementRunning {
		t.Fatalf("last status: want=%q got=%q", model.StatementRunning, te.LastStatus)
	}
	if !errors.Is(err, ErrStatementTimeout) {
		t.Fatalf("timeout must match ErrStatementTimeout")
	}
}

func TestLoadSubmitError(t *testing.T) {
	exec := newFakeExec()
	exec.submitErr = errors.New("connection refused")

	_, err := newTestLoader(exec).Load(context.Background(), testDataset(), "a.parquet")
	var le *LoadError
	if !errors.As(err, &le) || le.Step != StepClearStaging {
		t.Fatalf("want clear_staging LoadError, got %v", err)
	}
}

func TestLoadRejectsUnsafeDataset(t *testing.T) {
	ds := testDataset()
	ds.FinalTable = "trips; DROP TABLE x"
	_, err := newTestLoader(newFakeExec()).Load(context.Background(), ds, "a.parquet")
	var le *LoadError
	if !errors.As(err, &le) || le.Step != "validate" {
		t.Fatalf("want validate LoadError, got %v", err)
	}
}

func TestMergeSQL(t *testing.T) {
	ds := testDataset()
	ds.NaturalKey = []string{"trip_id", "pickup_datetime"}
	got := MergeSQL(ds)

	for _, want := range []string{
		"INSERT INTO trip_events (trip_id, pickup_datetime, fare_amount)",
		"SELECT s.trip_id, CAST(s.pickup_datetime AS TIMESTAMP), s.fare_amount",
		"PARTITION BY s.trip_id, CAST(s.pickup_datetime AS TIMESTAMP)",
		"FROM trip_events_staging s",
		"WHERE s.merge_rn = 1",
		"NOT EXISTS (SELECT 1 FROM trip_events t WHERE t.trip_id IS NOT DISTINCT FROM s.trip_id AND t.pickup_datetime IS NOT DISTINCT FROM CAST(s.pickup_datetime AS TIMESTAMP))",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("merge SQL missing %q:\n%s", want, got)
		}
	}
}

func TestCopySQL(t *testing.T) {
	ds := testDataset()
	ds.StagingColumns = nil
	ds.SourceFormat = ""

	got, err := CopySQL(ds, "gs://bucket/raw/o'brien.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "INSERT INTO trip_events_staging SELECT * FROM read_csv_auto('gs://bucket/raw/o''brien.csv', header=true)"
	if got != want {
		t.Fatalf("want=%q got=%q", want, got)
	}

	if _, err := CopySQL(ds, "raw/file.avro"); err == nil {
		t.Fatalf("expected an error for an unsupported format")
	}
}

func TestValidateDataset(t *testing.T) {
	ds := testDataset()
	if err := ValidateDataset(ds); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ds.NaturalKey = []string{"vendorid"}
	if err := ValidateDataset(ds); err == nil {
		t.Fatalf("natural key outside the final columns must be rejected")
	}

	ds = testDataset()
	ds.StagingTable = ds.FinalTable
	if err := ValidateDataset(ds); err == nil {
		t.Fatalf("identical staging and final tables must be rejected")
	}
}

package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"go-trip-pipeline/internal/model"
)

func event(id, pickup string) string {
	return fmt.Sprintf(`{"trip_id":%q,"pickup_datetime":%q,"dropoff_datetime":%q,"passenger_count":1,"fare_amount":12.5,"payment_type":1}`,
		id, pickup, pickup)
}

func TestExportWritesOneFilePerPartition(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()
	c := NewCleanser(NewValidator(clock), nil, 2, nil, nil)
	e := NewExporter(dir, clock, nil)

	in := []model.CleanseInput{
		{RecordID: "1", Data: []byte(event("t1", "2024-12-13T08:05:00Z"))},
		{RecordID: "2", Data: []byte(event("t2", "2024-12-13T08:55:00Z"))},
		{RecordID: "3", Data: []byte(event("t3", "2024-12-13T09:10:00Z"))},
		{RecordID: "4", Data: []byte(`{"trip_id":"bad"}`)},
	}
	results, err := e.Export(context.Background(), c.CleanseBatch(context.Background(), in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("partitions: want=2 got=%d", len(results))
	}
	if results[0].Partition != "year=2024/month=12/day=13/hour=08" || results[0].RecordCount != 2 {
		t.Fatalf("first partition: got %+v", results[0])
	}
	if results[1].Partition != "year=2024/month=12/day=13/hour=09" || results[1].RecordCount != 1 {
		t.Fatalf("second partition: got %+v", results[1])
	}

	rows, err := parquet.ReadFile[model.TripRecord](results[0].Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 2 || rows[0].TripID != "t1" || rows[1].PickupDatetime != "2024-12-13 08:55:00" {
		t.Fatalf("rows: got %+v", rows)
	}

	if !strings.HasPrefix(filepath.Base(results[0].Path), "part-") || filepath.Ext(results[0].Path) != ".parquet" {
		t.Fatalf("file name: got %s", results[0].Path)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*", "*", "*", "*", "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temporary files left behind: %v", matches)
	}
}

func TestReplayReader(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()
	r := NewReplayer(NewCleanser(NewValidator(clock), nil, 2, nil, nil), NewExporter(dir, clock, nil), 2, nil, nil)

	input := strings.Join([]string{
		event("t1", "2024-12-13T08:05:00Z"),
		"",
		event("t2", "2024-12-13T08:06:00Z"),
		`{"trip_id":"broken"}`,
		event("t3", "2024-12-13T10:00:00Z"),
	}, "\n")

	res, err := r.ReplayReader(context.Background(), strings.NewReader(input), "events.ndjson")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Records != 4 || res.Ok != 3 || res.Failed != 1 {
		t.Fatalf("counts: got %+v", res)
	}
	if len(res.Rejects) != 1 || res.Rejects[0].RecordID != "events.ndjson:4" {
		t.Fatalf("rejects: got %+v", res.Rejects)
	}
	// batch size 2: [t1,t2] -> hour 08, [broken,t3] -> hour 10
	if len(res.Files) != 2 {
		t.Fatalf("files: want=2 got=%d", len(res.Files))
	}
}

func TestReplayReaderRejectsOversizedLine(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()
	r := NewReplayer(NewCleanser(NewValidator(clock), nil, 2, nil, nil), NewExporter(dir, clock, nil), 10, nil, nil)

	huge := `{"trip_id":"` + strings.Repeat("x", maxLineSize) + `"}`
	input := strings.Join([]string{
		event("t1", "2024-12-13T08:05:00Z"),
		huge,
		event("t2", "2024-12-13T08:06:00Z"),
	}, "\n") + "\n"

	res, err := r.ReplayReader(context.Background(), strings.NewReader(input), "events.ndjson")
	if err != nil {
		t.Fatalf("an oversized line must not abort the replay: %v", err)
	}
	if res.Records != 3 || res.Ok != 2 || res.Failed != 1 {
		t.Fatalf("counts: got %+v", res)
	}
	if len(res.Rejects) != 1 || res.Rejects[0].RecordID != "events.ndjson:2" || res.Rejects[0].Result != model.ResultProcessingFailed {
		t.Fatalf("rejects: got %+v", res.Rejects)
	}
	if len(res.Rejects[0].Data) != maxLineSize {
		t.Fatalf("reject data: want=%d bytes got=%d", maxLineSize, len(res.Rejects[0].Data))
	}
}

func TestReadLine(t *testing.T) {
	br := bufio.NewReaderSize(strings.NewReader("abcd\nabcdef\r\n\nxyz"), 16)
	want := []struct {
		line string
		size int
		err  error
	}{
		{"abcd", 4, nil},
		{"abcd", 7, nil},
		{"", 0, nil},
		{"xyz", 3, io.EOF},
	}
	for i, w := range want {
		line, size, err := readLine(br, 4)
		if string(line) != w.line || size != w.size || err != w.err {
			t.Fatalf("line %d: want=(%q,%d,%v) got=(%q,%d,%v)", i, w.line, w.size, w.err, line, size, err)
		}
	}
}

func TestReplayOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events.ndjson" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, event("t1", "2024-12-13T08:05:00Z"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	clock := newFakeClock()
	r := NewReplayer(NewCleanser(NewValidator(clock), nil, 2, nil, nil), NewExporter(dir, clock, nil), 10, nil, nil)

	res, err := r.Replay(context.Background(), srv.URL+"/events.ndjson")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ok != 1 || len(res.Files) != 1 {
		t.Fatalf("got %+v", res)
	}
	if _, err := os.Stat(res.Files[0].Path); err != nil {
		t.Fatalf("exported file missing: %v", err)
	}

	if _, err := r.Replay(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected an error for a 404 source")
	}
}

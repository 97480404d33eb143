package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go-trip-pipeline/internal/model"
)

func TestCleanseBatchOneOutputPerInput(t *testing.T) {
	c := NewCleanser(NewValidator(newFakeClock()), nil, 3, nil, nil)

	var in []model.CleanseInput
	for i := 0; i < 10; i++ {
		data := []byte(validEvent)
		if i%3 == 0 {
			data = []byte(`{"trip_id":"broken"}`)
		}
		in = append(in, model.CleanseInput{RecordID: fmt.Sprintf("r-%d", i), Data: data})
	}

	out := c.CleanseBatch(context.Background(), in)
	if len(out) != len(in) {
		t.Fatalf("outputs: want=%d got=%d", len(in), len(out))
	}
	var ok, failed int
	for i, o := range out {
		if o.RecordID != in[i].RecordID {
			t.Fatalf("order: want=%q got=%q", in[i].RecordID, o.RecordID)
		}
		switch o.Result {
		case model.ResultOk:
			ok++
			if o.Metadata == nil || o.Metadata.PartitionKeys.Hour != "8" {
				t.Fatalf("%s: missing partition keys: %+v", o.RecordID, o.Metadata)
			}
			var rec model.TripRecord
			if err := json.Unmarshal(o.Data, &rec); err != nil {
				t.Fatalf("%s: encoded record is not JSON: %v", o.RecordID, err)
			}
			if !strings.HasSuffix(string(o.Data), "\n") {
				t.Fatalf("%s: encoded record must end with a newline", o.RecordID)
			}
		case model.ResultProcessingFailed:
			failed++
			if string(o.Data) != string(in[i].Data) {
				t.Fatalf("%s: failed record payload changed", o.RecordID)
			}
		default:
			t.Fatalf("%s: unexpected result %q", o.RecordID, o.Result)
		}
	}
	if ok != 6 || failed != 4 {
		t.Fatalf("results: want ok=6 failed=4 got ok=%d failed=%d", ok, failed)
	}
}

func TestCleanseBatchEmpty(t *testing.T) {
	c := NewCleanser(NewValidator(newFakeClock()), nil, 2, nil, nil)
	if out := c.CleanseBatch(context.Background(), nil); len(out) != 0 {
		t.Fatalf("want no outputs, got %d", len(out))
	}
}

func TestCleanseRecordEncodingFailure(t *testing.T) {
	encode := func(model.TripRecord) ([]byte, error) { return nil, errors.New("sink schema mismatch") }
	c := NewCleanser(NewValidator(newFakeClock()), encode, 1, nil, nil)

	out := c.CleanseRecord(model.CleanseInput{RecordID: "r-1", Data: []byte(validEvent)})
	if out.Result != model.ResultProcessingFailed {
		t.Fatalf("result: want=%q got=%q", model.ResultProcessingFailed, out.Result)
	}
	if string(out.Data) != validEvent {
		t.Fatalf("payload must be returned untouched")
	}
	if !strings.Contains(out.Reason, "encode record r-1") {
		t.Fatalf("reason: got %q", out.Reason)
	}
}

func TestCleanseBatchCancelled(t *testing.T) {
	c := NewCleanser(NewValidator(newFakeClock()), nil, 2, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := []model.CleanseInput{{RecordID: "a", Data: []byte(validEvent)}, {RecordID: "b", Data: []byte(validEvent)}}
	out := c.CleanseBatch(ctx, in)
	if len(out) != 2 {
		t.Fatalf("outputs: want=2 got=%d", len(out))
	}
	for _, o := range out {
		if o.RecordID == "" || (o.Result != model.ResultOk && o.Result != model.ResultProcessingFailed) {
			t.Fatalf("every input must be answered: %+v", o)
		}
	}
}

func TestCleanseEncodedIsolatesUndecodableRecords(t *testing.T) {
	c := NewCleanser(NewValidator(newFakeClock()), nil, 2, nil, nil)
	in := []model.EncodedRecord{
		{RecordID: "a", Data: "%%%"},
		{RecordID: "b", Data: base64.StdEncoding.EncodeToString([]byte(validEvent))},
		{RecordID: "c", Data: base64.StdEncoding.EncodeToString([]byte(`{"trip_id":"x"}`))},
	}

	out, decoded := c.CleanseEncoded(context.Background(), in)
	if len(out) != 3 || len(decoded) != 3 {
		t.Fatalf("outputs: want=3 got=%d/%d", len(out), len(decoded))
	}
	wantResults := []string{model.ResultProcessingFailed, model.ResultOk, model.ResultProcessingFailed}
	for i, want := range wantResults {
		if out[i].RecordID != in[i].RecordID || out[i].Result != want || decoded[i].Result != want {
			t.Fatalf("record %d: want=%s got=%+v", i, want, out[i])
		}
	}
	if out[0].Data != "%%%" || out[2].Data != in[2].Data {
		t.Fatalf("failed records must return their data as sent: %q %q", out[0].Data, out[2].Data)
	}
	if !strings.Contains(decoded[0].Reason, "base64") {
		t.Fatalf("reason: got %q", decoded[0].Reason)
	}
	raw, err := base64.StdEncoding.DecodeString(out[1].Data)
	if err != nil || !strings.HasSuffix(string(raw), "\n") || decoded[1].Record == nil {
		t.Fatalf("ok record: data=%q err=%v", out[1].Data, err)
	}
}

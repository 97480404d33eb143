package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/metrics"
	"go-trip-pipeline/internal/model"
)

// Encoder renders a canonical record for the delivery sink.
type Encoder func(rec model.TripRecord) ([]byte, error)

// JSONLineEncoder encodes a record as one JSON document followed by a newline.
func JSONLineEncoder(rec model.TripRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Cleanser applies the validator to batches of opaque records. A malformed
// record is tagged ProcessingFailed; it never fails the batch.
type Cleanser struct {
	validator *Validator
	encode    Encoder
	workers   int
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewCleanser creates a cleanser running up to workers records concurrently.
func NewCleanser(validator *Validator, encode Encoder, workers int, log *logger.Logger, m *metrics.Metrics) *Cleanser {
	if encode == nil {
		encode = JSONLineEncoder
	}
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cleanser{
		validator: validator,
		encode:    encode,
		workers:   workers,
		log:       log.With("component", "Cleanser"),
		metrics:   m,
	}
}

// CleanseRecord cleanses a single record.
func (c *Cleanser) CleanseRecord(in model.CleanseInput) model.CleanseOutput {
	rec, err := c.validator.Validate(in.Data)
	if err == nil {
		var encoded []byte
		encoded, err = c.encode(rec)
		if err == nil {
			keys := PartitionKeysFor(rec)
			return model.CleanseOutput{
				RecordID: in.RecordID,
				Result:   model.ResultOk,
				Data:     encoded,
				Metadata: &model.CleanseMeta{PartitionKeys: keys},
				Record:   &rec,
			}
		}
		err = &EncodingError{RecordID: in.RecordID, Err: err}
	}

	kind := "validation"
	var encErr *EncodingError
	if errors.As(err, &encErr) {
		kind = "encoding"
	}
	c.log.Warn("record failed cleansing",
		"record_id", in.RecordID,
		"kind", kind,
		"error", err,
	)
	return model.CleanseOutput{
		RecordID: in.RecordID,
		Result:   model.ResultProcessingFailed,
		Data:     in.Data,
		Reason:   err.Error(),
	}
}

// CleanseBatch returns exactly one output per input, in input order.
func (c *Cleanser) CleanseBatch(ctx context.Context, in []model.CleanseInput) []model.CleanseOutput {
	out := make([]model.CleanseOutput, len(in))
	if len(in) == 0 {
		return out
	}

	workerCount := c.workers
	if workerCount > len(in) {
		workerCount = len(in)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out[idx] = c.CleanseRecord(in[idx])
			}
		}()
	}

	cancelled := false
	for idx := range in {
		if !cancelled {
			select {
			case <-ctx.Done():
				cancelled = true
			case jobs <- idx:
				continue
			}
		}
		// Records not handed to a worker are still answered, tagged failed
		// with their payload intact.
		out[idx] = model.CleanseOutput{
			RecordID: in[idx].RecordID,
			Result:   model.ResultProcessingFailed,
			Data:     in[idx].Data,
			Reason:   ctx.Err().Error(),
		}
	}
	close(jobs)
	wg.Wait()

	var ok, failed int
	for _, o := range out {
		if o.Result == model.ResultOk {
			ok++
		} else {
			failed++
		}
	}
	c.metrics.RecordsCleansed(ok, failed)
	c.log.Info("cleansed batch", "records", len(in), "ok", ok, "failed", failed)
	return out
}

// CleanseEncoded cleanses base64 records. A record whose data does not decode
// is tagged ProcessingFailed without reaching the validator. The second
// result holds the decoded outputs, in the same order, for the exporter.
func (c *Cleanser) CleanseEncoded(ctx context.Context, in []model.EncodedRecord) ([]model.EncodedOutput, []model.CleanseOutput) {
	decoded := make([]model.CleanseOutput, len(in))
	inputs := make([]model.CleanseInput, 0, len(in))
	positions := make([]int, 0, len(in))
	for i, r := range in {
		raw, err := base64.StdEncoding.DecodeString(r.Data)
		if err != nil {
			c.log.Warn("record failed cleansing", "record_id", r.RecordID, "kind", "decoding", "error", err)
			decoded[i] = model.CleanseOutput{
				RecordID: r.RecordID,
				Result:   model.ResultProcessingFailed,
				Data:     []byte(r.Data),
				Reason:   "invalid base64 data: " + err.Error(),
			}
			continue
		}
		inputs = append(inputs, model.CleanseInput{RecordID: r.RecordID, Data: raw})
		positions = append(positions, i)
	}
	for j, o := range c.CleanseBatch(ctx, inputs) {
		decoded[positions[j]] = o
	}

	out := make([]model.EncodedOutput, len(in))
	for i, o := range decoded {
		out[i] = model.EncodedOutput{RecordID: o.RecordID, Result: o.Result, Metadata: o.Metadata}
		if o.Result == model.ResultOk {
			out[i].Data = base64.StdEncoding.EncodeToString(o.Data)
		} else {
			out[i].Data = in[i].Data
		}
	}
	return out, decoded
}

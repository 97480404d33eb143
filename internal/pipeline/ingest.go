package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

const maxLineSize = 1 << 20

// ReplayResult summarizes one replay of newline-delimited raw events.
type ReplayResult struct {
	Source  string                `json:"source"`
	Records int                   `json:"records"`
	Ok      int                   `json:"ok"`
	Failed  int                   `json:"failed"`
	Files   []ExportResult        `json:"files"`
	Rejects []model.CleanseOutput `json:"-"`
}

// Replayer feeds raw NDJSON events through the cleanser and writes the
// accepted ones to the partitioned sink.
type Replayer struct {
	cleanser  *Cleanser
	exporter  *Exporter
	batchSize int
	client    *resty.Client
	log       *logger.Logger
}

// NewReplayer creates a replayer. A nil client gets a default resty client.
func NewReplayer(cleanser *Cleanser, exporter *Exporter, batchSize int, client *resty.Client, log *logger.Logger) *Replayer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if client == nil {
		client = resty.New().SetRetryCount(2)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Replayer{
		cleanser:  cleanser,
		exporter:  exporter,
		batchSize: batchSize,
		client:    client,
		log:       log.With("component", "Replayer"),
	}
}

// Replay reads events from a local path or an http(s) URL.
func (r *Replayer) Replay(ctx context.Context, source string) (ReplayResult, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := r.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(source)
		if err != nil {
			return ReplayResult{Source: source}, fmt.Errorf("failed to GET %s: %w", source, err)
		}
		body := resp.RawBody()
		defer body.Close()
		if resp.IsError() {
			return ReplayResult{Source: source}, fmt.Errorf("failed to GET %s: %s", source, resp.Status())
		}
		return r.ReplayReader(ctx, body, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return ReplayResult{Source: source}, fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer f.Close()
	return r.ReplayReader(ctx, f, source)
}

// ReplayReader cleanses every non-blank line of rd. Record ids are
// "<source>:<line>". A line longer than maxLineSize is rejected as
// ProcessingFailed and the replay continues.
func (r *Replayer) ReplayReader(ctx context.Context, rd io.Reader, source string) (ReplayResult, error) {
	res := ReplayResult{Source: source}
	br := bufio.NewReaderSize(rd, 64*1024)

	batch := make([]model.CleanseInput, 0, r.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		outputs := r.cleanser.CleanseBatch(ctx, batch)
		for _, o := range outputs {
			if o.Result == model.ResultOk {
				res.Ok++
			} else {
				res.Failed++
				res.Rejects = append(res.Rejects, o)
			}
		}
		files, err := r.exporter.Export(ctx, outputs)
		res.Files = append(res.Files, files...)
		batch = batch[:0]
		return err
	}

	line := 0
	for {
		chunk, size, err := readLine(br, maxLineSize)
		if err != nil && err != io.EOF {
			return res, fmt.Errorf("read %s: %w", source, err)
		}
		if err == io.EOF && size == 0 {
			break
		}
		line++
		id := source + ":" + strconv.Itoa(line)

		switch raw := bytes.TrimSpace(chunk); {
		case size > maxLineSize:
			r.log.Warn("line too long",
				"record_id", id,
				"size", size,
			)
			res.Records++
			res.Failed++
			res.Rejects = append(res.Rejects, model.CleanseOutput{
				RecordID: id,
				Result:   model.ResultProcessingFailed,
				Data:     append([]byte(nil), raw...),
				Reason:   fmt.Sprintf("line of %d bytes exceeds %d", size, maxLineSize),
			})
		case len(raw) > 0:
			res.Records++
			batch = append(batch, model.CleanseInput{
				RecordID: id,
				Data:     append([]byte(nil), raw...),
			})
			if len(batch) == r.batchSize {
				if err := flush(); err != nil {
					return res, err
				}
			}
		}
		if err == io.EOF {
			break
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	r.log.Info("replay complete",
		"source", source,
		"records", res.Records,
		"ok", res.Ok,
		"failed", res.Failed,
		"files", len(res.Files),
	)
	return res, nil
}

// readLine reads one line and returns at most limit bytes of it along with
// its full size, newline excluded. The rest of an oversized line is drained.
func readLine(br *bufio.Reader, limit int) ([]byte, int, error) {
	var buf []byte
	size := 0
	for {
		chunk, err := br.ReadSlice('\n')
		size += len(chunk)
		if room := limit - len(buf); room > 0 {
			if len(chunk) > room {
				buf = append(buf, chunk[:room]...)
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if n := len(chunk); n > 0 && chunk[n-1] == '\n' {
			size--
			if n := len(buf); n > 0 && buf[n-1] == '\n' {
				buf = buf[:n-1]
			}
		}
		return buf, size, err
	}
}

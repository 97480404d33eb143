package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"go-trip-pipeline/internal/app"
	"go-trip-pipeline/internal/config"
	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

func main() {
	configPath := flag.String("config", os.Getenv("PIPELINE_CONFIG"), "path to the YAML config file")
	mode := flag.String("mode", "streaming", "streaming, batch or replay")
	input := flag.String("input", "", "replay: NDJSON file path or http(s) URL")
	objects := flag.String("objects", "", "batch: comma-separated object keys")
	bucket := flag.String("bucket", "", "batch: bucket of -objects (defaults to batch.bucket)")
	rejects := flag.String("rejects", "", "replay: write rejected records to this NDJSON file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Service.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *mode, *input, *objects, *bucket, *rejects); err != nil {
		log.Error("run failed", "mode", *mode, "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, mode, input, objects, bucket, rejects string) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	switch mode {
	case "streaming":
		summary, err := a.Orchestrator.RunStreaming(ctx)
		printJSON(summary)
		return err

	case "batch":
		if bucket == "" {
			bucket = cfg.Batch.Bucket
		}
		var refs []model.ObjectRef
		for _, key := range strings.Split(objects, ",") {
			if key = strings.TrimSpace(key); key != "" {
				refs = append(refs, model.ObjectRef{Bucket: bucket, Key: key})
			}
		}
		if len(refs) == 0 {
			return fmt.Errorf("-objects is required in batch mode")
		}
		summary, err := a.Orchestrator.RunBatch(ctx, refs)
		printJSON(summary)
		return err

	case "replay":
		if input == "" {
			return fmt.Errorf("-input is required in replay mode")
		}
		res, err := a.Replayer.Replay(ctx, input)
		printJSON(res)
		if err != nil {
			return err
		}
		if rejects != "" && len(res.Rejects) > 0 {
			return writeRejects(rejects, res.Rejects)
		}
		return nil

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// writeRejects writes one line per rejected record with its original payload,
// ready to be fixed and replayed.
func writeRejects(path string, rejects []model.CleanseOutput) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create rejects file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, o := range rejects {
		line := struct {
			RecordID string          `json:"recordId"`
			Reason   string          `json:"reason"`
			Data     json.RawMessage `json:"data"`
		}{o.RecordID, o.Reason, rawOrString(o.Data)}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

// rawOrString keeps valid JSON payloads as-is and quotes anything else.
func rawOrString(b []byte) json.RawMessage {
	if json.Valid(b) {
		return b
	}
	q, _ := json.Marshal(string(b))
	return q
}

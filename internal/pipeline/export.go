package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/pkg/utils"
)

// ExportResult describes one partition file written by the exporter.
type ExportResult struct {
	Partition   string    `json:"partition"`
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	ExportedAt  time.Time `json:"exported_at"`
}

// Exporter writes cleansed records as parquet files under hive-style hour
// partitions, the layout streaming discovery lists.
type Exporter struct {
	om    *utils.OutputManager
	clock Clock
	log   *logger.Logger
}

// NewExporter creates an exporter rooted at baseDir.
func NewExporter(baseDir string, clock Clock, log *logger.Logger) *Exporter {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{
		om:    utils.NewOutputManager(baseDir),
		clock: clock,
		log:   log.With("component", "Exporter"),
	}
}

// BaseDir returns the root of the partition tree.
func (e *Exporter) BaseDir() string { return e.om.BaseOutputDir }

// Export writes the Ok outputs, one new file per partition. Failed outputs
// are ignored; the caller keeps them for replay.
func (e *Exporter) Export(ctx context.Context, outputs []model.CleanseOutput) ([]ExportResult, error) {
	groups := make(map[string][]model.TripRecord)
	for _, o := range outputs {
		if o.Result != model.ResultOk || o.Record == nil {
			continue
		}
		r := o.Record
		prefix := utils.PartitionPrefix(r.Year, r.Month, r.Day, r.Hour)
		groups[prefix] = append(groups[prefix], *r)
	}

	prefixes := make([]string, 0, len(groups))
	for p := range groups {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	results := make([]ExportResult, 0, len(prefixes))
	for _, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		rows := groups[prefix]
		path, err := e.om.GetOutputFilePath(prefix, "part-"+uuid.NewString()+".parquet")
		if err != nil {
			return results, err
		}
		if err := writeParquet(path, rows); err != nil {
			return results, fmt.Errorf("export %s: %w", prefix, err)
		}
		results = append(results, ExportResult{
			Partition:   prefix,
			Path:        path,
			RecordCount: len(rows),
			ExportedAt:  e.clock.Now().UTC(),
		})
		e.log.Info("partition file written", "partition", prefix, "path", path, "records", len(rows))
	}
	return results, nil
}

// writeParquet writes rows next to path and renames the file into place, so
// listers never observe a partial file.
func writeParquet(path string, rows []model.TripRecord) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := parquet.NewGenericWriter[model.TripRecord](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

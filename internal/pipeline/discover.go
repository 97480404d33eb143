package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/pkg/utils"
)

// DefaultExtensions are the data-file suffixes discovery admits.
var DefaultExtensions = []string{".parquet"}

// Scope selects the objects one discovery call considers.
type Scope struct {
	Prefix     string
	Extensions []string // empty uses the discoverer's defaults
}

// Discoverer lists recently modified data files and drops the ones the
// ledger already knows.
type Discoverer struct {
	lister     ObjectLister
	ledger     *Ledger
	extensions []string
	clock      Clock
	log        *logger.Logger
}

// NewDiscoverer creates a discoverer. Nil extensions admit DefaultExtensions.
func NewDiscoverer(lister ObjectLister, ledger *Ledger, extensions []string, clock Clock, log *logger.Logger) *Discoverer {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Discoverer{
		lister:     lister,
		ledger:     ledger,
		extensions: extensions,
		clock:      clock,
		log:        log.With("component", "Discoverer"),
	}
}

// PipelineIDFor is the ledger key of a source object.
func PipelineIDFor(obj model.SourceObject) string {
	return obj.Key
}

// Discover returns the unprocessed data files under scope modified within
// the lookback window, oldest first. A lookback <= 0 disables the time
// filter. A ledger failure aborts the call with a *LedgerError; nothing is
// returned partially.
func (d *Discoverer) Discover(ctx context.Context, scope Scope, lookback time.Duration) ([]model.SourceObject, error) {
	objects, err := d.lister.List(ctx, scope.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", scope.Prefix, err)
	}

	exts := scope.Extensions
	if len(exts) == 0 {
		exts = d.extensions
	}
	var cutoff time.Time
	if lookback > 0 {
		cutoff = d.clock.Now().Add(-lookback)
	}

	var (
		out            []model.SourceObject
		filtered, seen int
	)
	for _, obj := range objects {
		if !utils.HasExtension(obj.Key, exts) {
			filtered++
			continue
		}
		if !cutoff.IsZero() && obj.LastModified.Before(cutoff) {
			filtered++
			continue
		}
		processed, err := d.ledger.IsProcessed(ctx, PipelineIDFor(obj))
		if err != nil {
			return nil, err
		}
		if processed {
			seen++
			continue
		}
		out = append(out, obj)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.Before(out[j].LastModified)
		}
		return out[i].Key < out[j].Key
	})

	d.log.Info("discovery complete",
		"prefix", scope.Prefix,
		"listed", len(objects),
		"filtered", filtered,
		"already_processed", seen,
		"new", len(out),
	)
	return out, nil
}

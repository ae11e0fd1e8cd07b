package pagination

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/bioactivity-dump/pkg/logging"
)

var (
	// ErrMetadata is returned when the total row count cannot be resolved.
	ErrMetadata = errors.New("resolve total row count")

	// ErrWorkerFailed is returned when at least one worker ended with an
	// error. The Summary still covers every worker.
	ErrWorkerFailed = errors.New("extraction worker failed")
)

// TotalCounter reports the size of the collection.
type TotalCounter interface {
	TotalCount(ctx context.Context) (int, error)
}

// Summary aggregates every worker's result after the join.
type Summary struct {
	TotalRows      int           `json:"total_rows"`
	Workers        int           `json:"workers"`
	PagesLoaded    int           `json:"pages_loaded"`
	PagesSkipped   int           `json:"pages_skipped"`
	PagesResumed   int           `json:"pages_resumed"`
	RowsLoaded     int           `json:"rows_loaded"`
	SkippedOffsets []int         `json:"skipped_offsets"`
	FailedWorkers  []int         `json:"failed_workers,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Coordinator resolves the row budget, starts the workers and waits for all
// of them.
type Coordinator struct {
	counter   TotalCounter
	extractor *Extractor
	config    Config
	logger    zerolog.Logger
}

// NewCoordinator creates a coordinator. counter is only consulted when
// config.TotalRows is zero.
func NewCoordinator(counter TotalCounter, extractor *Extractor, config Config) *Coordinator {
	return &Coordinator{
		counter:   counter,
		extractor: extractor,
		config:    config,
		logger:    logging.NewLogger("coordinator"),
	}
}

// ResolveTotal returns the configured row count, or the API's total when it
// is zero.
func (c *Coordinator) ResolveTotal(ctx context.Context) (int, error) {
	if c.config.TotalRows > 0 {
		return c.config.TotalRows, nil
	}
	if c.config.TotalRows < 0 {
		return 0, fmt.Errorf("%w: negative row count %d", ErrMetadata, c.config.TotalRows)
	}
	if c.counter == nil {
		return 0, fmt.Errorf("%w: no total counter configured", ErrMetadata)
	}

	total, err := c.counter.TotalCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	return total, nil
}

// Run extracts the whole row budget. It returns once every worker has
// finished. When some worker failed the returned Summary is still complete
// and the error wraps ErrWorkerFailed plus each worker's error.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	total, err := c.ResolveTotal(ctx)
	if err != nil {
		return nil, err
	}

	plans, err := NewPlans(total, c.config.PageLimit, c.config.Workers)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("total_rows", total).
		Int("limit", c.config.PageLimit).
		Int("workers", len(plans)).
		Msg("Starting extraction")

	results := make([]WorkerResult, len(plans))

	var g errgroup.Group
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			res, err := c.extractor.Run(ctx, plan)
			results[i] = res
			return err
		})
	}
	waitErr := g.Wait()

	summary := Merge(results)
	summary.TotalRows = total
	summary.Duration = time.Since(start)

	event := c.logger.Info()
	if waitErr != nil {
		event = c.logger.Error()
	}
	event.
		Int("rows", summary.RowsLoaded).
		Int("pages_loaded", summary.PagesLoaded).
		Int("pages_skipped", summary.PagesSkipped).
		Int("pages_resumed", summary.PagesResumed).
		Ints("skipped_offsets", summary.SkippedOffsets).
		Dur("duration", summary.Duration).
		Msg("Extraction finished")

	if waitErr == nil {
		return summary, nil
	}

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return summary, fmt.Errorf("%w: %d of %d workers: %w",
		ErrWorkerFailed, len(errs), len(results), errors.Join(errs...))
}

// Merge folds worker results into a Summary. SkippedOffsets is sorted.
func Merge(results []WorkerResult) *Summary {
	s := &Summary{
		Workers:        len(results),
		SkippedOffsets: []int{},
	}
	for _, r := range results {
		s.PagesLoaded += r.PagesLoaded
		s.PagesSkipped += r.PagesSkipped
		s.PagesResumed += r.PagesResumed
		s.RowsLoaded += r.RowsLoaded
		s.SkippedOffsets = append(s.SkippedOffsets, r.SkippedOffsets...)
		if r.Err != nil {
			s.FailedWorkers = append(s.FailedWorkers, r.WorkerID)
		}
	}
	slices.Sort(s.SkippedOffsets)
	return s
}

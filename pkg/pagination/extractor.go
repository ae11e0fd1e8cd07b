package pagination

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bioactivity-dump/pkg/client"
	"github.com/Sternrassler/bioactivity-dump/pkg/logging"
	"github.com/Sternrassler/bioactivity-dump/pkg/record"
)

var (
	pagesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bioactivity_pages_loaded_total",
		Help: "Total pages fetched and committed",
	})

	pagesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bioactivity_pages_skipped_total",
		Help: "Total pages skipped after the fetch failed",
	})

	pagesResumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bioactivity_pages_resumed_total",
		Help: "Total pages skipped because a checkpoint marked them loaded",
	})

	rowsLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bioactivity_rows_loaded_total",
		Help: "Total rows committed by extraction workers",
	})

	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bioactivity_workers_active",
		Help: "Number of extraction workers currently running",
	})
)

// PageFetcher fetches one page with its own retry policy. A returned error
// means the page is unavailable for now.
type PageFetcher interface {
	FetchPage(ctx context.Context, req client.PageRequest) (*client.Page, error)
}

// BatchLoader commits one page worth of shaped rows.
type BatchLoader interface {
	LoadBatch(ctx context.Context, rows []record.Row) (int, error)
}

// Checkpointer remembers pages loaded earlier in the same run.
type Checkpointer interface {
	Done(ctx context.Context, offset, limit int) (bool, error)
	Mark(ctx context.Context, offset, limit, rows int) error
}

// Config holds extraction configuration.
type Config struct {
	// PageLimit is the page ceiling per request.
	PageLimit int

	// Workers is the number of concurrent extraction workers.
	Workers int

	// TotalRows is the number of rows to extract. Zero means ask the API.
	TotalRows int

	// Fields is the projection applied to every record. It must match the
	// loader's column order.
	Fields []string

	// Format is the response format requested from the API.
	Format string
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() Config {
	return Config{
		PageLimit: 500,
		Workers:   5,
		TotalRows: 0,
		Fields:    record.Fields,
		Format:    client.DefaultFormat,
	}
}

// WorkerResult is what one worker did during a run.
type WorkerResult struct {
	WorkerID       int
	PagesLoaded    int
	PagesSkipped   int
	PagesResumed   int
	RowsLoaded     int
	SkippedOffsets []int
	Duration       time.Duration
	Err            error
}

// Extractor drives the per-worker fetch loop. It holds no per-run state and
// is safe to share between workers as long as its collaborators are.
type Extractor struct {
	fetcher     PageFetcher
	loader      BatchLoader
	checkpoints Checkpointer
	config      Config
	logger      zerolog.Logger
}

// NewExtractor creates an extractor. When loader exposes Columns(), they
// must equal config.Fields.
func NewExtractor(fetcher PageFetcher, loader BatchLoader, config Config) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("batch loader is required")
	}
	if len(config.Fields) == 0 {
		config.Fields = record.Fields
	}
	if config.Format == "" {
		config.Format = client.DefaultFormat
	}
	if cl, ok := loader.(interface{ Columns() []string }); ok && !slices.Equal(cl.Columns(), config.Fields) {
		return nil, fmt.Errorf("loader columns %v do not match fields %v", cl.Columns(), config.Fields)
	}

	return &Extractor{
		fetcher: fetcher,
		loader:  loader,
		config:  config,
		logger:  logging.NewLogger("extractor"),
	}, nil
}

// WithCheckpoints returns a copy of e that skips pages cp reports as loaded
// and marks every page it commits.
func (e *Extractor) WithCheckpoints(cp Checkpointer) *Extractor {
	cpy := *e
	cpy.checkpoints = cp
	return &cpy
}

// Run executes plan until its row budget is exhausted. Fetch failures skip
// the page and advance by the stride anyway; a load failure or a cancelled
// context ends the worker with an error.
func (e *Extractor) Run(ctx context.Context, plan Plan) (res WorkerResult, err error) {
	start := time.Now()
	res.WorkerID = plan.WorkerID
	logger := e.logger.With().Int("worker_id", plan.WorkerID).Logger()

	workersActive.Inc()
	defer func() {
		workersActive.Dec()
		res.Duration = time.Since(start)
		res.Err = err
	}()

	if plan.Stride <= 0 || plan.PageLimit <= 0 {
		return res, fmt.Errorf("worker %d: invalid plan %+v", plan.WorkerID, plan)
	}

	for offset := plan.StartOffset; ; offset += plan.Stride {
		limit := Remaining(plan.TotalRows, offset, plan.PageLimit)
		if limit <= 0 {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("worker %d at offset %d: %w", plan.WorkerID, offset, ctxErr)
		}

		if e.checkpoints != nil {
			done, cpErr := e.checkpoints.Done(ctx, offset, limit)
			if cpErr != nil {
				logger.Warn().Err(cpErr).Int("offset", offset).Msg("Checkpoint lookup failed, processing page")
			} else if done {
				res.PagesResumed++
				pagesResumedTotal.Inc()
				logger.Debug().Int("offset", offset).Int("limit", limit).Msg("Page already loaded in this run")
				continue
			}
		}

		logger.Info().Int("offset", offset).Int("limit", limit).Msg("Fetching page")

		page, fetchErr := e.fetcher.FetchPage(ctx, client.PageRequest{
			Offset: offset,
			Limit:  limit,
			Format: e.config.Format,
		})
		if fetchErr != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("worker %d fetch offset %d: %w", plan.WorkerID, offset, fetchErr)
			}
			res.PagesSkipped++
			res.SkippedOffsets = append(res.SkippedOffsets, offset)
			pagesSkippedTotal.Inc()
			logger.Warn().
				Err(fetchErr).
				Int("offset", offset).
				Int("limit", limit).
				Msg("Couldn't retrieve page, skipping")
			continue
		}

		rows := record.ShapeAll(page.Bioactivities, e.config.Fields)
		n, loadErr := e.loader.LoadBatch(ctx, rows)
		res.RowsLoaded += n
		rowsLoadedTotal.Add(float64(n))
		if loadErr != nil {
			logger.Error().
				Err(loadErr).
				Int("offset", offset).
				Int("rows", len(rows)).
				Msg("Loading page failed")
			return res, fmt.Errorf("worker %d load offset %d: %w", plan.WorkerID, offset, loadErr)
		}

		res.PagesLoaded++
		pagesLoadedTotal.Inc()
		logger.Debug().Int("offset", offset).Int("rows", n).Msg("Page loaded")

		if e.checkpoints != nil {
			if cpErr := e.checkpoints.Mark(ctx, offset, limit, n); cpErr != nil {
				logger.Warn().Err(cpErr).Int("offset", offset).Msg("Checkpoint write failed")
			}
		}
	}

	logger.Info().
		Int("pages_loaded", res.PagesLoaded).
		Int("pages_skipped", res.PagesSkipped).
		Int("rows", res.RowsLoaded).
		Msg("Worker completed")

	return res, nil
}

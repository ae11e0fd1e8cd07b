// Command bioactivity-dump copies the bioactivity collection of the
// upstream API into a Postgres table.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/bioactivity-dump/pkg/config"
	"github.com/Sternrassler/bioactivity-dump/pkg/job"
	"github.com/Sternrassler/bioactivity-dump/pkg/logging"
	"github.com/Sternrassler/bioactivity-dump/pkg/metrics"
	"github.com/Sternrassler/bioactivity-dump/pkg/pagination"
)

// Exit codes.
const (
	exitOK           = 0
	exitRunFailed    = 1
	exitConfigFailed = 2
)

type runFunc func(ctx context.Context, cfg *config.Config) (*pagination.Summary, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		log.Error().Err(err).Msg("Failed to load configuration")
		stop()
		os.Exit(exitConfigFailed)
	}

	logging.Setup(cfg.Logging())

	code := run(ctx, cfg, job.Run)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, execute runFunc) int {
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	summary, err := execute(ctx, cfg)
	if summary != nil {
		logSummary(summary)
	}
	return exitCode(err)
}

func logSummary(s *pagination.Summary) {
	event := log.Info()
	if s.PagesSkipped > 0 || len(s.FailedWorkers) > 0 {
		event = log.Warn()
	}
	event.
		Int("total_rows", s.TotalRows).
		Int("rows_loaded", s.RowsLoaded).
		Int("pages_loaded", s.PagesLoaded).
		Int("pages_skipped", s.PagesSkipped).
		Int("pages_resumed", s.PagesResumed).
		Ints("skipped_offsets", s.SkippedOffsets).
		Ints("failed_workers", s.FailedWorkers).
		Dur("duration", s.Duration).
		Msg("Bioactivity dump finished")
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		log.Warn().Err(err).Msg("Bioactivity dump interrupted")
		return exitRunFailed
	default:
		log.Error().Err(err).Msg("Bioactivity dump failed")
		return exitRunFailed
	}
}

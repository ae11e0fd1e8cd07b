// Package job wires configuration, storage and the API client into one
// extraction run.
package job

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Sternrassler/bioactivity-dump/pkg/checkpoint"
	"github.com/Sternrassler/bioactivity-dump/pkg/client"
	"github.com/Sternrassler/bioactivity-dump/pkg/config"
	"github.com/Sternrassler/bioactivity-dump/pkg/loader"
	"github.com/Sternrassler/bioactivity-dump/pkg/logging"
	"github.com/Sternrassler/bioactivity-dump/pkg/pagination"
	"github.com/Sternrassler/bioactivity-dump/pkg/record"
)

// Checkpoints is a page checkpoint store scoped to one run.
type Checkpoints interface {
	pagination.Checkpointer

	// Clear forgets every page of the run.
	Clear(ctx context.Context) (int, error)
}

// Deps are the external resources of a run.
type Deps struct {
	// DB is the destination database. Required.
	DB *gorm.DB

	// Checkpoints is optional; nil disables resume. The run's checkpoints
	// are cleared once a run loads every page.
	Checkpoints Checkpoints

	// HTTPClient overrides the API client's transport when set.
	HTTPClient *http.Client
}

// Run opens Postgres and, when configured, the Redis checkpoint store, then
// executes the extraction.
func Run(ctx context.Context, cfg *config.Config) (*pagination.Summary, error) {
	db, err := OpenPostgres(cfg.DSN())
	if err != nil {
		return nil, err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	deps := Deps{DB: db}

	if cfg.RedisURL != "" {
		store, redisClient, err := OpenCheckpoints(ctx, cfg.RedisURL, cfg.RunID, cfg.CheckpointTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Checkpoint store unavailable, running without resume")
		} else {
			defer redisClient.Close()
			deps.Checkpoints = store
			log.Info().Str("run_id", store.RunID()).Msg("Checkpointing enabled")
		}
	}

	return Execute(ctx, cfg, deps)
}

// Execute runs one extraction with the given dependencies.
func Execute(ctx context.Context, cfg *config.Config, deps Deps) (*pagination.Summary, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiClient, err := client.New(cfg.Client())
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	if deps.HTTPClient != nil {
		apiClient.SetHTTPClient(deps.HTTPClient)
	}

	tableLoader := loader.New(deps.DB).Bind(cfg.TableName, record.Fields, cfg.Loader())

	pcfg := cfg.Pagination()
	extractor, err := pagination.NewExtractor(apiClient, tableLoader, pcfg)
	if err != nil {
		return nil, err
	}
	if deps.Checkpoints != nil {
		extractor = extractor.WithCheckpoints(deps.Checkpoints)
	}

	log.Info().
		Str("endpoint", apiClient.Endpoint()).
		Str("table", cfg.TableName).
		Int("limit", pcfg.PageLimit).
		Int("workers", pcfg.Workers).
		Bool("checkpoints", deps.Checkpoints != nil).
		Msg("Starting bioactivity dump")

	summary, err := pagination.NewCoordinator(apiClient, extractor, pcfg).Run(ctx)
	if err == nil && deps.Checkpoints != nil {
		finishCheckpoints(ctx, deps.Checkpoints, summary)
	}
	return summary, err
}

// finishCheckpoints clears the run's checkpoints after a complete run, so
// the next invocation with the same run id fetches and overwrites every
// page again. Checkpoints of a run with skipped pages are kept; rerunning
// it fetches only the pages that are still missing.
func finishCheckpoints(ctx context.Context, cp Checkpoints, summary *pagination.Summary) {
	if summary.PagesSkipped > 0 {
		log.Warn().
			Ints("skipped_offsets", summary.SkippedOffsets).
			Msg("Keeping checkpoints, rerun with the same RUN_ID to fetch skipped pages")
		return
	}

	n, err := cp.Clear(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Clearing checkpoints failed")
		return
	}
	log.Debug().Int("keys", n).Msg("Checkpoints cleared")
}

// OpenPostgres connects gorm to Postgres. Driver errors are not translated
// so callers can inspect SQLSTATE codes.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		stdlog.New(logging.NewLogger("gorm"), "", 0),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return db, nil
}

// OpenCheckpoints connects to Redis and returns a checkpoint store for runID.
func OpenCheckpoints(ctx context.Context, redisURL, runID string, ttl time.Duration) (*checkpoint.Store, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	redisClient := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return checkpoint.NewStore(redisClient, runID, ttl), redisClient, nil
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/bioactivity-dump/pkg/config"
	"github.com/Sternrassler/bioactivity-dump/pkg/pagination"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestRun_Success(t *testing.T) {
	buf := captureLogs(t)

	execute := func(context.Context, *config.Config) (*pagination.Summary, error) {
		return &pagination.Summary{TotalRows: 10, RowsLoaded: 10, PagesLoaded: 1, SkippedOffsets: []int{}}, nil
	}

	if code := run(context.Background(), &config.Config{}, execute); code != exitOK {
		t.Errorf("Expected exit code %d, got %d", exitOK, code)
	}
	if !strings.Contains(buf.String(), "Bioactivity dump finished") {
		t.Errorf("Expected summary log line, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"level":"info"`) {
		t.Errorf("Clean run should log at info, got %s", buf.String())
	}
}

func TestRun_SkippedPagesLogWarning(t *testing.T) {
	buf := captureLogs(t)

	execute := func(context.Context, *config.Config) (*pagination.Summary, error) {
		return &pagination.Summary{PagesSkipped: 1, SkippedOffsets: []int{500}}, nil
	}

	if code := run(context.Background(), &config.Config{}, execute); code != exitOK {
		t.Errorf("Skipped pages must not fail the run, got exit code %d", code)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), "500") {
		t.Errorf("Expected warning with skipped offset, got %s", buf.String())
	}
}

func TestRun_Failure(t *testing.T) {
	captureLogs(t)

	execute := func(context.Context, *config.Config) (*pagination.Summary, error) {
		return &pagination.Summary{FailedWorkers: []int{1}},
			fmt.Errorf("%w: boom", pagination.ErrWorkerFailed)
	}

	if code := run(context.Background(), &config.Config{}, execute); code != exitRunFailed {
		t.Errorf("Expected exit code %d, got %d", exitRunFailed, code)
	}
}

func TestRun_MetadataFailureWithoutSummary(t *testing.T) {
	captureLogs(t)

	execute := func(context.Context, *config.Config) (*pagination.Summary, error) {
		return nil, pagination.ErrMetadata
	}

	if code := run(context.Background(), &config.Config{}, execute); code != exitRunFailed {
		t.Errorf("Expected exit code %d, got %d", exitRunFailed, code)
	}
}

func TestRun_PassesContext(t *testing.T) {
	captureLogs(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	execute := func(ctx context.Context, _ *config.Config) (*pagination.Summary, error) {
		return nil, ctx.Err()
	}

	if code := run(ctx, &config.Config{}, execute); code != exitRunFailed {
		t.Errorf("Expected exit code %d, got %d", exitRunFailed, code)
	}
}

func TestRun_WithMetricsServer(t *testing.T) {
	captureLogs(t)

	cfg := &config.Config{MetricsAddr: "127.0.0.1:0"}
	execute := func(context.Context, *config.Config) (*pagination.Summary, error) {
		return &pagination.Summary{}, nil
	}

	if code := run(context.Background(), cfg, execute); code != exitOK {
		t.Errorf("Expected exit code %d, got %d", exitOK, code)
	}
}

func TestExitCode(t *testing.T) {
	captureLogs(t)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"cancelled", fmt.Errorf("worker 0: %w", context.Canceled), exitRunFailed},
		{"other", errors.New("boom"), exitRunFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

//go:build integration

package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Sternrassler/bioactivity-dump/pkg/record"
)

// setupPostgres starts a Postgres container and returns a migrated gorm DB.
func setupPostgres(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "dump",
			"POSTGRES_PASSWORD": "dump",
			"POSTGRES_DB":       "bioactivity",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=dump password=dump dbname=bioactivity sslmode=disable", host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to Postgres: %v", err)
	}
	if err := db.AutoMigrate(&record.Bioactivity{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		container.Terminate(ctx)
	}

	return db, cleanup
}

func TestLoader_Integration_Upsert(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	l := New(db)
	ctx := context.Background()
	opts := Options{Replace: true, UniqueColumns: record.UniqueColumns, CommitEvery: 2}

	first := []record.Row{
		{"A", int64(1), "x", "Homo sapiens", "T", "G", "/1/"},
		{"B", int64(2), "x", "Homo sapiens", "T", "G", "/2/"},
		{"C", int64(3), "x", "Homo sapiens", "T", "G", "/3/"},
	}
	if n, err := l.InsertRows(ctx, record.TableName, record.Fields, first, opts); err != nil || n != 3 {
		t.Fatalf("InsertRows() = %d, %v", n, err)
	}

	second := []record.Row{
		{"B2", int64(20), nil, "Mus musculus", nil, nil, "/2/"},
	}
	if _, err := l.InsertRows(ctx, record.TableName, record.Fields, second, opts); err != nil {
		t.Fatalf("InsertRows() error = %v", err)
	}

	var count int64
	db.Model(&record.Bioactivity{}).Count(&count)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	var got record.Bioactivity
	if err := db.Where("resource_uri = ?", "/2/").First(&got).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if got.CompoundName == nil || *got.CompoundName != "B2" {
		t.Errorf("compound_name = %v, want B2", got.CompoundName)
	}
	if got.Authors != nil {
		t.Errorf("authors = %v, want NULL", *got.Authors)
	}
}

func TestLoader_Integration_UniqueViolationSQLState(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	l := New(db)
	rows := []record.Row{
		{"A", int64(1), nil, nil, nil, nil, "/1/"},
		{"A", int64(1), nil, nil, nil, nil, "/1/"},
	}

	_, err := l.InsertRows(context.Background(), record.TableName, record.Fields, rows, Options{CommitEvery: 1})

	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Expected WriteError, got %v", err)
	}
	if writeErr.Committed != 1 {
		t.Errorf("Committed = %d, want 1", writeErr.Committed)
	}
	if state := SQLState(err); state != "23505" {
		t.Errorf("SQLState = %q, want 23505 (unique_violation)", state)
	}
}

func TestLoader_Integration_ConcurrentWriters(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	l := New(db)
	opts := Options{Replace: true, UniqueColumns: record.UniqueColumns, CommitEvery: 50}

	// Overlapping key ranges: the conflict clause keeps one row per key.
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rows := make([]record.Row, 0, 200)
			for i := w * 100; i < w*100+200; i++ {
				rows = append(rows, record.Row{fmt.Sprintf("W%d", w), int64(i), nil, nil, nil, nil, fmt.Sprintf("/%d/", i)})
			}
			if _, err := l.InsertRows(context.Background(), record.TableName, record.Fields, rows, opts); err != nil {
				t.Errorf("worker %d: %v", w, err)
			}
		}(w)
	}
	wg.Wait()

	var count int64
	db.Model(&record.Bioactivity{}).Count(&count)
	if count != 500 {
		t.Errorf("count = %d, want 500", count)
	}
}

package testutil

import (
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Sternrassler/bioactivity-dump/pkg/record"
)

// SQLiteDB opens a file-backed SQLite database in a temp dir with the
// bioactivities table created. The pool is capped at one connection so
// concurrent writers queue instead of hitting SQLITE_BUSY.
func SQLiteDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "bioactivity.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&record.Bioactivity{}); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	tb.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// AllBioactivities returns every persisted row ordered by resource_uri.
func AllBioactivities(tb testing.TB, db *gorm.DB) []record.Bioactivity {
	tb.Helper()

	var rows []record.Bioactivity
	if err := db.Order("resource_uri").Find(&rows).Error; err != nil {
		tb.Fatalf("query bioactivities: %v", err)
	}
	return rows
}

// CountBioactivities returns the number of persisted rows.
func CountBioactivities(tb testing.TB, db *gorm.DB) int64 {
	tb.Helper()

	var n int64
	if err := db.Model(&record.Bioactivity{}).Count(&n).Error; err != nil {
		tb.Fatalf("count bioactivities: %v", err)
	}
	return n
}

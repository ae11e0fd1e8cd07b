// Package loader writes shaped rows into a relational table with
// insert-or-replace semantics, committing in bounded chunks.
package loader

import (
	"context"
	"fmt"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Sternrassler/bioactivity-dump/pkg/logging"
	"github.com/Sternrassler/bioactivity-dump/pkg/record"
)

var (
	rowsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioactivity_loader_rows_written_total",
		Help: "Total rows committed by the loader by table",
	}, []string{"table"})

	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioactivity_loader_commits_total",
		Help: "Total transaction commits by table",
	}, []string{"table"})

	writeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioactivity_loader_write_errors_total",
		Help: "Total row write failures by table",
	}, []string{"table"})
)

// DefaultCommitEvery is the default number of rows per transaction.
const DefaultCommitEvery = 1000

// Options controls how rows are written.
type Options struct {
	// Replace turns inserts into upserts on UniqueColumns.
	Replace bool

	// UniqueColumns is the conflict target when Replace is set. It must be
	// a non-empty subset of the written columns.
	UniqueColumns []string

	// CommitEvery is the maximum number of rows per transaction.
	// Zero writes all rows in one transaction.
	CommitEvery int
}

// Loader writes rows through gorm.
type Loader struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a loader on db.
func New(db *gorm.DB) *Loader {
	if db == nil {
		panic("gorm db cannot be nil")
	}
	return &Loader{
		db:     db,
		logger: logging.NewLogger("loader"),
	}
}

// InsertRows writes rows into table. Each call holds one dedicated
// connection and writes row by row inside explicit transactions, committing
// every opts.CommitEvery rows and once more at the end.
//
// With opts.Replace, a conflict on opts.UniqueColumns overwrites every other
// column with the new value, so loading the same key twice leaves one row
// holding the latest values.
//
// A failing row rolls back the current chunk and is returned as a
// *WriteError; chunks committed before it stay persisted. It returns the
// number of committed rows.
func (l *Loader) InsertRows(ctx context.Context, table string, columns []string, rows []record.Row, opts Options) (int, error) {
	if err := validate(table, columns, rows, opts); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	onConflict := conflictClause(columns, opts)
	logger := l.logger.With().Str("table", table).Logger()

	committed := 0
	err := l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		tx := conn.Begin()
		if tx.Error != nil {
			return fmt.Errorf("begin transaction: %w", tx.Error)
		}

		pending := 0
		for i, row := range rows {
			values := make(map[string]any, len(columns))
			for j, column := range columns {
				values[column] = row[j]
			}

			stmt := tx.Table(table)
			if onConflict != nil {
				stmt = stmt.Clauses(*onConflict)
			}
			if err := stmt.Create(values).Error; err != nil {
				tx.Rollback()
				writeErrorsTotal.WithLabelValues(table).Inc()
				logger.Error().
					Err(err).
					Int("row", i).
					Int("committed", committed).
					Str("sqlstate", SQLState(err)).
					Msg("Row write failed, chunk rolled back")
				return &WriteError{Table: table, Row: i, Committed: committed, Err: err}
			}
			pending++

			if opts.CommitEvery > 0 && pending == opts.CommitEvery {
				if err := tx.Commit().Error; err != nil {
					return commitFailed(logger, table, i, committed, err)
				}
				committed += pending
				pending = 0
				commitsTotal.WithLabelValues(table).Inc()
				rowsWrittenTotal.WithLabelValues(table).Add(float64(opts.CommitEvery))
				logger.Debug().Int("rows", committed).Msg("Loaded rows so far")

				if i == len(rows)-1 {
					return nil
				}
				tx = conn.Begin()
				if tx.Error != nil {
					return fmt.Errorf("begin transaction: %w", tx.Error)
				}
			}
		}

		if err := tx.Commit().Error; err != nil {
			return commitFailed(logger, table, len(rows)-1, committed, err)
		}
		committed += pending
		commitsTotal.WithLabelValues(table).Inc()
		rowsWrittenTotal.WithLabelValues(table).Add(float64(pending))
		return nil
	})
	if err != nil {
		return committed, err
	}

	logger.Debug().Int("rows", committed).Msg("Done loading")
	return committed, nil
}

// commitFailed reports a chunk whose commit failed. row is the last row of
// that chunk.
func commitFailed(logger zerolog.Logger, table string, row, committed int, err error) error {
	writeErrorsTotal.WithLabelValues(table).Inc()
	logger.Error().
		Err(err).
		Int("row", row).
		Int("committed", committed).
		Str("sqlstate", SQLState(err)).
		Msg("Chunk commit failed")
	return &WriteError{Table: table, Row: row, Committed: committed, Err: fmt.Errorf("commit: %w", err)}
}

// validate checks the request before any connection is opened.
func validate(table string, columns []string, rows []record.Row, opts Options) error {
	if table == "" {
		return fmt.Errorf("%w: table is required", ErrInvalidRequest)
	}
	if len(columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidRequest)
	}
	if opts.CommitEvery < 0 {
		return fmt.Errorf("%w: commit_every must be >= 0 (got %d)", ErrInvalidRequest, opts.CommitEvery)
	}
	if opts.Replace {
		if len(opts.UniqueColumns) == 0 {
			return fmt.Errorf("%w: replace requires unique columns", ErrInvalidRequest)
		}
		for _, u := range opts.UniqueColumns {
			if !slices.Contains(columns, u) {
				return fmt.Errorf("%w: unique column %q is not a written column", ErrInvalidRequest, u)
			}
		}
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("%w: row %d has %d values for %d columns", ErrInvalidRequest, i, len(row), len(columns))
		}
	}
	return nil
}

// conflictClause builds ON CONFLICT (unique) DO UPDATE SET col = excluded.col
// for every non-unique column. Unique columns appear only in the target.
func conflictClause(columns []string, opts Options) *clause.OnConflict {
	if !opts.Replace {
		return nil
	}

	target := make([]clause.Column, 0, len(opts.UniqueColumns))
	for _, u := range opts.UniqueColumns {
		target = append(target, clause.Column{Name: u})
	}

	update := updateColumns(columns, opts.UniqueColumns)
	if len(update) == 0 {
		return &clause.OnConflict{Columns: target, DoNothing: true}
	}
	return &clause.OnConflict{
		Columns:   target,
		DoUpdates: clause.AssignmentColumns(update),
	}
}

// updateColumns returns columns without the unique ones, order preserved.
func updateColumns(columns, unique []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if !slices.Contains(unique, c) {
			out = append(out, c)
		}
	}
	return out
}

// TableLoader binds a Loader to one table layout.
type TableLoader struct {
	loader  *Loader
	table   string
	columns []string
	opts    Options
}

// Bind returns a TableLoader writing columns into table with opts.
func (l *Loader) Bind(table string, columns []string, opts Options) *TableLoader {
	return &TableLoader{
		loader:  l,
		table:   table,
		columns: columns,
		opts:    opts,
	}
}

// Columns returns the bound column order.
func (t *TableLoader) Columns() []string {
	return t.columns
}

// LoadBatch writes rows with the bound table, columns and options.
func (t *TableLoader) LoadBatch(ctx context.Context, rows []record.Row) (int, error) {
	return t.loader.InsertRows(ctx, t.table, t.columns, rows, t.opts)
}

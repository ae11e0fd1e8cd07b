package loader

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrInvalidRequest is returned when a load request violates the loader
// contract. Nothing is written in that case.
var ErrInvalidRequest = errors.New("invalid load request")

// WriteError reports a row that could not be written, or a chunk that could
// not be committed; Row is then the chunk's last row. Rows of the failing
// chunk were rolled back; Committed rows from earlier chunks persist.
type WriteError struct {
	Table     string
	Row       int
	Committed int
	Err       error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write row %d into %s (%d rows committed): %v", e.Row, e.Table, e.Committed, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// SQLState returns the Postgres SQLSTATE of err, or "" when err did not
// come from Postgres.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

package extract

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB / *sql.Tx the extract package needs.
// Sub-extractors accept it rather than a concrete type so a coordinator
// can run a whole poll inside one transaction when it wants a
// consistent read across the change-list and enrichment queries.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

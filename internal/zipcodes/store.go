package zipcodes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Querier is the subset of *pgxpool.Pool and *pgx.Conn the table reader uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ReadTable loads every row of a Postgres table with zip, latitude and
// longitude columns.
func ReadTable(ctx context.Context, q Querier, table string) ([]types.PostalArea, error) {
	if table == "" {
		return nil, types.NewInvalidArgument("reference table name is empty")
	}
	ident := pgx.Identifier{table}.Sanitize()
	sql := fmt.Sprintf("SELECT zip, latitude, longitude FROM %s", ident)

	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", ident, err)
	}

	row := 0
	areas, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.PostalArea, error) {
		row++
		var a types.PostalArea
		if err := r.Scan(&a.ZIP, &a.Latitude, &a.Longitude); err != nil {
			return a, &types.ParseError{Source: table, Row: row, Field: "record", Err: err}
		}
		if a.ZIP == "" {
			return a, &types.ParseError{Source: table, Row: row, Field: "ZIP", Err: fmt.Errorf("empty identifier")}
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ident, err)
	}
	return areas, nil
}

package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tripfare/internal/schema"
)

// Postgres error codes mapped onto the dataset taxonomy.
const (
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx used by PostgresSource.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads the trip table from PostgreSQL. Table may be
// schema-qualified ("analytics.taxi_trips"). SQL NULL and 'NaN' are missing
// cells; an infinite value is ErrDatasetMalformed.
type PostgresSource struct {
	DB    DBTX
	Table string
}

func (p PostgresSource) Describe() string {
	return "table " + p.Table
}

func (p PostgresSource) Read(ctx context.Context, s *schema.Schema) ([]schema.Record, error) {
	numeric := append(s.NumericFields(), s.Target())
	categorical := s.CategoricalFields()

	query := buildSelect(p.Table, numeric, categorical)
	rows, err := p.DB.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []schema.Record
	nums := make([]*float64, len(numeric))
	cats := make([]*string, len(categorical))
	dest := make([]any, 0, len(numeric)+len(categorical))
	for i := range nums {
		dest = append(dest, &nums[i])
	}
	for i := range cats {
		dest = append(dest, &cats[i])
	}

	for rows.Next() {
		clear(nums)
		clear(cats)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan row %d: %w", ErrDatasetMalformed, len(out)+1, err)
		}

		row := make(schema.Record, len(dest))
		for i, name := range numeric {
			switch {
			case nums[i] == nil || math.IsNaN(*nums[i]):
				row[name] = nil
			case math.IsInf(*nums[i], 0):
				return nil, fmt.Errorf("%w: row %d column %s: %v is not a finite number", ErrDatasetMalformed, len(out)+1, name, *nums[i])
			default:
				row[name] = *nums[i]
			}
		}
		for i, name := range categorical {
			if cats[i] == nil {
				row[name] = nil
			} else {
				row[name] = *cats[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func buildSelect(table string, numeric, categorical []string) string {
	cols := make([]string, 0, len(numeric)+len(categorical))
	for _, c := range numeric {
		cols = append(cols, pgx.Identifier{c}.Sanitize()+"::double precision")
	}
	for _, c := range categorical {
		cols = append(cols, pgx.Identifier{c}.Sanitize()+"::text")
	}
	return fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(cols, ", "),
		pgx.Identifier(strings.Split(table, ".")).Sanitize(),
	)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable:
			return fmt.Errorf("%w: %s", ErrDatasetNotFound, pgErr.Message)
		case pgUndefinedColumn:
			return fmt.Errorf("%w: %s", ErrDatasetMalformed, pgErr.Message)
		}
	}
	return fmt.Errorf("query dataset: %w", err)
}

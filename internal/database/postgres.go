package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Schema is the table layout PostgresStore reads. Membership arrays are
// int[] columns so contains and contains-any map to ANY and &&.
const Schema = `
CREATE TABLE IF NOT EXISTS raw_samples (
    user_id                  TEXT             NOT NULL,
    namespace                TEXT             NOT NULL,
    series                   TEXT             NOT NULL,
    id                       TEXT             NOT NULL,
    interval_start           TIMESTAMPTZ      NOT NULL,
    interval_end             TIMESTAMPTZ      NOT NULL,
    device                   TEXT             NOT NULL DEFAULT '',
    value                    DOUBLE PRECISION,
    type_code                TEXT,
    year_start               INT              NOT NULL,
    month_start              INT              NOT NULL,
    day_start                INT              NOT NULL,
    fifteen_min_bucket_start INT              NOT NULL,
    year_range               INT[]            NOT NULL,
    month_range              INT[]            NOT NULL,
    day_range                INT[]            NOT NULL,
    fifteen_min_bucket_range INT[]            NOT NULL,
    PRIMARY KEY (user_id, namespace, series, id)
);
CREATE INDEX IF NOT EXISTS raw_samples_calendar_idx
    ON raw_samples (user_id, namespace, series, year_start, month_start, day_start, fifteen_min_bucket_start);
CREATE INDEX IF NOT EXISTS raw_samples_year_range_idx ON raw_samples USING GIN (year_range);
CREATE INDEX IF NOT EXISTS raw_samples_month_range_idx ON raw_samples USING GIN (month_range);
CREATE INDEX IF NOT EXISTS raw_samples_day_range_idx ON raw_samples USING GIN (day_range);
CREATE INDEX IF NOT EXISTS raw_samples_bucket_range_idx ON raw_samples USING GIN (fifteen_min_bucket_range);
`

var columns = map[Field]string{
	FieldYearStart:             "year_start",
	FieldMonthStart:            "month_start",
	FieldDayStart:              "day_start",
	FieldFifteenMinBucketStart: "fifteen_min_bucket_start",
	FieldYearRange:             "year_range",
	FieldMonthRange:            "month_range",
	FieldDayRange:              "day_range",
	FieldFifteenMinBucketRange: "fifteen_min_bucket_range",
}

// PostgresStore implements DocumentStore on a single raw_samples table.
//
// Features:
//   - Calendar predicates translate to plain comparisons on int columns
//   - Membership predicates use GIN-indexed int[] columns
//   - Connection pooling through database/sql
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates and initializes a new PostgresStore.
//
// The connection string should be in the format:
// "host=localhost port=5432 user=u password=p dbname=db sslmode=disable"
//
// The function will:
//  1. Establish database connection
//  2. Verify connectivity
//  3. Apply pool limits
//
// Returns:
//   - *PostgresStore: Initialized store
//   - error: Connection or initialization error
func NewPostgresStore(connStr string, maxConnections int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if maxConnections > 0 {
		db.SetMaxOpenConns(maxConnections)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// buildQuery translates q into SQL with positional arguments.
//
// Translation:
//
//	a == n            a = $k
//	a < n, a >= n     a < $k, a >= $k
//	arr contains n    $k = ANY(arr)
//	arr contains-any  arr && $k::int[]
func buildQuery(q Query) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, interval_start, interval_end, device, value, type_code,
       year_start, month_start, day_start, fifteen_min_bucket_start,
       year_range, month_range, day_range, fifteen_min_bucket_range
FROM raw_samples
WHERE user_id = $1 AND namespace = $2 AND series = $3`)

	args := []interface{}{q.Collection.UserID, q.Collection.Namespace, q.Collection.Series}
	for _, p := range q.Where {
		if err := p.Validate(); err != nil {
			return "", nil, err
		}
		col, ok := columns[p.Field]
		if !ok {
			return "", nil, fmt.Errorf("unknown field %s", p.Field)
		}

		switch p.Op {
		case OpEq:
			args = append(args, p.Value)
			fmt.Fprintf(&sb, " AND %s = $%d", col, len(args))
		case OpLt, OpLte, OpGt, OpGte:
			args = append(args, p.Value)
			fmt.Fprintf(&sb, " AND %s %s $%d", col, p.Op, len(args))
		case OpContains:
			args = append(args, p.Value)
			fmt.Fprintf(&sb, " AND $%d = ANY(%s)", len(args), col)
		case OpContainsAny:
			args = append(args, pq.Array(toInt64s(p.Values)))
			fmt.Fprintf(&sb, " AND %s && $%d::int[]", col, len(args))
		}
	}
	sb.WriteString(" ORDER BY interval_start, id")

	return sb.String(), args, nil
}

// Query runs one conjunctive query against the collection's rows.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: Collection and predicates
//
// Returns:
//   - []Document: Matching rows ordered by interval start
//   - error: Translation, query or scan error
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var (
			d                                            Document
			value                                        sql.NullFloat64
			typeCode                                     sql.NullString
			yearRange, monthRange, dayRange, bucketRange pq.Int64Array
		)
		if err := rows.Scan(
			&d.ID, &d.IntervalStart, &d.IntervalEnd, &d.Device, &value, &typeCode,
			&d.YearStart, &d.MonthStart, &d.DayStart, &d.FifteenMinBucketStart,
			&yearRange, &monthRange, &dayRange, &bucketRange,
		); err != nil {
			return nil, err
		}
		if value.Valid {
			v := value.Float64
			d.Value = &v
		}
		d.TypeCode = typeCode.String
		d.YearRange = toInts(yearRange)
		d.MonthRange = toInts(monthRange)
		d.DayRange = toInts(dayRange)
		d.FifteenMinBucketRange = toInts(bucketRange)
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (s *PostgresStore) CollectionExists(ctx context.Context, c Collection) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM raw_samples WHERE user_id = $1 AND namespace = $2 AND series = $3)`,
		c.UserID, c.Namespace, c.Series,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStore) ListSeries(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT namespace, series FROM raw_samples WHERE user_id = $1 ORDER BY namespace, series`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.Namespace, &c.Series); err != nil {
			return nil, err
		}
		keys = append(keys, c.Key())
	}
	return keys, rows.Err()
}

// Close releases all database resources.
//
// Should be called when the store is no longer needed.
// Typically deferred after store creation.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func toInt64s(xs []int) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}

func toInts(xs pq.Int64Array) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = int(x)
	}
	return out
}

// Compile-time interface implementation check
var _ DocumentStore = (*PostgresStore)(nil)

package dataset

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tripfare/internal/schema"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Mock Rows ---

type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		switch v := d.(type) {
		case **float64:
			if row[i] == nil {
				*v = nil
			} else {
				f := row[i].(float64)
				*v = &f
			}
		case **string:
			if row[i] == nil {
				*v = nil
			} else {
				s := row[i].(string)
				*v = &s
			}
		}
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// Column order: six numeric features, target, four categorical features.
func pgRow(distance any, price any, weather any) []any {
	return []any{distance, 15.0, 1.0, 3.0, 1.2, 0.3, price, "Morning", "Weekday", "Low", weather}
}

func TestPostgresSource_Load(t *testing.T) {
	db := new(mockDBTX)
	rows := newMockRows([][]any{
		pgRow(5.0, 10.0, "Clear"),
		pgRow(nil, nil, "Rain"),
		pgRow(7.5, 20.0, nil),
	})
	wantSQL := `SELECT "Trip_Distance_km"::double precision, "Trip_Duration_Minutes"::double precision, ` +
		`"Passenger_Count"::double precision, "Base_Fare"::double precision, "Per_Km_Rate"::double precision, ` +
		`"Per_Minute_Rate"::double precision, "Trip_Price"::double precision, "Time_of_Day"::text, ` +
		`"Day_of_Week"::text, "Traffic_Conditions"::text, "Weather"::text FROM "public"."taxi_trips"`
	db.On("Query", mock.Anything, wantSQL, mock.Anything).Return(rows, nil)

	src := PostgresSource{DB: db, Table: "public.taxi_trips"}
	ds, err := Load(context.Background(), src, schema.Default(), testLogger())
	require.NoError(t, err)

	assert.Equal(t, []float64{10.0, 20.0}, ds.Targets)
	assert.Equal(t, 1, ds.Stats.DroppedRows)
	assert.Equal(t, 5.0, ds.Records[0][schema.FieldTripDistanceKm])
	assert.Nil(t, ds.Records[1][schema.FieldWeather])
	assert.True(t, rows.closed)
	db.AssertExpectations(t)
}

func TestPostgresSource_NonFiniteValues(t *testing.T) {
	db := new(mockDBTX)
	rows := newMockRows([][]any{
		pgRow(math.NaN(), 10.0, "Clear"),
		pgRow(5.0, math.NaN(), "Rain"),
	})
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)

	ds, err := Load(context.Background(), PostgresSource{DB: db, Table: "taxi_trips"}, schema.Default(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, []float64{10.0}, ds.Targets)
	assert.Nil(t, ds.Records[0][schema.FieldTripDistanceKm])
	assert.Equal(t, CleanStats{TotalRows: 2, MissingTargetBefore: 1, DroppedRows: 1}, ds.Stats)

	db = new(mockDBTX)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(newMockRows([][]any{pgRow(5.0, math.Inf(1), "Clear")}), nil)

	_, err = Load(context.Background(), PostgresSource{DB: db, Table: "taxi_trips"}, schema.Default(), testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatasetMalformed))
	assert.Contains(t, err.Error(), "row 1 column Trip_Price")
}

func TestPostgresSource_UndefinedTable(t *testing.T) {
	db := new(mockDBTX)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &pgconn.PgError{Code: "42P01", Message: `relation "taxi_trips" does not exist`})

	_, err := Load(context.Background(), PostgresSource{DB: db, Table: "taxi_trips"}, schema.Default(), testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatasetNotFound))
}

func TestPostgresSource_UndefinedColumn(t *testing.T) {
	db := new(mockDBTX)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &pgconn.PgError{Code: "42703", Message: `column "Weather" does not exist`})

	_, err := Load(context.Background(), PostgresSource{DB: db, Table: "taxi_trips"}, schema.Default(), testLogger())
	assert.True(t, errors.Is(err, ErrDatasetMalformed))
}

func TestPostgresSource_ScanError(t *testing.T) {
	db := new(mockDBTX)
	rows := newMockRows([][]any{pgRow(5.0, 10.0, "Clear")})
	rows.scanErr = errors.New("cannot scan text into float64")
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)

	_, err := Load(context.Background(), PostgresSource{DB: db, Table: "taxi_trips"}, schema.Default(), testLogger())
	assert.True(t, errors.Is(err, ErrDatasetMalformed))
}

func TestPostgresSource_RowsErr(t *testing.T) {
	db := new(mockDBTX)
	rows := newMockRows(nil)
	rows.errVal = errors.New("connection reset")
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)

	_, err := Load(context.Background(), PostgresSource{DB: db, Table: "taxi_trips"}, schema.Default(), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

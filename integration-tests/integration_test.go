//go:build integration
// +build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/tejusbharadwaj/seriesfetch/internal/cache"
	"github.com/tejusbharadwaj/seriesfetch/internal/database"
	"github.com/tejusbharadwaj/seriesfetch/internal/decompose"
	"github.com/tejusbharadwaj/seriesfetch/internal/fetch"
	server "github.com/tejusbharadwaj/seriesfetch/internal/grpc"
	middleware "github.com/tejusbharadwaj/seriesfetch/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

const bufSize = 1024 * 1024

// Helper function to get environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func connString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnvOrDefault("DB_HOST", "db"),
		getEnvOrDefault("DB_PORT", "5432"),
		getEnvOrDefault("DB_USER", "seriesfetch"),
		getEnvOrDefault("DB_PASSWORD", "seriesfetch"),
		getEnvOrDefault("DB_NAME", "seriesfetch"),
	)
}

func setupTestDB(t *testing.T) *database.PostgresStore {
	t.Helper()
	connStr := connString()

	// Create the schema and clean up any existing test data
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(database.Schema)
	require.NoError(t, err)
	_, err = db.Exec("TRUNCATE TABLE raw_samples")
	require.NoError(t, err)

	insertDocuments(t, db, database.Collection{UserID: "u1", Namespace: "health", Series: "stepcount"},
		database.NewDocument("s1", at(2024, 1, 1, 0, 10), at(2024, 1, 1, 0, 20), "iPhone", time.UTC).WithValue(500),
		database.NewDocument("s2", at(2024, 1, 1, 0, 10), at(2024, 1, 1, 0, 20), "Apple Watch", time.UTC).WithValue(480),
		// Spans midnight into the next year
		database.NewDocument("s3", at(2023, 12, 31, 23, 50), at(2024, 1, 1, 0, 5), "iPhone", time.UTC).WithValue(40),
		database.NewDocument("s4", at(2024, 1, 2, 9, 0), at(2024, 1, 2, 9, 30), "iPhone", time.UTC).WithValue(1200),
	)
	insertDocuments(t, db, database.Collection{UserID: "u1", Namespace: "health", Series: "workout"},
		database.NewDocument("w1", at(2024, 1, 1, 7, 0), at(2024, 1, 1, 7, 45), "Apple Watch", time.UTC).WithTypeCode("running"),
	)

	store, err := database.NewPostgresStore(connStr, 4)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func at(y int, m time.Month, d, h, minute int) time.Time {
	return time.Date(y, m, d, h, minute, 0, 0, time.UTC)
}

func insertDocuments(t *testing.T, db *sql.DB, c database.Collection, docs ...database.Document) {
	t.Helper()
	const insert = `INSERT INTO raw_samples (
		user_id, namespace, series, id, interval_start, interval_end, device, value, type_code,
		year_start, month_start, day_start, fifteen_min_bucket_start,
		year_range, month_range, day_range, fifteen_min_bucket_range
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	for _, d := range docs {
		var value sql.NullFloat64
		if d.Value != nil {
			value = sql.NullFloat64{Float64: *d.Value, Valid: true}
		}
		typeCode := sql.NullString{String: d.TypeCode, Valid: d.TypeCode != ""}

		_, err := db.Exec(insert,
			c.UserID, c.Namespace, c.Series, d.ID, d.IntervalStart, d.IntervalEnd, d.Device, value, typeCode,
			d.YearStart, d.MonthStart, d.DayStart, d.FifteenMinBucketStart,
			pq.Array(d.YearRange), pq.Array(d.MonthRange), pq.Array(d.DayRange), pq.Array(d.FifteenMinBucketRange),
		)
		require.NoError(t, err)
	}
}

// Move setup code into a helper function
func setupTestEnvironment(t *testing.T) *server.SeriesServiceClient {
	t.Helper()

	// Initialize logger
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	store := setupTestDB(t)
	registry, err := series.Default()
	require.NoError(t, err)

	metrics, err := middleware.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	results, err := cache.NewLRU[fetch.Result](16)
	require.NoError(t, err)

	decomposer := decompose.New(store, decompose.WithLeafCounter(metrics.LeafQueries), decompose.WithLogger(logger))
	orchestrator, err := fetch.New(registry, store, decomposer,
		fetch.WithResultCache(results),
		fetch.WithCacheCounter(metrics.CacheLookups),
		fetch.WithLogger(logger),
	)
	require.NoError(t, err)

	config := server.DefaultServerConfig()
	config.RateLimit = 1000
	srv, _, err := server.SetupServer(orchestrator, config, metrics, logger)
	require.NoError(t, err)

	lis := bufconn.Listen(bufSize)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Errorf("Error serving: %v", err)
		}
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return server.NewSeriesServiceClient(conn)
}

func TestStepsDay(t *testing.T) {
	client := setupTestEnvironment(t)

	resp, err := client.FetchAggregated(context.Background(), &server.FetchRequest{
		UserID: "u1", Series: "health.stepcount", Start: "2024-01-01", End: "2024-01-02", Granularity: "day",
	})
	require.NoError(t, err)
	require.Len(t, resp.Points, 1)
	assert.Equal(t, "Apple Watch", resp.Points[0].Device)
	// s3 starts on Dec 31 and still touches Jan 1, so it is retrieved with s1
	// and s2; watch readings win over iPhone readings
	assert.Equal(t, []float64{480}, resp.Points[0].Values.Flat)
}

func TestAcrossYears(t *testing.T) {
	client := setupTestEnvironment(t)

	resp, err := client.FetchAggregated(context.Background(), &server.FetchRequest{
		UserID: "u1", Series: "health.stepcount", Start: "2023-12-31T12:00", End: "2024-01-03", Granularity: "day",
	})
	require.NoError(t, err)

	var entries int
	for _, p := range resp.Points {
		entries += p.Len()
	}
	// One reading per day: s3 on Dec 31, the watch reading on Jan 1, s4 on Jan 2
	assert.Equal(t, 3, entries)
}

func TestEventsAndErrors(t *testing.T) {
	client := setupTestEnvironment(t)
	ctx := context.Background()

	resp, err := client.FetchAggregated(ctx, &server.FetchRequest{
		UserID: "u1", Series: "health.workout", Start: "2024-01-01", End: "2024-01-02", Granularity: "day",
	})
	require.NoError(t, err)
	require.Len(t, resp.Points, 1)
	assert.Contains(t, resp.Summary, "running: 1 events")

	testCases := []struct {
		name string
		req  *server.FetchRequest
		code codes.Code
	}{
		{"no data", &server.FetchRequest{UserID: "u1", Series: "health.stepcount", Start: "2022-01-01", End: "2022-01-02", Granularity: "day"}, codes.NotFound},
		{"unknown series", &server.FetchRequest{UserID: "u1", Series: "health.heartrate", Start: "2024-01-01", End: "2024-01-02", Granularity: "day"}, codes.NotFound},
		{"empty range", &server.FetchRequest{UserID: "u1", Series: "health.stepcount", Start: "2024-01-02", End: "2024-01-01", Granularity: "day"}, codes.InvalidArgument},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.FetchAggregated(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, status.Code(err))
		})
	}
}

func TestListSeries(t *testing.T) {
	client := setupTestEnvironment(t)

	resp, err := client.ListSeries(context.Background(), &server.ListSeriesRequest{UserID: "u1"})
	require.NoError(t, err)

	var keys []string
	for _, d := range resp.Series {
		keys = append(keys, d.Key())
	}
	assert.Equal(t, []string{"health.stepcount", "health.workout"}, keys)
}

// Package seriesfetch implements an aggregation service for personal time
// series such as step counts, heart rate and workouts.
//
// # Architecture
//
// The service is structured into several key packages:
//   - series: Registry of known series and their kind (count, rate, event)
//   - granularity: Output bucket sizes and window-driven adjustment
//   - database: Calendar-indexed document store contract and adapters
//   - decompose: Splitting a window into index-aligned store queries
//   - aggregate: Re-bucketing, device disambiguation and statistics
//   - cache: Result memoization in an LRU or in Redis
//   - fetch: Orchestration of the above behind one entry point
//   - grpc: gRPC service implementation
//   - scheduler: Periodic cache purging
//
// Key Features
//
//   - Window decomposition:
//     The store only indexes calendar components, so a window is split
//     across year, month, day and 15-minute boundaries into queries that
//     cover it exactly once. Leaf queries run concurrently.
//
//   - Series kinds:
//     Counts are summed, rates report mean and spread, events report
//     per-type counts and durations.
//
//   - Multiple devices:
//     When a bucket holds readings from several devices only one device's
//     readings are kept, so the same steps are never counted twice.
//
// Example Usage
//
//	client := grpc.NewSeriesServiceClient(conn)
//	resp, err := client.FetchAggregated(ctx, &grpc.FetchRequest{
//	    UserID:      "u1",
//	    Series:      "health.stepcount",
//	    Start:       "2024-01-01",
//	    End:         "2024-01-08",
//	    Granularity: "day",
//	})
//
// For more information about specific packages, see their respective
// documentation.
package seriesfetch

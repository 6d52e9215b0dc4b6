package server

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	middleware "github.com/tejusbharadwaj/seriesfetch/internal/grpc/middlewares"
)

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	RateLimit      float64        // Requests per second
	RateLimitBurst int            // Maximum burst size for rate limiting
	MaxRange       time.Duration  // Longest accepted fetch window
	Location       *time.Location // Location of dates without an offset
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimit:      5.0, // 5 requests per second
		RateLimitBurst: 10,  // Burst of 10 requests
		MaxRange:       maxTimeRange,
		Location:       time.UTC,
	}
}

// SetupServer initializes the gRPC server with all middleware, the series
// service and a health service reporting it as serving.
func SetupServer(backend Backend, config ServerConfig, metrics *middleware.Metrics, logger logrus.FieldLogger) (*grpc.Server, *HealthChecker, error) {
	if config.RateLimit <= 0 || config.RateLimitBurst <= 0 {
		return nil, nil, errors.New("rate limit and burst must be positive")
	}
	if metrics == nil {
		return nil, nil, errors.New("metrics are required")
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			// Add request ID first
			middleware.NewContextMiddleware(logger),
			// Rate limit early
			middleware.NewRateLimitingInterceptor(config.RateLimit, config.RateLimitBurst),
			// Log all requests (with request ID)
			middleware.NewLoggingInterceptor(logger),
			metrics.Interceptor(),
		),
	)

	svc := NewSeriesService(backend, NewRequestValidator(config.Location, config.MaxRange), logger)
	RegisterSeriesServiceServer(server, svc)

	health := NewHealthChecker()
	health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(server, health)

	return server, health, nil
}

// Package commands implements CLI command handlers for logfang.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/Sumatoshi-tech/logfang/internal/config"
	"github.com/Sumatoshi-tech/logfang/internal/observability"
	"github.com/Sumatoshi-tech/logfang/pkg/version"
)

// timeRound is the display precision for durations in command output.
const timeRound = 10 * time.Millisecond

// newLogger builds the CLI logger writing to stderr so stdout stays clean
// for command output.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads and validates the configuration, from an explicit path
// when given.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// openWarehouse opens a connection pool against the Postgres warehouse.
func openWarehouse(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, parseErr := pgxpool.ParseConfig(cfg.Warehouse.DSN)
	if parseErr != nil {
		return nil, fmt.Errorf("parse warehouse dsn: %w", parseErr)
	}

	if cfg.Warehouse.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.Warehouse.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open warehouse pool: %w", err)
	}

	return pool, nil
}

// openRedis builds the broker client for queue and checkpoint access.
func openRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// openQdrant builds the vector index client.
func openQdrant(cfg *config.Config) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("open qdrant client: %w", err)
	}

	return client, nil
}

// telemetryConfig maps the observability settings onto the OTLP bootstrap
// for one binary role.
func telemetryConfig(cfg *config.Config, service string) observability.TelemetryConfig {
	return observability.TelemetryConfig{
		ServiceName:  service,
		Version:      version.Version,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		OTLPInsecure: cfg.Observability.OTLPInsecure,
	}
}

// initTelemetry installs the tracer provider and returns a deferred-safe
// shutdown that logs flush failures.
func initTelemetry(ctx context.Context, cfg *config.Config, service string, logger *slog.Logger) (func(), error) {
	shutdown, err := observability.InitTelemetry(ctx, telemetryConfig(cfg, service))
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	return func() {
		flushErr := shutdown(context.Background())
		if flushErr != nil {
			logger.Warn("telemetry shutdown failed", "error", flushErr)
		}
	}, nil
}

// parseDuration parses a configured duration string, falling back to def
// when the value is empty or malformed.
func parseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}

	return d
}

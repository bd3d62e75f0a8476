package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg, err := LoadConfig("")
	if err != nil {
		panic(err)
	}

	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	// An explicit path that does not exist is an error.
	require.Error(t, err)

	cfg, err = LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultQdrantPort, cfg.Qdrant.Port)
	assert.Equal(t, DefaultQdrantCollection, cfg.Qdrant.Collection)
	assert.Equal(t, DefaultEmbeddingDimension, cfg.Embedding.Dimension)
	assert.Equal(t, DefaultEmbeddingCacheBytes, cfg.Embedding.CacheBytes)
	assert.Equal(t, DefaultPipelineBatchSize, cfg.Pipeline.BatchSize)
	assert.Equal(t, DefaultPipelineLoadBatchSize, cfg.Pipeline.LoadBatchSize)
	assert.True(t, cfg.Pipeline.ContinueOnError)
	assert.Equal(t, WorkerSourceMaster, cfg.Worker.Source)
	assert.False(t, cfg.Observability.Enabled)
	assert.Empty(t, cfg.Observability.OTLPEndpoint)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logfang.yaml")

	content := `
warehouse:
  dsn: postgres://etl@localhost:5432/logs
  datasets:
    - prod_logs
    - staging_logs
pipeline:
  batch_size: 200
  parallel_streams: 2
worker:
  source: raw
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://etl@localhost:5432/logs", cfg.Warehouse.DSN)
	assert.Equal(t, []string{"prod_logs", "staging_logs"}, cfg.Warehouse.Datasets)
	assert.Equal(t, int64(200), cfg.Pipeline.BatchSize)
	assert.Equal(t, 2, cfg.Pipeline.ParallelStreams)
	assert.Equal(t, WorkerSourceRaw, cfg.Worker.Source)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embedding.Model)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("LOGFANG_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("LOGFANG_EMBEDDING_DIMENSION", "768")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(_ *Config) {}, wantErr: nil},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Pipeline.BatchSize = 0 },
			wantErr: ErrInvalidBatchSize,
		},
		{
			name:    "oversized load batch",
			mutate:  func(c *Config) { c.Pipeline.LoadBatchSize = 501 },
			wantErr: ErrInvalidLoadBatchSize,
		},
		{
			name:    "zero parallelism",
			mutate:  func(c *Config) { c.Pipeline.ParallelStreams = 0 },
			wantErr: ErrInvalidParallelStreams,
		},
		{
			name:    "negative lookback",
			mutate:  func(c *Config) { c.Pipeline.HoursLookback = -1 },
			wantErr: ErrInvalidHoursLookback,
		},
		{
			name:    "zero dimension",
			mutate:  func(c *Config) { c.Embedding.Dimension = 0 },
			wantErr: ErrInvalidDimension,
		},
		{
			name:    "unknown worker source",
			mutate:  func(c *Config) { c.Worker.Source = "bigtable" },
			wantErr: ErrInvalidWorkerSource,
		},
		{
			name:    "negative redis db",
			mutate:  func(c *Config) { c.Redis.DB = -1 },
			wantErr: ErrInvalidRedisDB,
		},
		{
			name:    "qdrant port out of range",
			mutate:  func(c *Config) { c.Qdrant.Port = 0 },
			wantErr: ErrInvalidQdrantPort,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()

			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

package config

import "errors"

// Config is the top-level configuration struct for logfang.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Warehouse     WarehouseConfig     `mapstructure:"warehouse"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Enrichment    EnrichmentConfig    `mapstructure:"enrichment"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// WarehouseConfig holds the Postgres warehouse connection settings.
type WarehouseConfig struct {
	DSN      string   `mapstructure:"dsn"`
	Datasets []string `mapstructure:"datasets"`
	MaxConns int      `mapstructure:"max_conns"`
}

// RedisConfig holds the queue/checkpoint broker settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QdrantConfig holds the vector index settings.
type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
}

// EmbeddingConfig holds the local embedding endpoint settings.
type EmbeddingConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Model      string `mapstructure:"model"`
	Dimension  int    `mapstructure:"dimension"`
	CacheBytes int64  `mapstructure:"cache_bytes"`
}

// EnrichmentConfig holds the optional LLM category enrichment settings.
type EnrichmentConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// PipelineConfig holds the ETL run knobs.
type PipelineConfig struct {
	BatchSize              int64 `mapstructure:"batch_size"`
	MaxBatchesPerStream    int   `mapstructure:"max_batches_per_stream"`
	HoursLookback          int   `mapstructure:"hours_lookback"`
	EnableAIEnrichment     bool  `mapstructure:"enable_ai_enrichment"`
	LoadBatchSize          int   `mapstructure:"load_batch_size"`
	ParallelStreams        int   `mapstructure:"parallel_streams"`
	ContinueOnError        bool  `mapstructure:"continue_on_error"`
	CleanupSourceAfterDays int   `mapstructure:"cleanup_source_after_days"`
	CleanupApply           bool  `mapstructure:"cleanup_apply"`
}

// WorkerConfig holds the embedding worker knobs.
type WorkerConfig struct {
	Source         string `mapstructure:"source"`
	PollInterval   string `mapstructure:"poll_interval"`
	DequeueTimeout string `mapstructure:"dequeue_timeout"`
	TuneInterval   string `mapstructure:"tune_interval"`
}

// ObservabilityConfig holds the metrics/health HTTP settings and the
// optional OTLP export target. An empty endpoint keeps tracing no-op.
type ObservabilityConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Addr         string `mapstructure:"addr"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Worker row sources.
const (
	WorkerSourceMaster = "master"
	WorkerSourceRaw    = "raw"
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidBatchSize indicates the pipeline batch size is not positive.
	ErrInvalidBatchSize = errors.New("pipeline.batch_size must be positive")
	// ErrInvalidLoadBatchSize indicates the load batch size is out of range.
	ErrInvalidLoadBatchSize = errors.New("pipeline.load_batch_size must be between 1 and 500")
	// ErrInvalidParallelStreams indicates the parallelism is not positive.
	ErrInvalidParallelStreams = errors.New("pipeline.parallel_streams must be positive")
	// ErrInvalidHoursLookback indicates the lookback window is negative.
	ErrInvalidHoursLookback = errors.New("pipeline.hours_lookback must be non-negative")
	// ErrInvalidDimension indicates the embedding dimension is not positive.
	ErrInvalidDimension = errors.New("embedding.dimension must be positive")
	// ErrInvalidWorkerSource indicates an unknown worker row source.
	ErrInvalidWorkerSource = errors.New("worker.source must be master or raw")
	// ErrInvalidRedisDB indicates the redis db index is negative.
	ErrInvalidRedisDB = errors.New("redis.db must be non-negative")
	// ErrInvalidQdrantPort indicates the qdrant port is out of range.
	ErrInvalidQdrantPort = errors.New("qdrant.port must be between 1 and 65535")
)

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.Pipeline.LoadBatchSize < 1 || c.Pipeline.LoadBatchSize > 500 {
		return ErrInvalidLoadBatchSize
	}

	if c.Pipeline.ParallelStreams <= 0 {
		return ErrInvalidParallelStreams
	}

	if c.Pipeline.HoursLookback < 0 {
		return ErrInvalidHoursLookback
	}

	if c.Embedding.Dimension <= 0 {
		return ErrInvalidDimension
	}

	if c.Worker.Source != WorkerSourceMaster && c.Worker.Source != WorkerSourceRaw {
		return ErrInvalidWorkerSource
	}

	if c.Redis.DB < 0 {
		return ErrInvalidRedisDB
	}

	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		return ErrInvalidQdrantPort
	}

	return nil
}

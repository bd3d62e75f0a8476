package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".logfang"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for logfang settings.
const envPrefix = "LOGFANG"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Default values applied before file and environment lookup.
const (
	DefaultWarehouseMaxConns = 8

	DefaultRedisAddr = "localhost:6379"

	DefaultQdrantHost       = "localhost"
	DefaultQdrantPort       = 6334
	DefaultQdrantCollection = "logs_embedded"

	DefaultEmbeddingEndpoint   = "http://localhost:11434"
	DefaultEmbeddingModel      = "qwen3-embedding"
	DefaultEmbeddingDimension  = 1024
	DefaultEmbeddingCacheBytes = int64(64 * 1024 * 1024)

	DefaultEnrichmentModel = "llama3.2"

	DefaultPipelineBatchSize       = int64(1000)
	DefaultPipelineLoadBatchSize   = 500
	DefaultPipelineParallelStreams = 4

	DefaultWorkerSource         = WorkerSourceMaster
	DefaultWorkerPollInterval   = "1s"
	DefaultWorkerDequeueTimeout = "1s"
	DefaultWorkerTuneInterval   = "30s"

	DefaultObservabilityAddr = ":9464"
)

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("warehouse.dsn", "")
	viperCfg.SetDefault("warehouse.datasets", []string{})
	viperCfg.SetDefault("warehouse.max_conns", DefaultWarehouseMaxConns)

	viperCfg.SetDefault("redis.addr", DefaultRedisAddr)
	viperCfg.SetDefault("redis.password", "")
	viperCfg.SetDefault("redis.db", 0)

	viperCfg.SetDefault("qdrant.host", DefaultQdrantHost)
	viperCfg.SetDefault("qdrant.port", DefaultQdrantPort)
	viperCfg.SetDefault("qdrant.api_key", "")
	viperCfg.SetDefault("qdrant.use_tls", false)
	viperCfg.SetDefault("qdrant.collection", DefaultQdrantCollection)

	viperCfg.SetDefault("embedding.endpoint", DefaultEmbeddingEndpoint)
	viperCfg.SetDefault("embedding.model", DefaultEmbeddingModel)
	viperCfg.SetDefault("embedding.dimension", DefaultEmbeddingDimension)
	viperCfg.SetDefault("embedding.cache_bytes", DefaultEmbeddingCacheBytes)

	viperCfg.SetDefault("enrichment.endpoint", DefaultEmbeddingEndpoint)
	viperCfg.SetDefault("enrichment.model", DefaultEnrichmentModel)

	viperCfg.SetDefault("pipeline.batch_size", DefaultPipelineBatchSize)
	viperCfg.SetDefault("pipeline.max_batches_per_stream", 0)
	viperCfg.SetDefault("pipeline.hours_lookback", 0)
	viperCfg.SetDefault("pipeline.enable_ai_enrichment", false)
	viperCfg.SetDefault("pipeline.load_batch_size", DefaultPipelineLoadBatchSize)
	viperCfg.SetDefault("pipeline.parallel_streams", DefaultPipelineParallelStreams)
	viperCfg.SetDefault("pipeline.continue_on_error", true)
	viperCfg.SetDefault("pipeline.cleanup_source_after_days", 0)
	viperCfg.SetDefault("pipeline.cleanup_apply", false)

	viperCfg.SetDefault("worker.source", DefaultWorkerSource)
	viperCfg.SetDefault("worker.poll_interval", DefaultWorkerPollInterval)
	viperCfg.SetDefault("worker.dequeue_timeout", DefaultWorkerDequeueTimeout)
	viperCfg.SetDefault("worker.tune_interval", DefaultWorkerTuneInterval)

	viperCfg.SetDefault("observability.enabled", false)
	viperCfg.SetDefault("observability.addr", DefaultObservabilityAddr)
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
}

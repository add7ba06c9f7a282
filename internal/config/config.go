// Package config loads service configuration from an optional TOML file and
// environment variables. Environment always wins over the file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig       `toml:"service"`
	STT           STTConfig           `toml:"stt"`
	Retry         RetryConfig         `toml:"retry"`
	Reconcile     ReconcileConfig     `toml:"reconcile"`
	Storage       StorageConfig       `toml:"storage"`
	Audio         AudioConfig         `toml:"audio"`
	Kafka         KafkaConfig         `toml:"kafka"`
	Worker        WorkerConfig        `toml:"worker"`
	Observability ObservabilityConfig `toml:"observability"`
}

// ServiceConfig holds service identity and listener ports.
type ServiceConfig struct {
	Principal string `toml:"principal"`
	HTTPPort  string `toml:"http_port"`
	GRPCPort  string `toml:"grpc_port"`
}

// STTConfig selects and configures the speech engine.
type STTConfig struct {
	Provider              string `toml:"provider"` // mock, openai, google
	Language              string `toml:"language"` // empty lets the engine detect
	OpenAIAPIKey          string `toml:"openai_api_key"`
	OpenAIBaseURL         string `toml:"openai_base_url"`
	OpenAIModel           string `toml:"openai_model"`
	GoogleLanguageCode    string `toml:"google_language_code"`
	GoogleSampleRateHz    int    `toml:"google_sample_rate_hz"`
	GoogleAudioEncoding   string `toml:"google_audio_encoding"`
	GoogleCredentialsFile string `toml:"google_credentials_file"`
	MockResultKind        string `toml:"mock_result_kind"` // segments, words, text
}

// RetryConfig is the speech engine retry policy.
type RetryConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	BackoffBase time.Duration `toml:"backoff_base"`
}

// ReconcileConfig tunes cross-channel duplicate detection.
type ReconcileConfig struct {
	WindowSeconds       float64 `toml:"window_seconds"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver string `toml:"driver"` // memory, postgres
	DSN    string `toml:"dsn"`
}

// AudioConfig locates the audio artifact bucket.
type AudioConfig struct {
	BucketURL string `toml:"bucket_url"` // e.g. file:///var/lib/recordings, mem://
}

// KafkaConfig holds event publisher configuration.
type KafkaConfig struct {
	Enabled        bool     `toml:"enabled"`
	Brokers        []string `toml:"brokers"`
	TopicCompleted string   `toml:"topic_completed"`
	TopicFailed    string   `toml:"topic_failed"`
	Principal      string   `toml:"principal"`
}

// WorkerConfig sizes the async processing pool.
type WorkerConfig struct {
	PoolSize       int           `toml:"pool_size"`
	ProcessTimeout time.Duration `toml:"process_timeout"` // 0 means unbounded
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	MetricsPort string `toml:"metrics_port"`
}

// Defaults returns the built-in configuration.
func Defaults() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal: "svc-recording-transcription",
			HTTPPort:  "8080",
			GRPCPort:  "50051",
		},
		STT: STTConfig{
			Provider:            "mock",
			OpenAIModel:         "whisper-1",
			GoogleLanguageCode:  "en-US",
			GoogleSampleRateHz:  48000,
			GoogleAudioEncoding: "WEBM_OPUS",
			MockResultKind:      "segments",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffBase: time.Second,
		},
		Reconcile: ReconcileConfig{
			WindowSeconds:       2.0,
			SimilarityThreshold: 0.8,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Audio: AudioConfig{
			BucketURL: "mem://",
		},
		Kafka: KafkaConfig{
			TopicCompleted: "recording.completed",
			TopicFailed:    "recording.failed",
		},
		Worker: WorkerConfig{
			PoolSize: 8,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: "9090",
		},
	}
}

// Load builds the configuration: defaults, then CONFIG_FILE (TOML) if set,
// then environment variables.
func Load() *Configuration {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read config file, using defaults")
		}
	}

	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.Language = envOrDefault("STT_LANGUAGE", cfg.STT.Language)
	cfg.STT.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.STT.OpenAIAPIKey)
	cfg.STT.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.STT.OpenAIBaseURL)
	cfg.STT.OpenAIModel = envOrDefault("OPENAI_STT_MODEL", cfg.STT.OpenAIModel)
	cfg.STT.GoogleLanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.GoogleLanguageCode)
	cfg.STT.GoogleSampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", cfg.STT.GoogleSampleRateHz)
	cfg.STT.GoogleAudioEncoding = envOrDefault("STT_AUDIO_ENCODING", cfg.STT.GoogleAudioEncoding)
	cfg.STT.GoogleCredentialsFile = envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", cfg.STT.GoogleCredentialsFile)
	cfg.STT.MockResultKind = envOrDefault("STT_MOCK_RESULT_KIND", cfg.STT.MockResultKind)

	cfg.Retry.MaxAttempts = envOrDefaultInt("STT_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BackoffBase = envOrDefaultDuration("STT_BACKOFF_BASE", cfg.Retry.BackoffBase)

	cfg.Reconcile.WindowSeconds = envOrDefaultFloat("RECONCILE_WINDOW_SECONDS", cfg.Reconcile.WindowSeconds)
	cfg.Reconcile.SimilarityThreshold = envOrDefaultFloat("RECONCILE_SIMILARITY_THRESHOLD", cfg.Reconcile.SimilarityThreshold)

	cfg.Storage.Driver = envOrDefault("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = envOrDefault("DATABASE_URL", cfg.Storage.DSN)

	cfg.Audio.BucketURL = envOrDefault("AUDIO_BUCKET_URL", cfg.Audio.BucketURL)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.TopicCompleted = envOrDefault("KAFKA_TOPIC_COMPLETED", cfg.Kafka.TopicCompleted)
	cfg.Kafka.TopicFailed = envOrDefault("KAFKA_TOPIC_FAILED", cfg.Kafka.TopicFailed)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.Worker.PoolSize = envOrDefaultInt("WORKER_POOL_SIZE", cfg.Worker.PoolSize)
	cfg.Worker.ProcessTimeout = envOrDefaultDuration("WORKER_PROCESS_TIMEOUT", cfg.Worker.ProcessTimeout)

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsPort = envOrDefault("METRICS_PORT", cfg.Observability.MetricsPort)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

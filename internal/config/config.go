// Package config loads converter settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Remote  RemoteConfig
	OCR     OCRConfig
	Tools   ToolsConfig
	Storage StorageConfig
	Redis   RedisConfig
	Worker  WorkerConfig
	Log     LogConfig

	DefaultCurrency string
	PreviewDir      string
}

type ServerConfig struct {
	Port             int
	Token            string
	MaxFileSizeBytes int
	MetricsEnabled   bool
}

// RemoteConfig points at a peer conversion service. An empty URL means convert locally.
type RemoteConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type OCRConfig struct {
	DPI            int
	BatchSize      int
	Language       string
	PSM            int
	Concurrency    int
	TessdataPrefix string
}

type ToolsConfig struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

type StorageConfig struct {
	Type            string
	LocalPath       string
	GCSBucket       string
	GCSPrefix       string
	CredentialsFile string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WorkerConfig struct {
	Concurrency int
	StatusTTL   time.Duration
	Queue       string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present) and then environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnvAsInt("PORT", 8081),
			Token:            getEnv("CONVERSION_SERVICE_TOKEN", ""),
			MaxFileSizeBytes: getEnvAsInt("MAX_FILE_SIZE_BYTES", 50<<20),
			MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
		},
		Remote: RemoteConfig{
			URL:     strings.TrimRight(getEnv("CONVERSION_SERVICE_URL", ""), "/"),
			Token:   getEnv("CONVERSION_SERVICE_TOKEN", ""),
			Timeout: getEnvAsDuration("CONVERSION_SERVICE_TIMEOUT", 5*time.Minute),
		},
		OCR: OCRConfig{
			DPI:            getEnvAsInt("OCR_DPI", 300),
			BatchSize:      getEnvAsInt("OCR_BATCH_SIZE", 10),
			Language:       getEnv("OCR_LANGUAGE", "eng"),
			PSM:            getEnvAsInt("OCR_PSM", 6),
			Concurrency:    getEnvAsInt("OCR_CONCURRENCY", 1),
			TessdataPrefix: getEnv("TESSDATA_PREFIX", ""),
		},
		Tools: ToolsConfig{
			Timeout:        getEnvAsDuration("TOOL_TIMEOUT", 2*time.Minute),
			MaxOutputBytes: getEnvAsInt("TOOL_MAX_OUTPUT_BYTES", 10<<20),
		},
		Storage: StorageConfig{
			Type:            getEnv("STORAGE_TYPE", "local"),
			LocalPath:       getEnv("STORAGE_LOCAL_PATH", "./storage"),
			GCSBucket:       getEnv("STORAGE_GCS_BUCKET", ""),
			GCSPrefix:       getEnv("STORAGE_GCS_PREFIX", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvAsInt("WORKER_CONCURRENCY", 2),
			StatusTTL:   getEnvAsDuration("STATUS_TTL", 7*24*time.Hour),
			Queue:       getEnv("WORKER_QUEUE", "conversions"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "ZAR")),
		PreviewDir:      getEnv("PREVIEW_DIR", os.TempDir()),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.OCR.DPI <= 0:
		return errors.New("OCR_DPI must be positive")
	case c.OCR.BatchSize <= 0:
		return errors.New("OCR_BATCH_SIZE must be positive")
	case c.OCR.Concurrency <= 0:
		return errors.New("OCR_CONCURRENCY must be positive")
	case c.Server.MaxFileSizeBytes <= 0:
		return errors.New("MAX_FILE_SIZE_BYTES must be positive")
	}
	switch c.Storage.Type {
	case "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("STORAGE_GCS_BUCKET is required for gcs storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

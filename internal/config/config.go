package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	Database DatabaseConfig
	Catalog  CatalogConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Quality  QualityConfig
	Web      WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// CatalogConfig points at the external image catalog database. The catalog
// owns the corpus; this service only reads image references from it.
type CatalogConfig struct {
	DSN string // MariaDB DSN (e.g., catalog:catalog@tcp(mariadb:3306)/catalog)
}

type RedisConfig struct {
	Addr     string // defaults to localhost:6379
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string // defaults to localhost:9000
	AccessKey string
	SecretKey string
	Bucket    string // defaults to images
	UseSSL    bool
	Region    string
}

type QualityConfig struct {
	BatchSize  int           // images per processing chunk (default 50)
	MaxRetries int           // whole-job retry budget (default 3)
	RetryDelay time.Duration // delay between job retry attempts (default 30s)
	Workers    int           // worker pool size for the serve command (default 2)
}

type WebConfig struct {
	Host string
	Port int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envStr reads an environment variable, falling back to a default when unset.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a duration.
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		AppEnv: envStr("APP_ENV", "production"),
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Catalog: CatalogConfig{
			DSN: os.Getenv("CATALOG_DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     envStr("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Endpoint:  envStr("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envStr("MINIO_BUCKET", "images"),
			UseSSL:    strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
			Region:    os.Getenv("MINIO_REGION"),
		},
		Quality: QualityConfig{
			BatchSize:  envInt("QUALITY_BATCH_SIZE", 50),
			MaxRetries: envInt("QUALITY_MAX_RETRIES", 3),
			RetryDelay: envDuration("QUALITY_RETRY_DELAY", 30*time.Second),
			Workers:    envInt("QUALITY_WORKERS", 2),
		},
		Web: WebConfig{
			Host: envStr("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
	}
}

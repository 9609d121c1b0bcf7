package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RedisHost     string
	RedisPort     string
	EtcdEndpoints []string

	// Blob storage for batch dependency artifacts.
	BlobBucket    string
	BlobPrefix    string
	BlobRegion    string
	BlobEndpoint  string // for MinIO/local S3
	BlobAccessKey string
	BlobSecretKey string

	// Dispatcher-side result history store.
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Worker settings.
	ScratchDir    string // root under which scoped working areas are created
	APIPort       string
	HeartbeatTTL  int // seconds
	JobTimeout    time.Duration
	MaxConcurrent int // 0 means one per CPU

	// Tracing.
	TracingEnabled  bool
	TracingEndpoint string
}

func LoadConfig() *Config {
	return &Config{
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		EtcdEndpoints: strings.Split(getEnv("ETCD_ENDPOINTS", "localhost:2379"), ","),

		BlobBucket:    getEnv("BLOB_BUCKET", "crucible-batches"),
		BlobPrefix:    getEnv("BLOB_PREFIX", "batches/"),
		BlobRegion:    getEnv("BLOB_REGION", "us-east-1"),
		BlobEndpoint:  getEnv("BLOB_ENDPOINT", ""),
		BlobAccessKey: getEnv("BLOB_ACCESS_KEY", ""),
		BlobSecretKey: getEnv("BLOB_SECRET_KEY", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "crucible"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "crucible"),

		ScratchDir:    getEnv("SCRATCH_DIR", os.TempDir()),
		APIPort:       getEnv("API_PORT", "8090"),
		HeartbeatTTL:  getEnvAsInt("HEARTBEAT_TTL", 10),
		JobTimeout:    getEnvAsDuration("JOB_TIMEOUT", 30*time.Minute),
		MaxConcurrent: getEnvAsInt("MAX_CONCURRENT_JOBS", 0),

		TracingEnabled:  getEnv("TRACING_ENABLED", "false") == "true",
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
	}
}

// RedisAddr returns the host:port address of the redis instance.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// PostgresDSN builds the connection string for the result store.
func (c *Config) PostgresDSN() string {
	return "host=" + c.DBHost + " user=" + c.DBUser + " password=" + c.DBPassword +
		" dbname=" + c.DBName + " port=" + c.DBPort + " sslmode=disable TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

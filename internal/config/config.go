package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort   string
	Database   DatabaseConfig
	Redis      RedisConfig
	Gateway    GatewayConfig
	Downstream DownstreamConfig
	Archive    ArchiveConfig
	Admin      AdminConfig
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory store, which is intended for development and tests.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GatewayConfig holds metering settings for issued keys.
type GatewayConfig struct {
	SelfServeDailyLimit int64
	SelfServeCredits    int64
	IssueTTL            time.Duration
	TextCost            int64
	ImageCost           int64
	RateLimitPerMinute  int
}

// DownstreamConfig holds settings for the upstream generation services.
type DownstreamConfig struct {
	TextBaseURL    string
	ImageBaseURL   string
	RequestTimeout time.Duration
}

// ArchiveConfig holds configuration for the usage archive pipeline.
// When S3Bucket is empty, batches are written to local files instead.
type ArchiveConfig struct {
	Enabled          bool
	FlushSize        int
	FlushInterval    time.Duration
	S3Bucket         string
	S3Region         string
	S3Prefix         string
	PodName          string
	FilePathTemplate string
	FileMaxSize      int64
	FileMaxFiles     int
	UseRedisQueue    bool
}

// AdminConfig holds bootstrap credentials for the in-memory store. When the
// gateway runs against Postgres, admins are provisioned with init-admin.
type AdminConfig struct {
	BootstrapUsername string
	BootstrapPassword string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnvString("AIGATE_HTTP_PORT", "8080"),
		Database: DatabaseConfig{
			URL:             getEnvString("AIGATE_DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("AIGATE_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("AIGATE_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("AIGATE_DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("AIGATE_DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("AIGATE_REDIS_ADDRESS", ""),
			Password:     getEnvString("AIGATE_REDIS_PASSWORD", ""),
			DB:           getEnvInt("AIGATE_REDIS_DB", 0),
			PoolSize:     getEnvInt("AIGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("AIGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("AIGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("AIGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("AIGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Gateway: GatewayConfig{
			SelfServeDailyLimit: getEnvInt64("AIGATE_SELF_SERVE_DAILY_LIMIT", 30),
			SelfServeCredits:    getEnvInt64("AIGATE_SELF_SERVE_CREDITS", 100),
			IssueTTL:            getEnvDuration("AIGATE_ISSUE_TTL", 365*24*time.Hour),
			TextCost:            getEnvInt64("AIGATE_TEXT_COST", 1),
			ImageCost:           getEnvInt64("AIGATE_IMAGE_COST", 5),
			RateLimitPerMinute:  getEnvInt("AIGATE_RATE_LIMIT_PER_MINUTE", 0),
		},
		Downstream: DownstreamConfig{
			TextBaseURL:    getEnvString("AIGATE_TEXT_BASE_URL", "https://text.pollinations.ai"),
			ImageBaseURL:   getEnvString("AIGATE_IMAGE_BASE_URL", "https://image.pollinations.ai"),
			RequestTimeout: getEnvDuration("AIGATE_DOWNSTREAM_TIMEOUT", 60*time.Second),
		},
		Archive: ArchiveConfig{
			Enabled:          getEnvString("AIGATE_ARCHIVE_ENABLED", "false") == "true",
			FlushSize:        getEnvInt("AIGATE_ARCHIVE_FLUSH_SIZE", 100),
			FlushInterval:    getEnvDuration("AIGATE_ARCHIVE_FLUSH_INTERVAL", 5*time.Minute),
			S3Bucket:         getEnvString("AIGATE_ARCHIVE_S3_BUCKET", ""),
			S3Region:         getEnvString("AIGATE_ARCHIVE_S3_REGION", "us-east-1"),
			S3Prefix:         getEnvString("AIGATE_ARCHIVE_S3_PREFIX", "usage/"),
			PodName:          getEnvString("POD_NAME", "gateway-0"),
			FilePathTemplate: getEnvString("AIGATE_ARCHIVE_FILE_PATH_TEMPLATE", "/var/log/aigate/usage-%s.jsonl"),
			FileMaxSize:      getEnvInt64("AIGATE_ARCHIVE_FILE_MAX_SIZE", 10_485_760), // default 10 MB
			FileMaxFiles:     getEnvInt("AIGATE_ARCHIVE_FILE_MAX_FILES", 5),
			UseRedisQueue:    getEnvString("AIGATE_ARCHIVE_USE_REDIS", "false") == "true",
		},
		Admin: AdminConfig{
			BootstrapUsername: getEnvString("AIGATE_ADMIN_USERNAME", ""),
			BootstrapPassword: getEnvString("AIGATE_ADMIN_PASSWORD", ""),
		},
	}

	return cfg, nil
}

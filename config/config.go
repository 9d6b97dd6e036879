package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	Port string

	// 存储配置
	DBDriver         string // mysql, sqlite
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBFallbackDSN    string // Used when the primary DSN cannot be reached in time
	DBConnectTimeout time.Duration
	SQLitePath       string

	// Redis配置。RedisHost 为空时使用进程内变更通道，只适用于单进程部署：
	// 独立的 sweeper 或维护命令做出的修改不会推送到 server 的 websocket 连接。
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	SweepEnabled  bool // false 时由独立的 sweeper 进程负责
	SweepInterval time.Duration

	// 日志配置
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// MinIO配置（仅用于导出）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("1s", "250ms").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		Port:             getEnv("PORT", "8081"),
		DBDriver:         getEnv("DB_DRIVER", "mysql"),
		DBHost:           getEnv("DB_HOST", "127.0.0.1"),
		DBPort:           getEnv("DB_PORT", "3306"),
		DBUser:           getEnv("DB_USER", "root"),
		DBPassword:       os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:           getEnv("DB_NAME", "jukebox"),
		DBFallbackDSN:    os.Getenv("DB_FALLBACK_DSN"),
		DBConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
		SQLitePath:       getEnv("SQLITE_PATH", "jukebox.db"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SweepEnabled:  getEnvBool("SWEEP_ENABLED", true),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Second),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "jukebox-exports"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

// RedisEnabled reports whether a shared change feed is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// ErrNoSharedFeed 未配置 Redis 时，本进程的写入只推送给本进程内的连接
var ErrNoSharedFeed = errors.New("REDIS_HOST is not set: changes made by this process would not reach websocket clients of the server process")

// RequireSharedFeed 独立于 server 修改队列的进程（sweeper、tracklist clear）启动前检查
func (c *Config) RequireSharedFeed() error {
	if c.RedisEnabled() {
		return nil
	}
	return ErrNoSharedFeed
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config 应用配置
type Config struct {
	Env         string
	Port        string `validate:"required"`
	DatabaseURL string `validate:"required"`
	DBMaxSizeMB int64  `validate:"gt=0"`

	LogLevel string `validate:"oneof=trace debug info warn error"`
	LogFile  string

	TMDB      TMDBConfig
	Discovery DiscoveryConfig
}

// TMDBConfig TMDB 接口配置
type TMDBConfig struct {
	Token        string        `validate:"required"`
	BaseURL      string        `validate:"required,url"`
	ImageBaseURL string        `validate:"required,url"`
	RateLimit    int           `validate:"gt=0"`   // 每个窗口允许的请求数
	RateWindow   time.Duration `validate:"gt=0"`   // 限流窗口
	RateWait     time.Duration `validate:"gt=0"`   // 等待令牌的最长时间
	Timeout      time.Duration `validate:"gte=1s"` // 单次请求超时
}

// DiscoveryConfig 后台发现任务配置
type DiscoveryConfig struct {
	Enabled        bool
	Interval       time.Duration `validate:"gte=1s"` // cron 最小粒度为 1 秒
	ErrorThreshold int           `validate:"gt=0"`
	Cooldown       time.Duration `validate:"gt=0"`
	CastLimit      int           `validate:"gt=0"`
	FetchWorkers   int           `validate:"gt=0"`
}

// Load 加载配置
func Load() *Config {
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_NAME", "tvtracker")
	dbSSL := getEnv("DB_SSLMODE", "disable")

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPass, dbHost, dbPort, dbName, dbSSL)

	return &Config{
		Env:         getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "5005"),
		DatabaseURL: dbURL,
		DBMaxSizeMB: int64(getEnvInt("DB_MAX_SIZE_MB", 1024)),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
		TMDB: TMDBConfig{
			Token:        getEnv("TMDB_TOKEN", ""),
			BaseURL:      getEnv("TMDB_BASE_URL", "https://api.themoviedb.org"),
			ImageBaseURL: getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/original"),
			RateLimit:    getEnvInt("TMDB_RATE_LIMIT", 40),
			RateWindow:   getEnvDuration("TMDB_RATE_WINDOW", 10*time.Second),
			RateWait:     getEnvDuration("TMDB_RATE_WAIT", 15*time.Second),
			Timeout:      getEnvDuration("TMDB_TIMEOUT", 15*time.Second),
		},
		Discovery: DiscoveryConfig{
			Enabled:        getEnvBool("DISCOVERY_ENABLED", true),
			Interval:       getEnvDuration("DISCOVERY_INTERVAL", 10*time.Second),
			ErrorThreshold: getEnvInt("DISCOVERY_ERROR_THRESHOLD", 3),
			Cooldown:       getEnvDuration("DISCOVERY_COOLDOWN", 2*time.Minute),
			CastLimit:      getEnvInt("DISCOVERY_CAST_LIMIT", 6),
			FetchWorkers:   getEnvInt("DISCOVERY_FETCH_WORKERS", 4),
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

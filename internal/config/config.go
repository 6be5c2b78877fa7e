package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache scoping modes. Tenant scoping keys entries by tenant+inputs so audio
// is never shared across tenants; shared scoping dedupes across all tenants.
const (
	ScopeTenant = "tenant"
	ScopeShared = "shared"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	ServerPort  string
	AppURL      string

	CacheRoot     string
	CacheMaxBytes int64
	CacheMaxFiles int
	CacheScope    string

	ElevenLabsAPIKey string
	VoiceID          string
	ModelID          string
	OptLatency       int

	AdminSecret string
	JWTSecret   string

	// DemoMode allows requests without an Origin/Referer header through the
	// domain allowlist; production keeps it off.
	DemoMode     bool
	MinTextChars int
	MaxTextChars int

	RateLimitPerIP     int
	RateLimitPerTenant int
	RateLimitWindow    time.Duration

	LogLevel slog.Level
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		AppURL:      strings.TrimRight(getEnv("APP_URL", ""), "/"),

		CacheRoot:     getEnv("CACHE_ROOT", "cache"),
		CacheMaxBytes: getEnvInt64("CACHE_MAX_BYTES", 2*1024*1024*1024),
		CacheMaxFiles: getEnvInt("CACHE_MAX_FILES", 2000),
		CacheScope:    getEnv("CACHE_SCOPE", ScopeTenant),

		ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
		VoiceID:          getEnv("VOICE_ID", ""),
		ModelID:          getEnv("MODEL_ID", "eleven_turbo_v2"),
		OptLatency:       getEnvInt("OPT_LATENCY", 0),

		AdminSecret: getEnv("ADMIN_SECRET", ""),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),

		DemoMode:     getEnvBool("DEMO_MODE", false),
		MinTextChars: getEnvInt("MIN_TEXT_CHARS", 8),
		MaxTextChars: getEnvInt("MAX_TEXT_CHARS", 160000),

		RateLimitPerIP:     getEnvInt("RATE_LIMIT_PER_IP", 60),
		RateLimitPerTenant: getEnvInt("RATE_LIMIT_PER_TENANT", 300),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "info")),
	}

	if cfg.CacheScope != ScopeTenant && cfg.CacheScope != ScopeShared {
		return nil, fmt.Errorf("CACHE_SCOPE must be %q or %q, got %q", ScopeTenant, ScopeShared, cfg.CacheScope)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Signer mode constants
const (
	SignerModeLocal   = "local"
	SignerModeHTTPAPI = "http_api"
)

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Login entry point for unauthenticated authorize requests
	LoginURL string

	// Session settings
	SessionSecret string
	SessionName   string

	// Artifact lifetimes
	AuthCodeExpiration     time.Duration // default: 10m
	AccessTokenExpiration  time.Duration // default: 1h
	RefreshTokenExpiration time.Duration // default: 720h = 30 days
	IDTokenExpiration      time.Duration // default: 1h

	// Refresh token behavior
	EnableRefreshTokens bool // Feature flag to enable/disable refresh tokens (default: true)
	EnableTokenRotation bool // Rotate refresh tokens on use (default: true)

	// PKCE
	PKCERequired bool // Require PKCE on every authorization request (default: false)

	// Lifecycle sweep
	SweepInterval time.Duration // default: 5m

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Signer
	SignerMode             string // "local" or "http_api"
	SignerKeyPath          string // PEM-encoded RSA private key; empty = generate at startup
	SignerKeyID            string
	SignerAPIURL           string
	SignerAPITimeout       time.Duration
	SignerAPIAuthMode      string // "none", "simple", or "hmac"
	SignerAPIAuthSecret    string
	SignerAPIAuthHeader    string // Custom header name for simple mode (default: "X-API-Secret")
	SignerAPIMaxRetries    int
	SignerAPIRetryDelay    time.Duration
	SignerAPIMaxRetryDelay time.Duration

	// Tier resolver
	DefaultTierLevel int // Tier assigned when the resolver has no entry (default: 1)
	ClientTierLevel  int // Tier for client_credentials tokens (default: 1)
	TierOverrides    map[string]int

	// Metrics
	MetricsEnabled             bool
	MetricsGaugeUpdateEnabled  bool
	MetricsGaugeUpdateInterval time.Duration

	// Metrics cache backend
	CacheBackend  string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "tokengate.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:8080"),
		LoginURL:      getEnv("LOGIN_URL", "http://localhost:8080/login"),
		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionName:   getEnv("SESSION_NAME", "tokengate_session"),

		AuthCodeExpiration:     getEnvDuration("AUTH_CODE_EXPIRATION", 10*time.Minute),
		AccessTokenExpiration:  getEnvDuration("ACCESS_TOKEN_EXPIRATION", time.Hour),
		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 720*time.Hour),
		IDTokenExpiration:      getEnvDuration("ID_TOKEN_EXPIRATION", time.Hour),

		EnableRefreshTokens: getEnvBool("ENABLE_REFRESH_TOKENS", true),
		EnableTokenRotation: getEnvBool("ENABLE_TOKEN_ROTATION", true),

		PKCERequired: getEnvBool("PKCE_REQUIRED", false),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		SignerMode:             getEnv("SIGNER_MODE", SignerModeLocal),
		SignerKeyPath:          getEnv("SIGNER_KEY_PATH", ""),
		SignerKeyID:            getEnv("SIGNER_KEY_ID", "tokengate"),
		SignerAPIURL:           getEnv("SIGNER_API_URL", ""),
		SignerAPITimeout:       getEnvDuration("SIGNER_API_TIMEOUT", 10*time.Second),
		SignerAPIAuthMode:      getEnv("SIGNER_API_AUTH_MODE", "none"),
		SignerAPIAuthSecret:    getEnv("SIGNER_API_AUTH_SECRET", ""),
		SignerAPIAuthHeader:    getEnv("SIGNER_API_AUTH_HEADER", "X-API-Secret"),
		SignerAPIMaxRetries:    getEnvInt("SIGNER_API_MAX_RETRIES", 3),
		SignerAPIRetryDelay:    getEnvDuration("SIGNER_API_RETRY_DELAY", 1*time.Second),
		SignerAPIMaxRetryDelay: getEnvDuration("SIGNER_API_MAX_RETRY_DELAY", 10*time.Second),

		DefaultTierLevel: getEnvInt("DEFAULT_TIER_LEVEL", 1),
		ClientTierLevel:  getEnvInt("CLIENT_TIER_LEVEL", 1),
		TierOverrides:    getEnvIntMap("TIER_OVERRIDES"),

		MetricsEnabled:             getEnvBool("METRICS_ENABLED", false),
		MetricsGaugeUpdateEnabled:  getEnvBool("METRICS_GAUGE_UPDATE_ENABLED", true),
		MetricsGaugeUpdateInterval: getEnvDuration("METRICS_GAUGE_UPDATE_INTERVAL", time.Minute),

		CacheBackend:  getEnv("CACHE_BACKEND", "memory"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvIntMap parses "subject:level,subject:level" pairs.
func getEnvIntMap(key string) map[string]int {
	out := make(map[string]int)
	value := os.Getenv(key)
	if value == "" {
		return out
	}
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		var level int
		if _, err := fmt.Sscanf(parts[1], "%d", &level); err == nil {
			out[parts[0]] = level
		}
	}
	return out
}

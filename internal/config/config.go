package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	JWKSURL     string
	CORSOrigins string
	TablePrefix string
	// LLM configuration
	AnthropicAPIKey  string
	OpenRouterAPIKey string
	DefaultModel     string
	// Object storage
	GCSBucket          string
	GCSCredentialsFile string
	// Streaming knobs. Deployment parameters, not protocol invariants.
	StreamIdleTimeout time.Duration // no provider event for this long ends the stream with an error
	StreamLeaseGrace  time.Duration // active-stream markers older than this are stale
	SessionRetention  time.Duration // finished sessions stay joinable for this long
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		JWKSURL:     getEnv("JWKS_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		DefaultModel:     getEnv("DEFAULT_MODEL", "claude-haiku-4-5"),

		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),

		StreamIdleTimeout: getDuration("STREAM_IDLE_TIMEOUT", 60*time.Second),
		StreamLeaseGrace:  getDuration("STREAM_LEASE_GRACE", 2*time.Minute),
		SessionRetention:  getDuration("SESSION_RETENTION", 5*time.Minute),

		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix for the environment, overridable
// via TABLE_PREFIX.
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration reads a duration env var, accepting Go duration syntax or a
// bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

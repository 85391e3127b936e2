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
	TablePrefix string
	CORSOrigins string
	// Correlation engine tuning
	SubtaskWindow      time.Duration
	TaskLookback       time.Duration
	SummaryPrefixRunes int
	// Parent lookup cache (0 entries disables it)
	CacheMaxEntries int
	CacheTTL        time.Duration
	// File logging (empty dir disables it)
	LogDir      string
	LogMaxFiles int
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		TablePrefix: getTablePrefix(env),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),

		SubtaskWindow:      time.Duration(getEnvInt("SUBTASK_WINDOW_SECONDS", 30)) * time.Second,
		TaskLookback:       time.Duration(getEnvInt("TASK_LOOKBACK_HOURS", 24)) * time.Hour,
		SummaryPrefixRunes: getEnvInt("SUMMARY_PREFIX_RUNES", 200),

		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 1000),
		CacheTTL:        time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getEnvInt("LOG_MAX_FILES", 10),

		// Debug defaults to true outside production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
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

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

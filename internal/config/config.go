package config

import (
	"os"
	"strconv"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	TablePrefix string
	CORSOrigins string
	// Storage
	StoreDriver string // "postgres" or "pebble"
	PebblePath  string
	AutoMigrate bool // Apply the Postgres schema at startup
	// Logging
	LogDir      string // Empty disables file logging
	LogMaxFiles int
	// Branching limits (YAML override path, embedded defaults otherwise)
	BranchingConfigPath string
	// Debug flags
	Debug bool // Enables debug-only routes
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)

	return &Config{
		Port:                getEnv("PORT", "8080"),
		Environment:         env,
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		TablePrefix:         tablePrefix,
		CORSOrigins:         getEnv("CORS_ORIGINS", "http://localhost:3000"),
		StoreDriver:         getEnv("STORE_DRIVER", DriverPostgres),
		PebblePath:          getEnv("PEBBLE_PATH", "data/variantree"),
		AutoMigrate:         getEnv("AUTO_MIGRATE", getDefaultDebug(env)) == "true",
		LogDir:              getEnv("LOG_DIR", ""),
		LogMaxFiles:         getEnvInt("LOG_MAX_FILES", 10),
		BranchingConfigPath: getEnv("BRANCHING_CONFIG", ""),
		// Debug flags - default to true in dev/test, false in production
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

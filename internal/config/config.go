// Package config loads server and tooling settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingDatabaseURL is returned when DATABASE_URL is not set.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Config holds runtime settings.
type Config struct {
	DatabaseURL string
	Port        string
	Env         string

	LogLevel string
	LogFile  string

	JWTSecret string

	// OptionsPageSize caps option lists when the search term is empty.
	OptionsPageSize int
	SearchDebounce  time.Duration
	SearchMinLength int

	CascadeMaxDepth  int
	RelationMaxDepth int

	SchemaCacheEnabled bool
	StatementTimeout   time.Duration
}

// IsDevelopment reports a development environment.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads an optional .env file and then the process environment.
// Variables already present in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               getEnv("APP_PORT", "8080"),
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            os.Getenv("LOG_FILE"),
		JWTSecret:          getEnv("JWT_SECRET", "change-me"),
		OptionsPageSize:    getEnvInt("OPTIONS_PAGE_SIZE", 50),
		SearchDebounce:     getEnvDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
		SearchMinLength:    getEnvInt("SEARCH_MIN_LENGTH", 2),
		CascadeMaxDepth:    getEnvInt("CASCADE_MAX_DEPTH", 16),
		RelationMaxDepth:   getEnvInt("RELATION_MAX_DEPTH", 8),
		SchemaCacheEnabled: getEnvBool("SCHEMA_CACHE_ENABLED", true),
		StatementTimeout:   getEnvDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

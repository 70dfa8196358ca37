// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Interpreter providers.
const (
	ProviderRules  = "rules"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// RunMigrations applies the embedded goose migrations at startup.
	RunMigrations bool

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// RedisURL enables the distributed trip lock and cross-worker update
	// fan-out. Empty means a single process with in-memory locks.
	RedisURL string

	// TripLockTTL bounds how long a crashed worker can hold a trip's Redis lock.
	TripLockTTL time.Duration

	// CommitTimeout bounds lock wait plus validation and commit of one edit.
	CommitTimeout time.Duration

	// ItineraryCacheTTL is how long a published itinerary head stays cached.
	// Zero keeps heads until they are replaced.
	ItineraryCacheTTL time.Duration

	// Interpreter selects and configures the natural-language interpreter.
	Interpreter InterpreterConfig
}

// InterpreterConfig configures the conversation interpreter.
type InterpreterConfig struct {
	// Provider is one of rules, ark, openai. Defaults to rules.
	Provider string
	// Timeout bounds a single interpretation. Defaults to 4s.
	Timeout time.Duration
	// HistoryLimit is how many recent messages the interpreter sees. Defaults to 20.
	HistoryLimit int

	ArkAPIKey  string
	ArkModel   string
	ArkBaseURL string
	ArkRegion  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set, or the
// first malformed value.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RedisURL:    os.Getenv("REDIS_URL"),
		Interpreter: InterpreterConfig{
			Provider:      strings.ToLower(getEnv("INTERPRETER_PROVIDER", ProviderRules)),
			ArkAPIKey:     os.Getenv("ARK_API_KEY"),
			ArkModel:      os.Getenv("ARK_MODEL"),
			ArkBaseURL:    os.Getenv("ARK_BASE_URL"),
			ArkRegion:     os.Getenv("ARK_REGION"),
			OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
	}

	var err error
	if cfg.RunMigrations, err = getBool("RUN_MIGRATIONS", true); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes, err = getInt64("MAX_BODY_BYTES", 1<<20); err != nil {
		return Config{}, err
	}
	if cfg.TripLockTTL, err = getDuration("TRIP_LOCK_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CommitTimeout, err = getDuration("COMMIT_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ItineraryCacheTTL, err = getDuration("ITINERARY_CACHE_TTL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Interpreter.Timeout, err = getDuration("INTERPRETER_TIMEOUT", 4*time.Second); err != nil {
		return Config{}, err
	}
	history, err := getInt64("CHAT_HISTORY_LIMIT", 20)
	if err != nil {
		return Config{}, err
	}
	cfg.Interpreter.HistoryLimit = int(history)

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	switch cfg.Interpreter.Provider {
	case ProviderRules:
	case ProviderArk:
		if cfg.Interpreter.ArkAPIKey == "" {
			missing = append(missing, "ARK_API_KEY")
		}
		if cfg.Interpreter.ArkModel == "" {
			missing = append(missing, "ARK_MODEL")
		}
	case ProviderOpenAI:
		if cfg.Interpreter.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return Config{}, fmt.Errorf("INTERPRETER_PROVIDER must be one of %s, %s, %s; got %q",
			ProviderRules, ProviderArk, ProviderOpenAI, cfg.Interpreter.Provider)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration such as 4s or 10m, got %q", key, v)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", key, v)
	}
	return b, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

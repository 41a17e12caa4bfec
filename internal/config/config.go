package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	LogLevel string

	// Bank API
	MonobankAPIURL string
	MonobankToken  string
	HTTPTimeout    time.Duration

	// Storage
	DBPath     string
	StorageKey string

	// Sync
	MinRequestInterval      time.Duration
	StatementPageLimit      int
	StatementMaxPeriodDays  int
	PaginationMaxIterations int
	SyncWindowDays          int

	// Cache
	ClientInfoCacheTTL time.Duration

	// Bridge
	ListenAddr string

	// Observability
	OTLPEndpoint string

	// Secrets
	TokenSecretName   string
	UseSecretsManager bool
}

// LoadDotEnv reads a .env file into the environment. Variables that are
// already set take precedence. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MonobankAPIURL: getEnv("MONOBANK_API_URL", "https://api.monobank.ua"),
		MonobankToken:  getEnv("MONOBANK_TOKEN", ""),
		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		DBPath:     getEnv("MONOSYNC_DB_PATH", defaultDBPath()),
		StorageKey: getEnv("MONOSYNC_STORAGE_KEY", "monobankData"),

		MinRequestInterval:      getEnvDuration("MIN_REQUEST_INTERVAL", 60*time.Second),
		StatementPageLimit:      getEnvInt("STATEMENT_PAGE_LIMIT", 500),
		StatementMaxPeriodDays:  getEnvInt("STATEMENT_MAX_PERIOD_DAYS", 31),
		PaginationMaxIterations: getEnvInt("PAGINATION_MAX_ITERATIONS", 2000),
		SyncWindowDays:          getEnvInt("SYNC_WINDOW_DAYS", 0),

		ClientInfoCacheTTL: getEnvDuration("CLIENT_INFO_CACHE_TTL", 5*time.Minute),

		ListenAddr: getEnv("LISTEN_ADDR", "127.0.0.1:8787"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		TokenSecretName:   getEnv("TOKEN_SECRET_NAME", "monosync-token"),
		UseSecretsManager: getEnvBool("USE_SECRETS_MANAGER", false),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "monosync.db"
	}
	return filepath.Join(home, ".local", "share", "monosync", "monosync.db")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

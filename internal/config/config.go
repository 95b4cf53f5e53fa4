package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds service configuration.
type Config struct {
	ListenAddr        string
	AdminPassword     string
	AdminPasswordHash string

	StoreDriver string
	DataFile    string
	DatabaseURL string

	StaticDir      string
	IndexFile      string
	WatchFiles     []string
	AllowedOrigins []string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the
// environment. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	envFile := getenv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = "0.0.0.0:" + getenv("PORT", "3000")
	}

	cfg := &Config{
		ListenAddr:        addr,
		AdminPassword:     getenv("ADMIN_PASSWORD", "1010"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		StoreDriver:       strings.ToLower(getenv("STORE_DRIVER", DriverFile)),
		DataFile:          getenv("DATA_FILE", "auction_data.json"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StaticDir:         getenv("STATIC_DIR", "."),
		IndexFile:         getenv("INDEX_FILE", "Auction.html"),
		WatchFiles:        splitList(getenv("WATCH_FILES", "Auction.html")),
		AllowedOrigins:    splitList(os.Getenv("ALLOWED_ORIGINS")),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		ShutdownTimeout:   parseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverFile:
		if c.DataFile == "" {
			return fmt.Errorf("%w: DATA_FILE is required for the file store", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres store", ErrInvalidConfig)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.AdminPassword == "" && c.AdminPasswordHash == "" {
		return fmt.Errorf("%w: ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be set", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: LOG_FORMAT must be json or console, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	// bare seconds
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

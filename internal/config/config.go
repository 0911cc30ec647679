package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	CacheBackendSQLite   = "sqlite"
	CacheBackendFS       = "fs"
	CacheKeyModeFilename = "filename"
	CacheKeyModeHashed   = "hashed"
	LogFormatJSON        = "json"
	LogFormatText        = "text"
)

const (
	defaultServerURL        = "http://localhost:3000"
	defaultHTTPAddr         = ":8090"
	defaultDBPath           = "/data/webplayer.db"
	defaultCacheDir         = "/data/media"
	defaultSlideInterval    = 5 * time.Second
	defaultFetchTimeout     = 2 * time.Minute
	defaultReconnectBackoff = 30 * time.Second
	defaultFetchConcurrency = 1
	defaultMaxAssetBytes    = 512 << 20
	maxFetchConcurrency     = 16
)

// Config stores runtime settings loaded from environment variables.
type Config struct {
	ServerURL           string
	HTTPAddr            string
	DBPath              string
	CacheBackend        string
	CacheDir            string
	CacheKeyMode        string
	FetchConcurrency    int
	MaxAssetBytes       int64
	FetchTimeout        time.Duration
	SlideInterval       time.Duration
	ReconnectMaxBackoff time.Duration
	LogLevel            slog.Level
	LogFormat           string
}

// Load builds Config from environment variables using stable defaults.
func Load() Config {
	return Config{
		ServerURL:           getenv("PLAYER_SERVER_URL", defaultServerURL),
		HTTPAddr:            getenv("PLAYER_HTTP_ADDR", defaultHTTPAddr),
		DBPath:              getenv("PLAYER_DB_PATH", defaultDBPath),
		CacheBackend:        parseChoice("PLAYER_CACHE_BACKEND", CacheBackendSQLite, CacheBackendSQLite, CacheBackendFS),
		CacheDir:            getenv("PLAYER_CACHE_DIR", defaultCacheDir),
		CacheKeyMode:        parseChoice("PLAYER_CACHE_KEY_MODE", CacheKeyModeFilename, CacheKeyModeFilename, CacheKeyModeHashed),
		FetchConcurrency:    parseInt("PLAYER_CACHE_FETCH_CONCURRENCY", defaultFetchConcurrency, 1, maxFetchConcurrency),
		MaxAssetBytes:       parseInt64("PLAYER_CACHE_MAX_ASSET_BYTES", defaultMaxAssetBytes),
		FetchTimeout:        parseDuration("PLAYER_FETCH_TIMEOUT", defaultFetchTimeout),
		SlideInterval:       parseDuration("PLAYER_SLIDE_INTERVAL", defaultSlideInterval),
		ReconnectMaxBackoff: parseDuration("PLAYER_RECONNECT_MAX_BACKOFF", defaultReconnectBackoff),
		LogLevel:            parseLogLevel(getenv("LOG_LEVEL", "info")),
		LogFormat:           parseChoice("LOG_FORMAT", LogFormatJSON, LogFormatJSON, LogFormatText),
	}
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseChoice(key string, fallback string, allowed ...string) string {
	value := strings.ToLower(getenv(key, fallback))
	for _, candidate := range allowed {
		if value == candidate {
			return value
		}
	}
	return fallback
}

func parseInt(key string, fallback, minValue, maxValue int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < minValue {
		return fallback
	}
	if value > maxValue {
		return maxValue
	}
	return value
}

func parseInt64(key string, fallback int64) int64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Helper()

	cfg := Load()
	if cfg.ServerURL != defaultServerURL {
		t.Fatalf("ServerURL = %q, want %q", cfg.ServerURL, defaultServerURL)
	}
	if cfg.SlideInterval != 5*time.Second {
		t.Fatalf("SlideInterval = %v, want 5s", cfg.SlideInterval)
	}
	if cfg.CacheBackend != CacheBackendSQLite {
		t.Fatalf("CacheBackend = %q, want %q", cfg.CacheBackend, CacheBackendSQLite)
	}
	if cfg.CacheKeyMode != CacheKeyModeFilename {
		t.Fatalf("CacheKeyMode = %q, want %q", cfg.CacheKeyMode, CacheKeyModeFilename)
	}
	if cfg.FetchConcurrency != 1 {
		t.Fatalf("FetchConcurrency = %d, want 1", cfg.FetchConcurrency)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Helper()

	t.Setenv("PLAYER_SERVER_URL", " https://signage.example.com ")
	t.Setenv("PLAYER_CACHE_BACKEND", "FS")
	t.Setenv("PLAYER_CACHE_KEY_MODE", "hashed")
	t.Setenv("PLAYER_CACHE_FETCH_CONCURRENCY", "64")
	t.Setenv("PLAYER_SLIDE_INTERVAL", "8s")
	t.Setenv("PLAYER_DB_PATH", "/tmp/player/state.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg := Load()
	if cfg.ServerURL != "https://signage.example.com" {
		t.Fatalf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.CacheBackend != CacheBackendFS {
		t.Fatalf("CacheBackend = %q, want %q", cfg.CacheBackend, CacheBackendFS)
	}
	if cfg.CacheKeyMode != CacheKeyModeHashed {
		t.Fatalf("CacheKeyMode = %q, want %q", cfg.CacheKeyMode, CacheKeyModeHashed)
	}
	if cfg.FetchConcurrency != maxFetchConcurrency {
		t.Fatalf("FetchConcurrency = %d, want %d", cfg.FetchConcurrency, maxFetchConcurrency)
	}
	if cfg.SlideInterval != 8*time.Second {
		t.Fatalf("SlideInterval = %v, want 8s", cfg.SlideInterval)
	}
	if cfg.DBDir() != "/tmp/player" {
		t.Fatalf("DBDir() = %q, want %q", cfg.DBDir(), "/tmp/player")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("LogFormat = %q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("PLAYER_CACHE_BACKEND", "s3")
	t.Setenv("PLAYER_CACHE_FETCH_CONCURRENCY", "zero")
	t.Setenv("PLAYER_SLIDE_INTERVAL", "-1s")
	t.Setenv("PLAYER_CACHE_MAX_ASSET_BYTES", "lots")

	cfg := Load()
	if cfg.CacheBackend != CacheBackendSQLite {
		t.Fatalf("CacheBackend = %q, want %q", cfg.CacheBackend, CacheBackendSQLite)
	}
	if cfg.FetchConcurrency != defaultFetchConcurrency {
		t.Fatalf("FetchConcurrency = %d, want %d", cfg.FetchConcurrency, defaultFetchConcurrency)
	}
	if cfg.SlideInterval != defaultSlideInterval {
		t.Fatalf("SlideInterval = %v, want %v", cfg.SlideInterval, defaultSlideInterval)
	}
	if cfg.MaxAssetBytes != defaultMaxAssetBytes {
		t.Fatalf("MaxAssetBytes = %d, want %d", cfg.MaxAssetBytes, defaultMaxAssetBytes)
	}
}

package config

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "matk.db"
	defaultWorkdirRoot = "."

	envListenAddr  = "MATK_LISTEN_ADDR"
	envDBPath      = "MATK_DB_PATH"
	envLogLevel    = "MATK_LOG_LEVEL"
	envWorkdirRoot = "MATK_WORKDIR_ROOT"
	envWorkers     = "MATK_WORKERS"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	// WorkdirRoot is the directory relative sweep base directories resolve against.
	WorkdirRoot string
	// Workers is the default pool size for sweeps that do not request one.
	Workers int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		WorkdirRoot: defaultWorkdirRoot,
		Workers:     runtime.NumCPU(),
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envWorkdirRoot); v != "" {
		cfg.WorkdirRoot = v
	}
	if v := os.Getenv(envWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

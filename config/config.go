package config

import (
	"os"
	"strconv"
	"strings"

	"observex-wss/collector"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// Config holds the estimator settings
type Config struct {
	IdleBitmapPath string
	ProcRoot       string
	// KernelBoundary is the lowest address treated as kernel space. The
	// default is the x86-64 direct map base; set WSS_KERNEL_BOUNDARY elsewhere.
	KernelBoundary uint64
	ChunkBytes     int
	LogLevel       slog.Level
	Output         string

	// Optional report push
	APIURL string
	APIKey string

	// EnvFile is set when a .env file was read
	EnvFile bool
}

// Load reads config from .env when present, then the environment
func Load() (*Config, error) {
	// .env is optional, plain env works too
	envErr := godotenv.Load()

	cfg := &Config{
		IdleBitmapPath: getEnv("WSS_IDLE_BITMAP", collector.DefaultIdleBitmapPath),
		ProcRoot:       getEnv("WSS_PROC_ROOT", collector.DefaultProcRoot),
		KernelBoundary: collector.DefaultKernelBoundary,
		ChunkBytes:     collector.DefaultPagemapChunk,
		LogLevel:       slog.LevelInfo,
		Output:         strings.ToLower(getEnv("WSS_OUTPUT", OutputTable)),
		APIURL:         getEnv("API_URL", ""),
		APIKey:         getEnv("API_KEY", ""),
		EnvFile:        envErr == nil,
	}

	if v := os.Getenv("WSS_KERNEL_BOUNDARY"); v != "" {
		boundary, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(v), "0x"), 16, 64)
		if err != nil || boundary == 0 {
			return nil, errors.Newf("WSS_KERNEL_BOUNDARY %q is not a non-zero hex address", v)
		}
		cfg.KernelBoundary = boundary
	}

	if v := os.Getenv("WSS_PAGEMAP_CHUNK_BYTES"); v != "" {
		chunk, err := strconv.Atoi(v)
		if err != nil || chunk <= 0 || chunk%collector.PagemapEntrySize != 0 {
			return nil, errors.Newf("WSS_PAGEMAP_CHUNK_BYTES %q must be a positive multiple of %d", v, collector.PagemapEntrySize)
		}
		cfg.ChunkBytes = chunk
	}

	if v := os.Getenv("WSS_LOG_LEVEL"); v != "" {
		level, err := parseLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	if cfg.Output != OutputTable && cfg.Output != OutputJSON {
		return nil, errors.Newf("WSS_OUTPUT %q must be %s or %s", cfg.Output, OutputTable, OutputJSON)
	}

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Newf("unknown WSS_LOG_LEVEL %q", s)
}

// getEnv returns the variable, or fallback when unset
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

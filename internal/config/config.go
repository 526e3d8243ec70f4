package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds shared runtime configuration for jqs and jqsd.
type Config struct {
	Root              string
	TickInterval      time.Duration
	KillGrace         time.Duration
	Launcher          string
	MetricsAddr       string
	LogFormat         string
	LogLevel          string
	DefaultCores      int
	DefaultMemMB      int
	DefaultCoresTotal int
	DefaultMemMBTotal int
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Root:              getEnv("JQS_ROOT", defaultRoot()),
		TickInterval:      getEnvDuration("JQS_TICK_INTERVAL", time.Second),
		KillGrace:         getEnvDuration("JQS_KILL_GRACE", 10*time.Second),
		Launcher:          getEnv("JQS_LAUNCHER", "systemd-run"),
		MetricsAddr:       getEnv("JQS_METRICS_ADDR", ":9090"),
		LogFormat:         getEnv("JQS_LOG_FORMAT", "text"),
		LogLevel:          getEnv("JQS_LOG_LEVEL", "info"),
		DefaultCores:      getEnvInt("JQS_DEFAULT_CORES", 1),
		DefaultMemMB:      getEnvInt("JQS_DEFAULT_MEM_MB", 512),
		DefaultCoresTotal: getEnvInt("JQS_DEFAULT_CORES_TOTAL", 16),
		DefaultMemMBTotal: getEnvInt("JQS_DEFAULT_MEM_MB_TOTAL", 65536),
	}
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "jqs")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

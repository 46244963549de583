package config

import (
	"os"
	"strconv"
	"time"
)

const (
	DefaultBaseURL   = "http://localhost:5173"
	DefaultOutputDir = "jules-scratch/verification"
	DefaultTimeout   = 30 * time.Second
	DefaultIdleTime  = 500 * time.Millisecond
	TaskQueue        = "ui-verify"
)

// Config holds runtime settings. Every field defaults to the literal the
// verification scripts were written against.
type Config struct {
	BaseURL   string
	OutputDir string
	ChromeBin string
	Headless  bool
	Timeout   time.Duration
	IdleTime  time.Duration

	Port         string
	MySQLDSN     string
	TemporalHost string
}

// Load reads the configuration from the environment
func Load() Config {
	return Config{
		BaseURL:      getEnvOrDefault("VERIFY_BASE_URL", DefaultBaseURL),
		OutputDir:    getEnvOrDefault("VERIFY_OUTPUT_DIR", DefaultOutputDir),
		ChromeBin:    os.Getenv("CHROME_BIN"),
		Headless:     getBoolOrDefault("VERIFY_HEADLESS", true),
		Timeout:      getDurationOrDefault("VERIFY_TIMEOUT", DefaultTimeout),
		IdleTime:     getDurationOrDefault("VERIFY_IDLE_TIME", DefaultIdleTime),
		Port:         getEnvOrDefault("PORT", "8080"),
		MySQLDSN:     getEnvOrDefault("MYSQL_DSN", "verify:verify@tcp(localhost:3306)/verify?parseTime=true"),
		TemporalHost: getEnvOrDefault("TEMPORAL_HOST", "localhost:7233"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

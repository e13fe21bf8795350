package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// External runner (Databricks-style jobs API).
	DatabricksHost  string
	DatabricksToken string
	DatabricksJobID int64

	// Upload gating.
	UploadBasePath    string
	UploadMaxSizeMB   int64
	AllowedExtensions []string

	// Reconciliation poller.
	PollInterval  time.Duration
	RunnerTimeout time.Duration

	GeoIPDBPath      string
	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DatabricksHost:    strings.TrimRight(os.Getenv("DATABRICKS_HOST"), "/"),
		DatabricksToken:   os.Getenv("DATABRICKS_TOKEN"),
		UploadBasePath:    getEnv("UPLOAD_BASE_PATH", "./uploads"),
		UploadMaxSizeMB:   int64(getEnvInt("UPLOAD_MAX_SIZE_MB", 50)),
		AllowedExtensions: splitList(getEnv("UPLOAD_ALLOWED_EXTENSIONS", ".pdf,.docx,.doc,.png,.jpg,.jpeg,.txt")),
		PollInterval:      time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 30)),
		RunnerTimeout:     time.Second * time.Duration(getEnvInt("RUNNER_TIMEOUT_SECONDS", 20)),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		AllowedOrigins:    splitList(os.Getenv("ALLOWED_ORIGINS")),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if id := os.Getenv("DATABRICKS_JOB_ID"); id != "" {
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("DATABRICKS_JOB_ID must be an integer, got %q", id)
		}
		cfg.DatabricksJobID = parsed
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

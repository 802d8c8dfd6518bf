// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deusflow/aidigest/internal/errs"
)

// S3Config describes the optional bucket the published files are copied to.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Configured reports whether uploads are enabled.
func (s S3Config) Configured() bool { return s.Bucket != "" }

type Config struct {
	// Run settings
	OutputDir       string
	FeedsConfigPath string // empty means the built-in registry
	AIOnly          bool
	ForceRefresh    bool
	Keywords        []string // overrides the built-in AI keyword list
	Schedule        string   // cron expression; empty runs once

	// HTTP settings
	RequestTimeout time.Duration
	SearchTimeout  time.Duration
	PageTimeout    time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	SearchURL      string
	UserAgent      string

	// Page fetch settings
	PageFetchLimit int
	PageCacheTTL   time.Duration

	// Publishing
	SiteURL string
	S3      S3Config

	// Optional integrations
	GeminiAPIKey       string
	GeminiModel        string
	MaxGeminiRequests  int
	TelegramToken      string
	TelegramChatID     string
	MaxNotify          int
	ArchiveDatabaseURL string

	// App settings
	Debug             bool
	LogFormat         string
	MonitoringEnabled bool
	MonitoringPort    string
}

const (
	DefaultOutputDir = "feeds"
	DefaultSearchURL = "https://www.google.com/search?q=site:%s"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &errs.ConfigError{Field: ".env", Msg: err.Error()}
	}

	cfg := &Config{
		OutputDir:       getEnvOrDefault("OUTPUT_DIR", DefaultOutputDir),
		FeedsConfigPath: os.Getenv("FEEDS_CONFIG_PATH"),
		AIOnly:          getEnvBool("AI_ONLY"),
		ForceRefresh:    getEnvBool("FORCE_REFRESH"),
		Keywords:        splitList(os.Getenv("AI_KEYWORDS")),
		Schedule:        os.Getenv("SCHEDULE"),

		RequestTimeout: getEnvDurationOrDefault("REQUEST_TIMEOUT", 15*time.Second),
		SearchTimeout:  getEnvDurationOrDefault("SEARCH_TIMEOUT", 15*time.Second),
		PageTimeout:    getEnvDurationOrDefault("PAGE_TIMEOUT", 10*time.Second),
		RetryAttempts:  getEnvIntOrDefault("RETRY_ATTEMPTS", 2),
		RetryDelay:     getEnvDurationOrDefault("RETRY_DELAY", 2*time.Second),
		SearchURL:      getEnvOrDefault("SEARCH_URL", DefaultSearchURL),
		UserAgent:      getEnvOrDefault("USER_AGENT", DefaultUserAgent),

		PageFetchLimit: getEnvIntOrDefault("PAGE_FETCH_LIMIT", 20),
		PageCacheTTL:   getEnvDurationOrDefault("PAGE_CACHE_TTL", time.Hour),

		SiteURL: strings.TrimRight(getEnvOrDefault("SITE_URL", "http://localhost"), "/"),
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Prefix:    os.Getenv("S3_PREFIX"),
		},

		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		MaxGeminiRequests:  getEnvIntOrDefault("MAX_GEMINI_REQUESTS", 10),
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:     os.Getenv("TELEGRAM_CHAT_ID"),
		MaxNotify:          getEnvIntOrDefault("MAX_NOTIFY", 5),
		ArchiveDatabaseURL: os.Getenv("ARCHIVE_DATABASE_URL"),

		Debug:             getEnvBool("DEBUG"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
		MonitoringEnabled: getEnvBool("ENABLE_HTTP_MONITORING"),
		MonitoringPort:    getEnvOrDefault("MONITORING_PORT", "8080"),
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("15s") or bare seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks values that would make a run meaningless.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return &errs.ConfigError{Field: "OUTPUT_DIR", Msg: "must not be empty"}
	}
	if c.RequestTimeout <= 0 || c.SearchTimeout <= 0 || c.PageTimeout <= 0 {
		return &errs.ConfigError{Field: "timeouts", Msg: "must be positive"}
	}
	if c.RetryAttempts < 1 {
		return &errs.ConfigError{Field: "RETRY_ATTEMPTS", Msg: "must be at least 1"}
	}
	if !strings.Contains(c.SearchURL, "%s") {
		return &errs.ConfigError{Field: "SEARCH_URL", Msg: "must contain a %s placeholder"}
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return &errs.ConfigError{Field: "TELEGRAM_TOKEN", Msg: "TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together"}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &errs.ConfigError{Field: "LOG_FORMAT", Msg: "must be 'text' or 'json'"}
	}
	return nil
}

// TelegramEnabled reports whether run digests should be posted.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

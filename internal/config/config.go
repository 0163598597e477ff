package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	APIURL               string
	RequestTimeout       time.Duration
	RateLimitRPS         float64
	RateLimitBurst       int
	CredentialBackend    string
	CredentialFile       string
	CredentialPassphrase string
	CredentialDSN        string
	OAuthRedirectURL     string
	OAuthPollInterval    time.Duration
	OAuthTimeout         time.Duration
	GitHubClientID       string
	GoogleClientID       string
	GoogleClientSecret   string
	UploadMaxBytes       int64
	MetricsAddr          string
	LogLevel             string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:               strings.TrimRight(getEnv("MARKETPLACE_API_URL", "http://localhost:8000/api"), "/"),
		RequestTimeout:       getDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitRPS:         getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:       getInt("RATE_LIMIT_BURST", 5),
		CredentialBackend:    strings.ToLower(getEnv("CREDENTIAL_BACKEND", BackendFile)),
		CredentialFile:       getEnv("CREDENTIAL_FILE", defaultCredentialFile()),
		CredentialPassphrase: os.Getenv("CREDENTIAL_PASSPHRASE"),
		CredentialDSN:        strings.TrimSpace(os.Getenv("CREDENTIAL_DSN")),
		OAuthRedirectURL:     getEnv("OAUTH_REDIRECT_URL", "http://127.0.0.1:8765/login"),
		OAuthPollInterval:    getDuration("OAUTH_POLL_INTERVAL", 500*time.Millisecond),
		OAuthTimeout:         getDuration("OAUTH_TIMEOUT", 5*time.Minute),
		GitHubClientID:       strings.TrimSpace(os.Getenv("GITHUB_CLIENT_ID")),
		GoogleClientID:       strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret:   strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		UploadMaxBytes:       getInt64("UPLOAD_MAX_BYTES", 10<<20),
		MetricsAddr:          strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	api, err := url.Parse(c.APIURL)
	if err != nil || api.Scheme == "" || api.Host == "" {
		return fmt.Errorf("MARKETPLACE_API_URL must be an absolute URL")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS cannot be negative")
	}

	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive")
	}

	switch c.CredentialBackend {
	case BackendFile:
		if strings.TrimSpace(c.CredentialFile) == "" {
			return fmt.Errorf("CREDENTIAL_FILE cannot be empty")
		}
	case BackendSQLite, BackendPostgres:
		if c.CredentialDSN == "" {
			return fmt.Errorf("CREDENTIAL_DSN is required for the %s backend", c.CredentialBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("CREDENTIAL_BACKEND must be one of file, sqlite, postgres, memory")
	}

	redirect, err := url.Parse(c.OAuthRedirectURL)
	if err != nil || redirect.Scheme == "" || redirect.Host == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL must be an absolute URL")
	}

	if c.OAuthPollInterval <= 0 {
		return fmt.Errorf("OAUTH_POLL_INTERVAL must be positive")
	}

	if c.OAuthTimeout <= 0 {
		return fmt.Errorf("OAUTH_TIMEOUT must be positive")
	}

	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}

	return nil
}

func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".marketplace", "credentials.json")
	}
	return filepath.Join(home, ".marketplace", "credentials.json")
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds tracker configuration.
type Config struct {
	ListenAddr       string
	DashboardBaseURL string

	ScrapeInterval time.Duration
	ErrorCooldown  time.Duration
	SettleDelay    time.Duration
	BrowserTimeout time.Duration

	MaxSessions       int
	SnapshotCacheSize int

	Headless  bool
	UserAgent string

	CredentialsFile string
	TokenFile       string

	AllowedOrigins []string
	Verbose        bool
}

// DefaultConfig returns the defaults for the production dashboard.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        ":5000",
		DashboardBaseURL:  "https://svcs-admin.shopee.vn/dashboard/stream",
		ScrapeInterval:    30 * time.Second,
		ErrorCooldown:     10 * time.Second,
		SettleDelay:       3 * time.Second,
		BrowserTimeout:    30 * time.Second,
		MaxSessions:       5,
		SnapshotCacheSize: 64,
		Headless:          true,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		CredentialsFile:   "credentials.json",
		TokenFile:         "token.json",
		AllowedOrigins:    []string{"http://localhost:5173"},
		Verbose:           false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.DashboardBaseURL == "" {
		return fmt.Errorf("dashboard base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.DashboardBaseURL)
	if err != nil {
		return fmt.Errorf("invalid dashboard base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("dashboard base URL must include a host")
	}

	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("scrape interval must be positive")
	}
	if c.ErrorCooldown <= 0 {
		return fmt.Errorf("error cooldown must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if c.BrowserTimeout <= 0 {
		return fmt.Errorf("browser timeout must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive")
	}
	if c.SnapshotCacheSize <= 0 {
		return fmt.Errorf("snapshot cache size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.CredentialsFile == "" {
		return fmt.Errorf("credentials file cannot be empty")
	}
	if c.TokenFile == "" {
		return fmt.Errorf("token file cannot be empty")
	}

	return nil
}

// TargetURL derives the dashboard page for a livestream session.
func (c *Config) TargetURL(sessionID string) string {
	return c.DashboardBaseURL + "?sessionId=" + url.QueryEscape(sessionID)
}

// EnvString reads a string override from the environment.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer override from the environment.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, true, nil
}

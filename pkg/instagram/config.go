package instagram

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL   = "https://i.instagram.com/api/v1"
	defaultUserAgent = "Instagram 269.0.0.18.75 Android (33/13; 420dpi; 1080x2220; samsung; SM-G973F; beyond1; exynos9820; en_US)"

	// defaultMinRequestInterval is the floor between any two API calls,
	// below the scheduler's own human-like delays.
	defaultMinRequestInterval = 2 * time.Second
)

// Config holds credentials and transport settings for the Instagram client.
type Config struct {
	// Session authentication. The private API authenticates with the
	// sessionid cookie plus a CSRF token; there is no OAuth flow.
	Username  string
	SessionID string
	CSRFToken string
	DeviceID  string

	BaseURL   string
	UserAgent string

	// MinRequestInterval paces raw API calls independently of the
	// scheduler's action delays.
	MinRequestInterval time.Duration
	RequestTimeout     time.Duration

	Logger *logrus.Logger
}

// NewConfig loads the Instagram configuration from the environment.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	minInterval := defaultMinRequestInterval
	if raw := os.Getenv("INSTAGRAM_MIN_REQUEST_INTERVAL"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid INSTAGRAM_MIN_REQUEST_INTERVAL: %w", err)
		}
		minInterval = time.Duration(secs) * time.Second
	}

	config := &Config{
		Username:  os.Getenv("INSTAGRAM_USERNAME"),
		SessionID: os.Getenv("INSTAGRAM_SESSION_ID"),
		CSRFToken: os.Getenv("INSTAGRAM_CSRF_TOKEN"),
		DeviceID:  os.Getenv("INSTAGRAM_DEVICE_ID"),

		BaseURL:   getEnvOrDefault("INSTAGRAM_API_BASE_URL", defaultBaseURL),
		UserAgent: getEnvOrDefault("INSTAGRAM_USER_AGENT", defaultUserAgent),

		MinRequestInterval: minInterval,
		RequestTimeout:     30 * time.Second,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the config can authenticate and pace requests.
func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("instagram username is required")
	}
	if c.SessionID == "" {
		return fmt.Errorf("instagram session id is required; run the login script to obtain one")
	}
	if c.MinRequestInterval <= 0 {
		return fmt.Errorf("min request interval must be positive")
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

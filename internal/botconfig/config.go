// Package botconfig loads the process-wide configuration once at startup.
// Limits are immutable for the process lifetime; changing them requires a
// restart.
package botconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/instagent/instagent/pkg/backoff"
	"github.com/instagent/instagent/pkg/ratelimit"
)

const (
	minActionDelayFloor   = 5 * time.Second
	maxActionDelayCeiling = 2 * time.Hour
)

// TelegramConfig identifies the operator channel.
type TelegramConfig struct {
	BotToken string
	AdminID  int64
}

// Config is everything the scheduling core consumes.
type Config struct {
	RateLimits ratelimit.Config
	Backoff    backoff.Config

	// MinActionDelay/MaxActionDelay bound the human-like pause between
	// actions.
	MinActionDelay time.Duration
	MaxActionDelay time.Duration

	// UnfollowAfter is the delay before a followed account becomes an
	// unfollow candidate.
	UnfollowAfter time.Duration

	// EmojiPool overrides the default comment emoji set when non-empty.
	EmojiPool []string

	Telegram TelegramConfig

	LogLevel string
}

// Load reads the configuration from the environment (and .env when
// present) and validates it. Invalid caps or delays are fatal here, at
// startup, never later at call time.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		RateLimits: ratelimit.Config{
			ratelimit.ActionFollow: {
				PerDay:  envInt("MAX_FOLLOWS_PER_DAY", 30),
				PerHour: envInt("MAX_FOLLOWS_PER_HOUR", 5),
			},
			ratelimit.ActionUnfollow: {
				PerDay:  envInt("MAX_UNFOLLOWS_PER_DAY", 30),
				PerHour: envInt("MAX_UNFOLLOWS_PER_HOUR", 5),
			},
			ratelimit.ActionLike: {
				PerDay:  envInt("MAX_LIKES_PER_DAY", 100),
				PerHour: envInt("MAX_LIKES_PER_HOUR", 15),
			},
			ratelimit.ActionComment: {
				PerDay:  envInt("MAX_COMMENTS_PER_DAY", 20),
				PerHour: envInt("MAX_COMMENTS_PER_HOUR", 3),
			},
			ratelimit.ActionStoryView: {
				PerDay:  envInt("MAX_STORY_VIEWS_PER_DAY", 150),
				PerHour: envInt("MAX_STORY_VIEWS_PER_HOUR", 25),
			},
		},
		Backoff: backoff.Config{
			BaseDelay:              envSeconds("RETRY_DELAY_BASE", 60),
			MaxDelay:               envSeconds("RETRY_DELAY_MAX", 900),
			MaxConsecutiveFailures: envInt("MAX_RETRIES", 3),
			RemoteCooldown:         envSeconds("REMOTE_COOLDOWN", 900),
		},
		MinActionDelay: envSeconds("MIN_ACTION_DELAY", 60),
		MaxActionDelay: envSeconds("MAX_ACTION_DELAY", 600),
		UnfollowAfter:  time.Duration(envInt("UNFOLLOW_AFTER_DAYS", 7)) * 24 * time.Hour,
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			AdminID:  envInt64("TELEGRAM_ADMIN_ID", 0),
		},
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	if pool := os.Getenv("EMOJI_COMMENTS"); pool != "" {
		for _, emoji := range strings.Split(pool, ",") {
			if trimmed := strings.TrimSpace(emoji); trimmed != "" {
				cfg.EmojiPool = append(cfg.EmojiPool, trimmed)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks caps, delay ranges and operator credentials.
func (c *Config) Validate() error {
	if err := c.RateLimits.Validate(); err != nil {
		return err
	}
	if err := c.Backoff.Validate(); err != nil {
		return err
	}

	if c.MinActionDelay < minActionDelayFloor {
		return fmt.Errorf("min action delay %v below floor %v", c.MinActionDelay, minActionDelayFloor)
	}
	if c.MaxActionDelay < c.MinActionDelay {
		return fmt.Errorf("max action delay %v below min action delay %v", c.MaxActionDelay, c.MinActionDelay)
	}
	if c.MaxActionDelay > maxActionDelayCeiling {
		return fmt.Errorf("max action delay %v above ceiling %v", c.MaxActionDelay, maxActionDelayCeiling)
	}
	if c.UnfollowAfter <= 0 {
		return fmt.Errorf("unfollow delay must be positive, got %v", c.UnfollowAfter)
	}

	if c.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.Telegram.AdminID == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_ID is required")
	}
	if c.Telegram.AdminID < 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_ID must be a positive integer")
	}
	return nil
}

func envInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		// Non-numeric values fail the range checks in Validate.
		return -1
	}
	return value
}

func envInt64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Non-numeric values fail the range check in Validate.
		return -1
	}
	return value
}

func envSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(envInt(key, defaultSeconds)) * time.Second
}

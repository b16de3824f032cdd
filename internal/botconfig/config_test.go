package botconfig_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/instagent/instagent/internal/botconfig"
	"github.com/instagent/instagent/pkg/ratelimit"
)

// configEnvKeys is every variable Load reads, cleared between specs so one
// test's environment never leaks into the next.
var configEnvKeys = []string{
	"MAX_FOLLOWS_PER_DAY", "MAX_FOLLOWS_PER_HOUR",
	"MAX_UNFOLLOWS_PER_DAY", "MAX_UNFOLLOWS_PER_HOUR",
	"MAX_LIKES_PER_DAY", "MAX_LIKES_PER_HOUR",
	"MAX_COMMENTS_PER_DAY", "MAX_COMMENTS_PER_HOUR",
	"MAX_STORY_VIEWS_PER_DAY", "MAX_STORY_VIEWS_PER_HOUR",
	"RETRY_DELAY_BASE", "RETRY_DELAY_MAX", "MAX_RETRIES", "REMOTE_COOLDOWN",
	"MIN_ACTION_DELAY", "MAX_ACTION_DELAY", "UNFOLLOW_AFTER_DAYS",
	"EMOJI_COMMENTS", "TELEGRAM_BOT_TOKEN", "TELEGRAM_ADMIN_ID", "LOG_LEVEL",
}

var _ = Describe("Load", func() {
	BeforeEach(func() {
		for _, key := range configEnvKeys {
			os.Unsetenv(key)
		}
		// Operator credentials are required; set valid ones by default.
		os.Setenv("TELEGRAM_BOT_TOKEN", "123456:test-token")
		os.Setenv("TELEGRAM_ADMIN_ID", "987654321")
	})

	AfterEach(func() {
		for _, key := range configEnvKeys {
			os.Unsetenv(key)
		}
	})

	It("applies the deployment defaults", func() {
		cfg, err := botconfig.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.RateLimits[ratelimit.ActionFollow]).To(Equal(ratelimit.Quota{PerDay: 30, PerHour: 5}))
		Expect(cfg.RateLimits[ratelimit.ActionLike]).To(Equal(ratelimit.Quota{PerDay: 100, PerHour: 15}))
		Expect(cfg.RateLimits[ratelimit.ActionComment]).To(Equal(ratelimit.Quota{PerDay: 20, PerHour: 3}))
		Expect(cfg.RateLimits[ratelimit.ActionStoryView]).To(Equal(ratelimit.Quota{PerDay: 150, PerHour: 25}))

		Expect(cfg.Backoff.BaseDelay).To(Equal(60 * time.Second))
		Expect(cfg.Backoff.MaxDelay).To(Equal(900 * time.Second))
		Expect(cfg.Backoff.MaxConsecutiveFailures).To(Equal(3))

		Expect(cfg.MinActionDelay).To(Equal(60 * time.Second))
		Expect(cfg.MaxActionDelay).To(Equal(600 * time.Second))
		Expect(cfg.UnfollowAfter).To(Equal(7 * 24 * time.Hour))
		Expect(cfg.EmojiPool).To(BeEmpty())

		Expect(cfg.Telegram.BotToken).To(Equal("123456:test-token"))
		Expect(cfg.Telegram.AdminID).To(Equal(int64(987654321)))
	})

	It("reads overrides from the environment", func() {
		os.Setenv("MAX_FOLLOWS_PER_DAY", "10")
		os.Setenv("MAX_FOLLOWS_PER_HOUR", "2")
		os.Setenv("UNFOLLOW_AFTER_DAYS", "3")
		os.Setenv("EMOJI_COMMENTS", "🔥, 💯 ,👏")

		cfg, err := botconfig.Load()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.RateLimits[ratelimit.ActionFollow]).To(Equal(ratelimit.Quota{PerDay: 10, PerHour: 2}))
		Expect(cfg.UnfollowAfter).To(Equal(3 * 24 * time.Hour))
		Expect(cfg.EmojiPool).To(Equal([]string{"🔥", "💯", "👏"}))
	})

	It("rejects non-numeric caps instead of silently defaulting", func() {
		os.Setenv("MAX_LIKES_PER_DAY", "lots")

		_, err := botconfig.Load()
		Expect(err).To(MatchError(ContainSubstring("negative quota")))
	})

	It("rejects an action delay below the floor", func() {
		os.Setenv("MIN_ACTION_DELAY", "1")

		_, err := botconfig.Load()
		Expect(err).To(MatchError(ContainSubstring("below floor")))
	})

	It("rejects an inverted action delay range", func() {
		os.Setenv("MIN_ACTION_DELAY", "120")
		os.Setenv("MAX_ACTION_DELAY", "60")

		_, err := botconfig.Load()
		Expect(err).To(MatchError(ContainSubstring("below min action delay")))
	})

	It("rejects a malformed admin id instead of reporting it missing", func() {
		os.Setenv("TELEGRAM_ADMIN_ID", "not-a-number")

		_, err := botconfig.Load()
		Expect(err).To(MatchError(ContainSubstring("positive integer")))
	})

	It("requires the Telegram credentials", func() {
		os.Unsetenv("TELEGRAM_BOT_TOKEN")
		_, err := botconfig.Load()
		Expect(err).To(MatchError(ContainSubstring("TELEGRAM_BOT_TOKEN")))

		os.Setenv("TELEGRAM_BOT_TOKEN", "123456:test-token")
		os.Unsetenv("TELEGRAM_ADMIN_ID")
		_, err = botconfig.Load()
		Expect(err).To(MatchError(ContainSubstring("TELEGRAM_ADMIN_ID")))
	})
})

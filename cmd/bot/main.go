package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/internal/botconfig"
	"github.com/instagent/instagent/pkg/backoff"
	"github.com/instagent/instagent/pkg/db"
	"github.com/instagent/instagent/pkg/instagram"
	"github.com/instagent/instagent/pkg/logging"
	"github.com/instagent/instagent/pkg/modules"
	"github.com/instagent/instagent/pkg/ratelimit"
	"github.com/instagent/instagent/pkg/scheduler"
	"github.com/instagent/instagent/pkg/store"
	"github.com/instagent/instagent/pkg/telegram"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Only log warning since .env is optional
		logrus.WithError(err).Warn("Error loading .env file")
	}

	// Initialize logger
	log := logrus.New()
	log.SetFormatter(logging.NewColoredJSONFormatter())

	cfg, err := botconfig.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		if cfg.LogLevel != "" {
			log.WithFields(logrus.Fields{
				"attempted_level": cfg.LogLevel,
				"default_level":   "INFO",
			}).Warn("Invalid log level specified, defaulting to INFO")
		}
	}

	// Database and persistence
	gormDB, err := db.SetupDatabase(log)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up database")
	}
	st := store.New(gormDB, log)

	// Instagram account client
	igConfig, err := instagram.NewConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to create Instagram config")
	}
	igConfig.Logger = log

	igClient, err := instagram.NewClient(igConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Instagram client")
	}
	rememberSession(st, igConfig.SessionID, log)

	// Scheduling core
	limiter, err := ratelimit.New(cfg.RateLimits)
	if err != nil {
		log.WithError(err).Fatal("Invalid rate limits")
	}

	policy, err := backoff.New(cfg.Backoff)
	if err != nil {
		log.WithError(err).Fatal("Invalid backoff settings")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	commentOpts := modules.DefaultCommentEmojiOptions()
	if len(cfg.EmojiPool) > 0 {
		commentOpts.Emojis = cfg.EmojiPool
	}
	unfollowOpts := modules.DefaultUnfollowDelayOptions()
	unfollowOpts.UnfollowAfter = cfg.UnfollowAfter

	sched, err := scheduler.New(scheduler.Config{
		Modules: []modules.Module{
			modules.NewFollowFoF(igClient, st, log, modules.DefaultFollowFoFOptions(), rng),
			modules.NewLikeStories(igClient, limiter, log, modules.DefaultLikeStoriesOptions(), rng),
			modules.NewCommentEmoji(igClient, log, commentOpts, rng),
			modules.NewUnfollowDelay(igClient, st, log, unfollowOpts),
		},
		Limiter:        limiter,
		Policy:         policy,
		Recorder:       st,
		Logger:         log,
		MinActionDelay: cfg.MinActionDelay,
		MaxActionDelay: cfg.MaxActionDelay,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create scheduler")
	}

	// Operator channel
	bot, err := telegram.New(telegram.Config{
		BotToken:   cfg.Telegram.BotToken,
		AdminID:    cfg.Telegram.AdminID,
		Controller: sched,
		History:    st,
		Logger:     log,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create Telegram bot")
	}
	sched.SetNotifier(bot)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	log.Info("Starting Instagram automation bot")
	bot.Notify("🤖 Bot is up. Use /start_tasks to begin automation.")

	if err := bot.Run(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Error("Telegram bot stopped with error")
	}

	// Let the in-flight action finish before exiting.
	sched.Stop()
	sched.Wait()
	log.Info("Shutdown complete")
}

// rememberSession persists the active session id so a swapped session is
// visible across restarts. A fresh session resets Instagram's view of the
// device; worth knowing when correlating challenge failures.
func rememberSession(st *store.Store, sessionID string, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	previous, err := st.GetSetting(ctx, "instagram_session_id", "")
	if err != nil {
		log.WithError(err).Warn("Could not read stored session id")
		return
	}
	if previous != "" && previous != sessionID {
		log.Warn("Instagram session changed since the last run")
	}
	if err := st.SetSetting(ctx, "instagram_session_id", sessionID); err != nil {
		log.WithError(err).Warn("Could not store session id")
	}
}

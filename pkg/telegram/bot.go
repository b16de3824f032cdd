// Package telegram is the operator channel: a command bot that controls
// the scheduler and receives its alerts.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/db/models"
	"github.com/instagent/instagent/pkg/ratelimit"
	"github.com/instagent/instagent/pkg/scheduler"
)

// Controller is the slice of the scheduler the bot drives. Every command
// maps 1:1 to one of these methods.
type Controller interface {
	Start() scheduler.Ack
	Stop() scheduler.Ack
	Pause() scheduler.Ack
	Resume() scheduler.Ack
	Status() scheduler.StatusReport
	Stats() scheduler.DailyStats
	Limits() map[ratelimit.Action]ratelimit.Usage
}

// HistoryStore supplies the read-only history commands.
type HistoryStore interface {
	RecentActions(ctx context.Context, limit int) ([]models.ActionLog, error)
	StatisticsRange(ctx context.Context, from, to time.Time) ([]models.BotStatistic, error)
}

// Config holds the bot dependencies.
type Config struct {
	BotToken   string
	AdminID    int64
	Controller Controller
	History    HistoryStore
	Logger     *logrus.Logger
}

// Bot wraps the Telegram transport. Only the configured admin is obeyed;
// everyone else is ignored.
type Bot struct {
	api        *tgbotapi.BotAPI
	adminID    int64
	controller Controller
	history    HistoryStore
	logger     *logrus.Logger
}

// New creates the bot and verifies the token against the Telegram API.
func New(cfg Config) (*Bot, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if cfg.AdminID == 0 {
		return nil, fmt.Errorf("admin id is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	logger.WithField("bot_username", api.Self.UserName).Info("Telegram bot authorized")

	return &Bot{
		api:        api,
		adminID:    cfg.AdminID,
		controller: cfg.Controller,
		history:    cfg.History,
		logger:     logger,
	}, nil
}

// Run processes operator commands until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("Listening for operator commands")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	userID := update.Message.From.ID
	if userID != b.adminID {
		b.logger.WithField("user_id", userID).Warn("Ignoring command from non-admin user")
		return
	}

	command := update.Message.Command()
	b.logger.WithField("command", command).Info("Operator command received")

	reply := b.dispatch(command)
	b.send(update.Message.Chat.ID, reply)
}

// Notify pushes an alert to the admin chat. Implements scheduler.Notifier.
func (b *Bot) Notify(message string) {
	b.send(b.adminID, message)
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.logger.WithError(err).Error("Failed to send telegram message")
	}
}

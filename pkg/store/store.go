// Package store wraps the relational schema behind the narrow persistence
// operations the scheduling core needs.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/instagent/instagent/pkg/db/models"
)

// Store provides follow tracking, action logging, settings and statistics
// over the relational database.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// New creates a Store.
func New(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// LogAction appends one immutable action record.
func (s *Store) LogAction(ctx context.Context, record models.ActionLog) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"action":    record.ActionType,
		"target_id": record.TargetID,
		"success":   record.Success,
	}).Debug("Action recorded")
	return nil
}

// AddFollow upserts a follow record, refreshing followed_at when the same
// account is followed again.
func (s *Store) AddFollow(ctx context.Context, userID int64, username, source string) error {
	follow := models.Follow{
		UserID:     userID,
		Username:   username,
		FollowedAt: time.Now(),
		Source:     source,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"followed_at", "source"}),
	}).Create(&follow).Error
	if err != nil {
		return fmt.Errorf("failed to add follow record for %d: %w", userID, err)
	}
	return nil
}

// MarkUnfollowed stamps unfollowed_at on an existing follow record.
func (s *Store) MarkUnfollowed(ctx context.Context, userID int64) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("user_id = ?", userID).
		Update("unfollowed_at", &now)
	if result.Error != nil {
		return fmt.Errorf("failed to mark %d unfollowed: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no follow record for user %d", userID)
	}
	return nil
}

// UsersToUnfollow returns active follows older than the given delay,
// oldest first.
func (s *Store) UsersToUnfollow(ctx context.Context, olderThan time.Duration, limit int) ([]models.Follow, error) {
	cutoff := time.Now().Add(-olderThan)

	var follows []models.Follow
	err := s.db.WithContext(ctx).
		Where("unfollowed_at IS NULL AND followed_at <= ?", cutoff).
		Order("followed_at ASC").
		Limit(limit).
		Find(&follows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unfollow candidates: %w", err)
	}
	return follows, nil
}

// IsKnownFollow reports whether the account was ever followed by the bot.
// Both active follows and already-unfollowed accounts count: re-following
// a recently dropped account is the fastest way to look like a bot.
func (s *Store) IsKnownFollow(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check follow record for %d: %w", userID, err)
	}
	return count > 0, nil
}

// GetSetting returns a setting value, or the default when missing.
func (s *Store) GetSetting(ctx context.Context, key, defaultValue string) (string, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).First(&setting, "setting_key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return defaultValue, nil
		}
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return setting.Value, nil
}

// SetSetting upserts a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	setting := models.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"setting_value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// dayOf normalizes a timestamp to its local calendar day. The scheduler's
// in-memory aggregate rolls over on the same boundary; UTC truncation would
// disagree with it near midnight.
func dayOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// statColumns maps action types to their bot_statistics counter column.
var statColumns = map[string]string{
	"follow":     "follows_count",
	"unfollow":   "unfollows_count",
	"like":       "likes_count",
	"comment":    "comments_count",
	"story_view": "story_views_count",
	"error":      "errors_count",
}

// IncrementDailyStat bumps the counter for an action (or "error") on the
// given calendar day, creating the row on first use.
func (s *Store) IncrementDailyStat(ctx context.Context, day time.Time, counter string) error {
	column, ok := statColumns[counter]
	if !ok {
		return fmt.Errorf("unknown statistics counter %q", counter)
	}

	day = dayOf(day)
	row := models.BotStatistic{StatDate: day}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stat_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{column: gorm.Expr(column + " + 1")}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to increment %s for %s: %w", column, day.Format("2006-01-02"), err)
	}
	return nil
}

// StatisticsRange returns daily statistics rows between from and to,
// inclusive, newest first.
func (s *Store) StatisticsRange(ctx context.Context, from, to time.Time) ([]models.BotStatistic, error) {
	var rows []models.BotStatistic
	err := s.db.WithContext(ctx).
		Where("stat_date BETWEEN ? AND ?", dayOf(from), dayOf(to)).
		Order("stat_date DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch statistics: %w", err)
	}
	return rows, nil
}

// RecentActions returns the newest action records, for the /logs command.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]models.ActionLog, error) {
	var records []models.ActionLog
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent actions: %w", err)
	}
	return records, nil
}

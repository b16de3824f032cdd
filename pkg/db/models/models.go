package models

import (
	"time"
)

// ActionLog is the append-only record of every attempted action.
type ActionLog struct {
	ID         uint      `gorm:"primaryKey"`
	ActionType string    `gorm:"column:action_type;not null;index"`
	TargetID   string    `gorm:"column:target_id;not null"`
	Success    bool      `gorm:"column:success;not null"`
	Details    string    `gorm:"column:details"`
	RunID      string    `gorm:"column:run_id"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the ActionLog model.
func (ActionLog) TableName() string {
	return "action_logs"
}

// Follow tracks accounts the bot followed so they can be unfollowed after
// the configured delay. A row is never deleted; unfollowed_at marks the
// account as done and keeps it out of future candidate selection.
type Follow struct {
	ID           uint       `gorm:"primaryKey"`
	UserID       int64      `gorm:"column:user_id;uniqueIndex;not null"`
	Username     string     `gorm:"column:username"`
	FollowedAt   time.Time  `gorm:"column:followed_at;not null"`
	UnfollowedAt *time.Time `gorm:"column:unfollowed_at"`
	Source       string     `gorm:"column:source"`
}

// TableName specifies the table name for the Follow model.
func (Follow) TableName() string {
	return "follows"
}

// Setting is a simple key/value row for runtime state such as the session
// blob.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:setting_key"`
	Value     string    `gorm:"column:setting_value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for the Setting model.
func (Setting) TableName() string {
	return "settings"
}

// BotStatistic aggregates action counters per calendar day.
type BotStatistic struct {
	ID              uint      `gorm:"primaryKey"`
	StatDate        time.Time `gorm:"column:stat_date;type:date;uniqueIndex;not null"`
	FollowsCount    int       `gorm:"column:follows_count;default:0"`
	UnfollowsCount  int       `gorm:"column:unfollows_count;default:0"`
	LikesCount      int       `gorm:"column:likes_count;default:0"`
	CommentsCount   int       `gorm:"column:comments_count;default:0"`
	StoryViewsCount int       `gorm:"column:story_views_count;default:0"`
	ErrorsCount     int       `gorm:"column:errors_count;default:0"`
}

// TableName specifies the table name for the BotStatistic model.
func (BotStatistic) TableName() string {
	return "bot_statistics"
}

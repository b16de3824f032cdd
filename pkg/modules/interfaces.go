// Package modules holds the automation strategies. Each module owns one
// strategy's next-step decision; the scheduler drives them one action at a
// time.
package modules

import (
	"context"
	"time"

	"github.com/instagent/instagent/pkg/db/models"
	"github.com/instagent/instagent/pkg/instagram"
	"github.com/instagent/instagent/pkg/ratelimit"
)

// Target identifies one unit of work produced by SelectTarget.
type Target struct {
	// ID is what gets logged as the action record's target id.
	ID string
	// Username of the account involved, for notifications and logs.
	Username string

	// payload carries strategy-specific data between SelectTarget and
	// Perform of the same module.
	payload interface{}
}

// Module is the strategy contract the scheduler drives.
type Module interface {
	// Name is the human-readable module identifier.
	Name() string
	// ActionType is the rate-limited action this module consumes.
	ActionType() ratelimit.Action
	// SelectTarget picks the next eligible target. A nil target with a
	// nil error means nothing to do right now; the scheduler treats
	// that as a skip, not a failure.
	SelectTarget(ctx context.Context) (*Target, error)
	// Perform executes one unit of work against the target.
	Perform(ctx context.Context, target *Target) error
}

// AccountClient is the slice of the Instagram client the strategies use.
type AccountClient interface {
	CurrentUser(ctx context.Context) (*instagram.User, error)
	Followers(ctx context.Context, userID int64, limit int) ([]instagram.User, error)
	Follow(ctx context.Context, userID int64) error
	Unfollow(ctx context.Context, userID int64) error
	UserMedias(ctx context.Context, userID int64, limit int) ([]instagram.Media, error)
	Comment(ctx context.Context, mediaID, text string) error
	UserStories(ctx context.Context, userID int64) ([]instagram.StoryItem, error)
	ViewStory(ctx context.Context, item instagram.StoryItem) error
	LikeStory(ctx context.Context, item instagram.StoryItem) error
}

// FollowStore is the follow bookkeeping the strategies depend on.
type FollowStore interface {
	AddFollow(ctx context.Context, userID int64, username, source string) error
	MarkUnfollowed(ctx context.Context, userID int64) error
	UsersToUnfollow(ctx context.Context, olderThan time.Duration, limit int) ([]models.Follow, error)
	IsKnownFollow(ctx context.Context, userID int64) (bool, error)
}

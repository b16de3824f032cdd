package modules

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/db/models"
	"github.com/instagent/instagent/pkg/ratelimit"
)

// UnfollowDelayOptions tunes the unfollow strategy.
type UnfollowDelayOptions struct {
	// UnfollowAfter is how long a followed account is kept before it
	// becomes an unfollow candidate.
	UnfollowAfter time.Duration
	// BatchLimit caps how many candidates one database query returns.
	BatchLimit int
}

// DefaultUnfollowDelayOptions returns the deployment defaults.
func DefaultUnfollowDelayOptions() UnfollowDelayOptions {
	return UnfollowDelayOptions{
		UnfollowAfter: 7 * 24 * time.Hour,
		BatchLimit:    30,
	}
}

// UnfollowDelay unfollows accounts the bot followed once the configured
// delay has passed. Candidates come from the follows table, oldest first.
type UnfollowDelay struct {
	client AccountClient
	store  FollowStore
	logger *logrus.Logger
	opts   UnfollowDelayOptions
}

// NewUnfollowDelay creates the unfollow strategy module.
func NewUnfollowDelay(client AccountClient, store FollowStore, logger *logrus.Logger, opts UnfollowDelayOptions) *UnfollowDelay {
	defaults := DefaultUnfollowDelayOptions()
	if opts.UnfollowAfter <= 0 {
		opts.UnfollowAfter = defaults.UnfollowAfter
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaults.BatchLimit
	}
	return &UnfollowDelay{
		client: client,
		store:  store,
		logger: logger,
		opts:   opts,
	}
}

func (m *UnfollowDelay) Name() string { return "unfollow_delay" }

func (m *UnfollowDelay) ActionType() ratelimit.Action { return ratelimit.ActionUnfollow }

// SelectTarget returns the oldest follow past the delay, or nil when none
// is due.
func (m *UnfollowDelay) SelectTarget(ctx context.Context) (*Target, error) {
	candidates, err := m.store.UsersToUnfollow(ctx, m.opts.UnfollowAfter, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	candidate := candidates[0]
	return &Target{
		ID:       strconv.FormatInt(candidate.UserID, 10),
		Username: candidate.Username,
		payload:  candidate,
	}, nil
}

// Perform unfollows the target and stamps unfollowed_at.
func (m *UnfollowDelay) Perform(ctx context.Context, target *Target) error {
	follow, ok := target.payload.(models.Follow)
	if !ok {
		return fmt.Errorf("unexpected target payload for %s", m.Name())
	}

	if err := m.client.Unfollow(ctx, follow.UserID); err != nil {
		return err
	}

	if err := m.store.MarkUnfollowed(ctx, follow.UserID); err != nil {
		// Without the stamp the account would be selected again; that
		// is worth surfacing loudly.
		m.logger.WithError(err).WithField("target_id", target.ID).
			Error("Unfollow succeeded but unfollowed_at could not be stamped")
	}

	m.logger.WithFields(logrus.Fields{
		"module":    m.Name(),
		"target_id": target.ID,
		"username":  follow.Username,
	}).Info("Unfollowed user")
	return nil
}

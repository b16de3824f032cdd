package modules

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/instagram"
	"github.com/instagent/instagent/pkg/ratelimit"
)

// LikeStoriesOptions tunes the story viewing strategy.
type LikeStoriesOptions struct {
	// FollowersToScan is how many followers get their story reel
	// checked per refill.
	FollowersToScan int
	// MaxStoriesPerUser caps how many items of one reel are viewed.
	// Watching every story of every follower is not how humans behave.
	MaxStoriesPerUser int
	// LikeProbability is the chance a viewed story also gets a like.
	LikeProbability float64
}

// DefaultLikeStoriesOptions returns the deployment defaults.
func DefaultLikeStoriesOptions() LikeStoriesOptions {
	return LikeStoriesOptions{
		FollowersToScan:   10,
		MaxStoriesPerUser: 3,
		LikeProbability:   0.5,
	}
}

type storyTarget struct {
	item     instagram.StoryItem
	username string
}

// LikeStories views (and sometimes likes) the current stories of the
// account's followers.
type LikeStories struct {
	client  AccountClient
	limiter *ratelimit.Limiter
	logger  *logrus.Logger
	opts    LikeStoriesOptions
	rng     *rand.Rand

	selfID int64
	queue  []storyTarget
	// seen keeps story ids out of the queue across refills for a day.
	seen map[string]time.Time
}

// NewLikeStories creates the story viewing module. The limiter is consulted
// for the optional like, which draws on the like quota rather than the
// module's own story-view quota.
func NewLikeStories(client AccountClient, limiter *ratelimit.Limiter, logger *logrus.Logger, opts LikeStoriesOptions, rng *rand.Rand) *LikeStories {
	defaults := DefaultLikeStoriesOptions()
	if opts.FollowersToScan <= 0 {
		opts.FollowersToScan = defaults.FollowersToScan
	}
	if opts.MaxStoriesPerUser <= 0 {
		opts.MaxStoriesPerUser = defaults.MaxStoriesPerUser
	}
	if opts.LikeProbability < 0 || opts.LikeProbability > 1 {
		opts.LikeProbability = defaults.LikeProbability
	}
	return &LikeStories{
		client:  client,
		limiter: limiter,
		logger:  logger,
		opts:    opts,
		rng:     rng,
		seen:    make(map[string]time.Time),
	}
}

func (m *LikeStories) Name() string { return "like_stories" }

func (m *LikeStories) ActionType() ratelimit.Action { return ratelimit.ActionStoryView }

// SelectTarget pops the next unseen story item.
func (m *LikeStories) SelectTarget(ctx context.Context) (*Target, error) {
	if len(m.queue) == 0 {
		if err := m.refill(ctx); err != nil {
			return nil, err
		}
	}
	if len(m.queue) == 0 {
		return nil, nil
	}

	next := m.queue[0]
	m.queue = m.queue[1:]
	return &Target{
		ID:       next.item.ID,
		Username: next.username,
		payload:  next,
	}, nil
}

// Perform marks the story as seen, then optionally likes it when the like
// quota allows.
func (m *LikeStories) Perform(ctx context.Context, target *Target) error {
	story, ok := target.payload.(storyTarget)
	if !ok {
		return fmt.Errorf("unexpected target payload for %s", m.Name())
	}

	if err := m.client.ViewStory(ctx, story.item); err != nil {
		return err
	}
	m.seen[story.item.ID] = time.Now()

	if m.rng.Float64() < m.opts.LikeProbability && m.limiter.CanPerform(ratelimit.ActionLike) {
		if err := m.client.LikeStory(ctx, story.item); err != nil {
			// The view already succeeded; a failed like is not worth
			// failing the whole action over.
			m.logger.WithError(err).WithFields(logrus.Fields{
				"module":    m.Name(),
				"target_id": story.item.ID,
			}).Warn("Story like failed after successful view")
		} else {
			m.limiter.Record(ratelimit.ActionLike, time.Now())
		}
	}

	m.logger.WithFields(logrus.Fields{
		"module":    m.Name(),
		"target_id": story.item.ID,
		"username":  story.username,
	}).Info("Viewed story")
	return nil
}

func (m *LikeStories) refill(ctx context.Context) error {
	m.pruneSeen()

	if m.selfID == 0 {
		self, err := m.client.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("resolve own user id: %w", err)
		}
		m.selfID = self.ID
	}

	followers, err := m.client.Followers(ctx, m.selfID, m.opts.FollowersToScan)
	if err != nil {
		return err
	}
	m.rng.Shuffle(len(followers), func(i, j int) {
		followers[i], followers[j] = followers[j], followers[i]
	})

	for _, follower := range followers {
		stories, err := m.client.UserStories(ctx, follower.ID)
		if err != nil {
			return err
		}

		taken := 0
		for _, item := range stories {
			if taken >= m.opts.MaxStoriesPerUser {
				break
			}
			if _, done := m.seen[item.ID]; done {
				continue
			}
			m.queue = append(m.queue, storyTarget{item: item, username: follower.Username})
			taken++
		}
	}

	m.logger.WithFields(logrus.Fields{
		"module": m.Name(),
		"items":  len(m.queue),
	}).Debug("Refilled story queue")
	return nil
}

// pruneSeen drops seen markers older than a day; stories expire in 24h
// anyway.
func (m *LikeStories) pruneSeen() {
	cutoff := time.Now().Add(-24 * time.Hour)
	for id, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, id)
		}
	}
}

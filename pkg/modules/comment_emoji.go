package modules

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/instagram"
	"github.com/instagent/instagent/pkg/ratelimit"
)

// DefaultEmojiPool is the safe, positive set comments are drawn from.
var DefaultEmojiPool = []string{
	"❤️", "😍", "🔥", "👏", "✨", "💯", "😊", "🙌",
	"👍", "💪", "🎉", "⭐", "💖", "🌟", "👌", "😎",
}

// CommentEmojiOptions tunes the emoji comment strategy.
type CommentEmojiOptions struct {
	// FollowersToScan is how many followers get their recent posts
	// checked per refill.
	FollowersToScan int
	// Emojis is the pool comments are drawn from.
	Emojis []string
	// DoubleEmojiProbability is the chance a comment carries two emojis.
	DoubleEmojiProbability float64
}

// DefaultCommentEmojiOptions returns the deployment defaults.
func DefaultCommentEmojiOptions() CommentEmojiOptions {
	return CommentEmojiOptions{
		FollowersToScan:        20,
		Emojis:                 DefaultEmojiPool,
		DoubleEmojiProbability: 0.3,
	}
}

type commentTarget struct {
	media    instagram.Media
	userID   int64
	username string
}

// CommentEmoji leaves emoji-only comments on followers' recent posts. The
// same emoji is never posted twice in a row for the same account.
type CommentEmoji struct {
	client AccountClient
	logger *logrus.Logger
	opts   CommentEmojiOptions
	rng    *rand.Rand

	selfID int64
	queue  []commentTarget
	// lastEmoji remembers the previous emoji per target account.
	lastEmoji map[int64]string
	commented map[string]bool
}

// NewCommentEmoji creates the emoji comment module.
func NewCommentEmoji(client AccountClient, logger *logrus.Logger, opts CommentEmojiOptions, rng *rand.Rand) *CommentEmoji {
	defaults := DefaultCommentEmojiOptions()
	if opts.FollowersToScan <= 0 {
		opts.FollowersToScan = defaults.FollowersToScan
	}
	if len(opts.Emojis) == 0 {
		opts.Emojis = defaults.Emojis
	}
	if opts.DoubleEmojiProbability < 0 || opts.DoubleEmojiProbability > 1 {
		opts.DoubleEmojiProbability = defaults.DoubleEmojiProbability
	}
	return &CommentEmoji{
		client:    client,
		logger:    logger,
		opts:      opts,
		rng:       rng,
		lastEmoji: make(map[int64]string),
		commented: make(map[string]bool),
	}
}

func (m *CommentEmoji) Name() string { return "comment_emoji" }

func (m *CommentEmoji) ActionType() ratelimit.Action { return ratelimit.ActionComment }

// SelectTarget pops the next post to comment on.
func (m *CommentEmoji) SelectTarget(ctx context.Context) (*Target, error) {
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
		ID:       next.media.ID,
		Username: next.username,
		payload:  next,
	}, nil
}

// Perform posts one emoji comment on the target post.
func (m *CommentEmoji) Perform(ctx context.Context, target *Target) error {
	post, ok := target.payload.(commentTarget)
	if !ok {
		return fmt.Errorf("unexpected target payload for %s", m.Name())
	}

	first := m.pickEmoji(post.userID)
	text := first
	if m.rng.Float64() < m.opts.DoubleEmojiProbability {
		text += m.randomEmoji()
	}

	if err := m.client.Comment(ctx, post.media.ID, text); err != nil {
		return err
	}

	m.lastEmoji[post.userID] = first
	m.commented[post.media.ID] = true

	m.logger.WithFields(logrus.Fields{
		"module":    m.Name(),
		"target_id": post.media.ID,
		"username":  post.username,
		"comment":   text,
	}).Info("Commented on post")
	return nil
}

// pickEmoji draws uniformly from the pool excluding the last emoji used for
// this account. Single-emoji pools can never avoid a repeat.
func (m *CommentEmoji) pickEmoji(userID int64) string {
	last := m.lastEmoji[userID]
	if last == "" {
		return m.randomEmoji()
	}

	candidates := make([]string, 0, len(m.opts.Emojis))
	for _, emoji := range m.opts.Emojis {
		if emoji != last {
			candidates = append(candidates, emoji)
		}
	}
	if len(candidates) == 0 {
		return last
	}
	return candidates[m.rng.Intn(len(candidates))]
}

func (m *CommentEmoji) randomEmoji() string {
	return m.opts.Emojis[m.rng.Intn(len(m.opts.Emojis))]
}

func (m *CommentEmoji) refill(ctx context.Context) error {
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
		medias, err := m.client.UserMedias(ctx, follower.ID, 2)
		if err != nil {
			return err
		}
		for _, media := range medias {
			if m.commented[media.ID] {
				continue
			}
			m.queue = append(m.queue, commentTarget{
				media:    media,
				userID:   follower.ID,
				username: follower.Username,
			})
			// One post per follower per refill keeps the footprint low.
			break
		}
	}

	m.logger.WithFields(logrus.Fields{
		"module": m.Name(),
		"posts":  len(m.queue),
	}).Debug("Refilled comment queue")
	return nil
}

package modules

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/instagent/instagent/pkg/instagram"
	"github.com/instagent/instagent/pkg/ratelimit"
)

const followSourceFoF = "followers_of_followers"

// FollowFoFOptions tunes the follow-via-followers-of-followers strategy.
type FollowFoFOptions struct {
	// FollowersToScan is how many of the account's own followers get
	// their follower lists inspected per refill.
	FollowersToScan int
	// CandidatesPerFollower caps how many candidates one follower's
	// list may contribute.
	CandidatesPerFollower int
}

// DefaultFollowFoFOptions returns the deployment defaults.
func DefaultFollowFoFOptions() FollowFoFOptions {
	return FollowFoFOptions{
		FollowersToScan:       10,
		CandidatesPerFollower: 5,
	}
}

// FollowFoF follows followers of the account's own followers to expand
// reach. Candidates already followed (or followed and later dropped) are
// excluded.
type FollowFoF struct {
	client AccountClient
	store  FollowStore
	logger *logrus.Logger
	opts   FollowFoFOptions
	rng    *rand.Rand

	selfID int64
	queue  []instagram.User
}

// NewFollowFoF creates the follow strategy module.
func NewFollowFoF(client AccountClient, store FollowStore, logger *logrus.Logger, opts FollowFoFOptions, rng *rand.Rand) *FollowFoF {
	if opts.FollowersToScan <= 0 {
		opts.FollowersToScan = DefaultFollowFoFOptions().FollowersToScan
	}
	if opts.CandidatesPerFollower <= 0 {
		opts.CandidatesPerFollower = DefaultFollowFoFOptions().CandidatesPerFollower
	}
	return &FollowFoF{
		client: client,
		store:  store,
		logger: logger,
		opts:   opts,
		rng:    rng,
	}
}

func (m *FollowFoF) Name() string { return "follow_fof" }

func (m *FollowFoF) ActionType() ratelimit.Action { return ratelimit.ActionFollow }

// SelectTarget pops the next candidate, refilling the queue from the
// follower graph when it runs dry.
func (m *FollowFoF) SelectTarget(ctx context.Context) (*Target, error) {
	if len(m.queue) == 0 {
		if err := m.refill(ctx); err != nil {
			return nil, err
		}
	}
	if len(m.queue) == 0 {
		return nil, nil
	}

	candidate := m.queue[0]
	m.queue = m.queue[1:]
	return &Target{
		ID:       strconv.FormatInt(candidate.ID, 10),
		Username: candidate.Username,
		payload:  candidate,
	}, nil
}

// Perform follows the target and records it for later unfollowing.
func (m *FollowFoF) Perform(ctx context.Context, target *Target) error {
	candidate, ok := target.payload.(instagram.User)
	if !ok {
		return fmt.Errorf("unexpected target payload for %s", m.Name())
	}

	if err := m.client.Follow(ctx, candidate.ID); err != nil {
		return err
	}

	if err := m.store.AddFollow(ctx, candidate.ID, candidate.Username, followSourceFoF); err != nil {
		// The follow went through; losing the bookkeeping row only
		// affects the later unfollow pass.
		m.logger.WithError(err).WithField("target_id", target.ID).
			Warn("Follow succeeded but record could not be stored")
	}

	m.logger.WithFields(logrus.Fields{
		"module":    m.Name(),
		"target_id": target.ID,
		"username":  candidate.Username,
	}).Info("Followed user")
	return nil
}

func (m *FollowFoF) refill(ctx context.Context) error {
	if m.selfID == 0 {
		self, err := m.client.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("resolve own user id: %w", err)
		}
		m.selfID = self.ID
	}

	myFollowers, err := m.client.Followers(ctx, m.selfID, m.opts.FollowersToScan)
	if err != nil {
		return err
	}
	m.rng.Shuffle(len(myFollowers), func(i, j int) {
		myFollowers[i], myFollowers[j] = myFollowers[j], myFollowers[i]
	})

	for _, follower := range myFollowers {
		theirFollowers, err := m.client.Followers(ctx, follower.ID, m.opts.CandidatesPerFollower*2)
		if err != nil {
			return err
		}

		added := 0
		for _, candidate := range theirFollowers {
			if added >= m.opts.CandidatesPerFollower {
				break
			}
			eligible, err := m.eligible(ctx, candidate)
			if err != nil {
				return err
			}
			if eligible {
				m.queue = append(m.queue, candidate)
				added++
			}
		}
	}

	m.rng.Shuffle(len(m.queue), func(i, j int) {
		m.queue[i], m.queue[j] = m.queue[j], m.queue[i]
	})

	m.logger.WithFields(logrus.Fields{
		"module":     m.Name(),
		"candidates": len(m.queue),
	}).Debug("Refilled follow candidate queue")
	return nil
}

// eligible filters out accounts that are poor or risky follow targets:
// private, verified, too popular, near-inactive, or with a suspicious
// follow ratio. Accounts the bot already touched are always excluded.
func (m *FollowFoF) eligible(ctx context.Context, user instagram.User) (bool, error) {
	if user.ID == m.selfID || user.IsPrivate || user.IsVerified {
		return false, nil
	}
	if user.FollowerCount > 10000 {
		return false, nil
	}
	if user.FollowingCount < 10 {
		return false, nil
	}
	if user.FollowerCount > 0 {
		ratio := float64(user.FollowingCount) / float64(user.FollowerCount)
		if ratio > 5 || ratio < 0.1 {
			return false, nil
		}
	}

	known, err := m.store.IsKnownFollow(ctx, user.ID)
	if err != nil {
		return false, err
	}
	return !known, nil
}

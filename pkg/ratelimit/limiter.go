package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Action identifies the unit the limiter tracks independently.
type Action string

const (
	ActionFollow    Action = "follow"
	ActionUnfollow  Action = "unfollow"
	ActionLike      Action = "like"
	ActionComment   Action = "comment"
	ActionStoryView Action = "story_view"
)

// Actions returns every tracked action type in a stable order.
func Actions() []Action {
	return []Action{ActionFollow, ActionUnfollow, ActionLike, ActionComment, ActionStoryView}
}

// Quota is the per-action cap pair. A cap of zero disables the action type.
type Quota struct {
	PerDay  int
	PerHour int
}

// Config maps every action type to its quota.
type Config map[Action]Quota

// Validate rejects negative or missing caps. Called once at config load;
// the limiter itself never re-validates at query time.
func (c Config) Validate() error {
	for _, action := range Actions() {
		quota, ok := c[action]
		if !ok {
			return fmt.Errorf("missing quota for action %q", action)
		}
		if quota.PerDay < 0 || quota.PerHour < 0 {
			return fmt.Errorf("negative quota for action %q: day=%d hour=%d",
				action, quota.PerDay, quota.PerHour)
		}
	}
	return nil
}

// Usage is a point-in-time view of one action type's consumption.
type Usage struct {
	Quota           Quota
	DailyUsed       int
	HourlyUsed      int
	DailyRemaining  int
	HourlyRemaining int
}

// Limiter tracks per-action usage against rolling 24h/1h windows.
// Timestamps are recorded only for confirmed successful actions; failed
// attempts never consume quota.
type Limiter struct {
	mu      sync.Mutex
	quotas  Config
	windows map[Action][]time.Time
	now     func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter for the given quotas.
func New(quotas Config, opts ...Option) (*Limiter, error) {
	if err := quotas.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}

	l := &Limiter{
		quotas:  quotas,
		windows: make(map[Action][]time.Time, len(quotas)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CanPerform reports whether one more action of the given type fits inside
// both the daily and hourly cap. Pure query, no side effect.
func (l *Limiter) CanPerform(action Action) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	quota := l.quotas[action]
	if quota.PerDay == 0 || quota.PerHour == 0 {
		return false
	}

	daily, hourly := l.counts(action)
	return daily < quota.PerDay && hourly < quota.PerHour
}

// Record appends a success timestamp to the action's window.
func (l *Limiter) Record(action Action, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows[action] = append(l.windows[action], ts)
}

// Remaining returns the daily and hourly headroom for an action type.
func (l *Limiter) Remaining(action Action) (daily, hourly int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining(action)
}

// Snapshot returns the current usage of every action type, for status
// reporting. The view is eventually consistent with the worker loop.
func (l *Limiter) Snapshot() map[Action]Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[Action]Usage, len(l.quotas))
	for _, action := range Actions() {
		quota := l.quotas[action]
		dailyUsed, hourlyUsed := l.counts(action)
		dailyLeft, hourlyLeft := l.remaining(action)
		snapshot[action] = Usage{
			Quota:           quota,
			DailyUsed:       dailyUsed,
			HourlyUsed:      hourlyUsed,
			DailyRemaining:  dailyLeft,
			HourlyRemaining: hourlyLeft,
		}
	}
	return snapshot
}

func (l *Limiter) remaining(action Action) (daily, hourly int) {
	quota := l.quotas[action]
	dailyUsed, hourlyUsed := l.counts(action)

	daily = quota.PerDay - dailyUsed
	if daily < 0 {
		daily = 0
	}
	hourly = quota.PerHour - hourlyUsed
	if hourly < 0 {
		hourly = 0
	}
	return daily, hourly
}

// counts purges entries older than 24h and returns the daily and hourly
// totals. Each entry's own age is checked independently so a clock jump
// never strands stale entries behind newer ones.
func (l *Limiter) counts(action Action) (daily, hourly int) {
	now := l.now()
	dayAgo := now.Add(-24 * time.Hour)
	hourAgo := now.Add(-time.Hour)

	window := l.windows[action]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(dayAgo) {
			kept = append(kept, ts)
			if ts.After(hourAgo) {
				hourly++
			}
		}
	}
	l.windows[action] = kept
	return len(kept), hourly
}

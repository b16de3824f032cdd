package scheduler

import (
	"time"

	"github.com/instagent/instagent/pkg/ratelimit"
)

// DailyStats is the in-memory aggregate for the current local day. It
// mirrors the bot_statistics row so /stats does not have to query the
// database on every request.
type DailyStats struct {
	Date       time.Time
	Follows    int
	Unfollows  int
	Likes      int
	Comments   int
	StoryViews int
	Errors     int
}

type dailyStats struct {
	current DailyStats
}

func (d *dailyStats) reset(now time.Time) {
	d.current = DailyStats{Date: localDay(now)}
}

// rollover invalidates the aggregate when the local day has changed.
func (d *dailyStats) rollover(now time.Time) {
	if !localDay(now).Equal(d.current.Date) {
		d.reset(now)
	}
}

func (d *dailyStats) bump(action ratelimit.Action, now time.Time) {
	d.rollover(now)
	switch action {
	case ratelimit.ActionFollow:
		d.current.Follows++
	case ratelimit.ActionUnfollow:
		d.current.Unfollows++
	case ratelimit.ActionLike:
		d.current.Likes++
	case ratelimit.ActionComment:
		d.current.Comments++
	case ratelimit.ActionStoryView:
		d.current.StoryViews++
	}
}

func (d *dailyStats) bumpError(now time.Time) {
	d.rollover(now)
	d.current.Errors++
}

func (d *dailyStats) snapshot(now time.Time) DailyStats {
	d.rollover(now)
	return d.current
}

func localDay(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}

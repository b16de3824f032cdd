package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/instagent/instagent/pkg/ratelimit"
	"github.com/instagent/instagent/pkg/scheduler"
)

const helpText = `<b>📊 Commands:</b>

/start_tasks - Start automation
/stop_tasks - Stop automation
/pause - Pause tasks
/resume - Resume tasks
/status - Scheduler and module state
/stats - Today's statistics
/limits - Rate limit usage
/logs - Recent actions
/help - Show this help`

func (b *Bot) dispatch(command string) string {
	switch command {
	case "start", "help":
		return helpText
	case "start_tasks":
		return formatAck(b.controller.Start())
	case "stop_tasks":
		return formatAck(b.controller.Stop())
	case "pause":
		return formatAck(b.controller.Pause())
	case "resume":
		return formatAck(b.controller.Resume())
	case "status":
		return formatStatus(b.controller.Status())
	case "stats":
		return b.statsReply()
	case "limits":
		return formatLimits(b.controller.Limits())
	case "logs":
		return b.formatLogs()
	default:
		return "Unknown command. Use /help."
	}
}

func formatAck(ack scheduler.Ack) string {
	icon := "ℹ️"
	if ack.Changed {
		switch ack.State {
		case scheduler.StateRunning:
			icon = "▶️"
		case scheduler.StatePaused:
			icon = "⏸️"
		case scheduler.StateStopped:
			icon = "⏹️"
		}
	}
	return fmt.Sprintf("%s %s (state: <b>%s</b>)", icon, ack.Message, ack.State)
}

func formatStatus(report scheduler.StatusReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🤖 <b>Scheduler:</b> %s\n", report.State)
	if report.RunID != "" {
		fmt.Fprintf(&sb, "Run: <code>%s</code>\n", report.RunID)
	}
	sb.WriteString("\n<b>Modules:</b>\n")
	for _, module := range report.Modules {
		icon := "✅"
		detail := ""
		if !module.Enabled {
			icon = "🚫"
			detail = fmt.Sprintf(" (disabled: %s)", module.DisabledReason)
		} else if module.FailureStreak > 0 {
			detail = fmt.Sprintf(" (%d consecutive failures)", module.FailureStreak)
		}
		fmt.Fprintf(&sb, "%s %s%s\n", icon, module.Name, detail)
	}
	return sb.String()
}

// statsReply prefers the scheduler's in-memory aggregate; before the first
// start of the process it falls back to today's persisted statistics row.
func (b *Bot) statsReply() string {
	stats := b.controller.Stats()
	if !stats.Date.IsZero() || b.history == nil {
		return formatStats(stats)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	today := time.Now()
	rows, err := b.history.StatisticsRange(ctx, today, today)
	if err != nil {
		b.logger.WithError(err).Error("Failed to fetch persisted statistics")
		return formatStats(stats)
	}
	if len(rows) == 0 {
		return formatStats(stats)
	}

	row := rows[0]
	return formatStats(scheduler.DailyStats{
		Date:       row.StatDate,
		Follows:    row.FollowsCount,
		Unfollows:  row.UnfollowsCount,
		Likes:      row.LikesCount,
		Comments:   row.CommentsCount,
		StoryViews: row.StoryViewsCount,
		Errors:     row.ErrorsCount,
	})
}

func formatStats(stats scheduler.DailyStats) string {
	return fmt.Sprintf(
		"📈 <b>Today (%s)</b>\n\n"+
			"➕ Follows: %d\n"+
			"➖ Unfollows: %d\n"+
			"❤️ Likes: %d\n"+
			"💬 Comments: %d\n"+
			"👁️ Story views: %d\n"+
			"❌ Errors: %d",
		stats.Date.Format("2006-01-02"),
		stats.Follows, stats.Unfollows, stats.Likes,
		stats.Comments, stats.StoryViews, stats.Errors,
	)
}

func formatLimits(usage map[ratelimit.Action]ratelimit.Usage) string {
	var sb strings.Builder
	sb.WriteString("🚦 <b>Rate limits</b> (used/cap)\n\n")
	for _, action := range ratelimit.Actions() {
		u := usage[action]
		fmt.Fprintf(&sb, "<b>%s</b>: hour %d/%d, day %d/%d\n",
			action, u.HourlyUsed, u.Quota.PerHour, u.DailyUsed, u.Quota.PerDay)
	}
	return sb.String()
}

func (b *Bot) formatLogs() string {
	if b.history == nil {
		return "History is not available."
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := b.history.RecentActions(ctx, 10)
	if err != nil {
		b.logger.WithError(err).Error("Failed to fetch recent actions")
		return "❌ Could not fetch recent actions."
	}
	if len(records) == 0 {
		return "No actions recorded yet."
	}

	var sb strings.Builder
	sb.WriteString("📜 <b>Recent actions</b>\n\n")
	for _, record := range records {
		icon := "✅"
		if !record.Success {
			icon = "❌"
		}
		fmt.Fprintf(&sb, "%s %s %s → %s\n",
			icon,
			record.CreatedAt.Format("15:04"),
			record.ActionType,
			record.TargetID,
		)
	}
	return sb.String()
}

package bot

import (
	"context"
	"strings"

	"readbot/internal/transport"
	logx "readbot/pkg/logx"
)

// splitCommand extracts a bot command and its argument string.
// "/set_time@SomeBot 21:00" yields ("set_time", "21:00"); non-command
// text yields an empty command.
func splitCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head := text[1:]
	if i := strings.IndexAny(head, " \t\n"); i >= 0 {
		args = strings.TrimSpace(head[i+1:])
		head = head[:i]
	}
	// Commands in groups may carry the bot's address.
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return strings.ToLower(head), args
}

func (a *App) route(ctx context.Context, m transport.Message) {
	cmd, args := splitCommand(m.Text)
	if cmd == "" {
		return
	}

	switch cmd {
	case "join":
		a.cmdJoin(ctx, m)
	case "leave":
		a.cmdLeave(ctx, m)
	case "today":
		a.cmdToday(ctx, m)
	case "stats":
		a.cmdStats(ctx, m)
	case "leaderboard":
		a.cmdLeaderboard(ctx, m)
	case "monthly":
		a.cmdMonthly(ctx, m)
	case "help", "start":
		a.reply(ctx, m.ChatID, helpText)

	case "challenge_start", "challenge_stop", "set_time", "set_reminder_time",
		"add", "addall", "remove", "participants", "weekly_summary_now", "remind_now":
		if !a.requireAdmin(ctx, m) {
			return
		}
		switch cmd {
		case "challenge_start":
			a.cmdChallengeStart(ctx, m)
		case "challenge_stop":
			a.cmdChallengeStop(ctx, m)
		case "set_time":
			a.cmdSetTime(ctx, m, args)
		case "set_reminder_time":
			a.cmdSetReminderTime(ctx, m, args)
		case "add":
			a.cmdAdd(ctx, m, args)
		case "addall":
			a.cmdAddAll(ctx, m, args)
		case "remove":
			a.cmdRemove(ctx, m, args)
		case "participants":
			a.cmdParticipants(ctx, m)
		case "weekly_summary_now":
			a.cmdWeeklySummaryNow(ctx, m)
		case "remind_now":
			a.cmdRemindNow(ctx, m)
		}
	}
}

func (a *App) requireAdmin(ctx context.Context, m transport.Message) bool {
	ok, err := a.adapter.IsAdmin(ctx, m.ChatID, m.From.ID)
	if err != nil {
		a.log.Warn("admin check",
			logx.Int64("group", m.ChatID), logx.Int64("user", m.From.ID), logx.Err(err))
		return false
	}
	if !ok {
		a.reply(ctx, m.ChatID, "This command is for group admins.")
	}
	return ok
}

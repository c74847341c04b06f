package bot

import (
	"fmt"
	"html"
	"strings"

	"readbot/internal/storage"
)

// Outbound text uses Telegram HTML parse mode; everything user-supplied
// goes through esc before interpolation.

func esc(s string) string { return html.EscapeString(s) }

// mention renders a participant for an outbound message: a profile link
// when the identity is known, the @alias while still pending, otherwise
// the escaped display name.
func mention(p storage.Participant) string {
	if p.UserRef != nil {
		return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, *p.UserRef, esc(displayOf(p)))
	}
	if p.Alias != "" {
		return "@" + esc(p.Alias)
	}
	return esc(displayOf(p))
}

func displayOf(p storage.Participant) string {
	if strings.TrimSpace(p.DisplayName) != "" {
		return p.DisplayName
	}
	if p.Alias != "" {
		return p.Alias
	}
	return fmt.Sprintf("participant %d", p.ID)
}

func medal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return fmt.Sprintf("%d.", rank)
}

func renderLeaderboard(title string, rows []storage.LeaderboardRow) string {
	if len(rows) == 0 {
		return title + "\n\nNo participants yet."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for i, r := range rows {
		fmt.Fprintf(&b, "%s %s — %d ✅  %d ❌  %d 😴\n",
			medal(i+1), esc(r.DisplayName), r.Yes, r.No, r.Missed)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderPeriodSummary(title string, rows []storage.PeriodResult) string {
	if len(rows) == 0 {
		return title + "\n\nNo participants yet."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s — %d ✅  %d ❌  %d 😴\n",
			medal(r.Rank), esc(r.DisplayName), r.Yes, r.No, r.Missed)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderParticipants(rows []storage.Participant) string {
	if len(rows) == 0 {
		return "Nobody is in the challenge yet. Use /join or have an admin /add people."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Participants (%d):\n\n", len(rows))
	for i, p := range rows {
		fmt.Fprintf(&b, "%d. %s", i+1, esc(displayOf(p)))
		if p.State == storage.StatePending {
			b.WriteString(" ⏳ (not seen yet)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStats(name string, week, all storage.Totals) string {
	return fmt.Sprintf(
		"📊 Stats for %s\n\nThis week: %d ✅  %d ❌  %d 😴\nAll time: %d ✅  %d ❌  %d 😴",
		esc(name), week.Yes, week.No, week.Missed, all.Yes, all.No, all.Missed)
}

func renderMentions(rows []storage.Participant) string {
	parts := make([]string, 0, len(rows))
	for _, p := range rows {
		parts = append(parts, mention(p))
	}
	return strings.Join(parts, " ")
}

const (
	ballotQuestion = "Did you read today? 📖"
	optionYesLabel = "Yes ✅"
	optionNoLabel  = "No ❌"
)

const helpText = `📖 Daily reading challenge

Member commands:
/join — join the challenge
/leave — leave the challenge
/today — your answer for today
/stats — your weekly and all-time stats
/leaderboard — this week's standings
/monthly — this month's standings

Admin commands:
/challenge_start — start the daily cycle
/challenge_stop — stop the daily cycle
/set_time HH:MM — daily poll time
/set_reminder_time HH:MM|off — reminder time
/add — add by reply or @alias
/addall @a @b — add several by alias
/remove — remove by reply or @alias
/participants — list participants
/weekly_summary_now — preview this week
/remind_now — nudge those who have not voted`

const startText = `Hi! I run a daily reading challenge in group chats.

Add me to a group, then an admin sends /challenge_start.
Every day I post a yes/no poll, collect answers, and publish
weekly and monthly standings. Send /help in the group for
the full command list.`

var menuCommands = []struct {
	command, description string
}{
	{"join", "Join the challenge"},
	{"leave", "Leave the challenge"},
	{"today", "Your answer for today"},
	{"stats", "Your weekly and all-time stats"},
	{"leaderboard", "This week's standings"},
	{"monthly", "This month's standings"},
	{"help", "All commands"},
}

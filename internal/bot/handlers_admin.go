package bot

import (
	"context"
	"fmt"
	"strings"

	"readbot/internal/config"
	"readbot/internal/rollup"
	"readbot/internal/storage"
	"readbot/internal/transport"
	logx "readbot/pkg/logx"
)

// settingsOrDefault never returns a zero Settings: the boundary hook
// creates the row on first contact, but a racing read still gets the
// configured defaults.
func (a *App) settingsOrDefault(ctx context.Context, groupID int64) storage.Settings {
	set, err := a.store.GroupSettings(ctx, groupID)
	if err != nil {
		a.log.Warn("load settings", logx.Int64("group", groupID), logx.Err(err))
	}
	if set != nil {
		return *set
	}
	return storage.Settings{
		GroupID:    groupID,
		BallotTime: a.cfg.BallotTimeOrDefault(),
		Timezone:   a.cfg.TimezoneOrDefault(),
	}
}

func (a *App) cmdChallengeStart(ctx context.Context, m transport.Message) {
	if err := a.store.SetChallengeActive(ctx, m.ChatID, true); err != nil {
		a.log.Error("start challenge", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	set := a.settingsOrDefault(ctx, m.ChatID)
	set.ChallengeActive = true
	if err := a.sched.Schedule(m.ChatID, set); err != nil {
		a.log.Error("schedule group", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Challenge saved, but scheduling failed — check the group settings.")
		return
	}
	a.reply(ctx, m.ChatID, fmt.Sprintf(
		"🚀 Challenge started! Daily poll at %s (%s). Join with /join.",
		set.BallotTime, esc(set.Timezone)))
}

func (a *App) cmdChallengeStop(ctx context.Context, m transport.Message) {
	if err := a.store.SetChallengeActive(ctx, m.ChatID, false); err != nil {
		a.log.Error("stop challenge", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	a.sched.Unschedule(m.ChatID)
	a.reply(ctx, m.ChatID, "🛑 Challenge stopped. History is kept; /challenge_start resumes.")
}

// reschedule re-applies the group's triggers after a settings change,
// but only while the challenge is running.
func (a *App) reschedule(ctx context.Context, groupID int64) {
	set := a.settingsOrDefault(ctx, groupID)
	if !set.ChallengeActive {
		return
	}
	if err := a.sched.Schedule(groupID, set); err != nil {
		a.log.Error("reschedule group", logx.Int64("group", groupID), logx.Err(err))
	}
}

func (a *App) cmdSetTime(ctx context.Context, m transport.Message, args string) {
	if !config.ValidHHMM(args) {
		a.reply(ctx, m.ChatID, "Usage: /set_time HH:MM (for example /set_time 20:00)")
		return
	}
	hhmm := strings.TrimSpace(args)
	if err := a.store.SetBallotTime(ctx, m.ChatID, hhmm); err != nil {
		a.log.Error("set ballot time", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	a.reschedule(ctx, m.ChatID)
	a.reply(ctx, m.ChatID, "⏰ Daily poll time set to "+hhmm+".")
}

func (a *App) cmdSetReminderTime(ctx context.Context, m transport.Message, args string) {
	args = strings.TrimSpace(args)
	if strings.EqualFold(args, "off") {
		if err := a.store.SetReminderTime(ctx, m.ChatID, ""); err != nil {
			a.log.Error("clear reminder time", logx.Int64("group", m.ChatID), logx.Err(err))
			a.reply(ctx, m.ChatID, "Something went wrong, try again.")
			return
		}
		a.reschedule(ctx, m.ChatID)
		a.reply(ctx, m.ChatID, "Reminder turned off.")
		return
	}
	if !config.ValidHHMM(args) {
		a.reply(ctx, m.ChatID, "Usage: /set_reminder_time HH:MM, or /set_reminder_time off")
		return
	}
	if err := a.store.SetReminderTime(ctx, m.ChatID, args); err != nil {
		a.log.Error("set reminder time", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	a.reschedule(ctx, m.ChatID)
	a.reply(ctx, m.ChatID, "⏰ Reminder time set to "+args+".")
}

func (a *App) cmdAdd(ctx context.Context, m transport.Message, args string) {
	// Reply-based add carries a full identity; alias-based add may not.
	if m.ReplyTo != nil {
		if m.ReplyTo.IsBot {
			a.reply(ctx, m.ChatID, "Bots do not read books.")
			return
		}
		if _, err := a.roster.EnrollByIdentity(ctx, m.ChatID, m.ReplyTo.ID, m.ReplyTo.Alias, m.ReplyTo.Name); err != nil {
			a.log.Error("enroll by reply", logx.Int64("group", m.ChatID), logx.Err(err))
			a.reply(ctx, m.ChatID, "Something went wrong, try again.")
			return
		}
		a.reply(ctx, m.ChatID, esc(m.ReplyTo.Name)+" is in the challenge ✅")
		return
	}

	alias := strings.TrimPrefix(strings.TrimSpace(args), "@")
	if alias == "" {
		a.reply(ctx, m.ChatID, "Reply to someone's message with /add, or use /add @username.")
		return
	}
	_, identified, err := a.roster.EnrollByAlias(ctx, m.ChatID, alias)
	if err != nil {
		a.log.Error("enroll by alias", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	if identified {
		a.reply(ctx, m.ChatID, "@"+esc(alias)+" is in the challenge ✅")
		return
	}
	a.reply(ctx, m.ChatID, "@"+esc(alias)+" is in ⏳ — counted from their first message or vote here.")
}

func (a *App) cmdAddAll(ctx context.Context, m transport.Message, args string) {
	var added int
	for _, tok := range strings.Fields(args) {
		alias := strings.TrimPrefix(tok, "@")
		if alias == "" {
			continue
		}
		if _, _, err := a.roster.EnrollByAlias(ctx, m.ChatID, alias); err != nil {
			a.log.Warn("bulk enroll",
				logx.Int64("group", m.ChatID), logx.String("alias", alias), logx.Err(err))
			continue
		}
		added++
	}
	if added == 0 {
		a.reply(ctx, m.ChatID, "Usage: /addall @user1 @user2 ...")
		return
	}
	a.reply(ctx, m.ChatID, fmt.Sprintf("Added %d participant(s) ✅", added))
}

func (a *App) cmdRemove(ctx context.Context, m transport.Message, args string) {
	var (
		removed bool
		who     string
		err     error
	)
	switch {
	case m.ReplyTo != nil:
		who = esc(m.ReplyTo.Name)
		removed, err = a.roster.DeactivateByRef(ctx, m.ChatID, m.ReplyTo.ID)
	case strings.TrimSpace(args) != "":
		alias := strings.TrimPrefix(strings.TrimSpace(args), "@")
		who = "@" + esc(alias)
		removed, err = a.roster.DeactivateByAlias(ctx, m.ChatID, alias)
	default:
		a.reply(ctx, m.ChatID, "Reply to someone's message with /remove, or use /remove @username.")
		return
	}
	if err != nil {
		a.log.Error("remove participant", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	if !removed {
		a.reply(ctx, m.ChatID, who+" is not in the challenge.")
		return
	}
	a.reply(ctx, m.ChatID, who+" left the challenge. History is kept.")
}

func (a *App) cmdParticipants(ctx context.Context, m transport.Message) {
	rows, err := a.roster.Enrolled(ctx, m.ChatID)
	if err != nil {
		a.log.Error("list participants", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	a.reply(ctx, m.ChatID, renderParticipants(rows))
}

func (a *App) cmdWeeklySummaryNow(ctx context.Context, m transport.Message) {
	set := a.settingsOrDefault(ctx, m.ChatID)
	_, now := a.dayIn(set)
	p := rollup.CurrentWeek(now).ClampEnd(now)
	rows, err := a.rollups.Leaderboard(ctx, m.ChatID, p)
	if err != nil {
		a.log.Error("weekly preview", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	title := fmt.Sprintf("📊 This week so far (%s — %s)", p.StartKey(), p.EndKey())
	a.reply(ctx, m.ChatID, renderLeaderboard(title, rows))
}

func (a *App) cmdRemindNow(ctx context.Context, m transport.Message) {
	set := a.settingsOrDefault(ctx, m.ChatID)
	day, _ := a.dayIn(set)
	missing, open, err := a.ballots.Unanswered(ctx, m.ChatID, day)
	if err != nil {
		a.log.Error("remind now", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	switch {
	case !open:
		a.reply(ctx, m.ChatID, "No poll is open today yet.")
	case len(missing) == 0:
		a.reply(ctx, m.ChatID, "Everyone has answered today 🎉")
	default:
		a.reply(ctx, m.ChatID, "⏰ Still waiting for your answer: "+renderMentions(missing))
	}
}

package bot

import (
	"context"
	"fmt"

	"readbot/internal/rollup"
	"readbot/internal/storage"
	"readbot/internal/transport"
	logx "readbot/pkg/logx"
)

func (a *App) cmdJoin(ctx context.Context, m transport.Message) {
	if _, err := a.roster.EnrollByIdentity(ctx, m.ChatID, m.From.ID, m.From.Alias, m.From.Name); err != nil {
		a.log.Error("self join", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	a.reply(ctx, m.ChatID, "✅ You're in, "+esc(m.From.Name)+"! The daily poll counts you from now on.")
}

func (a *App) cmdLeave(ctx context.Context, m transport.Message) {
	removed, err := a.roster.DeactivateByRef(ctx, m.ChatID, m.From.ID)
	if err != nil {
		a.log.Error("self leave", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	if !removed {
		a.reply(ctx, m.ChatID, "You are not in the challenge.")
		return
	}
	a.reply(ctx, m.ChatID, "👋 You left the challenge. History is kept; /join brings it back.")
}

func (a *App) cmdToday(ctx context.Context, m transport.Message) {
	set := a.settingsOrDefault(ctx, m.ChatID)
	day, _ := a.dayIn(set)
	b, resp, err := a.ballots.DayState(ctx, m.ChatID, m.From.ID, day)
	if err != nil {
		a.log.Error("today state", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	switch {
	case b == nil || !b.Published():
		a.reply(ctx, m.ChatID, "No poll is open today yet.")
	case resp == nil:
		a.reply(ctx, m.ChatID, "You have not voted yet today.")
	case resp.OptionIdx == nil:
		a.reply(ctx, m.ChatID, "You retracted your vote — it counts as missed unless you vote again.")
	case *resp.OptionIdx == storage.OptionYes:
		a.reply(ctx, m.ChatID, "You said yes today ✅ Nice.")
	default:
		a.reply(ctx, m.ChatID, "You said no today ❌ There is still time.")
	}
}

func (a *App) cmdStats(ctx context.Context, m transport.Message) {
	p, err := a.store.ParticipantByRef(ctx, m.ChatID, m.From.ID)
	if err != nil {
		a.log.Error("load participant", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	if p == nil || !p.Enrolled() {
		a.reply(ctx, m.ChatID, "You are not in the challenge. Send /join first.")
		return
	}

	set := a.settingsOrDefault(ctx, m.ChatID)
	_, now := a.dayIn(set)
	week := rollup.CurrentWeek(now).ClampEnd(now)

	weekTotals, err := a.rollups.ParticipantTotals(ctx, p.ID, week)
	if err != nil {
		a.log.Error("weekly totals", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	allTotals, err := a.rollups.ParticipantTotalsAllTime(ctx, p.ID)
	if err != nil {
		a.log.Error("all-time totals", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	a.reply(ctx, m.ChatID, renderStats(displayOf(*p), weekTotals, allTotals))
}

func (a *App) cmdLeaderboard(ctx context.Context, m transport.Message) {
	set := a.settingsOrDefault(ctx, m.ChatID)
	_, now := a.dayIn(set)
	p := rollup.CurrentWeek(now).ClampEnd(now)
	rows, err := a.rollups.Leaderboard(ctx, m.ChatID, p)
	if err != nil {
		a.log.Error("leaderboard", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	title := fmt.Sprintf("📊 This week (%s — %s)", p.StartKey(), p.EndKey())
	a.reply(ctx, m.ChatID, renderLeaderboard(title, rows))
}

func (a *App) cmdMonthly(ctx context.Context, m transport.Message) {
	set := a.settingsOrDefault(ctx, m.ChatID)
	_, now := a.dayIn(set)
	p := rollup.CurrentMonth(now).ClampEnd(now)
	rows, err := a.rollups.Leaderboard(ctx, m.ChatID, p)
	if err != nil {
		a.log.Error("monthly leaderboard", logx.Int64("group", m.ChatID), logx.Err(err))
		a.reply(ctx, m.ChatID, "Something went wrong, try again.")
		return
	}
	title := fmt.Sprintf("📊 %s so far", p.Start.Format("January 2006"))
	a.reply(ctx, m.ChatID, renderLeaderboard(title, rows))
}

package bot

import (
	"context"
	"fmt"
	"time"

	"readbot/internal/rollup"
	"readbot/internal/storage"
	"readbot/internal/transport"
	logx "readbot/pkg/logx"
)

// jobs adapts the app to the scheduler's callback interface. Every
// method loads the group's settings first and bails out quietly if the
// challenge was stopped between firing and execution.
type jobs struct {
	app *App
}

func (j *jobs) settings(ctx context.Context, groupID int64) (*storage.Settings, error) {
	set, err := j.app.store.GroupSettings(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if set == nil || !set.ChallengeActive {
		return nil, nil
	}
	return set, nil
}

// OpenBallot claims today's slot and, if this firing won the claim,
// publishes the poll. A slot that exists but was never published is
// left alone: re-posting on a later firing would attach a second poll
// to a day that may already have had one partially delivered.
func (j *jobs) OpenBallot(ctx context.Context, groupID int64) error {
	a := j.app
	set, err := j.settings(ctx, groupID)
	if err != nil || set == nil {
		return err
	}
	day, _ := a.dayIn(*set)

	res, err := a.ballots.Reserve(ctx, groupID, day)
	if err != nil {
		return err
	}
	if !res.Created {
		b, err := a.store.BallotByDay(ctx, groupID, day)
		if err != nil {
			return err
		}
		if b != nil && !b.Published() {
			a.log.Warn("ballot slot reserved but unpublished",
				logx.Int64("group", groupID), logx.String("day", day))
		}
		return nil
	}

	participants, err := a.roster.Enrolled(ctx, groupID)
	if err != nil {
		return err
	}

	var lastErr error
	attempts := 1 + a.openRetryMax
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(a.openRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = j.publish(ctx, groupID, day, participants); lastErr == nil {
			return nil
		}
		a.log.Warn("ballot publish failed",
			logx.Int64("group", groupID), logx.String("day", day),
			logx.Int("attempt", i+1), logx.Err(lastErr))
	}
	return fmt.Errorf("publish ballot for group %d day %s: %w", groupID, day, lastErr)
}

func (j *jobs) publish(ctx context.Context, groupID int64, day string, participants []storage.Participant) error {
	a := j.app
	target := transport.ChatTarget{ChatID: groupID}

	if len(participants) > 0 {
		a.reply(ctx, groupID, "📖 Reading check-in! "+renderMentions(participants))
	}

	ref, err := a.adapter.SendPoll(ctx, target, ballotQuestion, []string{optionYesLabel, optionNoLabel})
	if err != nil {
		return err
	}
	if err := a.ballots.AttachHandles(ctx, groupID, day, ref.BallotHandle, ref.Message.MessageID); err != nil {
		return err
	}
	if err := a.adapter.Pin(ctx, ref.Message); err != nil {
		a.log.Debug("pin ballot", logx.Int64("group", groupID), logx.Err(err))
	}
	a.log.Info("ballot opened",
		logx.Int64("group", groupID), logx.String("day", day),
		logx.String("handle", ref.BallotHandle))
	return nil
}

// Remind nudges everyone who has not answered today's ballot yet.
func (j *jobs) Remind(ctx context.Context, groupID int64) error {
	a := j.app
	set, err := j.settings(ctx, groupID)
	if err != nil || set == nil {
		return err
	}
	day, _ := a.dayIn(*set)

	missing, open, err := a.ballots.Unanswered(ctx, groupID, day)
	if err != nil {
		return err
	}
	if !open || len(missing) == 0 {
		return nil
	}
	a.reply(ctx, groupID, "⏰ Still waiting for your answer: "+renderMentions(missing))
	return nil
}

// SnapshotDay seals today's results at the end of the group's day.
func (j *jobs) SnapshotDay(ctx context.Context, groupID int64) error {
	a := j.app
	set, err := j.settings(ctx, groupID)
	if err != nil || set == nil {
		return err
	}
	day, _ := a.dayIn(*set)
	_, err = a.ballots.SnapshotDay(ctx, groupID, day)
	return err
}

// FinalizeWeek seals last week and posts the standings. The summary is
// only posted when this firing actually sealed the period, so restarts
// and duplicate firings can not repost it.
func (j *jobs) FinalizeWeek(ctx context.Context, groupID int64) error {
	a := j.app
	set, err := j.settings(ctx, groupID)
	if err != nil || set == nil {
		return err
	}
	_, now := a.dayIn(*set)

	p := rollup.PreviousWeek(now)
	rows, created, err := a.rollups.FinalizePeriod(ctx, groupID, p, storage.PeriodWeek)
	if err != nil {
		return err
	}
	if !created || len(rows) == 0 {
		return nil
	}
	title := fmt.Sprintf("🏆 Weekly results (%s — %s)", p.StartKey(), p.EndKey())
	a.reply(ctx, groupID, renderPeriodSummary(title, rows))
	return nil
}

// FinalizeMonth seals last month and posts the standings.
func (j *jobs) FinalizeMonth(ctx context.Context, groupID int64) error {
	a := j.app
	set, err := j.settings(ctx, groupID)
	if err != nil || set == nil {
		return err
	}
	_, now := a.dayIn(*set)

	p := rollup.PreviousMonth(now)
	rows, created, err := a.rollups.FinalizePeriod(ctx, groupID, p, storage.PeriodMonth)
	if err != nil {
		return err
	}
	if !created || len(rows) == 0 {
		return nil
	}
	title := fmt.Sprintf("🏆 Monthly results (%s)", p.Start.Format("January 2006"))
	a.reply(ctx, groupID, renderPeriodSummary(title, rows))
	return nil
}

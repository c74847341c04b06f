package rollup

import (
	"context"
	"math"

	"readbot/internal/storage"
	logx "readbot/pkg/logx"
)

// Service aggregates daily results into live leaderboards and sealed
// period rollups. Finalized periods are written once and never
// recomputed; later reads return the stored rows even if daily results
// underneath them change.
type Service struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{store: store, log: log}
}

// Leaderboard computes the live standings over an arbitrary day range.
func (s *Service) Leaderboard(ctx context.Context, groupID int64, p Period) ([]storage.LeaderboardRow, error) {
	return s.store.Leaderboard(ctx, groupID, p.StartKey(), p.EndKey())
}

// FinalizePeriod seals the rollup for one period. The first call
// computes standings, assigns ranks, and stores one row per
// participant; subsequent calls return the stored rows with
// created=false. Participants enrolled after sealing never appear in a
// sealed period.
func (s *Service) FinalizePeriod(ctx context.Context, groupID int64, p Period, kind storage.PeriodKind) (rows []storage.PeriodResult, created bool, err error) {
	done, err := s.store.PeriodFinalized(ctx, groupID, p.StartKey(), kind)
	if err != nil {
		return nil, false, err
	}
	if done {
		rows, err := s.store.PeriodResults(ctx, groupID, p.StartKey(), kind)
		return rows, false, err
	}

	lb, err := s.store.Leaderboard(ctx, groupID, p.StartKey(), p.EndKey())
	if err != nil {
		return nil, false, err
	}

	days := p.Days()
	for i, row := range lb {
		r := storage.PeriodResult{
			GroupID:        groupID,
			ParticipantID:  row.ParticipantID,
			PeriodStart:    p.StartKey(),
			Kind:           kind,
			Yes:            row.Yes,
			No:             row.No,
			Missed:         row.Missed,
			CompletionRate: completionRate(row.Yes, days),
			Rank:           i + 1,
			DisplayName:    row.DisplayName,
			UserRef:        row.UserRef,
			Alias:          row.Alias,
		}
		if err := s.store.InsertPeriodResult(ctx, r); err != nil {
			return nil, false, err
		}
		rows = append(rows, r)
	}

	s.log.Info("period finalized",
		logx.Int64("group", groupID),
		logx.String("kind", string(kind)),
		logx.String("period", p.StartKey()),
		logx.Int("participants", len(rows)))
	return rows, true, nil
}

// ParticipantTotals sums one participant's daily results over a period.
func (s *Service) ParticipantTotals(ctx context.Context, participantID int64, p Period) (storage.Totals, error) {
	return s.store.ParticipantTotals(ctx, participantID, p.StartKey(), p.EndKey())
}

// ParticipantTotalsAllTime sums one participant's daily results since
// enrollment.
func (s *Service) ParticipantTotalsAllTime(ctx context.Context, participantID int64) (storage.Totals, error) {
	return s.store.ParticipantTotalsAllTime(ctx, participantID)
}

// completionRate is the yes share of the full period length, rounded to
// two decimals. Days without a ballot count against the rate.
func completionRate(yes, days int) float64 {
	if days <= 0 {
		return 0
	}
	return math.Round(float64(yes)/float64(days)*100) / 100
}

package rollup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"readbot/internal/storage"
	logx "readbot/pkg/logx"
)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	s, err := storage.Open(storage.Config{
		Path:              filepath.Join(t.TempDir(), "bot.db"),
		DefaultBallotTime: "20:00",
		DefaultTimezone:   "UTC",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.UpsertGroup(context.Background(), 1, "g"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	return New(s, logx.Nop()), s
}

func seedWeek(t *testing.T, s storage.Store, p Period) (alice, bob int64) {
	t.Helper()
	ctx := context.Background()
	mk := func(name string) int64 {
		id, err := s.InsertParticipant(ctx, storage.Participant{GroupID: 1, DisplayName: name, State: storage.StateActive})
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
		return id
	}
	alice, bob = mk("Alice"), mk("Bob")

	for d, st := range map[int]storage.DailyStatus{0: storage.StatusYes, 1: storage.StatusYes, 2: storage.StatusNo} {
		day := DayKey(p.Start.AddDate(0, 0, d))
		if err := s.UpsertDailyResult(ctx, 1, alice, day, st); err != nil {
			t.Fatalf("daily: %v", err)
		}
	}
	if err := s.UpsertDailyResult(ctx, 1, bob, p.StartKey(), storage.StatusYes); err != nil {
		t.Fatalf("daily: %v", err)
	}
	return alice, bob
}

func TestFinalizePeriodSealsOnce(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	p := PreviousWeek(time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC))
	alice, _ := seedWeek(t, store, p)

	rows, created, err := svc.FinalizePeriod(ctx, 1, p, storage.PeriodWeek)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !created || len(rows) != 2 {
		t.Fatalf("first finalize: created=%v rows=%d", created, len(rows))
	}
	if rows[0].DisplayName != "Alice" || rows[0].Rank != 1 || rows[1].Rank != 2 {
		t.Fatalf("ranking wrong: %+v", rows)
	}
	// 2 yes over a 7-day week.
	if rows[0].CompletionRate != 0.29 {
		t.Fatalf("completion rate = %v, want 0.29", rows[0].CompletionRate)
	}

	// Daily results changing afterwards must not leak into the sealed
	// period.
	if err := store.UpsertDailyResult(ctx, 1, alice, p.EndKey(), storage.StatusYes); err != nil {
		t.Fatalf("late daily: %v", err)
	}
	rows2, created, err := svc.FinalizePeriod(ctx, 1, p, storage.PeriodWeek)
	if err != nil {
		t.Fatalf("refinalize: %v", err)
	}
	if created {
		t.Fatal("second finalize must not reseal")
	}
	if len(rows2) != 2 || rows2[0].Yes != 2 {
		t.Fatalf("sealed rows changed: %+v", rows2)
	}
}

func TestFinalizeWeekAndMonthIndependent(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	// A weekly and a monthly rollup may share a start key; kind keeps
	// them apart.
	now := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)
	month := PreviousMonth(now)
	seedWeek(t, store, Period{Start: month.Start, End: month.Start.AddDate(0, 0, 6)})

	if _, created, err := svc.FinalizePeriod(ctx, 1, month, storage.PeriodMonth); err != nil || !created {
		t.Fatalf("month finalize: created=%v err=%v", created, err)
	}
	week := Period{Start: month.Start, End: month.Start.AddDate(0, 0, 6)}
	if _, created, err := svc.FinalizePeriod(ctx, 1, week, storage.PeriodWeek); err != nil || !created {
		t.Fatalf("week finalize after month: created=%v err=%v", created, err)
	}
}

func TestLeaderboardEmptyGroup(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	p := CurrentWeek(time.Now())
	rows, err := svc.Leaderboard(context.Background(), 1, p)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty board, got %+v", rows)
	}
}

func TestCompletionRate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		yes, days int
		want      float64
	}{
		{7, 7, 1},
		{0, 7, 0},
		{2, 7, 0.29},
		{1, 3, 0.33},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := completionRate(tc.yes, tc.days); got != tc.want {
			t.Fatalf("completionRate(%d, %d) = %v, want %v", tc.yes, tc.days, got, tc.want)
		}
	}
}

package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "readbot/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(Config{
		Path:              filepath.Join(t.TempDir(), "bot.db"),
		DefaultBallotTime: "20:00",
		DefaultTimezone:   "UTC",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

func TestGroupSettingsLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGroup(ctx, 100, "Readers"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	set, err := s.GroupSettings(ctx, 100)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if set == nil {
		t.Fatal("expected a settings row after first contact")
	}
	if set.BallotTime != "20:00" || set.Timezone != "UTC" || set.ChallengeActive {
		t.Fatalf("unexpected defaults: %+v", set)
	}

	if err := s.SetBallotTime(ctx, 100, "21:30"); err != nil {
		t.Fatalf("set ballot time: %v", err)
	}
	if err := s.SetReminderTime(ctx, 100, "18:00"); err != nil {
		t.Fatalf("set reminder time: %v", err)
	}
	// A later group upsert (title refresh) must not reset settings.
	if err := s.UpsertGroup(ctx, 100, "Readers v2"); err != nil {
		t.Fatalf("re-upsert group: %v", err)
	}
	set, err = s.GroupSettings(ctx, 100)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if set.BallotTime != "21:30" || set.ReminderTime != "18:00" {
		t.Fatalf("settings were reset: %+v", set)
	}

	if err := s.SetChallengeActive(ctx, 100, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	active, err := s.ActiveChallenges(ctx)
	if err != nil {
		t.Fatalf("active challenges: %v", err)
	}
	if len(active) != 1 || active[0].GroupID != 100 || active[0].BallotTime != "21:30" {
		t.Fatalf("unexpected active set: %+v", active)
	}

	if err := s.SetChallengeActive(ctx, 100, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err = s.ActiveChallenges(ctx)
	if err != nil {
		t.Fatalf("active challenges: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active challenges, got %+v", active)
	}
}

func TestReserveBallotAtMostOnce(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGroup(ctx, 1, "g"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	id1, created, err := s.ReserveBallot(ctx, 1, "2026-08-31")
	if err != nil || !created {
		t.Fatalf("first reserve: id=%d created=%v err=%v", id1, created, err)
	}
	id2, created, err := s.ReserveBallot(ctx, 1, "2026-08-31")
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if created || id2 != id1 {
		t.Fatalf("duplicate claim must return the existing slot: id=%d created=%v", id2, created)
	}

	id3, created, err := s.ReserveBallot(ctx, 1, "2026-09-01")
	if err != nil || !created || id3 == id1 {
		t.Fatalf("next day must get a fresh slot: id=%d created=%v err=%v", id3, created, err)
	}

	if err := s.AttachBallotHandles(ctx, 1, "2026-08-31", "poll-abc", 42); err != nil {
		t.Fatalf("attach handles: %v", err)
	}
	b, err := s.BallotByHandle(ctx, "poll-abc")
	if err != nil {
		t.Fatalf("by handle: %v", err)
	}
	if b == nil || b.ID != id1 || b.MessageID != 42 || !b.Published() {
		t.Fatalf("unexpected ballot: %+v", b)
	}

	day, err := s.BallotByDay(ctx, 1, "2026-09-01")
	if err != nil {
		t.Fatalf("by day: %v", err)
	}
	if day == nil || day.Published() {
		t.Fatalf("unpublished slot must read back with empty handle: %+v", day)
	}
}

func TestUpsertResponseLastWriterWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGroup(ctx, 1, "g"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	id, _, err := s.ReserveBallot(ctx, 1, "2026-08-31")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	steps := []*int{intPtr(OptionYes), intPtr(OptionNo), nil, intPtr(OptionYes)}
	for _, opt := range steps {
		if err := s.UpsertResponse(ctx, id, 777, opt); err != nil {
			t.Fatalf("upsert response: %v", err)
		}
		r, err := s.Response(ctx, id, 777)
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		if r == nil {
			t.Fatal("response row missing")
		}
		switch {
		case opt == nil && r.OptionIdx != nil:
			t.Fatalf("retraction not stored: %+v", r)
		case opt != nil && (r.OptionIdx == nil || *r.OptionIdx != *opt):
			t.Fatalf("expected option %v, got %+v", *opt, r.OptionIdx)
		}
	}

	if r, err := s.Response(ctx, id, 999); err != nil || r != nil {
		t.Fatalf("unknown voter must read as nil: %+v err=%v", r, err)
	}
}

func TestParticipantPendingToActive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGroup(ctx, 1, "g"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	id, err := s.InsertParticipant(ctx, Participant{
		GroupID: 1, Alias: "Bookworm", DisplayName: "Bookworm", State: StatePending,
	})
	if err != nil {
		t.Fatalf("insert pending: %v", err)
	}

	// Alias matching is case-insensitive.
	p, err := s.PendingByAlias(ctx, 1, "bookworm")
	if err != nil {
		t.Fatalf("pending by alias: %v", err)
	}
	if p == nil || p.ID != id || p.UserRef != nil {
		t.Fatalf("unexpected pending row: %+v", p)
	}

	if err := s.BindParticipantIdentity(ctx, id, 555, "Dana"); err != nil {
		t.Fatalf("bind identity: %v", err)
	}
	p, err = s.ParticipantByRef(ctx, 1, 555)
	if err != nil {
		t.Fatalf("by ref: %v", err)
	}
	if p == nil || p.ID != id || p.State != StateActive || p.DisplayName != "Dana" {
		t.Fatalf("bind did not activate: %+v", p)
	}
	if p, _ := s.PendingByAlias(ctx, 1, "bookworm"); p != nil {
		t.Fatalf("resolved row still reads as pending: %+v", p)
	}

	if err := s.SetParticipantState(ctx, id, StateInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	enrolled, err := s.EnrolledParticipants(ctx, 1)
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}
	if len(enrolled) != 0 {
		t.Fatalf("inactive row still enrolled: %+v", enrolled)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGroup(ctx, 1, "g"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	mk := func(name string) int64 {
		id, err := s.InsertParticipant(ctx, Participant{GroupID: 1, DisplayName: name, State: StateActive})
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
		return id
	}
	// Chosen so the tie-break is exercised: bob and Alice tie on yes,
	// Alice wins on case-insensitive name order.
	bob := mk("bob")
	alice := mk("Alice")
	carol := mk("Carol")

	put := func(pid int64, day string, st DailyStatus) {
		if err := s.UpsertDailyResult(ctx, 1, pid, day, st); err != nil {
			t.Fatalf("daily result: %v", err)
		}
	}
	put(alice, "2026-08-24", StatusYes)
	put(alice, "2026-08-25", StatusYes)
	put(bob, "2026-08-24", StatusYes)
	put(bob, "2026-08-25", StatusYes)
	put(carol, "2026-08-24", StatusYes)
	put(carol, "2026-08-25", StatusMissed)
	// Outside the range; must not count.
	put(carol, "2026-08-23", StatusYes)

	rows, err := s.Leaderboard(ctx, 1, "2026-08-24", "2026-08-30")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r.DisplayName
	}
	want := []string{"Alice", "bob", "Carol"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if rows[2].Yes != 1 || rows[2].Missed != 1 {
		t.Fatalf("range filter broken: %+v", rows[2])
	}

	// Snapshot overwrite replaces, never accumulates.
	put(carol, "2026-08-25", StatusYes)
	rows, err = s.Leaderboard(ctx, 1, "2026-08-24", "2026-08-30")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	for _, r := range rows {
		if r.DisplayName == "Carol" && (r.Yes != 2 || r.Missed != 0) {
			t.Fatalf("overwrite failed: %+v", r)
		}
	}
}

func TestPeriodResultsInsertOnce(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertGroup(ctx, 1, "g"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	pid, err := s.InsertParticipant(ctx, Participant{GroupID: 1, DisplayName: "Dana", State: StateActive})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	done, err := s.PeriodFinalized(ctx, 1, "2026-08-24", PeriodWeek)
	if err != nil || done {
		t.Fatalf("fresh period must not be finalized: %v %v", done, err)
	}

	r := PeriodResult{
		GroupID: 1, ParticipantID: pid, PeriodStart: "2026-08-24", Kind: PeriodWeek,
		Yes: 5, No: 1, Missed: 1, CompletionRate: 0.71, Rank: 1,
	}
	if err := s.InsertPeriodResult(ctx, r); err != nil {
		t.Fatalf("insert period result: %v", err)
	}
	// Second insert with different numbers must be ignored.
	r.Yes = 99
	if err := s.InsertPeriodResult(ctx, r); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	rows, err := s.PeriodResults(ctx, 1, "2026-08-24", PeriodWeek)
	if err != nil {
		t.Fatalf("period results: %v", err)
	}
	if len(rows) != 1 || rows[0].Yes != 5 || rows[0].DisplayName != "Dana" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	// Same start, other kind, is a distinct period.
	if done, _ := s.PeriodFinalized(ctx, 1, "2026-08-24", PeriodMonth); done {
		t.Fatal("month must not inherit the week's finalization")
	}
}

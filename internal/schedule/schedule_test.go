package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"readbot/internal/storage"
	logx "readbot/pkg/logx"
)

type fakeJobs struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeJobs) record(name string, groupID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return nil
}

func (f *fakeJobs) OpenBallot(ctx context.Context, g int64) error    { return f.record("open", g) }
func (f *fakeJobs) Remind(ctx context.Context, g int64) error        { return f.record("remind", g) }
func (f *fakeJobs) SnapshotDay(ctx context.Context, g int64) error   { return f.record("snapshot", g) }
func (f *fakeJobs) FinalizeWeek(ctx context.Context, g int64) error  { return f.record("week", g) }
func (f *fakeJobs) FinalizeMonth(ctx context.Context, g int64) error { return f.record("month", g) }

func (f *fakeJobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(t *testing.T) (*Service, *fakeJobs) {
	t.Helper()
	jobs := &fakeJobs{}
	svc := New(Config{
		Workers:      1,
		QueueSize:    8,
		SnapshotTime: "23:59",
		SummaryTime:  "09:00",
	}, jobs, logx.Nop())
	return svc, jobs
}

func settings(tz string) storage.Settings {
	return storage.Settings{
		GroupID:         1,
		BallotTime:      "20:00",
		ReminderTime:    "18:00",
		Timezone:        tz,
		ChallengeActive: true,
	}
}

func TestScheduleBeforeStartIsDeferred(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	if err := svc.Schedule(1, settings("UTC")); err != nil {
		t.Fatalf("schedule before start: %v", err)
	}
	if svc.Scheduled(1) {
		t.Fatal("entries must not exist before Start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if !svc.Scheduled(1) {
		t.Fatal("Start must register deferred schedules")
	}
}

func TestScheduleReplaceIsAtomic(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if err := svc.Schedule(1, settings("UTC")); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	first := len(svc.c.Entries())

	// Same group again: old entries replaced, not stacked.
	set := settings("UTC")
	set.BallotTime = "21:00"
	if err := svc.Schedule(1, set); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got := len(svc.c.Entries()); got != first {
		t.Fatalf("entries stacked: %d -> %d", first, got)
	}

	svc.Unschedule(1)
	if svc.Scheduled(1) || len(svc.c.Entries()) != 0 {
		t.Fatal("unschedule left entries behind")
	}
	// Idempotent.
	svc.Unschedule(1)
}

func TestScheduleWithoutReminderSkipsEntry(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	set := settings("UTC")
	if err := svc.Schedule(1, set); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	withReminder := len(svc.c.Entries())

	set.ReminderTime = ""
	if err := svc.Schedule(1, set); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got := len(svc.c.Entries()); got != withReminder-1 {
		t.Fatalf("expected %d entries without reminder, got %d", withReminder-1, got)
	}
}

func TestScheduleRejectsBadInput(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	set := settings("UTC")
	set.BallotTime = "25:99"
	if err := svc.Schedule(1, set); err == nil {
		t.Fatal("invalid ballot time must be rejected")
	}
	if svc.Scheduled(1) {
		t.Fatal("failed schedule must not leave partial entries")
	}

	set = settings("Not/AZone")
	if err := svc.Schedule(2, set); err == nil {
		t.Fatal("invalid timezone must be rejected")
	}
	if svc.Scheduled(2) {
		t.Fatal("failed schedule must not leave partial entries")
	}
}

func TestGraceWindowDropsStaleTask(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{}
	svc := New(Config{
		Workers:      1,
		QueueSize:    8,
		GraceWindow:  time.Minute,
		SnapshotTime: "23:59",
		SummaryTime:  "09:00",
	}, jobs, logx.Nop())

	run := func(ctx context.Context) error { return jobs.record("open", 1) }

	svc.execOne(context.Background(), task{
		name: "ballot_open", groupID: 1,
		enqueuedAt: time.Now().Add(-2 * time.Minute),
		run:        run,
	})
	if jobs.count() != 0 {
		t.Fatal("stale task must be dropped")
	}
	if _, stale := svc.Dropped(); stale != 1 {
		t.Fatalf("stale counter = %d", stale)
	}

	svc.execOne(context.Background(), task{
		name: "ballot_open", groupID: 1,
		enqueuedAt: time.Now(),
		run:        run,
	})
	if jobs.count() != 1 {
		t.Fatal("fresh task must run")
	}
}

func TestSpecBuilding(t *testing.T) {
	t.Parallel()
	cases := []struct {
		tz, hhmm string
		build    func(tz, hhmm string) (string, error)
		want     string
	}{
		{"Asia/Almaty", "20:00", dailySpec, "CRON_TZ=Asia/Almaty 0 20 * * *"},
		{"", "07:05", dailySpec, "5 7 * * *"},
		{"UTC", "09:00", func(tz, h string) (string, error) { return weeklySpec(tz, h, time.Monday) }, "CRON_TZ=UTC 0 9 * * 1"},
		{"UTC", "09:00", monthlySpec, "CRON_TZ=UTC 0 9 1 * *"},
	}
	for _, tc := range cases {
		got, err := tc.build(tc.tz, tc.hhmm)
		if err != nil {
			t.Fatalf("build(%q, %q): %v", tc.tz, tc.hhmm, err)
		}
		if got != tc.want {
			t.Fatalf("build(%q, %q) = %q, want %q", tc.tz, tc.hhmm, got, tc.want)
		}
	}

	if _, _, err := parseHHMM("24:00"); err == nil {
		t.Fatal("24:00 must be rejected")
	}
	if _, _, err := parseHHMM("noon"); err == nil {
		t.Fatal("non-numeric time must be rejected")
	}
}

package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"readbot/internal/storage"
	logx "readbot/pkg/logx"
)

// Jobs is what the scheduler fires. Implementations must be idempotent
// per (group, day); the scheduler guarantees ordering only per group
// registration, not across restarts or duplicate firings.
type Jobs interface {
	OpenBallot(ctx context.Context, groupID int64) error
	Remind(ctx context.Context, groupID int64) error
	SnapshotDay(ctx context.Context, groupID int64) error
	FinalizeWeek(ctx context.Context, groupID int64) error
	FinalizeMonth(ctx context.Context, groupID int64) error
}

type Config struct {
	Workers   int
	QueueSize int

	// GraceWindow drops fired tasks that waited in the queue longer
	// than this before a worker picked them up. 0 disables dropping.
	GraceWindow time.Duration

	// SnapshotTime and SummaryTime are HH:MM in each group's timezone.
	SnapshotTime string
	SummaryTime  string

	DefaultTimeout time.Duration
}

type task struct {
	name       string
	groupID    int64
	enqueuedAt time.Time
	run        func(ctx context.Context) error
}

// Service drives every group's daily cadence from a single cron
// runner. Per-group timezones are handled with a CRON_TZ prefix on
// each entry, so one runner serves groups in any mix of zones.
//
// Firings are decoupled from execution through a bounded queue and a
// small worker pool; a slow job delays later firings instead of
// blocking cron.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	jobs Jobs

	parser  cron.Parser
	c       *cron.Cron
	defs    map[int64]storage.Settings
	entries map[int64][]cron.EntryID

	queue    chan task
	stopCh   chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup

	droppedFull  uint64
	droppedStale uint64
}

func New(cfg Config, jobs Jobs, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		jobs:    jobs,
		log:     log,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		defs:    map[int64]storage.Settings{},
		entries: map[int64][]cron.EntryID{},
	}
}

// Start brings up the cron runner and workers and registers every
// schedule recorded so far (Schedule may be called before Start).
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	size := s.cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	s.queue = make(chan task, size)
	s.stopCh = make(chan struct{})
	s.runCtx, s.cancel = context.WithCancel(ctx)

	s.c = cron.New(cron.WithParser(s.parser))
	for groupID, set := range s.defs {
		if err := s.registerLocked(groupID, set); err != nil {
			s.log.Error("register schedule", logx.Int64("group", groupID), logx.Err(err))
		}
	}

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.workerWG.Done()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("workers", workers), logx.Int("groups", len(s.defs)))
}

// Stop halts cron triggering and waits for in-flight jobs.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	stopCh := s.stopCh
	cancel := s.cancel
	s.c = nil
	s.stopCh = nil
	s.cancel = nil
	s.entries = map[int64][]cron.EntryID{}
	s.mu.Unlock()

	if c == nil {
		return
	}
	close(stopCh)
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Schedule registers or atomically replaces the group's entries. Safe
// to call on every settings change; the old entries are gone before
// the new ones are live.
func (s *Service) Schedule(groupID int64, set storage.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defs[groupID] = set
	if s.c == nil {
		return nil
	}
	s.removeLocked(groupID)
	if err := s.registerLocked(groupID, set); err != nil {
		s.removeLocked(groupID)
		return err
	}
	return nil
}

// Unschedule removes the group's entries. Idempotent.
func (s *Service) Unschedule(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, groupID)
	if s.c != nil {
		s.removeLocked(groupID)
	}
}

// Restore registers schedules for every group with a running
// challenge, typically straight from the store on boot.
func (s *Service) Restore(settings []storage.Settings) {
	for _, set := range settings {
		if err := s.Schedule(set.GroupID, set); err != nil {
			s.log.Error("restore schedule",
				logx.Int64("group", set.GroupID), logx.Err(err))
		}
	}
}

// Scheduled reports whether the group currently has live entries.
func (s *Service) Scheduled(groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[groupID]) > 0
}

func (s *Service) registerLocked(groupID int64, set storage.Settings) error {
	type entry struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}

	tz := strings.TrimSpace(set.Timezone)
	var specs []entry

	ballot, err := dailySpec(tz, set.BallotTime)
	if err != nil {
		return fmt.Errorf("ballot time: %w", err)
	}
	specs = append(specs, entry{"ballot_open", ballot, func(ctx context.Context) error {
		return s.jobs.OpenBallot(ctx, groupID)
	}})

	if strings.TrimSpace(set.ReminderTime) != "" {
		remind, err := dailySpec(tz, set.ReminderTime)
		if err != nil {
			return fmt.Errorf("reminder time: %w", err)
		}
		specs = append(specs, entry{"reminder", remind, func(ctx context.Context) error {
			return s.jobs.Remind(ctx, groupID)
		}})
	}

	snapshot, err := dailySpec(tz, s.cfg.SnapshotTime)
	if err != nil {
		return fmt.Errorf("snapshot time: %w", err)
	}
	specs = append(specs, entry{"snapshot", snapshot, func(ctx context.Context) error {
		return s.jobs.SnapshotDay(ctx, groupID)
	}})

	weekly, err := weeklySpec(tz, s.cfg.SummaryTime, time.Monday)
	if err != nil {
		return fmt.Errorf("summary time: %w", err)
	}
	specs = append(specs, entry{"weekly_rollup", weekly, func(ctx context.Context) error {
		return s.jobs.FinalizeWeek(ctx, groupID)
	}})

	monthly, err := monthlySpec(tz, s.cfg.SummaryTime)
	if err != nil {
		return fmt.Errorf("summary time: %w", err)
	}
	specs = append(specs, entry{"monthly_rollup", monthly, func(ctx context.Context) error {
		return s.jobs.FinalizeMonth(ctx, groupID)
	}})

	ids := make([]cron.EntryID, 0, len(specs))
	for _, e := range specs {
		e := e
		id, err := s.c.AddFunc(e.spec, func() {
			s.enqueue(task{name: e.name, groupID: groupID, enqueuedAt: time.Now(), run: e.run})
		})
		if err != nil {
			for _, old := range ids {
				s.c.Remove(old)
			}
			return fmt.Errorf("add %s entry: %w", e.name, err)
		}
		ids = append(ids, id)
	}
	s.entries[groupID] = ids
	s.log.Info("group scheduled",
		logx.Int64("group", groupID), logx.String("tz", tz),
		logx.String("ballot_at", set.BallotTime), logx.Int("entries", len(ids)))
	return nil
}

func (s *Service) removeLocked(groupID int64) {
	for _, id := range s.entries[groupID] {
		s.c.Remove(id)
	}
	delete(s.entries, groupID)
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return
	}
	select {
	case queue <- t:
	default:
		atomic.AddUint64(&s.droppedFull, 1)
		s.log.Warn("queue full, dropping task",
			logx.String("task", t.name), logx.Int64("group", t.groupID))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	start := time.Now()

	// A task that sat in the queue past the grace window refers to a
	// moment that has passed (an outage, a long pause); firing it late
	// would open yesterday's ballot today.
	if delay := start.Sub(t.enqueuedAt); s.cfg.GraceWindow > 0 && delay > s.cfg.GraceWindow {
		atomic.AddUint64(&s.droppedStale, 1)
		s.log.Warn("dropping stale task",
			logx.String("task", t.name), logx.Int64("group", t.groupID),
			logx.Duration("delay", delay))
		return
	}

	runCtx := ctx
	if s.cfg.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.DefaultTimeout)
		defer cancel()
	}

	err := t.run(runCtx)
	if err != nil {
		s.log.Error("task failed",
			logx.String("task", t.name), logx.Int64("group", t.groupID),
			logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("task ok",
		logx.String("task", t.name), logx.Int64("group", t.groupID),
		logx.Duration("took", time.Since(start)))
}

// Dropped reports queue-full and stale drop counters.
func (s *Service) Dropped() (full, stale uint64) {
	return atomic.LoadUint64(&s.droppedFull), atomic.LoadUint64(&s.droppedStale)
}

func dailySpec(tz, hhmm string) (string, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return "", err
	}
	return withTZ(tz, fmt.Sprintf("%d %d * * *", m, h)), nil
}

func weeklySpec(tz, hhmm string, dow time.Weekday) (string, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return "", err
	}
	return withTZ(tz, fmt.Sprintf("%d %d * * %d", m, h, int(dow))), nil
}

func monthlySpec(tz, hhmm string) (string, error) {
	h, m, err := parseHHMM(hhmm)
	if err != nil {
		return "", err
	}
	return withTZ(tz, fmt.Sprintf("%d %d 1 * *", m, h)), nil
}

// withTZ pins one entry to a group's zone without giving every group
// its own cron runner.
func withTZ(tz, spec string) string {
	if tz == "" {
		return spec
	}
	return "CRON_TZ=" + tz + " " + spec
}

func parseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"readbot/internal/ballot"
	"readbot/internal/config"
	"readbot/internal/roster"
	"readbot/internal/rollup"
	"readbot/internal/schedule"
	"readbot/internal/storage"
	"readbot/internal/transport"
	logx "readbot/pkg/logx"
)

// App wires the store, transport adapter, domain services, and
// scheduler together and runs the inbound update loop.
type App struct {
	cfg     config.ChallengeConfig
	log     logx.Logger
	store   storage.Store
	adapter transport.Adapter

	roster  *roster.Service
	ballots *ballot.Service
	rollups *rollup.Service
	sched   *schedule.Service

	openRetryMax   int
	openRetryDelay time.Duration

	updates chan transport.Update
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
}

func New(cfg config.Config, store storage.Store, adapter transport.Adapter, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	grace, err := config.ParseDuration("challenge.grace_window", cfg.Challenge.GraceWindow, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	retryDelay, err := config.ParseDuration("challenge.open_retry_delay", cfg.Challenge.OpenRetryDelay, 10*time.Second)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:            cfg.Challenge,
		log:            log,
		store:          store,
		adapter:        adapter,
		roster:         roster.New(store, log.With(logx.String("comp", "roster"))),
		ballots:        ballot.New(store, log.With(logx.String("comp", "ballot"))),
		rollups:        rollup.New(store, log.With(logx.String("comp", "rollup"))),
		openRetryMax:   cfg.Challenge.OpenRetryMax,
		openRetryDelay: retryDelay,
		updates:        make(chan transport.Update, 128),
	}
	a.sched = schedule.New(schedule.Config{
		Workers:        cfg.Challenge.Workers,
		QueueSize:      cfg.Challenge.QueueSize,
		GraceWindow:    grace,
		SnapshotTime:   cfg.Challenge.SnapshotTimeOrDefault(),
		SummaryTime:    cfg.Challenge.SummaryTimeOrDefault(),
		DefaultTimeout: time.Minute,
	}, &jobs{app: a}, log.With(logx.String("comp", "schedule")))
	return a, nil
}

// Start restores schedules for every running challenge, starts the
// scheduler and the transport, and begins consuming updates.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	settings, err := a.store.ActiveChallenges(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("restore schedules: %w", err)
	}
	a.sched.Restore(settings)
	a.sched.Start(runCtx)

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		a.sched.Stop(context.Background())
		cancel()
		return fmt.Errorf("start transport: %w", err)
	}

	if mu, ok := a.adapter.(transport.CommandMenuUpdater); ok {
		cmds := make([]transport.BotCommand, 0, len(menuCommands))
		for _, c := range menuCommands {
			cmds = append(cmds, transport.BotCommand{Command: c.command, Description: c.description})
		}
		if err := mu.UpdateMenuCommands(runCtx, cmds); err != nil {
			a.log.Warn("update command menu", logx.Err(err))
		}
	}

	a.loopWG.Add(1)
	go func() {
		defer a.loopWG.Done()
		a.loop(runCtx)
	}()

	a.log.Info("bot started", logx.Int("restored_groups", len(settings)))
	return nil
}

// Stop shuts the transport, scheduler, and update loop down.
func (a *App) Stop(ctx context.Context) {
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("stop transport", logx.Err(err))
	}
	a.sched.Stop(ctx)
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.loopWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	a.log.Info("bot stopped")
}

func (a *App) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-a.updates:
			a.handleUpdate(ctx, u)
		}
	}
}

func (a *App) handleUpdate(ctx context.Context, u transport.Update) {
	switch u.Kind {
	case transport.UpdateMessage:
		if u.Message != nil {
			a.handleMessage(ctx, *u.Message)
		}
	case transport.UpdatePollAnswer:
		if u.PollAnswer != nil {
			a.handlePollAnswer(ctx, *u.PollAnswer)
		}
	case transport.UpdateMembership:
		if u.Membership != nil {
			a.handleMembership(ctx, *u.Membership)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, m transport.Message) {
	if m.From.IsBot {
		return
	}
	if !m.IsGroup {
		a.handlePrivate(ctx, m)
		return
	}

	// Boundary hook: every group event keeps the group row fresh and
	// gives pending alias enrollments a chance to resolve against the
	// identity we just observed.
	if err := a.store.UpsertGroup(ctx, m.ChatID, m.ChatTitle); err != nil {
		a.log.Warn("upsert group", logx.Int64("group", m.ChatID), logx.Err(err))
	}
	if m.From.Alias != "" {
		if _, err := a.roster.ResolvePendingByAlias(ctx, m.ChatID, m.From.Alias, m.From.ID, m.From.Name); err != nil {
			a.log.Warn("resolve pending", logx.Int64("group", m.ChatID), logx.Err(err))
		}
	}

	a.route(ctx, m)
}

func (a *App) handlePollAnswer(ctx context.Context, pa transport.PollAnswer) {
	if pa.From.IsBot {
		return
	}
	matched, err := a.ballots.RecordResponse(ctx, pa.BallotHandle, pa.From.ID, pa.Options)
	if err != nil {
		a.log.Error("record response", logx.String("handle", pa.BallotHandle), logx.Err(err))
		return
	}
	if !matched {
		return
	}
	// The voter may have been enrolled by alias; a vote proves the
	// identity just as well as a message does.
	if pa.From.Alias != "" {
		if b, err := a.store.BallotByHandle(ctx, pa.BallotHandle); err == nil && b != nil {
			if _, err := a.roster.ResolvePendingByAlias(ctx, b.GroupID, pa.From.Alias, pa.From.ID, pa.From.Name); err != nil {
				a.log.Warn("resolve pending", logx.Int64("group", b.GroupID), logx.Err(err))
			}
		}
	}
}

func (a *App) handleMembership(ctx context.Context, m transport.Membership) {
	if !m.IsGroup {
		return
	}
	if m.Joined {
		if err := a.store.UpsertGroup(ctx, m.ChatID, m.ChatTitle); err != nil {
			a.log.Error("register group", logx.Int64("group", m.ChatID), logx.Err(err))
			return
		}
		a.log.Info("added to group", logx.Int64("group", m.ChatID), logx.String("title", m.ChatTitle))
		return
	}

	// Kicked: the challenge stops and the triggers go away, but the
	// rows stay so a re-add picks the history back up.
	a.sched.Unschedule(m.ChatID)
	if err := a.store.SetChallengeActive(ctx, m.ChatID, false); err != nil {
		a.log.Warn("deactivate challenge", logx.Int64("group", m.ChatID), logx.Err(err))
	}
	if err := a.store.DeactivateGroup(ctx, m.ChatID); err != nil {
		a.log.Warn("deactivate group", logx.Int64("group", m.ChatID), logx.Err(err))
	}
	a.log.Info("removed from group", logx.Int64("group", m.ChatID))
}

func (a *App) handlePrivate(ctx context.Context, m transport.Message) {
	cmd, _ := splitCommand(m.Text)
	switch cmd {
	case "start", "help":
		a.reply(ctx, m.ChatID, startText)
	}
}

// reply sends HTML-formatted text, logging instead of failing the
// caller; a lost reply must never break state that already changed.
func (a *App) reply(ctx context.Context, chatID int64, text string) {
	_, err := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text,
		&transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		a.log.Warn("send reply", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (a *App) location(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		a.log.Warn("invalid group timezone, using UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

// dayIn is today's day key in the group's timezone.
func (a *App) dayIn(set storage.Settings) (string, time.Time) {
	now := time.Now().In(a.location(set.Timezone))
	return rollup.DayKey(now), now
}

package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "readbot/internal/transport"
	logx "readbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration

	// SendRatePerSec caps outbound API calls; Telegram throttles bots
	// around 20 messages/s overall. 0 means 20.
	SendRatePerSec int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	out       chan<- kit.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.SendRatePerSec
	if rps <= 0 {
		rps = 20
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped updates (avoid noisy per-update logs).
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		msg := &kit.Message{
			ID:        m.ID,
			ChatID:    m.Chat.ID,
			ChatTitle: m.Chat.Title,
			IsGroup:   isGroup(m.Chat),
			From:      senderOf(m.Sender),
			Text:      m.Text,
		}
		if m.ReplyTo != nil && m.ReplyTo.Sender != nil {
			s := senderOf(m.ReplyTo.Sender)
			msg.ReplyTo = &s
		}
		a.emit(kit.Update{Kind: kit.UpdateMessage, Message: msg})
		return nil
	})

	a.bot.Handle(tele.OnPollAnswer, func(c tele.Context) error {
		pa := c.PollAnswer()
		if pa == nil || pa.Sender == nil {
			return nil
		}
		a.emit(kit.Update{Kind: kit.UpdatePollAnswer, PollAnswer: &kit.PollAnswer{
			BallotHandle: pa.PollID,
			From:         senderOf(pa.Sender),
			Options:      append([]int(nil), pa.Options...),
		}})
		return nil
	})

	a.bot.Handle(tele.OnMyChatMember, func(c tele.Context) error {
		cm := c.ChatMember()
		if cm == nil || cm.Chat == nil || cm.NewChatMember == nil {
			return nil
		}
		joined := false
		switch cm.NewChatMember.Role {
		case tele.Member, tele.Administrator:
			joined = true
		case tele.Left, tele.Kicked:
			joined = false
		default:
			return nil
		}
		a.emit(kit.Update{Kind: kit.UpdateMembership, Membership: &kit.Membership{
			ChatID:    cm.Chat.ID,
			ChatTitle: cm.Chat.Title,
			IsGroup:   isGroup(cm.Chat),
			Joined:    joined,
		}})
		return nil
	})

	go func() {
		defer a.runWG.Done()
		// Ensure we stop telebot when context is cancelled.
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop. Never block shutdown for too long on the long-poll.
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window: keep shutdown snappy even if getUpdates is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	chat := &tele.Chat{ID: to.ChatID}
	msg, err := a.bot.Send(chat, text, &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendPoll(ctx context.Context, to kit.ChatTarget, question string, options []string) (kit.BallotRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return kit.BallotRef{}, err
	}
	p := &tele.Poll{
		Type:     tele.PollRegular,
		Question: question,
		// Anonymous polls never deliver poll_answer updates; per-voter
		// tracking depends on this staying false.
		Anonymous:       false,
		MultipleAnswers: false,
	}
	p.AddOptions(options...)

	chat := &tele.Chat{ID: to.ChatID}
	msg, err := a.bot.Send(chat, p)
	if err != nil {
		return kit.BallotRef{}, err
	}
	ref := kit.BallotRef{Message: kit.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}}
	if msg.Poll != nil {
		ref.BallotHandle = msg.Poll.ID
	}
	return ref, nil
}

func (a *Adapter) Pin(ctx context.Context, ref kit.MessageRef) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	stored := tele.StoredMessage{
		ChatID:    ref.ChatID,
		MessageID: strconv.Itoa(ref.MessageID),
	}
	return a.bot.Pin(stored, tele.Silent)
}

func (a *Adapter) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, err
	}
	return member.Role == tele.Administrator || member.Role == tele.Creator, nil
}

// UpdateMenuCommands publishes the bot command menu (best-effort).
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		list = append(list, tele.Command{Text: c.Command, Description: d})
	}
	return a.bot.SetCommands(list)
}

func (a *Adapter) emit(up kit.Update) {
	select {
	case a.out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func isGroup(c *tele.Chat) bool {
	return c != nil && (c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup)
}

func senderOf(u *tele.User) kit.Sender {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return kit.Sender{ID: u.ID, Alias: u.Username, Name: name, IsBot: u.IsBot}
}

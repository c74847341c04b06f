package transport

import "context"

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdatePollAnswer UpdateKind = "poll_answer"
	UpdateMembership UpdateKind = "membership"
)

type Update struct {
	Kind       UpdateKind
	Message    *Message
	PollAnswer *PollAnswer
	Membership *Membership
}

// Sender identifies the author of an inbound event.
// Alias is the platform handle without the "@" (may be empty).
type Sender struct {
	ID    int64
	Alias string
	Name  string
	IsBot bool
}

type Message struct {
	ID        int
	ChatID    int64
	ChatTitle string
	IsGroup   bool
	From      Sender
	Text      string
	ReplyTo   *Sender // author of the replied-to message, if any
}

// PollAnswer is a vote event for a non-anonymous poll the bot posted.
// Empty Options means the voter retracted their vote.
type PollAnswer struct {
	BallotHandle string
	From         Sender
	Options      []int
}

// Membership reports the bot being added to or removed from a chat.
type Membership struct {
	ChatID    int64
	ChatTitle string
	IsGroup   bool
	Joined    bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// BallotRef are the external handles of a published ballot.
type BallotRef struct {
	BallotHandle string
	Message      MessageRef
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// SendPoll publishes a non-anonymous single-choice poll and returns
	// the handles needed to correlate later PollAnswer updates.
	SendPoll(ctx context.Context, to ChatTarget, question string, options []string) (BallotRef, error)

	// Pin is best-effort; callers are expected to ignore its error.
	Pin(ctx context.Context, ref MessageRef) error

	// IsAdmin reports whether the user administers the chat.
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface adapters can implement
// to publish a platform-specific command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

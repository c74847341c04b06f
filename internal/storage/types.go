package storage

import (
	"time"
)

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default

	// Defaults applied to the Settings row created on first contact
	// with a group.
	DefaultBallotTime string // HH:MM
	DefaultTimezone   string // IANA TZ
}

type Group struct {
	ID      int64
	Title   string
	Active  bool
	AddedAt time.Time
}

// Settings is the per-group schedule configuration (1:1 with Group).
type Settings struct {
	GroupID         int64
	BallotTime      string // HH:MM, group-local
	ReminderTime    string // HH:MM, "" = no reminder
	Timezone        string // IANA TZ
	ChallengeActive bool
}

// ParticipantState is the participant lifecycle.
//
// A pending participant was enrolled by alias only and has no UserRef
// yet; once the identity is observed the row becomes active. Inactive
// rows are kept forever so history survives re-enrollment.
type ParticipantState string

const (
	StatePending  ParticipantState = "pending"
	StateActive   ParticipantState = "active"
	StateInactive ParticipantState = "inactive"
)

type Participant struct {
	ID          int64
	GroupID     int64
	UserRef     *int64 // nil while pending
	Alias       string // platform handle without "@"; may be empty
	DisplayName string
	State       ParticipantState
	JoinedAt    time.Time
}

// Enrolled reports whether the participant counts toward the roster
// (pending rows do; they just snapshot as missed until resolved).
func (p Participant) Enrolled() bool { return p.State != StateInactive }

// Ballot is one day's poll slot. A row with an empty Handle is
// reserved-but-unpublished: the day is claimed but the poll was never
// (or not yet) successfully posted.
type Ballot struct {
	ID        int64
	GroupID   int64
	Day       string // ISO date in the group's timezone
	Handle    string // external poll id, "" until published
	MessageID int    // external message id, 0 until published
	OpenedAt  time.Time
}

func (b Ballot) Published() bool { return b.Handle != "" }

// Option indexes on the daily ballot.
const (
	OptionYes = 0
	OptionNo  = 1
)

// Response is a voter's current answer for one ballot.
// OptionIdx nil means the vote was retracted.
type Response struct {
	BallotID  int64
	UserRef   int64
	OptionIdx *int
	VotedAt   time.Time
	UpdatedAt time.Time
}

type DailyStatus string

const (
	StatusYes    DailyStatus = "yes"
	StatusNo     DailyStatus = "no"
	StatusMissed DailyStatus = "missed"
)

// Totals is an aggregate of daily results over some range.
type Totals struct {
	Yes    int
	No     int
	Missed int
}

// LeaderboardRow is one enrolled participant's aggregate over a range,
// ordered by yes descending then display name ascending (case-insensitive).
type LeaderboardRow struct {
	ParticipantID int64
	UserRef       *int64
	Alias         string
	DisplayName   string
	Totals
}

type PeriodKind string

const (
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
)

// PeriodResult is one finalized standings row. Insert-once: finalizing
// the same (group, period, kind) again is a no-op.
type PeriodResult struct {
	GroupID        int64
	ParticipantID  int64
	PeriodStart    string // Monday or first-of-month ISO date
	Kind           PeriodKind
	Yes            int
	No             int
	Missed         int
	CompletionRate float64
	Rank           int
	DisplayName    string
	UserRef        *int64
	Alias          string
}

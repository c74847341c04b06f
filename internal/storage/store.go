package storage

import (
	"context"
)

// Store is the persistence API used by the resolver, ballot manager,
// rollup engine, and scheduler restore.
type Store interface {
	// Groups & settings.
	UpsertGroup(ctx context.Context, groupID int64, title string) error
	DeactivateGroup(ctx context.Context, groupID int64) error
	GroupSettings(ctx context.Context, groupID int64) (*Settings, error)
	SetChallengeActive(ctx context.Context, groupID int64, active bool) error
	SetBallotTime(ctx context.Context, groupID int64, hhmm string) error
	SetReminderTime(ctx context.Context, groupID int64, hhmm string) error
	ActiveChallenges(ctx context.Context) ([]Settings, error)

	// Participants.
	ParticipantByRef(ctx context.Context, groupID, userRef int64) (*Participant, error)
	ParticipantByAlias(ctx context.Context, groupID int64, alias string) (*Participant, error)
	PendingByAlias(ctx context.Context, groupID int64, alias string) (*Participant, error)
	InsertParticipant(ctx context.Context, p Participant) (int64, error)
	BindParticipantIdentity(ctx context.Context, id, userRef int64, displayName string) error
	RefreshParticipant(ctx context.Context, id int64, alias, displayName string) error
	SetParticipantState(ctx context.Context, id int64, state ParticipantState) error
	EnrolledParticipants(ctx context.Context, groupID int64) ([]Participant, error)

	// Ballots.
	ReserveBallot(ctx context.Context, groupID int64, day string) (id int64, created bool, err error)
	AttachBallotHandles(ctx context.Context, groupID int64, day, handle string, messageID int) error
	BallotByDay(ctx context.Context, groupID int64, day string) (*Ballot, error)
	BallotByHandle(ctx context.Context, handle string) (*Ballot, error)

	// Responses.
	UpsertResponse(ctx context.Context, ballotID, userRef int64, optionIdx *int) error
	Response(ctx context.Context, ballotID, userRef int64) (*Response, error)

	// Daily results.
	UpsertDailyResult(ctx context.Context, groupID, participantID int64, day string, status DailyStatus) error
	Leaderboard(ctx context.Context, groupID int64, start, end string) ([]LeaderboardRow, error)
	ParticipantTotals(ctx context.Context, participantID int64, start, end string) (Totals, error)
	ParticipantTotalsAllTime(ctx context.Context, participantID int64) (Totals, error)

	// Period results.
	PeriodFinalized(ctx context.Context, groupID int64, periodStart string, kind PeriodKind) (bool, error)
	InsertPeriodResult(ctx context.Context, r PeriodResult) error
	PeriodResults(ctx context.Context, groupID int64, periodStart string, kind PeriodKind) ([]PeriodResult, error)

	Close() error
}

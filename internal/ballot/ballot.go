package ballot

import (
	"context"
	"fmt"

	"readbot/internal/storage"
	logx "readbot/pkg/logx"
)

// Service owns the per-day ballot lifecycle:
//
//	unopened -> reserved -> published -> closed (by the end-of-day snapshot)
//
// Reservation and publication are deliberately separate steps: the
// (group, day) slot is claimed in the store before anything is posted,
// so a duplicate firing or a post-restart redelivery can never produce
// a second ballot. If publishing fails after the claim, the slot stays
// reserved-but-unpublished for that day.
type Service struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{store: store, log: log}
}

// Reservation is the outcome of a slot claim. Created=false means the
// day was already claimed; callers treat that as "already done".
type Reservation struct {
	BallotID int64
	Created  bool
}

// Reserve atomically claims the (group, day) ballot slot. The store's
// uniqueness constraint is the arbiter; concurrent claims for the same
// day succeed at most once.
func (s *Service) Reserve(ctx context.Context, groupID int64, day string) (Reservation, error) {
	id, created, err := s.store.ReserveBallot(ctx, groupID, day)
	if err != nil {
		return Reservation{}, err
	}
	if !created {
		s.log.Debug("ballot slot already claimed",
			logx.Int64("group", groupID), logx.String("day", day))
	}
	return Reservation{BallotID: id, Created: created}, nil
}

// AttachHandles completes the reserved -> published transition once the
// transport has accepted the ballot.
func (s *Service) AttachHandles(ctx context.Context, groupID int64, day, handle string, messageID int) error {
	if handle == "" {
		return fmt.Errorf("empty ballot handle for group %d day %s", groupID, day)
	}
	return s.store.AttachBallotHandles(ctx, groupID, day, handle, messageID)
}

// RecordResponse upserts the voter's answer for the ballot identified
// by its external handle. An empty options list is a retraction — a
// valid state, not an error. Votes for handles we did not publish are
// ignored silently (some other poll in the chat).
func (s *Service) RecordResponse(ctx context.Context, handle string, userRef int64, options []int) (bool, error) {
	b, err := s.store.BallotByHandle(ctx, handle)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}

	var optionIdx *int
	if len(options) > 0 {
		v := options[0]
		optionIdx = &v
	}
	if err := s.store.UpsertResponse(ctx, b.ID, userRef, optionIdx); err != nil {
		return false, err
	}

	label := "retracted"
	switch {
	case optionIdx != nil && *optionIdx == storage.OptionYes:
		label = "yes"
	case optionIdx != nil:
		label = "no"
	}
	s.log.Info("response recorded",
		logx.Int64("group", b.GroupID), logx.String("day", b.Day),
		logx.Int64("user", userRef), logx.String("option", label))
	return true, nil
}

// SnapshotDay finalizes one daily-result row per enrolled participant.
// A participant is missed when their identity is still pending, no
// ballot was published that day, they never answered, or they
// retracted. The snapshot recomputes from current responses and
// overwrites, so re-running it for the same day is safe.
func (s *Service) SnapshotDay(ctx context.Context, groupID int64, day string) (int, error) {
	b, err := s.store.BallotByDay(ctx, groupID, day)
	if err != nil {
		return 0, err
	}
	participants, err := s.store.EnrolledParticipants(ctx, groupID)
	if err != nil {
		return 0, err
	}

	for _, p := range participants {
		status := storage.StatusMissed
		if p.UserRef != nil && b != nil && b.Published() {
			resp, err := s.store.Response(ctx, b.ID, *p.UserRef)
			if err != nil {
				return 0, err
			}
			switch {
			case resp == nil || resp.OptionIdx == nil:
				// never answered, or retracted
			case *resp.OptionIdx == storage.OptionYes:
				status = storage.StatusYes
			default:
				status = storage.StatusNo
			}
		}
		if err := s.store.UpsertDailyResult(ctx, groupID, p.ID, day, status); err != nil {
			return 0, err
		}
	}

	s.log.Info("daily results snapshotted",
		logx.Int64("group", groupID), logx.String("day", day),
		logx.Int("participants", len(participants)))
	return len(participants), nil
}

// Unanswered lists enrolled participants with no live yes/no answer on
// the day's ballot. open=false means no ballot was published that day,
// so there is nothing to remind anyone about.
func (s *Service) Unanswered(ctx context.Context, groupID int64, day string) (missing []storage.Participant, open bool, err error) {
	b, err := s.store.BallotByDay(ctx, groupID, day)
	if err != nil {
		return nil, false, err
	}
	if b == nil || !b.Published() {
		return nil, false, nil
	}
	participants, err := s.store.EnrolledParticipants(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	for _, p := range participants {
		if p.UserRef == nil {
			missing = append(missing, p)
			continue
		}
		resp, err := s.store.Response(ctx, b.ID, *p.UserRef)
		if err != nil {
			return nil, false, err
		}
		if resp == nil || resp.OptionIdx == nil {
			missing = append(missing, p)
		}
	}
	return missing, true, nil
}

// DayState reports the ballot and the voter's current response for one
// day; either may be nil.
func (s *Service) DayState(ctx context.Context, groupID, userRef int64, day string) (*storage.Ballot, *storage.Response, error) {
	b, err := s.store.BallotByDay(ctx, groupID, day)
	if err != nil {
		return nil, nil, err
	}
	if b == nil || !b.Published() {
		return b, nil, nil
	}
	resp, err := s.store.Response(ctx, b.ID, userRef)
	if err != nil {
		return nil, nil, err
	}
	return b, resp, nil
}

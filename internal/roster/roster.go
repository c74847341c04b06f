package roster

import (
	"context"
	"fmt"
	"strings"

	"readbot/internal/storage"
	logx "readbot/pkg/logx"
)

// Service owns the participant lifecycle: pending (alias-only) rows,
// active identified rows, and soft-removed inactive rows.
//
// Identities are learned asynchronously — a person may be enrolled by
// alias long before they ever send a message — so every operation here
// is idempotent and safe to attempt on any inbound event.
type Service struct {
	store storage.Store
	log   logx.Logger
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{store: store, log: log}
}

// EnrollByIdentity adds or reactivates a fully identified participant.
// Repeated calls with the same identity converge to one active row.
func (s *Service) EnrollByIdentity(ctx context.Context, groupID, userRef int64, alias, displayName string) (int64, error) {
	existing, err := s.store.ParticipantByRef(ctx, groupID, userRef)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if err := s.store.RefreshParticipant(ctx, existing.ID, alias, displayName); err != nil {
			return 0, err
		}
		return existing.ID, nil
	}

	// A pending row enrolled by this alias gets the identity bound to it
	// instead of a second row being created.
	if alias != "" {
		pending, err := s.store.PendingByAlias(ctx, groupID, alias)
		if err != nil {
			return 0, err
		}
		if pending != nil {
			if err := s.store.BindParticipantIdentity(ctx, pending.ID, userRef, displayName); err != nil {
				return 0, err
			}
			return pending.ID, nil
		}
	}

	id, err := s.store.InsertParticipant(ctx, storage.Participant{
		GroupID:     groupID,
		UserRef:     &userRef,
		Alias:       alias,
		DisplayName: displayName,
		State:       storage.StateActive,
	})
	if err != nil {
		return 0, fmt.Errorf("enroll participant: %w", err)
	}
	return id, nil
}

// EnrollByAlias enrolls a participant whose identity is not yet known.
// identified reports whether the resulting row already carries an
// identity (i.e. the alias matched a previously resolved participant).
func (s *Service) EnrollByAlias(ctx context.Context, groupID int64, alias string) (id int64, identified bool, err error) {
	alias = strings.TrimPrefix(strings.TrimSpace(alias), "@")
	if alias == "" {
		return 0, false, fmt.Errorf("empty alias")
	}

	existing, err := s.store.ParticipantByAlias(ctx, groupID, alias)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		state := storage.StateActive
		if existing.UserRef == nil {
			state = storage.StatePending
		}
		if err := s.store.SetParticipantState(ctx, existing.ID, state); err != nil {
			return 0, false, err
		}
		return existing.ID, existing.UserRef != nil, nil
	}

	id, err = s.store.InsertParticipant(ctx, storage.Participant{
		GroupID:     groupID,
		Alias:       alias,
		DisplayName: alias,
		State:       storage.StatePending,
	})
	if err != nil {
		return 0, false, fmt.Errorf("enroll pending participant: %w", err)
	}
	return id, false, nil
}

// ResolvePendingByAlias opportunistically binds an observed identity to
// a pending row with the matching alias. Called for every inbound event
// that carries an alias; returns whether a resolution happened.
func (s *Service) ResolvePendingByAlias(ctx context.Context, groupID int64, alias string, userRef int64, displayName string) (bool, error) {
	if strings.TrimSpace(alias) == "" {
		return false, nil
	}
	pending, err := s.store.PendingByAlias(ctx, groupID, alias)
	if err != nil {
		return false, err
	}
	if pending == nil {
		return false, nil
	}

	// The identity may already own a row (self-join raced an admin
	// alias-enroll). Binding would then break the one-row-per-identity
	// invariant; retire the duplicate pending row instead.
	existing, err := s.store.ParticipantByRef(ctx, groupID, userRef)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if err := s.store.SetParticipantState(ctx, pending.ID, storage.StateInactive); err != nil {
			return false, err
		}
		s.log.Debug("retired duplicate pending row",
			logx.Int64("group", groupID), logx.String("alias", alias))
		return false, nil
	}

	if err := s.store.BindParticipantIdentity(ctx, pending.ID, userRef, displayName); err != nil {
		return false, err
	}
	s.log.Info("resolved pending participant",
		logx.Int64("group", groupID), logx.String("alias", alias), logx.Int64("user", userRef))
	return true, nil
}

// DeactivateByRef soft-removes an identified participant.
// Returns false when there is nothing to do.
func (s *Service) DeactivateByRef(ctx context.Context, groupID, userRef int64) (bool, error) {
	p, err := s.store.ParticipantByRef(ctx, groupID, userRef)
	if err != nil {
		return false, err
	}
	if p == nil || !p.Enrolled() {
		return false, nil
	}
	return true, s.store.SetParticipantState(ctx, p.ID, storage.StateInactive)
}

// DeactivateByAlias soft-removes a participant by alias.
func (s *Service) DeactivateByAlias(ctx context.Context, groupID int64, alias string) (bool, error) {
	alias = strings.TrimPrefix(strings.TrimSpace(alias), "@")
	p, err := s.store.ParticipantByAlias(ctx, groupID, alias)
	if err != nil {
		return false, err
	}
	if p == nil || !p.Enrolled() {
		return false, nil
	}
	return true, s.store.SetParticipantState(ctx, p.ID, storage.StateInactive)
}

// Enrolled lists the group's pending and active participants.
func (s *Service) Enrolled(ctx context.Context, groupID int64) ([]storage.Participant, error) {
	return s.store.EnrolledParticipants(ctx, groupID)
}

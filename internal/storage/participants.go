package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const participantCols = `id, group_id, user_ref, alias, display_name, state, joined_at`

func scanParticipant(row interface{ Scan(...any) error }) (*Participant, error) {
	var p Participant
	var ref sql.NullInt64
	var alias sql.NullString
	var joined string
	err := row.Scan(&p.ID, &p.GroupID, &ref, &alias, &p.DisplayName, &p.State, &joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		v := ref.Int64
		p.UserRef = &v
	}
	p.Alias = alias.String
	p.JoinedAt = parseStamp(joined)
	return &p, nil
}

func (s *sqliteStore) ParticipantByRef(ctx context.Context, groupID, userRef int64) (*Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE group_id=? AND user_ref=?`,
		groupID, userRef)
	return scanParticipant(row)
}

func (s *sqliteStore) ParticipantByAlias(ctx context.Context, groupID int64, alias string) (*Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants
		 WHERE group_id=? AND lower(alias)=lower(?)
		 ORDER BY state='inactive', id LIMIT 1`,
		groupID, alias)
	return scanParticipant(row)
}

func (s *sqliteStore) PendingByAlias(ctx context.Context, groupID int64, alias string) (*Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants
		 WHERE group_id=? AND lower(alias)=lower(?) AND state='pending' AND user_ref IS NULL`,
		groupID, alias)
	return scanParticipant(row)
}

func (s *sqliteStore) InsertParticipant(ctx context.Context, p Participant) (int64, error) {
	if p.State == "" {
		p.State = StateActive
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO participants(group_id, user_ref, alias, display_name, state, joined_at)
		 VALUES(?,?,?,?,?,?)`,
		p.GroupID, nullInt64(p.UserRef), nullStr(p.Alias), p.DisplayName, string(p.State), nowStamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert participant: %w", err)
	}
	return res.LastInsertId()
}

// BindParticipantIdentity attaches a now-known identity to a pending row
// and activates it.
func (s *sqliteStore) BindParticipantIdentity(ctx context.Context, id, userRef int64, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET user_ref=?, display_name=?, state='active' WHERE id=?`,
		userRef, displayName, id)
	return err
}

// RefreshParticipant updates the display attributes of a known row and
// activates it.
func (s *sqliteStore) RefreshParticipant(ctx context.Context, id int64, alias, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET alias=?, display_name=?, state='active' WHERE id=?`,
		nullStr(alias), displayName, id)
	return err
}

func (s *sqliteStore) SetParticipantState(ctx context.Context, id int64, state ParticipantState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET state=? WHERE id=?`, string(state), id)
	return err
}

// EnrolledParticipants returns pending and active rows, ordered by
// display name (case-insensitive).
func (s *sqliteStore) EnrolledParticipants(ctx context.Context, groupID int64) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+participantCols+` FROM participants
		 WHERE group_id=? AND state IN ('pending','active')
		 ORDER BY display_name COLLATE NOCASE`,
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

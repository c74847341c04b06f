package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReserveBallot claims the (group, day) slot. created=false means the
// slot already existed; that is the expected "already done" outcome on
// duplicate firings, not an error.
func (s *sqliteStore) ReserveBallot(ctx context.Context, groupID int64, day string) (int64, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ballots(group_id, day, opened_at) VALUES(?,?,?)
		 ON CONFLICT(group_id, day) DO NOTHING`,
		groupID, day, nowStamp(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("reserve ballot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		var id int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM ballots WHERE group_id=? AND day=?`, groupID, day).Scan(&id)
		if err != nil {
			return 0, false, err
		}
		return id, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, err
}

func (s *sqliteStore) AttachBallotHandles(ctx context.Context, groupID int64, day, handle string, messageID int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ballots SET handle=?, message_id=? WHERE group_id=? AND day=?`,
		handle, messageID, groupID, day)
	return err
}

const ballotCols = `id, group_id, day, handle, message_id, opened_at`

func scanBallot(row interface{ Scan(...any) error }) (*Ballot, error) {
	var b Ballot
	var handle sql.NullString
	var msgID sql.NullInt64
	var opened string
	err := row.Scan(&b.ID, &b.GroupID, &b.Day, &handle, &msgID, &opened)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Handle = handle.String
	b.MessageID = int(msgID.Int64)
	b.OpenedAt = parseStamp(opened)
	return &b, nil
}

func (s *sqliteStore) BallotByDay(ctx context.Context, groupID int64, day string) (*Ballot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ballotCols+` FROM ballots WHERE group_id=? AND day=?`, groupID, day)
	return scanBallot(row)
}

func (s *sqliteStore) BallotByHandle(ctx context.Context, handle string) (*Ballot, error) {
	if handle == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ballotCols+` FROM ballots WHERE handle=?`, handle)
	return scanBallot(row)
}

// UpsertResponse records or replaces a voter's answer; last writer wins.
func (s *sqliteStore) UpsertResponse(ctx context.Context, ballotID, userRef int64, optionIdx *int) error {
	now := nowStamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO responses(ballot_id, user_ref, option_idx, voted_at, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(ballot_id, user_ref) DO UPDATE SET
		   option_idx=excluded.option_idx, updated_at=excluded.updated_at`,
		ballotID, userRef, nullInt(optionIdx), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert response: %w", err)
	}
	return nil
}

func (s *sqliteStore) Response(ctx context.Context, ballotID, userRef int64) (*Response, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ballot_id, user_ref, option_idx, voted_at, updated_at
		 FROM responses WHERE ballot_id=? AND user_ref=?`,
		ballotID, userRef)
	var r Response
	var opt sql.NullInt64
	var voted, updated string
	err := row.Scan(&r.BallotID, &r.UserRef, &opt, &voted, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if opt.Valid {
		v := int(opt.Int64)
		r.OptionIdx = &v
	}
	r.VotedAt = parseStamp(voted)
	r.UpdatedAt = parseStamp(updated)
	return &r, nil
}

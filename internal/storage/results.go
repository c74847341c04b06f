package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertDailyResult overwrites the day's status for one participant.
// Re-running a snapshot replaces rows instead of accumulating them.
func (s *sqliteStore) UpsertDailyResult(ctx context.Context, groupID, participantID int64, day string, status DailyStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_results(group_id, participant_id, day, status)
		 VALUES(?,?,?,?)
		 ON CONFLICT(group_id, participant_id, day) DO UPDATE SET status=excluded.status`,
		groupID, participantID, day, string(status),
	)
	if err != nil {
		return fmt.Errorf("upsert daily result: %w", err)
	}
	return nil
}

// Leaderboard aggregates daily results in [start, end] for every
// enrolled participant, ordered by yes-count descending then display
// name ascending (case-insensitive).
func (s *sqliteStore) Leaderboard(ctx context.Context, groupID int64, start, end string) ([]LeaderboardRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.user_ref, p.alias, p.display_name,
		   COALESCE(SUM(CASE WHEN dr.status='yes'    THEN 1 ELSE 0 END), 0) AS yes_count,
		   COALESCE(SUM(CASE WHEN dr.status='no'     THEN 1 ELSE 0 END), 0) AS no_count,
		   COALESCE(SUM(CASE WHEN dr.status='missed' THEN 1 ELSE 0 END), 0) AS missed_count
		 FROM participants p
		 LEFT JOIN daily_results dr
		   ON dr.participant_id = p.id
		   AND dr.day BETWEEN ? AND ?
		 WHERE p.group_id=? AND p.state IN ('pending','active')
		 GROUP BY p.id
		 ORDER BY yes_count DESC, p.display_name COLLATE NOCASE ASC`,
		start, end, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		var ref sql.NullInt64
		var alias sql.NullString
		if err := rows.Scan(&r.ParticipantID, &ref, &alias, &r.DisplayName, &r.Yes, &r.No, &r.Missed); err != nil {
			return nil, err
		}
		if ref.Valid {
			v := ref.Int64
			r.UserRef = &v
		}
		r.Alias = alias.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ParticipantTotals(ctx context.Context, participantID int64, start, end string) (Totals, error) {
	return s.totals(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN status='yes'    THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status='no'     THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status='missed' THEN 1 ELSE 0 END), 0)
		 FROM daily_results WHERE participant_id=? AND day BETWEEN ? AND ?`,
		participantID, start, end)
}

func (s *sqliteStore) ParticipantTotalsAllTime(ctx context.Context, participantID int64) (Totals, error) {
	return s.totals(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN status='yes'    THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status='no'     THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status='missed' THEN 1 ELSE 0 END), 0)
		 FROM daily_results WHERE participant_id=?`,
		participantID)
}

func (s *sqliteStore) totals(ctx context.Context, query string, args ...any) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&t.Yes, &t.No, &t.Missed)
	return t, err
}

// ---- Period results ----

func (s *sqliteStore) PeriodFinalized(ctx context.Context, groupID int64, periodStart string, kind PeriodKind) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM period_results WHERE group_id=? AND period_start=? AND kind=? LIMIT 1`,
		groupID, periodStart, string(kind)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertPeriodResult is insert-once: an existing row for the same key
// is left untouched.
func (s *sqliteStore) InsertPeriodResult(ctx context.Context, r PeriodResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO period_results
		 (group_id, participant_id, period_start, kind,
		  total_yes, total_no, total_missed, completion_rate, rank_pos)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(group_id, participant_id, period_start, kind) DO NOTHING`,
		r.GroupID, r.ParticipantID, r.PeriodStart, string(r.Kind),
		r.Yes, r.No, r.Missed, r.CompletionRate, r.Rank,
	)
	if err != nil {
		return fmt.Errorf("insert period result: %w", err)
	}
	return nil
}

func (s *sqliteStore) PeriodResults(ctx context.Context, groupID int64, periodStart string, kind PeriodKind) ([]PeriodResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.group_id, r.participant_id, r.period_start, r.kind,
		   r.total_yes, r.total_no, r.total_missed, r.completion_rate, r.rank_pos,
		   p.display_name, p.user_ref, p.alias
		 FROM period_results r
		 JOIN participants p ON p.id = r.participant_id
		 WHERE r.group_id=? AND r.period_start=? AND r.kind=?
		 ORDER BY r.rank_pos ASC`,
		groupID, periodStart, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PeriodResult
	for rows.Next() {
		var r PeriodResult
		var kindStr string
		var ref sql.NullInt64
		var alias sql.NullString
		if err := rows.Scan(&r.GroupID, &r.ParticipantID, &r.PeriodStart, &kindStr,
			&r.Yes, &r.No, &r.Missed, &r.CompletionRate, &r.Rank,
			&r.DisplayName, &ref, &alias); err != nil {
			return nil, err
		}
		r.Kind = PeriodKind(kindStr)
		if ref.Valid {
			v := ref.Int64
			r.UserRef = &v
		}
		r.Alias = alias.String
		out = append(out, r)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "readbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	cfg Config
}

// Open initializes the sqlite store, creating the schema on first run.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, cfg: cfg}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("database opened", logx.String("path", cfg.Path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Groups & settings ----

func (s *sqliteStore) UpsertGroup(ctx context.Context, groupID int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups(group_id, title, added_at, active) VALUES(?,?,?,1)
		 ON CONFLICT(group_id) DO UPDATE SET title=excluded.title, active=1`,
		groupID, nullStr(title), nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	bt := s.cfg.DefaultBallotTime
	if bt == "" {
		bt = "20:00"
	}
	tz := s.cfg.DefaultTimezone
	if tz == "" {
		tz = "Asia/Almaty"
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings(group_id, ballot_time, timezone, challenge_active)
		 VALUES(?,?,?,0)
		 ON CONFLICT(group_id) DO NOTHING`,
		groupID, bt, tz,
	)
	if err != nil {
		return fmt.Errorf("insert settings: %w", err)
	}
	return nil
}

func (s *sqliteStore) DeactivateGroup(ctx context.Context, groupID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE groups SET active=0 WHERE group_id=?`, groupID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET challenge_active=0 WHERE group_id=?`, groupID)
	return err
}

func (s *sqliteStore) GroupSettings(ctx context.Context, groupID int64) (*Settings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT group_id, ballot_time, reminder_time, timezone, challenge_active
		 FROM settings WHERE group_id=?`, groupID)
	var st Settings
	var reminder sql.NullString
	var active int
	err := row.Scan(&st.GroupID, &st.BallotTime, &reminder, &st.Timezone, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.ReminderTime = reminder.String
	st.ChallengeActive = active != 0
	return &st, nil
}

func (s *sqliteStore) SetChallengeActive(ctx context.Context, groupID int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET challenge_active=? WHERE group_id=?`, v, groupID)
	return err
}

func (s *sqliteStore) SetBallotTime(ctx context.Context, groupID int64, hhmm string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET ballot_time=? WHERE group_id=?`, hhmm, groupID)
	return err
}

func (s *sqliteStore) SetReminderTime(ctx context.Context, groupID int64, hhmm string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET reminder_time=? WHERE group_id=?`, nullStr(hhmm), groupID)
	return err
}

func (s *sqliteStore) ActiveChallenges(ctx context.Context) ([]Settings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.group_id, s.ballot_time, s.reminder_time, s.timezone, s.challenge_active
		 FROM settings s JOIN groups g ON g.group_id = s.group_id
		 WHERE s.challenge_active=1 AND g.active=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		var st Settings
		var reminder sql.NullString
		var active int
		if err := rows.Scan(&st.GroupID, &st.BallotTime, &reminder, &st.Timezone, &active); err != nil {
			return nil, err
		}
		st.ReminderTime = reminder.String
		st.ChallengeActive = active != 0
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---- helpers ----

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339) }

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// datetime('now') fallback
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

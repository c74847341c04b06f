package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Challenge ChallengeConfig `json:"challenge"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// SendRatePerSec caps outbound API calls (Telegram flood limits).
	// 0 means the default of 20/s.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`

	// BusyTimeout is a Go duration string; 0 means the driver default.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ChallengeConfig holds the schedule knobs shared by every group.
// Per-group ballot/reminder times and timezones live in the database;
// these are the defaults for newly registered groups and the fixed
// calendar anchors for snapshot/rollup triggers.
type ChallengeConfig struct {
	DefaultBallotTime string `json:"default_ballot_time,omitempty"` // HH:MM, default "20:00"
	DefaultTimezone   string `json:"default_timezone,omitempty"`    // IANA TZ, default "Asia/Almaty"
	SnapshotTime      string `json:"snapshot_time,omitempty"`       // HH:MM, default "23:59"
	SummaryTime       string `json:"summary_time,omitempty"`        // HH:MM, default "09:00"

	// GraceWindow drops trigger firings that sat in the queue longer than
	// this (e.g. across a short process outage). Go duration string.
	GraceWindow string `json:"grace_window,omitempty"`

	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// OpenRetryMax re-attempts the ballot publish step within the same
	// firing after the day's slot is claimed. The slot is never released,
	// so retries can not double-post. 0 disables retries: a failed publish
	// leaves the day reserved-but-unpublished until an admin intervenes.
	OpenRetryMax   int    `json:"open_retry_max,omitempty"`
	OpenRetryDelay string `json:"open_retry_delay,omitempty"` // Go duration string
}

const (
	DefaultBallotTime = "20:00"
	DefaultTimezone   = "Asia/Almaty"
)

var hhmmRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// ValidHHMM reports whether s is a 24-hour HH:MM time.
func ValidHHMM(s string) bool { return hhmmRe.MatchString(strings.TrimSpace(s)) }

// Validate rejects configs that would only fail later at schedule time.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	for name, v := range map[string]string{
		"challenge.default_ballot_time": c.Challenge.DefaultBallotTime,
		"challenge.snapshot_time":       c.Challenge.SnapshotTime,
		"challenge.summary_time":        c.Challenge.SummaryTime,
	} {
		if v != "" && !ValidHHMM(v) {
			return fmt.Errorf("%s: invalid time %q, expected HH:MM", name, v)
		}
	}
	if tz := strings.TrimSpace(c.Challenge.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("challenge.default_timezone: %w", err)
		}
	}
	for name, v := range map[string]string{
		"telegram.poll_timeout":      c.Telegram.PollTimeout,
		"storage.busy_timeout":       c.Storage.BusyTimeout,
		"challenge.grace_window":     c.Challenge.GraceWindow,
		"challenge.open_retry_delay": c.Challenge.OpenRetryDelay,
	} {
		if _, err := ParseDuration(name, v, 0); err != nil {
			return err
		}
	}
	return nil
}

// ParseDuration parses an optional Go duration string, returning def when empty.
func ParseDuration(name, s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", name, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", name, s)
	}
	return d, nil
}

// BallotTimeOrDefault returns the configured default ballot time.
func (c ChallengeConfig) BallotTimeOrDefault() string {
	if ValidHHMM(c.DefaultBallotTime) {
		return strings.TrimSpace(c.DefaultBallotTime)
	}
	return DefaultBallotTime
}

// TimezoneOrDefault returns the configured default timezone.
func (c ChallengeConfig) TimezoneOrDefault() string {
	if tz := strings.TrimSpace(c.DefaultTimezone); tz != "" {
		return tz
	}
	return DefaultTimezone
}

// SnapshotTimeOrDefault returns the end-of-day snapshot time.
func (c ChallengeConfig) SnapshotTimeOrDefault() string {
	if ValidHHMM(c.SnapshotTime) {
		return strings.TrimSpace(c.SnapshotTime)
	}
	return "23:59"
}

// SummaryTimeOrDefault returns the weekly/monthly finalize time.
func (c ChallengeConfig) SummaryTimeOrDefault() string {
	if ValidHHMM(c.SummaryTime) {
		return strings.TrimSpace(c.SummaryTime)
	}
	return "09:00"
}

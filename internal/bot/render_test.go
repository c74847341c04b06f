package bot

import (
	"strings"
	"testing"

	"readbot/internal/storage"
)

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text, cmd, args string
	}{
		{"/join", "join", ""},
		{"/set_time 21:00", "set_time", "21:00"},
		{"/set_time@ReadChallengeBot 21:00", "set_time", "21:00"},
		{"/HELP", "help", ""},
		{"/addall @a @b", "addall", "@a @b"},
		{"  /today  ", "today", ""},
		{"hello /join", "", ""},
		{"plain text", "", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		cmd, args := splitCommand(tc.text)
		if cmd != tc.cmd || args != tc.args {
			t.Fatalf("splitCommand(%q) = (%q, %q), want (%q, %q)",
				tc.text, cmd, args, tc.cmd, tc.args)
		}
	}
}

func TestMentionRendering(t *testing.T) {
	t.Parallel()
	ref := int64(42)

	identified := storage.Participant{UserRef: &ref, DisplayName: "Dana <script>"}
	got := mention(identified)
	if got != `<a href="tg://user?id=42">Dana &lt;script&gt;</a>` {
		t.Fatalf("identified mention: %q", got)
	}

	pending := storage.Participant{Alias: "bookworm", DisplayName: "bookworm"}
	if got := mention(pending); got != "@bookworm" {
		t.Fatalf("pending mention: %q", got)
	}

	plain := storage.Participant{DisplayName: "Dana & Co"}
	if got := mention(plain); got != "Dana &amp; Co" {
		t.Fatalf("plain mention: %q", got)
	}
}

func TestRenderLeaderboard(t *testing.T) {
	t.Parallel()
	rows := []storage.LeaderboardRow{
		{DisplayName: "Alice", Totals: storage.Totals{Yes: 5, No: 1, Missed: 1}},
		{DisplayName: "Bob", Totals: storage.Totals{Yes: 3, No: 2, Missed: 2}},
		{DisplayName: "Carol", Totals: storage.Totals{Yes: 1}},
		{DisplayName: "Dave <x>", Totals: storage.Totals{}},
	}
	out := renderLeaderboard("Week", rows)

	for _, want := range []string{"🥇 Alice", "🥈 Bob", "🥉 Carol", "4. Dave &lt;x&gt;", "5 ✅"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	empty := renderLeaderboard("Week", nil)
	if !strings.Contains(empty, "No participants") {
		t.Fatalf("empty board: %q", empty)
	}
}

func TestRenderPeriodSummaryUsesStoredRanks(t *testing.T) {
	t.Parallel()
	rows := []storage.PeriodResult{
		{DisplayName: "Bob", Rank: 2, Yes: 3},
		{DisplayName: "Alice", Rank: 1, Yes: 5},
	}
	out := renderPeriodSummary("Results", rows)
	if !strings.Contains(out, "🥈 Bob") || !strings.Contains(out, "🥇 Alice") {
		t.Fatalf("ranks must come from the sealed rows:\n%s", out)
	}
}

func TestRenderParticipantsFlagsPending(t *testing.T) {
	t.Parallel()
	rows := []storage.Participant{
		{DisplayName: "Dana", State: storage.StateActive},
		{DisplayName: "bookworm", Alias: "bookworm", State: storage.StatePending},
	}
	out := renderParticipants(rows)
	if !strings.Contains(out, "Dana") {
		t.Fatalf("missing active row:\n%s", out)
	}
	if !strings.Contains(out, "bookworm ⏳") {
		t.Fatalf("pending row must be flagged:\n%s", out)
	}
}

package roster

import (
	"context"
	"path/filepath"
	"testing"

	"readbot/internal/storage"
	logx "readbot/pkg/logx"
)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	s, err := storage.Open(storage.Config{
		Path:              filepath.Join(t.TempDir(), "bot.db"),
		DefaultBallotTime: "20:00",
		DefaultTimezone:   "UTC",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.UpsertGroup(context.Background(), 1, "g"); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	return New(s, logx.Nop()), s
}

func TestEnrollByIdentityConverges(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	id1, err := svc.EnrollByIdentity(ctx, 1, 42, "dana", "Dana")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	// Same identity again, with updated attributes.
	id2, err := svc.EnrollByIdentity(ctx, 1, 42, "dana_reads", "Dana R.")
	if err != nil {
		t.Fatalf("re-enroll: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("re-enroll created a second row: %d vs %d", id1, id2)
	}

	p, err := store.ParticipantByRef(ctx, 1, 42)
	if err != nil {
		t.Fatalf("by ref: %v", err)
	}
	if p.Alias != "dana_reads" || p.DisplayName != "Dana R." || p.State != storage.StateActive {
		t.Fatalf("attributes not refreshed: %+v", p)
	}
}

func TestEnrollByAliasThenResolve(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	id, identified, err := svc.EnrollByAlias(ctx, 1, "@bookworm")
	if err != nil {
		t.Fatalf("enroll by alias: %v", err)
	}
	if identified {
		t.Fatal("fresh alias enrollment can not be identified")
	}

	// First observed message from that alias resolves the pending row.
	resolved, err := svc.ResolvePendingByAlias(ctx, 1, "bookworm", 42, "Dana")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved {
		t.Fatal("expected the pending row to resolve")
	}
	p, err := store.ParticipantByRef(ctx, 1, 42)
	if err != nil {
		t.Fatalf("by ref: %v", err)
	}
	if p == nil || p.ID != id || p.State != storage.StateActive {
		t.Fatalf("resolution did not bind the pending row: %+v", p)
	}

	// Resolution is idempotent: nothing pending remains.
	resolved, err = svc.ResolvePendingByAlias(ctx, 1, "bookworm", 42, "Dana")
	if err != nil || resolved {
		t.Fatalf("second resolve must be a no-op: %v %v", resolved, err)
	}
}

func TestResolveRetiresDuplicatePending(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	// The person self-joined first, then an admin enrolled the same
	// alias; the observed identity must not end up with two live rows.
	selfID, err := svc.EnrollByIdentity(ctx, 1, 42, "dana", "Dana")
	if err != nil {
		t.Fatalf("self enroll: %v", err)
	}
	if _, _, err := svc.EnrollByAlias(ctx, 1, "dana2"); err != nil {
		t.Fatalf("alias enroll: %v", err)
	}

	resolved, err := svc.ResolvePendingByAlias(ctx, 1, "dana2", 42, "Dana")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved {
		t.Fatal("duplicate must be retired, not bound")
	}
	enrolled, err := store.EnrolledParticipants(ctx, 1)
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}
	if len(enrolled) != 1 || enrolled[0].ID != selfID {
		t.Fatalf("expected only the identified row to survive: %+v", enrolled)
	}
}

func TestEnrollByAliasRevives(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.EnrollByIdentity(ctx, 1, 42, "dana", "Dana")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	removed, err := svc.DeactivateByRef(ctx, 1, 42)
	if err != nil || !removed {
		t.Fatalf("deactivate: %v %v", removed, err)
	}
	// Removing again is nothing-to-do, not an error.
	removed, err = svc.DeactivateByRef(ctx, 1, 42)
	if err != nil || removed {
		t.Fatalf("second deactivate must be a no-op: %v %v", removed, err)
	}

	// Re-add by alias revives the same row as active (identity kept).
	revID, identified, err := svc.EnrollByAlias(ctx, 1, "dana")
	if err != nil {
		t.Fatalf("revive: %v", err)
	}
	if revID != id || !identified {
		t.Fatalf("expected revival of row %d as identified, got %d/%v", id, revID, identified)
	}
}

func TestDeactivateByAliasUnknown(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	removed, err := svc.DeactivateByAlias(context.Background(), 1, "@ghost")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if removed {
		t.Fatal("unknown alias must be nothing-to-do")
	}
}

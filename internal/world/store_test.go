package world_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/events"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/migrate"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

type testEnv struct {
	Store world.Store
	Ctx   context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir}, db.WorldDB)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, migrate.SetWorld); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := world.New(conn)
	st.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Store: st, Ctx: context.Background()}
}

func seedDirective(t *testing.T, env testEnv, id string) domain.Directive {
	t.Helper()
	d, err := env.Store.CreateDirective(env.Ctx, world.DirectiveCreateOptions{
		ID:    id,
		Text:  "build the thing",
		Actor: "tester",
	})
	if err != nil {
		t.Fatalf("seed directive: %v", err)
	}
	return d
}

func TestCreateDirectiveConflict(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	_, err := env.Store.CreateDirective(env.Ctx, world.DirectiveCreateOptions{ID: "dir-1", Text: "again", Actor: "tester"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateDirectiveBestEffort(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")

	ok, err := env.Store.UpdateDirective(env.Ctx, "nope", world.DirectiveUpdateOptions{Status: strPtr("building"), Actor: "tester"})
	if err != nil {
		t.Fatalf("update unknown: %v", err)
	}
	if ok {
		t.Fatalf("expected false for unknown directive")
	}

	env.Store.Now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	ok, err = env.Store.UpdateDirective(env.Ctx, "dir-1", world.DirectiveUpdateOptions{Status: strPtr("building"), Actor: "tester"})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	d, err := env.Store.GetDirective(env.Ctx, "dir-1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != "building" {
		t.Fatalf("status = %s", d.Status)
	}
	if d.UpdatedAt != "2024-01-02T00:00:00Z" {
		t.Fatalf("updated_at not touched: %s", d.UpdatedAt)
	}
	if d.CreatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("created_at changed: %s", d.CreatedAt)
	}
}

func TestActiveDirectiveLifecycle(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.Store.GetActiveDirective(env.Ctx)
	if err != nil {
		t.Fatalf("empty active: %v", err)
	}
	if d != nil {
		t.Fatalf("expected no active directive, got %s", d.ID)
	}

	seedDirective(t, env, "dir-old")
	env.Store.Now = func() time.Time { return time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC) }
	seedDirective(t, env, "dir-new")

	d, err = env.Store.GetActiveDirective(env.Ctx)
	if err != nil || d == nil {
		t.Fatalf("active: %v", err)
	}
	if d.ID != "dir-new" {
		t.Fatalf("expected newest directive active, got %s", d.ID)
	}

	// terminal status drops it out of the active slot
	if _, err := env.Store.UpdateDirective(env.Ctx, "dir-new", world.DirectiveUpdateOptions{Status: strPtr("complete"), Actor: "tester"}); err != nil {
		t.Fatal(err)
	}
	d, err = env.Store.GetActiveDirective(env.Ctx)
	if err != nil || d == nil {
		t.Fatalf("active after complete: %v", err)
	}
	if d.ID != "dir-old" {
		t.Fatalf("expected older directive active, got %s", d.ID)
	}
}

func TestEventIDsStrictlyIncreasing(t *testing.T) {
	env := newTestEnv(t)
	id1, err := env.Store.EmitEvent(env.Ctx, "tester", "ping", events.EventPayload{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := env.Store.EmitEvent(env.Ctx, "tester", "ping", events.EventPayload{"n": 2})
	if err != nil {
		t.Fatal(err)
	}
	if id2 <= id1 {
		t.Fatalf("ids not increasing: %d then %d", id1, id2)
	}

	got, err := env.Store.EventsSince(env.Ctx, id1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != id2 {
		t.Fatalf("events since %d: %+v", id1, got)
	}

	latest, err := env.Store.LatestEventID(env.Ctx)
	if err != nil || latest != id2 {
		t.Fatalf("latest = %d, err %v", latest, err)
	}
}

func TestEventsSinceAscendingAndLimited(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		if _, err := env.Store.EmitEvent(env.Ctx, "tester", "tick", nil); err != nil {
			t.Fatal(err)
		}
	}
	got, err := env.Store.EventsSince(env.Ctx, 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("not ascending: %+v", got)
		}
	}
}

type staticDirectory []domain.AgentRecord

func (d staticDirectory) ActiveAgents(ctx context.Context) ([]domain.AgentRecord, error) {
	return d, nil
}

func TestSnapshotCompositeRead(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)
	mustCreateTask(t, env, "t2", "dir-1", 5, nil)
	if ok, err := env.Store.ClaimTask(env.Ctx, "t2", "agent-1"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	env.Store.Directory = staticDirectory{
		{ID: "agent-1", Name: "Agent One", Status: "working"},
		{ID: "agent-2", Name: "Agent Two", Status: "idle"},
	}

	snap, err := env.Store.Snapshot(env.Ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Directive == nil || snap.Directive.ID != "dir-1" {
		t.Fatalf("directive missing from snapshot")
	}
	if len(snap.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(snap.Tasks))
	}
	if len(snap.Agents) != 2 || snap.Stats.ActiveAgents != 2 {
		t.Fatalf("agents = %d, stat = %d", len(snap.Agents), snap.Stats.ActiveAgents)
	}
	if snap.Stats.PendingTasks != 1 {
		t.Fatalf("pending tasks = %d", snap.Stats.PendingTasks)
	}
	if snap.Stats.TotalEvents == 0 || len(snap.RecentEvents) == 0 {
		t.Fatalf("expected events in snapshot")
	}
}

func TestSnapshotWithoutDirectory(t *testing.T) {
	env := newTestEnv(t)
	snap, err := env.Store.Snapshot(env.Ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Directive != nil {
		t.Fatalf("expected nil directive")
	}
	if snap.Agents == nil || len(snap.Agents) != 0 {
		t.Fatalf("expected empty roster")
	}
}

func strPtr(s string) *string { return &s }

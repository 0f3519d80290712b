package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/migrate"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/registry"
)

type testEnv struct {
	Reg registry.Registry
	Ctx context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir}, db.RegistryDB)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, migrate.SetRegistry); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := registry.New(conn)
	reg.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Reg: reg, Ctx: context.Background()}
}

func mustHire(t *testing.T, env testEnv, id, name, model, reportsTo string) domain.AgentRecord {
	t.Helper()
	a, err := env.Reg.Hire(env.Ctx, registry.HireOptions{
		ID:        id,
		Name:      name,
		Role:      "engineer",
		Model:     model,
		ReportsTo: reportsTo,
	})
	if err != nil {
		t.Fatalf("hire %s: %v", id, err)
	}
	return a
}

func TestHireAndGet(t *testing.T) {
	env := newTestEnv(t)
	a := mustHire(t, env, "boss", "The Boss", "opus", "")
	if a.Status != "idle" {
		t.Fatalf("status = %s", a.Status)
	}
	got, err := env.Reg.Get(env.Ctx, "boss")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "The Boss" || got.ReportsTo != nil {
		t.Fatalf("got %+v", got)
	}

	_, err = env.Reg.Hire(env.Ctx, registry.HireOptions{ID: "boss", Name: "again"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate hire: %v", err)
	}
	_, err = env.Reg.Hire(env.Ctx, registry.HireOptions{Name: "orphan", ReportsTo: "ghost"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown manager: %v", err)
	}
	_, err = env.Reg.Get(env.Ctx, "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get unknown: %v", err)
	}
}

func TestHireGeneratesID(t *testing.T) {
	env := newTestEnv(t)
	a := mustHire(t, env, "", "Nameless", "haiku", "")
	if a.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestFireRepointsReports(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "ceo", "CEO", "opus", "")
	mustHire(t, env, "manager", "Manager", "sonnet", "ceo")
	mustHire(t, env, "worker-1", "W1", "haiku", "manager")
	mustHire(t, env, "worker-2", "W2", "haiku", "manager")

	if err := env.Reg.Fire(env.Ctx, "manager"); err != nil {
		t.Fatalf("fire: %v", err)
	}
	for _, id := range []string{"worker-1", "worker-2"} {
		a, err := env.Reg.Get(env.Ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if a.ReportsTo == nil || *a.ReportsTo != "ceo" {
			t.Fatalf("%s not re-pointed: %+v", id, a)
		}
	}
	if err := env.Reg.Fire(env.Ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("fire unknown: %v", err)
	}
}

func TestUpdateWhitelistAndStatus(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "a1", "Agent", "sonnet", "")

	a, err := env.Reg.Update(env.Ctx, "a1", registry.UpdateOptions{
		Status:     strPtr("working"),
		LastAction: strPtr("claimed t1"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if a.Status != "working" || a.LastAction != "claimed t1" {
		t.Fatalf("update not applied: %+v", a)
	}

	_, err = env.Reg.Update(env.Ctx, "a1", registry.UpdateOptions{Status: strPtr("napping")})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad status: %v", err)
	}
	_, err = env.Reg.Update(env.Ctx, "ghost", registry.UpdateOptions{Status: strPtr("idle")})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update unknown: %v", err)
	}
}

func TestActiveAgentsReturnsAllStatuses(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "a1", "One", "sonnet", "")
	mustHire(t, env, "a2", "Two", "sonnet", "")
	if _, err := env.Reg.Update(env.Ctx, "a2", registry.UpdateOptions{Status: strPtr("working")}); err != nil {
		t.Fatal(err)
	}
	agents, err := env.Reg.ActiveAgents(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected both agents, got %d", len(agents))
	}
	// hire order preserved
	if agents[0].ID != "a1" || agents[1].ID != "a2" {
		t.Fatalf("order: %+v", agents)
	}
}

func TestAgentsBatchOmitsMissing(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "a1", "One", "sonnet", "")

	got, err := env.Reg.AgentsBatch(env.Ctx, []string{"a1", "ghost", "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("batch = %v", got)
	}
	if _, ok := got["ghost"]; ok {
		t.Fatalf("missing id present")
	}

	var queries []string
	env.Reg.Observer = func(label string) { queries = append(queries, label) }
	empty, err := env.Reg.AgentsBatch(env.Ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty batch: %v %v", empty, err)
	}
	if len(queries) != 0 {
		t.Fatalf("empty batch ran queries: %v", queries)
	}
}

func TestAgentKeys(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "a1", "One", "sonnet", "")

	key, plaintext, err := env.Reg.CreateKey(env.Ctx, "a1", "laptop")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if plaintext == "" || key.KeyHash != registry.HashAPIKey(plaintext) {
		t.Fatalf("hash mismatch")
	}

	agent, err := env.Reg.AgentByKeyHash(env.Ctx, registry.HashAPIKey(plaintext))
	if err != nil || agent.ID != "a1" {
		t.Fatalf("lookup: %+v %v", agent, err)
	}
	_, err = env.Reg.AgentByKeyHash(env.Ctx, registry.HashAPIKey("wrong"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("bad key: %v", err)
	}

	keys, err := env.Reg.Keys(env.Ctx, "a1")
	if err != nil || len(keys) != 1 {
		t.Fatalf("keys: %v %v", keys, err)
	}
	if err := env.Reg.DeleteKey(env.Ctx, key.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Reg.DeleteKey(env.Ctx, key.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	_, _, err = env.Reg.CreateKey(env.Ctx, "ghost", "x")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("key for unknown agent: %v", err)
	}
}

func strPtr(s string) *string { return &s }

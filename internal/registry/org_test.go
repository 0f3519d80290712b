package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/registry"
)

func seedOrg(t *testing.T, env testEnv) {
	t.Helper()
	mustHire(t, env, "ceo", "CEO", "opus", "")
	mustHire(t, env, "lead", "Lead", "sonnet", "ceo")
	mustHire(t, env, "a", "A", "haiku", "lead")
	mustHire(t, env, "b", "B", "sonnet", "lead")
	mustHire(t, env, "c", "C", "haiku", "a")
}

func TestDirectReportsSingleQuery(t *testing.T) {
	env := newTestEnv(t)
	seedOrg(t, env)

	var queries []string
	env.Reg.Observer = func(label string) { queries = append(queries, label) }
	reports, err := env.Reg.DirectReports(env.Ctx, "lead")
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %+v", reports)
	}
	if len(queries) != 1 {
		t.Fatalf("direct reports issued %d queries: %v", len(queries), queries)
	}
}

func TestReportingTreeOneFetch(t *testing.T) {
	env := newTestEnv(t)
	seedOrg(t, env)

	var queries []string
	env.Reg.Observer = func(label string) { queries = append(queries, label) }
	tree, err := env.Reg.ReportingTree(env.Ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(queries) != 1 {
		t.Fatalf("tree issued %d queries: %v", len(queries), queries)
	}
	if tree == nil || tree.Agent.ID != "ceo" {
		t.Fatalf("root = %+v", tree)
	}
	if len(tree.Reports) != 1 || tree.Reports[0].Agent.ID != "lead" {
		t.Fatalf("ceo reports: %+v", tree.Reports)
	}
	lead := tree.Reports[0]
	if len(lead.Reports) != 2 {
		t.Fatalf("lead reports: %+v", lead.Reports)
	}

	sub, err := env.Reg.ReportingTree(env.Ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Agent.ID != "a" || len(sub.Reports) != 1 || sub.Reports[0].Agent.ID != "c" {
		t.Fatalf("subtree: %+v", sub)
	}

	_, err = env.Reg.ReportingTree(env.Ctx, "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown root: %v", err)
	}
}

func TestReportingTreeEmptyRoster(t *testing.T) {
	env := newTestEnv(t)
	tree, err := env.Reg.ReportingTree(env.Ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if tree != nil {
		t.Fatalf("expected nil tree, got %+v", tree)
	}
}

func TestReassignRejectsCycles(t *testing.T) {
	env := newTestEnv(t)
	seedOrg(t, env)

	// moving the lead under its own transitive report is a cycle
	err := env.Reg.Reassign(env.Ctx, "lead", "c")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("cycle: %v", err)
	}
	if err := env.Reg.Reassign(env.Ctx, "a", "a"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("self: %v", err)
	}
	if err := env.Reg.Reassign(env.Ctx, "ghost", "ceo"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown agent: %v", err)
	}

	if err := env.Reg.Reassign(env.Ctx, "b", "ceo"); err != nil {
		t.Fatalf("legal reassign: %v", err)
	}
	b, _ := env.Reg.Get(env.Ctx, "b")
	if b.ReportsTo == nil || *b.ReportsTo != "ceo" {
		t.Fatalf("reassign not applied: %+v", b)
	}
}

type fakeReassigner struct {
	from  []string
	to    string
	moved int
}

func (f *fakeReassigner) ReassignTasks(ctx context.Context, fromIDs []string, toID, actor string) (int, error) {
	f.from = fromIDs
	f.to = toID
	return f.moved, nil
}

func TestConsolidateAgents(t *testing.T) {
	env := newTestEnv(t)
	seedOrg(t, env)
	fake := &fakeReassigner{moved: 2}
	env.Reg.Tasks = fake

	merged, err := env.Reg.Consolidate(env.Ctx, registry.ConsolidateOptions{
		IDs:            []string{"a", "b", "c"},
		NewID:          "merged",
		NewName:        "Merged Worker",
		NewDescription: "a+b+c",
		Actor:          "tester",
	})
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if merged.ID != "merged" {
		t.Fatalf("merged = %+v", merged)
	}
	// strongest model among the parts wins
	if merged.Model != "sonnet" {
		t.Fatalf("model = %s", merged.Model)
	}
	// first listed agent's manager carries over
	if merged.ReportsTo == nil || *merged.ReportsTo != "lead" {
		t.Fatalf("reports_to = %v", merged.ReportsTo)
	}

	for _, id := range []string{"a", "b", "c"} {
		if _, err := env.Reg.Get(env.Ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("agent %s still exists", id)
		}
	}
	if len(fake.from) != 3 || fake.to != "merged" {
		t.Fatalf("task reassignment not requested: %+v", fake)
	}

	changes, err := env.Reg.Changelog(env.Ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) == 0 || changes[0].Action != "consolidated" {
		t.Fatalf("changelog: %+v", changes)
	}
}

func TestConsolidateRepointsReports(t *testing.T) {
	env := newTestEnv(t)
	seedOrg(t, env)
	mustHire(t, env, "d", "D", "haiku", "b")

	if _, err := env.Reg.Consolidate(env.Ctx, registry.ConsolidateOptions{
		IDs:     []string{"a", "b"},
		NewID:   "pair",
		NewName: "Pair",
	}); err != nil {
		t.Fatal(err)
	}
	// c reported to a, d reported to b; both land on the merged agent
	for _, id := range []string{"c", "d"} {
		got, err := env.Reg.Get(env.Ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.ReportsTo == nil || *got.ReportsTo != "pair" {
			t.Fatalf("%s reports_to = %v", id, got.ReportsTo)
		}
	}
}

func TestConsolidateValidation(t *testing.T) {
	env := newTestEnv(t)
	seedOrg(t, env)

	_, err := env.Reg.Consolidate(env.Ctx, registry.ConsolidateOptions{IDs: []string{"a", "ghost"}, NewID: "m", NewName: "M"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown id: %v", err)
	}
	_, err = env.Reg.Consolidate(env.Ctx, registry.ConsolidateOptions{IDs: []string{"a"}, NewID: "ceo", NewName: "M"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("existing new id: %v", err)
	}
	_, err = env.Reg.Consolidate(env.Ctx, registry.ConsolidateOptions{IDs: []string{"a"}, NewID: "a", NewName: "M"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("new id among merged: %v", err)
	}
	// nothing was merged by the failed attempts
	if _, err := env.Reg.Get(env.Ctx, "a"); err != nil {
		t.Fatalf("agent a lost: %v", err)
	}
}

func TestOrgSummary(t *testing.T) {
	env := newTestEnv(t)
	seedOrg(t, env)
	sum, err := env.Reg.OrgSummary(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 5 || sum.ByRole["engineer"] != 5 {
		t.Fatalf("summary: %+v", sum)
	}
	if len(sum.Roots) != 1 || sum.Roots[0] != "ceo" {
		t.Fatalf("roots: %+v", sum.Roots)
	}
}

func TestSeedRosterIdempotent(t *testing.T) {
	env := newTestEnv(t)
	roster := []config.RosterAgent{
		{ID: "overseer", Name: "Overseer", Role: "manager", Model: "opus"},
		{ID: "builder", Name: "Builder", Role: "engineer", Model: "sonnet", ReportsTo: "overseer"},
	}
	added, err := env.Reg.SeedRoster(env.Ctx, roster)
	if err != nil || added != 2 {
		t.Fatalf("seed: added=%d err=%v", added, err)
	}
	added, err = env.Reg.SeedRoster(env.Ctx, roster)
	if err != nil || added != 0 {
		t.Fatalf("reseed: added=%d err=%v", added, err)
	}
	agents, _ := env.Reg.ActiveAgents(env.Ctx)
	if len(agents) != 2 {
		t.Fatalf("roster size = %d", len(agents))
	}
}

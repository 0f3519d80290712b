package world_test

import (
	"errors"
	"testing"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

func TestDefectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)

	d, err := env.Store.FileDefect(env.Ctx, world.DefectFileOptions{
		DirectiveID: "dir-1",
		TaskID:      "t1",
		Title:       "tests flaky",
		Severity:    "high",
		FiledBy:     "agent-1",
	})
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if d.ID == "" {
		t.Fatalf("expected generated defect id")
	}

	if err := env.Store.AssignDefect(env.Ctx, d.ID, "agent-2", "tester"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	open, err := env.Store.OpenDefects(env.Ctx, "dir-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].AssignedTo == nil || *open[0].AssignedTo != "agent-2" {
		t.Fatalf("open defects: %+v", open)
	}

	ok, err := env.Store.ResolveDefect(env.Ctx, d.ID, "agent-2")
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	// resolution is one-way
	ok, err = env.Store.ResolveDefect(env.Ctx, d.ID, "agent-2")
	if err != nil {
		t.Fatalf("second resolve errored: %v", err)
	}
	if ok {
		t.Fatalf("second resolve reported true")
	}
	_, err = env.Store.ResolveDefect(env.Ctx, "ghost", "agent-2")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("resolve unknown: %v", err)
	}

	open, err = env.Store.OpenDefects(env.Ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Fatalf("resolved defect still open: %+v", open)
	}
}

func TestFileDefectValidation(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	seedDirective(t, env, "dir-2")
	mustCreateTask(t, env, "t1", "dir-2", 0, nil)

	_, err := env.Store.FileDefect(env.Ctx, world.DefectFileOptions{DirectiveID: "ghost", Title: "x", FiledBy: "a"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown directive: %v", err)
	}
	_, err = env.Store.FileDefect(env.Ctx, world.DefectFileOptions{DirectiveID: "dir-1", TaskID: "t1", Title: "x", FiledBy: "a"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("cross-directive task: %v", err)
	}
}

func TestInterruptions(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Store.PostContext(env.Ctx, "agent-1", "interrupt", "stop what you are doing"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := env.Store.PostContext(env.Ctx, "agent-1", "note", "fyi"); err != nil {
		t.Fatal(err)
	}

	waiting, err := env.Store.HasInterruption(env.Ctx, "agent-1")
	if err != nil || !waiting {
		t.Fatalf("waiting = %v, err %v", waiting, err)
	}
	n, err := env.Store.ConsumeInterruptions(env.Ctx, "agent-1")
	if err != nil || n != 1 {
		t.Fatalf("consumed = %d, err %v", n, err)
	}
	waiting, err = env.Store.HasInterruption(env.Ctx, "agent-1")
	if err != nil || waiting {
		t.Fatalf("interrupt still waiting after consume")
	}
}

func TestRecentContextIncludesBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Store.PostContext(env.Ctx, "", "note", "all hands"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Store.PostContext(env.Ctx, "agent-1", "note", "just you"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Store.PostContext(env.Ctx, "agent-2", "note", "someone else"); err != nil {
		t.Fatal(err)
	}

	got, err := env.Store.RecentContext(env.Ctx, "agent-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("context = %+v", got)
	}
	// newest first
	if got[0].Content != "just you" || got[1].Content != "all hands" {
		t.Fatalf("order: %+v", got)
	}
}

func TestServiceRegistryUpsert(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Store.RegisterService(env.Ctx, "devserver", 100, 3000, "vite", "tester"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.Store.RegisterService(env.Ctx, "devserver", 200, 3000, "vite", "tester"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	services, err := env.Store.RunningServices(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 || services[0].PID != 200 {
		t.Fatalf("services = %+v", services)
	}

	ok, err := env.Store.StopService(env.Ctx, "devserver", "tester")
	if err != nil || !ok {
		t.Fatalf("stop: ok=%v err=%v", ok, err)
	}
	ok, err = env.Store.StopService(env.Ctx, "devserver", "tester")
	if err != nil || ok {
		t.Fatalf("second stop: ok=%v err=%v", ok, err)
	}
}

func TestDecisionsByTopic(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Store.RecordDecision(env.Ctx, "agent-1", "db-schema", "use sqlite", "single writer is fine"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := env.Store.RecordDecision(env.Ctx, "agent-2", "db-schema", "add covering index", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Store.RecordDecision(env.Ctx, "agent-1", "naming", "snake_case", ""); err != nil {
		t.Fatal(err)
	}

	got, err := env.Store.DecisionsByTopic(env.Ctx, "db-schema", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("decisions = %+v", got)
	}
	if got[0].Decision != "add covering index" {
		t.Fatalf("expected newest first: %+v", got)
	}
}

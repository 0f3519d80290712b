package world_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

func mustCreateTask(t *testing.T, env testEnv, id, directiveID string, priority int, deps []string) domain.BoardTask {
	t.Helper()
	task, err := env.Store.CreateBoardTask(env.Ctx, world.TaskCreateOptions{
		ID:          id,
		DirectiveID: directiveID,
		Description: "work on " + id,
		Priority:    priority,
		DependsOn:   deps,
		Actor:       "tester",
	})
	if err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
	return task
}

func TestClaimTaskExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)

	ok, err := env.Store.ClaimTask(env.Ctx, "t1", "agent-1")
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = env.Store.ClaimTask(env.Ctx, "t1", "agent-2")
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if ok {
		t.Fatalf("second claim succeeded")
	}
	task, err := env.Store.GetBoardTask(env.Ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != "claimed" || task.ClaimedBy == nil || *task.ClaimedBy != "agent-1" {
		t.Fatalf("claim not recorded: %+v", task)
	}
}

func TestClaimMissingTaskReturnsFalse(t *testing.T) {
	env := newTestEnv(t)
	ok, err := env.Store.ClaimTask(env.Ctx, "ghost", "agent-1")
	if err != nil {
		t.Fatalf("claim missing errored: %v", err)
	}
	if ok {
		t.Fatalf("claimed a missing task")
	}
}

func TestClaimRespectsDependencies(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "a", "dir-1", 0, nil)
	mustCreateTask(t, env, "b", "dir-1", 0, []string{"a"})

	// b is gated until a completes
	ok, err := env.Store.ClaimTask(env.Ctx, "b", "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("claimed b before dependency done")
	}
	met, err := env.Store.AreDependenciesMet(env.Ctx, "b")
	if err != nil || met {
		t.Fatalf("deps met = %v, err %v", met, err)
	}

	if ok, err := env.Store.ClaimTask(env.Ctx, "a", "agent-1"); err != nil || !ok {
		t.Fatalf("claim a: ok=%v err=%v", ok, err)
	}
	if err := env.Store.CompleteBoardTask(env.Ctx, "a", strPtr("done"), "agent-1"); err != nil {
		t.Fatalf("complete a: %v", err)
	}

	met, err = env.Store.AreDependenciesMet(env.Ctx, "b")
	if err != nil || !met {
		t.Fatalf("deps met after complete = %v, err %v", met, err)
	}
	ok, err = env.Store.ClaimTask(env.Ctx, "b", "agent-2")
	if err != nil || !ok {
		t.Fatalf("claim b after deps: ok=%v err=%v", ok, err)
	}
}

func TestAreDependenciesMetUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	met, err := env.Store.AreDependenciesMet(env.Ctx, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if met {
		t.Fatalf("unknown task reported met")
	}
}

func TestCreateTaskValidatesDependencies(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	seedDirective(t, env, "dir-2")
	mustCreateTask(t, env, "other", "dir-2", 0, nil)

	_, err := env.Store.CreateBoardTask(env.Ctx, world.TaskCreateOptions{
		ID: "t1", DirectiveID: "dir-1", Description: "x", DependsOn: []string{"ghost"}, Actor: "tester",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown dep: %v", err)
	}
	_, err = env.Store.CreateBoardTask(env.Ctx, world.TaskCreateOptions{
		ID: "t1", DirectiveID: "dir-1", Description: "x", DependsOn: []string{"other"}, Actor: "tester",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("cross-directive dep: %v", err)
	}
	_, err = env.Store.CreateBoardTask(env.Ctx, world.TaskCreateOptions{
		ID: "t1", DirectiveID: "ghost", Description: "x", Actor: "tester",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown directive: %v", err)
	}
}

func TestCreateTaskDuplicateID(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)
	_, err := env.Store.CreateBoardTask(env.Ctx, world.TaskCreateOptions{
		ID: "t1", DirectiveID: "dir-1", Description: "again", Actor: "tester",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAvailableTasksOrdering(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "low", "dir-1", 1, nil)
	mustCreateTask(t, env, "high-first", "dir-1", 5, nil)
	mustCreateTask(t, env, "high-second", "dir-1", 5, nil)
	mustCreateTask(t, env, "gated", "dir-1", 9, []string{"low"})

	got, err := env.Store.AvailableTasks(env.Ctx, "dir-1")
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, task := range got {
		ids = append(ids, task.ID)
	}
	want := []string{"high-first", "high-second", "low"}
	if len(ids) != len(want) {
		t.Fatalf("available = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestFailTaskRecordsError(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)
	if ok, _ := env.Store.ClaimTask(env.Ctx, "t1", "agent-1"); !ok {
		t.Fatalf("claim failed")
	}
	if err := env.Store.FailBoardTask(env.Ctx, "t1", "boom", "agent-1"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	task, err := env.Store.GetBoardTask(env.Ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != "failed" || task.Output == nil || *task.Output != "ERROR: boom" {
		t.Fatalf("failure not recorded: %+v", task)
	}

	evts, err := env.Store.EventsSince(env.Ctx, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, e := range evts {
		if e.Type != "task_failed" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if payload["error"] == "boom" {
			found = true
		}
	}
	if !found {
		t.Fatalf("task_failed event missing")
	}
}

func TestResetBoardTask(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)
	if ok, _ := env.Store.ClaimTask(env.Ctx, "t1", "agent-1"); !ok {
		t.Fatalf("claim failed")
	}
	if err := env.Store.FailBoardTask(env.Ctx, "t1", "flaky network", "agent-1"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := env.Store.ResetBoardTask(env.Ctx, "t1", "tester"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	task, _ := env.Store.GetBoardTask(env.Ctx, "t1")
	if task.Status != "available" || task.ClaimedBy != nil || task.Output != nil {
		t.Fatalf("reset did not clear claim and output: %+v", task)
	}
	// reclaimable after reset
	if ok, err := env.Store.ClaimTask(env.Ctx, "t1", "agent-2"); err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}

	err := env.Store.ResetBoardTask(env.Ctx, "ghost", "tester")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("reset unknown: %v", err)
	}
	if err := env.Store.CompleteBoardTask(env.Ctx, "t1", nil, "agent-2"); err != nil {
		t.Fatal(err)
	}
	err = env.Store.ResetBoardTask(env.Ctx, "t1", "tester")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("reset complete task: %v", err)
	}
}

func TestGetTasksBatchOmitsMissing(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)
	mustCreateTask(t, env, "t2", "dir-1", 0, []string{"t1"})

	got, err := env.Store.GetTasksBatch(env.Ctx, []string{"t1", "ghost", "t2", "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("batch = %v", got)
	}
	if _, ok := got["ghost"]; ok {
		t.Fatalf("missing id present in batch")
	}
	if deps := got["t2"].DependsOn; len(deps) != 1 || deps[0] != "t1" {
		t.Fatalf("deps not attached: %+v", got["t2"])
	}
}

func TestGetTasksBatchEmptyInputIssuesNoQueries(t *testing.T) {
	env := newTestEnv(t)
	var queries []string
	env.Store.Observer = func(label string) { queries = append(queries, label) }
	got, err := env.Store.GetTasksBatch(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map")
	}
	if len(queries) != 0 {
		t.Fatalf("empty batch ran queries: %v", queries)
	}
}

func TestReassignTasks(t *testing.T) {
	env := newTestEnv(t)
	seedDirective(t, env, "dir-1")
	mustCreateTask(t, env, "t1", "dir-1", 0, nil)
	mustCreateTask(t, env, "t2", "dir-1", 0, nil)
	mustCreateTask(t, env, "t3", "dir-1", 0, nil)
	for id, agent := range map[string]string{"t1": "a", "t2": "b"} {
		if ok, _ := env.Store.ClaimTask(env.Ctx, id, agent); !ok {
			t.Fatalf("claim %s failed", id)
		}
	}

	moved, err := env.Store.ReassignTasks(env.Ctx, []string{"a", "b", "c"}, "merged", "tester")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d", moved)
	}
	for _, id := range []string{"t1", "t2"} {
		task, _ := env.Store.GetBoardTask(env.Ctx, id)
		if task.ClaimedBy == nil || *task.ClaimedBy != "merged" {
			t.Fatalf("task %s not reassigned: %+v", id, task)
		}
	}
	task, _ := env.Store.GetBoardTask(env.Ctx, "t3")
	if task.Status != "available" || task.ClaimedBy != nil {
		t.Fatalf("untouched task changed: %+v", task)
	}

	moved, err = env.Store.ReassignTasks(env.Ctx, nil, "merged", "tester")
	if err != nil || moved != 0 {
		t.Fatalf("empty reassign: n=%d err=%v", moved, err)
	}
}

package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/app"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/registry"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

func TestNewWiresComponentsTogether(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, app.Options{Workspace: t.TempDir(), Config: config.Default("wiring")})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	// Default roster carries an overseer plus two builders.
	agents, err := a.Registry.ActiveAgents(ctx)
	if err != nil {
		t.Fatalf("active agents: %v", err)
	}
	if len(agents) != 3 {
		t.Fatalf("roster seeded %d agents, want 3", len(agents))
	}

	if _, err := a.World.CreateDirective(ctx, world.DirectiveCreateOptions{
		ID: "dir-1", Text: "ship the demo", Actor: "overseer",
	}); err != nil {
		t.Fatalf("create directive: %v", err)
	}
	if _, err := a.World.CreateBoardTask(ctx, world.TaskCreateOptions{
		ID: "t-1", DirectiveID: "dir-1", Description: "write docs", Actor: "overseer",
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if ok, err := a.World.ClaimTask(ctx, "t-1", "builder-1"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	// The snapshot reaches the registry through the wired directory.
	snap, err := a.World.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Stats.ActiveAgents != 3 {
		t.Fatalf("snapshot agents = %d, want 3", snap.Stats.ActiveAgents)
	}

	// Consolidation reaches the world through the wired reassigner.
	if _, err := a.Registry.Consolidate(ctx, registry.ConsolidateOptions{
		IDs: []string{"builder-1", "builder-2"}, NewID: "crew", NewName: "Crew", Actor: "overseer",
	}); err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	task, err := a.World.GetBoardTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.ClaimedBy == nil || *task.ClaimedBy != "crew" {
		t.Fatalf("task owner = %v, want crew", task.ClaimedBy)
	}
}

func TestNewIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default("twice")

	first, err := app.New(ctx, app.Options{Workspace: dir, Config: cfg})
	if err != nil {
		t.Fatalf("first boot: %v", err)
	}
	if _, err := first.World.CreateDirective(ctx, world.DirectiveCreateOptions{
		ID: "dir-1", Text: "persisted", Actor: "overseer",
	}); err != nil {
		t.Fatalf("create directive: %v", err)
	}
	first.Close()

	second, err := app.New(ctx, app.Options{Workspace: dir, Config: cfg})
	if err != nil {
		t.Fatalf("second boot: %v", err)
	}
	defer second.Close()

	if _, err := second.World.GetDirective(ctx, "dir-1"); err != nil {
		t.Fatalf("directive lost across boots: %v", err)
	}
	agents, err := second.Registry.ActiveAgents(ctx)
	if err != nil {
		t.Fatalf("active agents: %v", err)
	}
	if len(agents) != 3 {
		t.Fatalf("roster re-seeded to %d agents, want 3", len(agents))
	}
}

func TestNewLoadsConfigFromWorkspace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	yml := "project:\n  name: fromfile\nbudgets:\n  session_hard_cap: 9.50\n"
	if err := os.WriteFile(filepath.Join(dir, "nexus.yml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := app.New(ctx, app.Options{Workspace: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.Config.Project.Name != "fromfile" {
		t.Fatalf("project = %q", a.Config.Project.Name)
	}
	if a.Config.Budgets.SessionHardCap != 9.50 {
		t.Fatalf("session cap = %v", a.Config.Budgets.SessionHardCap)
	}
}

func TestNewDegradesOnBrokenConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "nexus.yml"), []byte(":::not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := app.New(ctx, app.Options{Workspace: dir})
	if err != nil {
		t.Fatalf("broken config must degrade, not fail: %v", err)
	}
	defer a.Close()

	if a.Config == nil || a.Config.Budgets.SessionHardCap != 15.00 {
		t.Fatalf("expected default budgets, got %+v", a.Config)
	}
}

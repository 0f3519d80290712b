package registry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
)

func TestCircuitBreakerDerivedState(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "a1", "One", "sonnet", "")

	broken, err := env.Reg.IsCircuitBroken(env.Ctx, "a1")
	if err != nil || broken {
		t.Fatalf("fresh agent broken: %v %v", broken, err)
	}

	if _, err := env.Reg.RecordCircuitEvent(env.Ctx, "a1", "trip", "timeout"); err != nil {
		t.Fatalf("trip: %v", err)
	}
	broken, err = env.Reg.IsCircuitBroken(env.Ctx, "a1")
	if err != nil || !broken {
		t.Fatalf("expected broken after trip: %v %v", broken, err)
	}

	if _, err := env.Reg.RecordCircuitEvent(env.Ctx, "a1", "recovery", ""); err != nil {
		t.Fatalf("recovery: %v", err)
	}
	broken, err = env.Reg.IsCircuitBroken(env.Ctx, "a1")
	if err != nil || broken {
		t.Fatalf("expected recovered: %v %v", broken, err)
	}

	// trips after the last recovery reopen the circuit
	if _, err := env.Reg.RecordCircuitEvent(env.Ctx, "a1", "trip", "again"); err != nil {
		t.Fatal(err)
	}
	broken, _ = env.Reg.IsCircuitBroken(env.Ctx, "a1")
	if !broken {
		t.Fatalf("expected reopened circuit")
	}

	_, err = env.Reg.RecordCircuitEvent(env.Ctx, "a1", "explode", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad kind: %v", err)
	}
}

func TestReliabilityBatchAlwaysRows(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "flaky", "Flaky", "haiku", "")
	for i := 0; i < 3; i++ {
		if _, err := env.Reg.RecordCircuitEvent(env.Ctx, "flaky", "trip", "x"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Reg.RecordCircuitEvent(env.Ctx, "flaky", "recovery", ""); err != nil {
		t.Fatal(err)
	}

	got, err := env.Reg.ReliabilityBatch(env.Ctx, []string{"flaky", "steady", "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected a row per requested id: %+v", got)
	}
	if rel := got["flaky"]; rel.CircuitTrips != 3 || rel.Recoveries != 1 {
		t.Fatalf("flaky = %+v", rel)
	}
	if rel := got["ghost"]; rel.CircuitTrips != 0 || rel.Recoveries != 0 {
		t.Fatalf("ghost should have zero counts: %+v", rel)
	}

	var queries []string
	env.Reg.Observer = func(label string) { queries = append(queries, label) }
	empty, err := env.Reg.ReliabilityBatch(env.Ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty batch: %v %v", empty, err)
	}
	if len(queries) != 0 {
		t.Fatalf("empty batch ran queries: %v", queries)
	}
}

func TestReliabilityWindow(t *testing.T) {
	env := newTestEnv(t)
	mustHire(t, env, "a1", "One", "sonnet", "")

	// one old trip outside the window, one fresh trip inside it
	env.Reg.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := env.Reg.RecordCircuitEvent(env.Ctx, "a1", "trip", "old"); err != nil {
		t.Fatal(err)
	}
	env.Reg.Now = func() time.Time { return time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC) }
	if _, err := env.Reg.RecordCircuitEvent(env.Ctx, "a1", "trip", "fresh"); err != nil {
		t.Fatal(err)
	}

	rel, err := env.Reg.Reliability(env.Ctx, "a1", 24)
	if err != nil {
		t.Fatal(err)
	}
	if rel.CircuitTrips != 1 {
		t.Fatalf("windowed trips = %d", rel.CircuitTrips)
	}
	rel, err = env.Reg.Reliability(env.Ctx, "a1", 24*7)
	if err != nil {
		t.Fatal(err)
	}
	if rel.CircuitTrips != 2 {
		t.Fatalf("wide window trips = %d", rel.CircuitTrips)
	}

	// zero window means all time
	rel, err = env.Reg.Reliability(env.Ctx, "a1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if rel.CircuitTrips != 2 {
		t.Fatalf("all-time trips = %d", rel.CircuitTrips)
	}
}

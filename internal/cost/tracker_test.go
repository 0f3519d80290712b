package cost_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/cost"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/migrate"
)

type testEnv struct {
	Tracker *cost.Tracker
	Ctx     context.Context
}

func newTestEnv(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir}, db.CostDB)
	if err != nil {
		t.Fatalf("open cost db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, migrate.SetCost); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tr := cost.New(conn, cfg)
	tr.Now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	return testEnv{Tracker: tr, Ctx: context.Background()}
}

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestCalculateCost(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := env.Tracker

	approx(t, tr.CalculateCost("haiku", 1_000_000, 1_000_000), 1.50)
	approx(t, tr.CalculateCost("opus", 1_000_000, 0), 15.00)
	approx(t, tr.CalculateCost("sonnet", 0, 2_000_000), 30.00)
	approx(t, tr.CalculateCost("claude-code:opus", 5_000_000, 5_000_000), 0)

	// Unknown models are priced as sonnet, never rejected.
	approx(t, tr.CalculateCost("mystery-9b", 1_000_000, 0), 3.00)
}

func TestConfigPricingOverlaysDefaults(t *testing.T) {
	cfg := &config.Config{Pricing: map[string]config.ModelPrice{
		"opus":     {InputPerMTok: 10, OutputPerMTok: 50},
		"local-7b": {InputPerMTok: 0.01, OutputPerMTok: 0.02},
	}}
	env := newTestEnv(t, cfg)

	approx(t, env.Tracker.CalculateCost("opus", 1_000_000, 1_000_000), 60.00)
	approx(t, env.Tracker.CalculateCost("local-7b", 1_000_000, 1_000_000), 0.03)
	// Tiers the config does not mention keep their defaults.
	approx(t, env.Tracker.CalculateCost("haiku", 1_000_000, 1_000_000), 1.50)
}

func TestDowngradeLadder(t *testing.T) {
	cases := map[string]string{
		"opus":       "sonnet",
		"sonnet":     "haiku",
		"haiku":      "haiku",
		"gemini-2.5": "gemini-2.5",
	}
	for in, want := range cases {
		if got := cost.Downgrade(in); got != want {
			t.Fatalf("Downgrade(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordAccumulatesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := env.Tracker

	st, err := tr.Record(env.Ctx, cost.RecordOptions{
		Model: "haiku", AgentID: "builder-1", Project: "demo",
		InputTokens: 1_000_000, OutputTokens: 1_000_000,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	approx(t, st.Cost, 1.50)
	approx(t, st.SessionCost, 1.50)

	if _, err := tr.Record(env.Ctx, cost.RecordOptions{
		Model: "sonnet", AgentID: "builder-2", InputTokens: 500_000,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	s := tr.Session()
	approx(t, s.TotalCost, 3.00)
	if s.Records != 2 {
		t.Fatalf("records = %d, want 2", s.Records)
	}
	if s.InputTokens != 1_500_000 || s.OutputTokens != 1_000_000 {
		t.Fatalf("token totals = %d/%d", s.InputTokens, s.OutputTokens)
	}
	approx(t, s.ByModel["haiku"], 1.50)
	approx(t, s.ByAgent["builder-2"], 1.50)

	monthly, err := tr.MonthlyCost(env.Ctx)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	approx(t, monthly, 3.00)
}

func TestHourlyRateWarmup(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := env.Tracker
	now := tr.Now()

	if _, err := tr.Record(env.Ctx, cost.RecordOptions{Model: "haiku", InputTokens: 1_000_000}); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Session just started: rate is suppressed, not divided by ~zero.
	if rate := tr.HourlyRate(); rate != 0 {
		t.Fatalf("rate during warmup = %v, want 0", rate)
	}

	tr.SessionStart = now.Add(-30 * time.Second)
	if rate := tr.HourlyRate(); rate != 0 {
		t.Fatalf("rate at 30s = %v, want 0", rate)
	}

	tr.SessionStart = now.Add(-2 * time.Hour)
	approx(t, tr.HourlyRate(), 0.125)
}

func TestHourlyHardCapTriggersDowngrade(t *testing.T) {
	cfg := &config.Config{}
	cfg.Budgets.HourlyWarning = 0.0001
	cfg.Budgets.HourlyHardCap = 0.0005
	env := newTestEnv(t, cfg)
	tr := env.Tracker
	tr.SessionStart = tr.Now().Add(-time.Hour)

	st, err := tr.Record(env.Ctx, cost.RecordOptions{Model: "opus", AgentID: "overseer", InputTokens: 10_000})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !st.Downgrade {
		t.Fatal("expected downgrade after blowing the hourly cap")
	}
	if st.KillSession {
		t.Fatal("hourly cap must not kill the session")
	}
	if len(st.Alerts) != 2 {
		t.Fatalf("alerts = %v, want hourly warning and hard cap", st.Alerts)
	}
	if !strings.Contains(st.Alerts[1], "hard cap") {
		t.Fatalf("alerts[1] = %q", st.Alerts[1])
	}

	if got := tr.EffectiveModel("opus"); got != "sonnet" {
		t.Fatalf("EffectiveModel(opus) = %q, want sonnet", got)
	}
	if got := tr.EffectiveModel("haiku"); got != "haiku" {
		t.Fatalf("EffectiveModel(haiku) = %q, want haiku", got)
	}

	// Alerts fire once per session; the flag stays up.
	st, err = tr.Record(env.Ctx, cost.RecordOptions{Model: "opus", AgentID: "overseer", InputTokens: 10_000})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(st.Alerts) != 0 {
		t.Fatalf("repeat alerts = %v, want none", st.Alerts)
	}
	if !st.Downgrade {
		t.Fatal("downgrade must stay sticky")
	}

	tr.ResetDowngrade()
	if got := tr.EffectiveModel("opus"); got != "opus" {
		t.Fatalf("EffectiveModel after reset = %q, want opus", got)
	}
}

func TestSessionHardCapRepeatsKill(t *testing.T) {
	cfg := &config.Config{}
	cfg.Budgets.SessionHardCap = 2.00
	env := newTestEnv(t, cfg)
	tr := env.Tracker

	st, err := tr.Record(env.Ctx, cost.RecordOptions{Model: "sonnet", InputTokens: 1_000_000})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !st.KillSession {
		t.Fatal("expected kill at session hard cap")
	}
	if st.Downgrade {
		t.Fatal("session cap stops the session, it does not downgrade")
	}

	st, err = tr.Record(env.Ctx, cost.RecordOptions{Model: "haiku", InputTokens: 1_000})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !st.KillSession || len(st.Alerts) != 1 {
		t.Fatalf("kill must repeat on every call past the cap, got kill=%v alerts=%v", st.KillSession, st.Alerts)
	}
}

func TestMonthlyCostWindowsByUTCMonth(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := env.Tracker

	tr.Now = func() time.Time { return time.Date(2024, 2, 20, 8, 0, 0, 0, time.UTC) }
	if _, err := tr.Record(env.Ctx, cost.RecordOptions{Model: "opus", InputTokens: 1_000_000}); err != nil {
		t.Fatalf("record february: %v", err)
	}

	tr.Now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	if _, err := tr.Record(env.Ctx, cost.RecordOptions{Model: "haiku", InputTokens: 1_000_000, OutputTokens: 1_000_000}); err != nil {
		t.Fatalf("record march: %v", err)
	}

	monthly, err := tr.MonthlyCost(env.Ctx)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	approx(t, monthly, 1.50)
}

func TestAgentBreakdownOrdersAndLimits(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := env.Tracker

	for _, r := range []cost.RecordOptions{
		{Model: "haiku", AgentID: "cheap", InputTokens: 100_000},
		{Model: "opus", AgentID: "pricey", InputTokens: 1_000_000},
		{Model: "sonnet", AgentID: "middling", InputTokens: 1_000_000},
	} {
		if _, err := tr.Record(env.Ctx, r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	agents, err := tr.AgentBreakdown(env.Ctx, time.Time{}, 2)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("len = %d, want 2", len(agents))
	}
	if agents[0].AgentID != "pricey" || agents[1].AgentID != "middling" {
		t.Fatalf("order = %s, %s", agents[0].AgentID, agents[1].AgentID)
	}
	approx(t, agents[0].Cost, 15.00)
}

func TestCFOReportRenders(t *testing.T) {
	env := newTestEnv(t, nil)
	tr := env.Tracker

	if _, err := tr.Record(env.Ctx, cost.RecordOptions{
		Model: "sonnet", AgentID: "builder-1", InputTokens: 2_000_000, OutputTokens: 400_000,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	report, err := tr.CFOReport(env.Ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{
		"COST REPORT",
		"SESSION",
		"MONTH-TO-DATE",
		"BY MODEL (month)",
		"sonnet",
		"builder-1",
		"2024-03-10",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
}

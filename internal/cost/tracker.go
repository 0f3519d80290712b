package cost

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
)

// Budgets are the spend thresholds enforced on every recorded call.
// A threshold of zero is disabled.
type Budgets struct {
	HourlyWarning  float64
	HourlyHardCap  float64
	SessionWarning float64
	SessionHardCap float64
	MonthlyWarning float64
	MonthlyHardCap float64
}

// DefaultBudgets returns the thresholds used when no config overrides them.
func DefaultBudgets() Budgets {
	return Budgets{
		HourlyWarning:  1.00,
		HourlyHardCap:  2.50,
		SessionWarning: 5.00,
		SessionHardCap: 15.00,
		MonthlyWarning: 160.00,
		MonthlyHardCap: 250.00,
	}
}

// Tracker prices model calls, persists them to the cost ledger, and
// enforces budget thresholds. Session state (spend, alert dedup, the
// downgrade flag) lives in memory; the ledger carries history across
// sessions for monthly totals and reports.
type Tracker struct {
	DB       *sql.DB
	Now      func() time.Time
	Observer db.QueryObserver

	// SessionStart anchors the hourly spend rate. It is stamped on
	// first use when left zero.
	SessionStart time.Time

	budgets Budgets
	pricing map[string]Price

	mu           sync.Mutex
	sessionCost  float64
	inputTokens  int64
	outputTokens int64
	records      int
	byModel      map[string]float64
	byAgent      map[string]float64
	alerted      map[string]bool
	downgraded   bool
}

// New builds a tracker over an open cost database. cfg may be nil, in
// which case default pricing and budgets apply. Configured pricing
// overlays the defaults per model, so a config only needs to name the
// tiers it changes.
func New(conn *sql.DB, cfg *config.Config) *Tracker {
	t := &Tracker{
		DB:      conn,
		budgets: DefaultBudgets(),
		pricing: make(map[string]Price, len(defaultPricing)),
		byModel: make(map[string]float64),
		byAgent: make(map[string]float64),
		alerted: make(map[string]bool),
	}
	for model, p := range defaultPricing {
		t.pricing[model] = p
	}
	if cfg != nil {
		t.budgets = Budgets{
			HourlyWarning:  cfg.Budgets.HourlyWarning,
			HourlyHardCap:  cfg.Budgets.HourlyHardCap,
			SessionWarning: cfg.Budgets.SessionWarning,
			SessionHardCap: cfg.Budgets.SessionHardCap,
			MonthlyWarning: cfg.Budgets.MonthlyWarning,
			MonthlyHardCap: cfg.Budgets.MonthlyHardCap,
		}
		for model, p := range cfg.Pricing {
			t.pricing[model] = Price{InputPerMTok: p.InputPerMTok, OutputPerMTok: p.OutputPerMTok}
		}
	}
	return t
}

// Budgets returns the thresholds the tracker enforces.
func (t *Tracker) Budgets() Budgets { return t.budgets }

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tracker) observe(label string) {
	if t.Observer != nil {
		t.Observer(label)
	}
}

// RecordOptions describe one priced model call.
type RecordOptions struct {
	Model        string
	AgentID      string
	Project      string
	InputTokens  int64
	OutputTokens int64
}

// BudgetStatus is returned from every Record call so the caller can
// react immediately: surface alerts, route the next call to a cheaper
// tier, or stop the session.
type BudgetStatus struct {
	Cost        float64  `json:"cost"`
	SessionCost float64  `json:"session_cost"`
	HourlyRate  float64  `json:"hourly_rate"`
	Alerts      []string `json:"alerts,omitempty"`
	Downgrade   bool     `json:"downgrade"`
	KillSession bool     `json:"kill_session"`
}

// Record prices the call, appends it to the ledger, and runs the budget
// checks in escalation order: hourly, session, monthly. Warning and
// hard-cap alerts fire once per session except the session hard cap,
// which repeats on every call past it so a looping caller cannot miss
// the stop signal. Calls are serialized; concurrent recorders see a
// consistent session total.
func (t *Tracker) Record(ctx context.Context, opts RecordOptions) (BudgetStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.SessionStart.IsZero() {
		t.SessionStart = now
	}

	cost := t.CalculateCost(opts.Model, opts.InputTokens, opts.OutputTokens)

	t.observe("cost.record")
	_, err := t.DB.ExecContext(ctx,
		`INSERT INTO cost_ledger (model, agent_id, project, input_tokens, output_tokens, cost, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		opts.Model, opts.AgentID, opts.Project, opts.InputTokens, opts.OutputTokens, cost,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("record cost: %w", err)
	}

	t.sessionCost += cost
	t.inputTokens += opts.InputTokens
	t.outputTokens += opts.OutputTokens
	t.records++
	t.byModel[opts.Model] += cost
	t.byAgent[opts.AgentID] += cost

	status := BudgetStatus{
		Cost:        cost,
		SessionCost: t.sessionCost,
		HourlyRate:  t.hourlyRate(now),
	}
	monthly, err := t.monthlyCost(ctx, now)
	if err != nil {
		return BudgetStatus{}, err
	}
	t.checkBudgets(&status, monthly)
	return status, nil
}

// checkBudgets appends alerts and sets the downgrade and kill flags.
// Caller holds the lock.
func (t *Tracker) checkBudgets(status *BudgetStatus, monthly float64) {
	b := t.budgets

	if b.HourlyWarning > 0 && status.HourlyRate >= b.HourlyWarning {
		t.alertOnce(status, "hourly_warning",
			fmt.Sprintf("hourly spend $%.2f/hr over warning threshold $%.2f", status.HourlyRate, b.HourlyWarning))
	}
	if b.HourlyHardCap > 0 && status.HourlyRate >= b.HourlyHardCap {
		t.alertOnce(status, "hourly_hard_cap",
			fmt.Sprintf("hourly spend $%.2f/hr over hard cap $%.2f, downgrading model tier", status.HourlyRate, b.HourlyHardCap))
		t.downgraded = true
	}
	if b.SessionWarning > 0 && t.sessionCost >= b.SessionWarning {
		t.alertOnce(status, "session_warning",
			fmt.Sprintf("session spend $%.2f over warning threshold $%.2f", t.sessionCost, b.SessionWarning))
	}
	if b.SessionHardCap > 0 && t.sessionCost >= b.SessionHardCap {
		// Not deduplicated: the stop signal repeats until the caller stops.
		status.Alerts = append(status.Alerts,
			fmt.Sprintf("session spend $%.2f over hard cap $%.2f, stop the session", t.sessionCost, b.SessionHardCap))
		status.KillSession = true
	}
	if b.MonthlyWarning > 0 && monthly >= b.MonthlyWarning {
		t.alertOnce(status, "monthly_warning",
			fmt.Sprintf("monthly spend $%.2f over warning threshold $%.2f", monthly, b.MonthlyWarning))
	}
	if b.MonthlyHardCap > 0 && monthly >= b.MonthlyHardCap {
		t.alertOnce(status, "monthly_hard_cap",
			fmt.Sprintf("monthly spend $%.2f over hard cap $%.2f, downgrading model tier", monthly, b.MonthlyHardCap))
		t.downgraded = true
	}
	status.Downgrade = t.downgraded
}

func (t *Tracker) alertOnce(status *BudgetStatus, key, message string) {
	if t.alerted[key] {
		return
	}
	t.alerted[key] = true
	status.Alerts = append(status.Alerts, message)
}

// hourlyRate reports session spend per hour. The first minute returns
// zero; dividing by a near-zero elapsed time turns one cheap call into
// an absurd rate that would trip the caps instantly.
func (t *Tracker) hourlyRate(now time.Time) float64 {
	if t.SessionStart.IsZero() {
		return 0
	}
	elapsed := now.Sub(t.SessionStart)
	if elapsed < time.Minute {
		return 0
	}
	return t.sessionCost / elapsed.Hours()
}

// HourlyRate reports the current session spend rate in dollars per hour.
func (t *Tracker) HourlyRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hourlyRate(t.now())
}

// EffectiveModel resolves the model a call should actually use. While
// the tracker is downgraded every requested tier maps one step down the
// ladder; haiku stays haiku.
func (t *Tracker) EffectiveModel(requested string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.downgraded {
		return requested
	}
	return Downgrade(requested)
}

// Downgraded reports whether a hard cap has forced cheaper tiers.
func (t *Tracker) Downgraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downgraded
}

// ResetDowngrade clears the downgrade flag. The flag is sticky on
// purpose: spend rate falls as soon as cheaper tiers kick in, and
// flapping back to opus would restart the cycle. Only an operator
// decision ends it.
func (t *Tracker) ResetDowngrade() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downgraded = false
}

func (t *Tracker) monthlyCost(ctx context.Context, now time.Time) (float64, error) {
	monthStart := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	t.observe("cost.monthly")
	var total float64
	err := t.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM cost_ledger WHERE at >= ?`,
		monthStart.Format(time.RFC3339)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum monthly cost: %w", err)
	}
	return total, nil
}

// MonthlyCost sums ledger spend since the start of the current UTC month.
func (t *Tracker) MonthlyCost(ctx context.Context) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monthlyCost(ctx, t.now())
}

// SessionSummary is a point-in-time view of the in-memory session state.
type SessionSummary struct {
	StartedAt    time.Time          `json:"started_at"`
	Duration     time.Duration      `json:"duration"`
	TotalCost    float64            `json:"total_cost"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	Records      int                `json:"records"`
	ByModel      map[string]float64 `json:"by_model"`
	ByAgent      map[string]float64 `json:"by_agent"`
	Downgraded   bool               `json:"downgraded"`
}

// Session reports everything recorded since the tracker started.
func (t *Tracker) Session() SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := SessionSummary{
		StartedAt:    t.SessionStart,
		TotalCost:    t.sessionCost,
		InputTokens:  t.inputTokens,
		OutputTokens: t.outputTokens,
		Records:      t.records,
		ByModel:      make(map[string]float64, len(t.byModel)),
		ByAgent:      make(map[string]float64, len(t.byAgent)),
		Downgraded:   t.downgraded,
	}
	if !t.SessionStart.IsZero() {
		s.Duration = t.now().Sub(t.SessionStart)
	}
	for model, cost := range t.byModel {
		s.ByModel[model] = cost
	}
	for agent, cost := range t.byAgent {
		s.ByAgent[agent] = cost
	}
	return s
}

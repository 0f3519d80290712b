package cost

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ModelCost aggregates ledger spend for one model.
type ModelCost struct {
	Model        string  `json:"model"`
	Cost         float64 `json:"cost"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Calls        int     `json:"calls"`
}

// AgentCost aggregates ledger spend for one agent.
type AgentCost struct {
	AgentID      string  `json:"agent_id"`
	Cost         float64 `json:"cost"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Calls        int     `json:"calls"`
}

// DailyCost aggregates ledger spend for one UTC day.
type DailyCost struct {
	Day   string  `json:"day"`
	Cost  float64 `json:"cost"`
	Calls int     `json:"calls"`
}

// ModelBreakdown sums spend per model since the given time. A zero
// since covers the whole ledger. Most expensive model first.
func (t *Tracker) ModelBreakdown(ctx context.Context, since time.Time) ([]ModelCost, error) {
	t.observe("cost.by_model")
	rows, err := t.DB.QueryContext(ctx,
		`SELECT model, SUM(cost), SUM(input_tokens), SUM(output_tokens), COUNT(*)
		 FROM cost_ledger WHERE at >= ?
		 GROUP BY model ORDER BY SUM(cost) DESC`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("cost by model: %w", err)
	}
	defer rows.Close()

	var out []ModelCost
	for rows.Next() {
		var m ModelCost
		if err := rows.Scan(&m.Model, &m.Cost, &m.InputTokens, &m.OutputTokens, &m.Calls); err != nil {
			return nil, fmt.Errorf("scan model cost: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AgentBreakdown sums spend per agent since the given time, most
// expensive first, capped at limit rows (default 10).
func (t *Tracker) AgentBreakdown(ctx context.Context, since time.Time, limit int) ([]AgentCost, error) {
	if limit <= 0 {
		limit = 10
	}
	t.observe("cost.by_agent")
	rows, err := t.DB.QueryContext(ctx,
		`SELECT agent_id, SUM(cost), SUM(input_tokens), SUM(output_tokens), COUNT(*)
		 FROM cost_ledger WHERE at >= ?
		 GROUP BY agent_id ORDER BY SUM(cost) DESC LIMIT ?`,
		since.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("cost by agent: %w", err)
	}
	defer rows.Close()

	var out []AgentCost
	for rows.Next() {
		var a AgentCost
		if err := rows.Scan(&a.AgentID, &a.Cost, &a.InputTokens, &a.OutputTokens, &a.Calls); err != nil {
			return nil, fmt.Errorf("scan agent cost: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DailyBreakdown sums spend per UTC day for the last days days, newest
// first. Days with no ledger rows are absent.
func (t *Tracker) DailyBreakdown(ctx context.Context, days int) ([]DailyCost, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := t.now().UTC().AddDate(0, 0, -days+1)
	cutoff = time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)
	t.observe("cost.daily")
	rows, err := t.DB.QueryContext(ctx,
		`SELECT substr(at, 1, 10), SUM(cost), COUNT(*)
		 FROM cost_ledger WHERE at >= ?
		 GROUP BY substr(at, 1, 10) ORDER BY substr(at, 1, 10) DESC`,
		cutoff.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("daily cost: %w", err)
	}
	defer rows.Close()

	var out []DailyCost
	for rows.Next() {
		var d DailyCost
		if err := rows.Scan(&d.Day, &d.Cost, &d.Calls); err != nil {
			return nil, fmt.Errorf("scan daily cost: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(now time.Time) int {
	start := monthStart(now)
	return start.AddDate(0, 1, -1).Day()
}

func humanTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// CFOReport renders a plain-text spend report: the live session, the
// month to date with a straight-line projection, and per-model,
// per-agent, and per-day breakdowns from the ledger.
func (t *Tracker) CFOReport(ctx context.Context) (string, error) {
	now := t.now().UTC()
	session := t.Session()
	monthly, err := t.MonthlyCost(ctx)
	if err != nil {
		return "", err
	}
	byModel, err := t.ModelBreakdown(ctx, monthStart(now))
	if err != nil {
		return "", err
	}
	byAgent, err := t.AgentBreakdown(ctx, monthStart(now), 10)
	if err != nil {
		return "", err
	}
	daily, err := t.DailyBreakdown(ctx, 7)
	if err != nil {
		return "", err
	}

	projected := monthly
	if day := now.Day(); day > 0 {
		projected = monthly / float64(day) * float64(daysInMonth(now))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "COST REPORT  %s\n\n", now.Format(time.RFC3339))

	fmt.Fprintf(&b, "SESSION\n")
	fmt.Fprintf(&b, "  spend: $%.4f over %s (%d calls)\n", session.TotalCost, session.Duration.Round(time.Second), session.Records)
	fmt.Fprintf(&b, "  tokens: %s in / %s out\n", humanTokens(session.InputTokens), humanTokens(session.OutputTokens))
	fmt.Fprintf(&b, "  hourly rate: $%.2f/hr\n", t.HourlyRate())
	routing := "normal"
	if session.Downgraded {
		routing = "downgraded"
	}
	fmt.Fprintf(&b, "  model routing: %s\n\n", routing)

	fmt.Fprintf(&b, "MONTH-TO-DATE\n")
	fmt.Fprintf(&b, "  spend: $%.2f of $%.2f hard cap\n", monthly, t.budgets.MonthlyHardCap)
	fmt.Fprintf(&b, "  projected: $%.2f by month end\n\n", projected)

	fmt.Fprintf(&b, "BY MODEL (month)\n")
	if len(byModel) == 0 {
		fmt.Fprintf(&b, "  no spend recorded\n")
	}
	for _, m := range byModel {
		fmt.Fprintf(&b, "  %-20s $%8.4f  %8s in / %8s out  %d calls\n",
			m.Model, m.Cost, humanTokens(m.InputTokens), humanTokens(m.OutputTokens), m.Calls)
	}
	fmt.Fprintf(&b, "\nBY AGENT (month, top 10)\n")
	if len(byAgent) == 0 {
		fmt.Fprintf(&b, "  no spend recorded\n")
	}
	for _, a := range byAgent {
		id := a.AgentID
		if id == "" {
			id = "(unattributed)"
		}
		fmt.Fprintf(&b, "  %-20s $%8.4f  %d calls\n", id, a.Cost, a.Calls)
	}
	fmt.Fprintf(&b, "\nDAILY (last 7 days)\n")
	if len(daily) == 0 {
		fmt.Fprintf(&b, "  no spend recorded\n")
	}
	for _, d := range daily {
		fmt.Fprintf(&b, "  %s  $%8.4f  %d calls\n", d.Day, d.Cost, d.Calls)
	}
	return b.String(), nil
}

package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/config"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
)

// OrgNode is one agent in the reporting tree with its subtree attached.
type OrgNode struct {
	Agent   domain.AgentRecord `json:"agent"`
	Reports []*OrgNode         `json:"reports"`
}

// DirectReports lists the agents reporting to one manager in a single
// query.
func (r Registry) DirectReports(ctx context.Context, managerID string) ([]domain.AgentRecord, error) {
	r.observe("agents.direct_reports")
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE reports_to=? ORDER BY rowid ASC`, managerID)
	if err != nil {
		return nil, err
	}
	return collectAgents(rows)
}

// ReportingTree builds the org tree under rootID from one fetch of the
// whole roster, assembling parent links in memory. An empty rootID
// starts at the top of the org.
func (r Registry) ReportingTree(ctx context.Context, rootID string) (*OrgNode, error) {
	agents, err := r.ActiveAgents(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*OrgNode, len(agents))
	for _, a := range agents {
		nodes[a.ID] = &OrgNode{Agent: a}
	}
	var roots []*OrgNode
	for _, a := range agents {
		node := nodes[a.ID]
		if a.ReportsTo == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*a.ReportsTo]
		if !ok {
			// dangling manager reference, treat as a root
			roots = append(roots, node)
			continue
		}
		parent.Reports = append(parent.Reports, node)
	}
	if rootID != "" {
		node, ok := nodes[rootID]
		if !ok {
			return nil, fmt.Errorf("%w: agent %s", domain.ErrNotFound, rootID)
		}
		return node, nil
	}
	if len(roots) == 0 {
		return nil, nil
	}
	return roots[0], nil
}

// Reassign points an agent at a new manager. The cycle check walks the
// manager chain over one roster fetch rather than per-hop queries.
func (r Registry) Reassign(ctx context.Context, id, newManagerID string) error {
	if id == newManagerID {
		return fmt.Errorf("%w: agent cannot report to itself", domain.ErrValidation)
	}
	agents, err := r.ActiveAgents(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]domain.AgentRecord, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}
	if _, ok := byID[id]; !ok {
		return fmt.Errorf("%w: agent %s", domain.ErrNotFound, id)
	}
	if _, ok := byID[newManagerID]; newManagerID != "" && !ok {
		return fmt.Errorf("%w: unknown manager %s", domain.ErrValidation, newManagerID)
	}
	// walk up from the new manager; finding id means a cycle. The walk
	// is bounded by the roster size in case stored links already loop.
	cur := newManagerID
	for range agents {
		a, ok := byID[cur]
		if !ok || a.ReportsTo == nil {
			break
		}
		if *a.ReportsTo == id {
			return fmt.Errorf("%w: reassigning %s under %s creates a cycle", domain.ErrValidation, id, newManagerID)
		}
		cur = *a.ReportsTo
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r.observe("agents.reassign")
	var newManager any
	if newManagerID != "" {
		newManager = newManagerID
	}
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET reports_to=? WHERE id=?`, newManager, id); err != nil {
		return err
	}
	if err := r.logChange(ctx, tx, "reassigned", id, "now reports to "+orLabel(newManagerID, "nobody")); err != nil {
		return err
	}
	return tx.Commit()
}

type ConsolidateOptions struct {
	IDs            []string
	NewID          string
	NewName        string
	NewDescription string
	Actor          string
}

// Consolidate merges several agents into one. Direct reports of any
// merged agent are re-pointed to the new agent, claimed board tasks move
// over through the task reassigner, and the merged agents are removed.
// Every step is one batched statement, so the work stays bounded no
// matter how many reports or tasks the merged agents had.
func (r Registry) Consolidate(ctx context.Context, opts ConsolidateOptions) (domain.AgentRecord, error) {
	if len(opts.IDs) == 0 {
		return domain.AgentRecord{}, fmt.Errorf("%w: nothing to consolidate", domain.ErrValidation)
	}
	if opts.NewID == "" || opts.NewName == "" {
		return domain.AgentRecord{}, fmt.Errorf("%w: new agent id and name are required", domain.ErrValidation)
	}
	merged := map[string]bool{}
	for _, id := range opts.IDs {
		merged[id] = true
	}
	if merged[opts.NewID] {
		return domain.AgentRecord{}, fmt.Errorf("%w: new id %s is among the consolidated agents", domain.ErrValidation, opts.NewID)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	defer tx.Rollback()

	r.observe("agents.exists")
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id=?`, opts.NewID).Scan(&one)
	if err == nil {
		return domain.AgentRecord{}, fmt.Errorf("%w: agent %s", domain.ErrConflict, opts.NewID)
	}
	if err != sql.ErrNoRows {
		return domain.AgentRecord{}, err
	}

	args := make([]any, 0, len(opts.IDs))
	for _, id := range opts.IDs {
		args = append(args, id)
	}
	r.observe("agents.batch")
	rows, err := tx.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	victims, err := collectAgents(rows)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	found := map[string]domain.AgentRecord{}
	for _, a := range victims {
		found[a.ID] = a
	}
	for _, id := range opts.IDs {
		if _, ok := found[id]; !ok {
			return domain.AgentRecord{}, fmt.Errorf("%w: unknown agent %s", domain.ErrValidation, id)
		}
	}

	first := found[opts.IDs[0]]
	a := domain.AgentRecord{
		ID:          opts.NewID,
		Name:        opts.NewName,
		Role:        first.Role,
		Model:       first.Model,
		Status:      "idle",
		Description: opts.NewDescription,
		HiredAt:     r.now().UTC().Format(time.RFC3339),
	}
	// the merged agent inherits the strongest model of its parts and the
	// first agent's manager, unless that manager is itself merged away
	for _, v := range victims {
		if modelTier(v.Model) > modelTier(a.Model) {
			a.Model = v.Model
		}
	}
	if first.ReportsTo != nil && !merged[*first.ReportsTo] {
		a.ReportsTo = first.ReportsTo
	}

	r.observe("agents.insert")
	if _, err := tx.ExecContext(ctx, `INSERT INTO agents(id,name,role,model,status,reports_to,last_action,description,hired_at) VALUES (?,?,?,?,?,?,'',?,?)`,
		a.ID, a.Name, a.Role, a.Model, a.Status, nullableStringPtr(a.ReportsTo), a.Description, a.HiredAt); err != nil {
		return domain.AgentRecord{}, err
	}
	r.observe("agents.repoint")
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET reports_to=? WHERE reports_to IN (`+placeholders(len(args))+`)`,
		append([]any{opts.NewID}, args...)...); err != nil {
		return domain.AgentRecord{}, err
	}
	r.observe("agents.delete")
	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id IN (`+placeholders(len(args))+`)`, args...); err != nil {
		return domain.AgentRecord{}, err
	}
	if err := r.logChange(ctx, tx, "consolidated", a.ID, strings.Join(opts.IDs, ",")+" -> "+a.ID); err != nil {
		return domain.AgentRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AgentRecord{}, err
	}

	if r.Tasks != nil {
		if _, err := r.Tasks.ReassignTasks(ctx, opts.IDs, a.ID, opts.Actor); err != nil {
			return a, fmt.Errorf("reassign tasks after consolidation: %w", err)
		}
	}
	return a, nil
}

// modelTier ranks models for consolidation; higher wins.
func modelTier(model string) int {
	switch model {
	case "opus":
		return 3
	case "sonnet":
		return 2
	case "haiku":
		return 1
	default:
		return 0
	}
}

// OrgSummary aggregates the roster by role.
type OrgSummaryReport struct {
	Total  int            `json:"total"`
	ByRole map[string]int `json:"by_role"`
	Roots  []string       `json:"roots"`
}

func (r Registry) OrgSummary(ctx context.Context) (OrgSummaryReport, error) {
	rep := OrgSummaryReport{ByRole: map[string]int{}, Roots: []string{}}
	agents, err := r.ActiveAgents(ctx)
	if err != nil {
		return rep, err
	}
	rep.Total = len(agents)
	for _, a := range agents {
		role := a.Role
		if role == "" {
			role = "unassigned"
		}
		rep.ByRole[role]++
		if a.ReportsTo == nil {
			rep.Roots = append(rep.Roots, a.ID)
		}
	}
	return rep, nil
}

// SeedRoster inserts configured agents that are not already present and
// returns how many were added. Existing rows are left untouched, so
// seeding is idempotent across restarts.
func (r Registry) SeedRoster(ctx context.Context, roster []config.RosterAgent) (int, error) {
	if len(roster) == 0 {
		return 0, nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := r.now().UTC().Format(time.RFC3339)
	added := 0
	for _, a := range roster {
		r.observe("agents.seed")
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO agents(id,name,role,model,status,reports_to,last_action,description,hired_at) VALUES (?,?,?,?,'idle',?,'','',?)`,
			a.ID, orLabel(a.Name, a.ID), a.Role, a.Model, nullable(a.ReportsTo), now)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			added++
			if err := r.logChange(ctx, tx, "hired", a.ID, "seeded from roster"); err != nil {
				return 0, err
			}
		}
	}
	return added, tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func orLabel(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

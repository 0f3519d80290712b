package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
)

// TaskReassigner moves claimed board tasks between agents during
// consolidation. The world store implements it; a nil reassigner skips
// the task handoff.
type TaskReassigner interface {
	ReassignTasks(ctx context.Context, fromIDs []string, toID, actor string) (int, error)
}

// Registry owns the agent database: the org roster, the circuit-event
// log, the org changelog and agent API keys.
type Registry struct {
	DB       *sql.DB
	Tasks    TaskReassigner
	Now      func() time.Time
	Observer db.QueryObserver
}

func New(conn *sql.DB) Registry {
	return Registry{
		DB:  conn,
		Now: time.Now,
	}
}

func (r Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Registry) observe(label string) {
	if r.Observer != nil {
		r.Observer(label)
	}
}

type HireOptions struct {
	ID          string
	Name        string
	Role        string
	Model       string
	ReportsTo   string
	Description string
}

// Hire registers an agent. The id defaults to a fresh uuid; reports_to
// must name an existing agent.
func (r Registry) Hire(ctx context.Context, opts HireOptions) (domain.AgentRecord, error) {
	if opts.Name == "" {
		return domain.AgentRecord{}, fmt.Errorf("%w: agent name is required", domain.ErrValidation)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	a := domain.AgentRecord{
		ID:          id,
		Name:        opts.Name,
		Role:        opts.Role,
		Model:       opts.Model,
		Status:      "idle",
		ReportsTo:   optionalString(opts.ReportsTo),
		Description: opts.Description,
		HiredAt:     r.now().UTC().Format(time.RFC3339),
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	defer tx.Rollback()

	r.observe("agents.exists")
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id=?`, a.ID).Scan(&one)
	if err == nil {
		return domain.AgentRecord{}, fmt.Errorf("%w: agent %s", domain.ErrConflict, a.ID)
	}
	if err != sql.ErrNoRows {
		return domain.AgentRecord{}, err
	}
	if opts.ReportsTo != "" {
		r.observe("agents.exists")
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id=?`, opts.ReportsTo).Scan(&one)
		if err == sql.ErrNoRows {
			return domain.AgentRecord{}, fmt.Errorf("%w: unknown manager %s", domain.ErrValidation, opts.ReportsTo)
		}
		if err != nil {
			return domain.AgentRecord{}, err
		}
	}
	r.observe("agents.insert")
	if _, err := tx.ExecContext(ctx, `INSERT INTO agents(id,name,role,model,status,reports_to,last_action,description,hired_at) VALUES (?,?,?,?,?,?,'',?,?)`,
		a.ID, a.Name, a.Role, a.Model, a.Status, nullableStringPtr(a.ReportsTo), a.Description, a.HiredAt); err != nil {
		return domain.AgentRecord{}, fmt.Errorf("insert agent: %w", err)
	}
	if err := r.logChange(ctx, tx, "hired", a.ID, a.Name); err != nil {
		return domain.AgentRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AgentRecord{}, err
	}
	return a, nil
}

// Fire removes an agent. Its direct reports are re-pointed to the fired
// agent's own manager, which keeps the rest of the tree attached.
func (r Registry) Fire(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r.observe("agents.get")
	var managerID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT reports_to FROM agents WHERE id=?`, id).Scan(&managerID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: agent %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	r.observe("agents.repoint")
	if _, err := tx.ExecContext(ctx, `UPDATE agents SET reports_to=? WHERE reports_to=?`, nullableNull(managerID), id); err != nil {
		return err
	}
	r.observe("agents.delete")
	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id=?`, id); err != nil {
		return err
	}
	if err := r.logChange(ctx, tx, "fired", id, ""); err != nil {
		return err
	}
	return tx.Commit()
}

const agentColumns = `id,name,role,model,status,reports_to,last_action,description,hired_at`

func scanAgent(scan func(dest ...any) error) (domain.AgentRecord, error) {
	var a domain.AgentRecord
	var reportsTo sql.NullString
	err := scan(&a.ID, &a.Name, &a.Role, &a.Model, &a.Status, &reportsTo, &a.LastAction, &a.Description, &a.HiredAt)
	if err != nil {
		return a, err
	}
	if reportsTo.Valid {
		a.ReportsTo = &reportsTo.String
	}
	return a, nil
}

func (r Registry) Get(ctx context.Context, id string) (domain.AgentRecord, error) {
	r.observe("agents.get")
	row := r.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=?`, id)
	a, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return a, fmt.Errorf("%w: agent %s", domain.ErrNotFound, id)
	}
	return a, err
}

// ActiveAgents returns every registered agent regardless of status, in
// hire order. It backs world snapshots as the agent directory.
func (r Registry) ActiveAgents(ctx context.Context) ([]domain.AgentRecord, error) {
	r.observe("agents.list")
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	return collectAgents(rows)
}

func collectAgents(rows *sql.Rows) ([]domain.AgentRecord, error) {
	defer rows.Close()
	var res []domain.AgentRecord
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

type UpdateOptions struct {
	Status      *string
	LastAction  *string
	Name        *string
	Model       *string
	Role        *string
	Description *string
}

// Update applies a whitelisted partial update to an agent record.
func (r Registry) Update(ctx context.Context, id string, opts UpdateOptions) (domain.AgentRecord, error) {
	var (
		fields []string
		args   []any
	)
	if opts.Status != nil {
		if *opts.Status != "idle" && *opts.Status != "working" {
			return domain.AgentRecord{}, fmt.Errorf("%w: status must be idle or working", domain.ErrValidation)
		}
		fields = append(fields, "status=?")
		args = append(args, *opts.Status)
	}
	if opts.LastAction != nil {
		fields = append(fields, "last_action=?")
		args = append(args, *opts.LastAction)
	}
	if opts.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *opts.Name)
	}
	if opts.Model != nil {
		fields = append(fields, "model=?")
		args = append(args, *opts.Model)
	}
	if opts.Role != nil {
		fields = append(fields, "role=?")
		args = append(args, *opts.Role)
	}
	if opts.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *opts.Description)
	}
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}
	args = append(args, id)
	r.observe("agents.update")
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE agents SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.AgentRecord{}, fmt.Errorf("%w: agent %s", domain.ErrNotFound, id)
	}
	return r.Get(ctx, id)
}

// AgentsBatch maps ids to records, silently omitting unknown ids.
// Empty input returns an empty map without touching the database.
func (r Registry) AgentsBatch(ctx context.Context, ids []string) (map[string]domain.AgentRecord, error) {
	res := map[string]domain.AgentRecord{}
	if len(ids) == 0 {
		return res, nil
	}
	seen := map[string]bool{}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		args = append(args, id)
	}
	r.observe("agents.batch")
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return nil, err
	}
	agents, err := collectAgents(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		res[a.ID] = a
	}
	return res, nil
}

func (r Registry) logChange(ctx context.Context, tx *sql.Tx, action, agentID, detail string) error {
	r.observe("changelog.insert")
	_, err := tx.ExecContext(ctx, `INSERT INTO org_changelog(action,agent_id,detail,created_at) VALUES (?,?,?,?)`,
		action, agentID, detail, r.now().UTC().Format(time.RFC3339))
	return err
}

// Changelog returns the newest org changes first.
func (r Registry) Changelog(ctx context.Context, limit int) ([]domain.OrgChange, error) {
	if limit <= 0 {
		limit = 50
	}
	r.observe("changelog.list")
	rows, err := r.DB.QueryContext(ctx, `SELECT id,action,agent_id,detail,created_at FROM org_changelog ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrgChange
	for rows.Next() {
		var c domain.OrgChange
		if err := rows.Scan(&c.ID, &c.Action, &c.AgentID, &c.Detail, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableNull(v sql.NullString) any {
	if !v.Valid {
		return nil
	}
	return v.String
}

func placeholders(n int) string {
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}

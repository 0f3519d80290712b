package world

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/events"
)

type DefectFileOptions struct {
	ID          string
	DirectiveID string
	TaskID      string
	Title       string
	Description string
	Severity    string
	FiledBy     string
}

// FileDefect records a defect against a directive, optionally bound to
// one of its tasks.
func (s Store) FileDefect(ctx context.Context, opts DefectFileOptions) (domain.Defect, error) {
	if opts.DirectiveID == "" {
		return domain.Defect{}, fmt.Errorf("%w: directive id is required", domain.ErrValidation)
	}
	if opts.Title == "" {
		return domain.Defect{}, fmt.Errorf("%w: defect title is required", domain.ErrValidation)
	}
	if opts.FiledBy == "" {
		return domain.Defect{}, fmt.Errorf("%w: filed_by is required", domain.ErrValidation)
	}
	if opts.Severity == "" {
		opts.Severity = "medium"
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	d := domain.Defect{
		ID:          id,
		DirectiveID: opts.DirectiveID,
		TaskID:      optionalString(opts.TaskID),
		Title:       opts.Title,
		Description: opts.Description,
		Severity:    opts.Severity,
		FiledBy:     opts.FiledBy,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Defect{}, err
	}
	defer tx.Rollback()

	s.observe("directives.exists")
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM directives WHERE id=?`, d.DirectiveID).Scan(&one)
	if err == sql.ErrNoRows {
		return domain.Defect{}, fmt.Errorf("%w: unknown directive %s", domain.ErrValidation, d.DirectiveID)
	}
	if err != nil {
		return domain.Defect{}, err
	}
	if opts.TaskID != "" {
		s.observe("tasks.get")
		var taskDirective string
		err = tx.QueryRowContext(ctx, `SELECT directive_id FROM board_tasks WHERE id=?`, opts.TaskID).Scan(&taskDirective)
		if err == sql.ErrNoRows {
			return domain.Defect{}, fmt.Errorf("%w: unknown task %s", domain.ErrValidation, opts.TaskID)
		}
		if err != nil {
			return domain.Defect{}, err
		}
		if taskDirective != d.DirectiveID {
			return domain.Defect{}, fmt.Errorf("%w: task %s belongs to directive %s", domain.ErrValidation, opts.TaskID, taskDirective)
		}
	}
	s.observe("defects.insert")
	if _, err := tx.ExecContext(ctx, `INSERT INTO defects(id,directive_id,task_id,title,description,severity,filed_by,assigned_to,resolved_at,created_at) VALUES (?,?,?,?,?,?,?,NULL,NULL,?)`,
		d.ID, d.DirectiveID, nullableStringPtr(d.TaskID), d.Title, d.Description, d.Severity, d.FiledBy, d.CreatedAt); err != nil {
		return domain.Defect{}, fmt.Errorf("insert defect: %w", err)
	}
	if _, err := s.Events.Append(ctx, tx, opts.FiledBy, "defect_filed", events.EventPayload{
		"defect_id":    d.ID,
		"directive_id": d.DirectiveID,
		"severity":     d.Severity,
	}); err != nil {
		return domain.Defect{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Defect{}, err
	}
	return d, nil
}

func (s Store) AssignDefect(ctx context.Context, id, agentID, actor string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s.observe("defects.assign")
	res, err := tx.ExecContext(ctx, `UPDATE defects SET assigned_to=? WHERE id=?`, nullable(agentID), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: defect %s", domain.ErrNotFound, id)
	}
	if _, err := s.Events.Append(ctx, tx, actor, "defect_assigned", events.EventPayload{
		"defect_id": id,
		"agent_id":  agentID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ResolveDefect closes a defect. Resolution is one-way: a second call
// reports false without error.
func (s Store) ResolveDefect(ctx context.Context, id, actor string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	s.observe("defects.resolve")
	res, err := tx.ExecContext(ctx, `UPDATE defects SET resolved_at=? WHERE id=? AND resolved_at IS NULL`,
		s.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.observe("defects.exists")
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM defects WHERE id=?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("%w: defect %s", domain.ErrNotFound, id)
		}
		return false, err
	}
	if _, err := s.Events.Append(ctx, tx, actor, "defect_resolved", events.EventPayload{"defect_id": id}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// OpenDefects lists unresolved defects in filing order, optionally
// scoped to one directive.
func (s Store) OpenDefects(ctx context.Context, directiveID string) ([]domain.Defect, error) {
	query := `SELECT id,directive_id,task_id,title,description,severity,filed_by,assigned_to,resolved_at,created_at FROM defects WHERE resolved_at IS NULL`
	var args []any
	if directiveID != "" {
		query += ` AND directive_id=?`
		args = append(args, directiveID)
	}
	query += ` ORDER BY rowid ASC`
	s.observe("defects.open")
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDefectRows(rows)
}

// PostContext appends an entry to an agent's context feed. An empty
// agent id broadcasts to everyone.
func (s Store) PostContext(ctx context.Context, agentID, kind, content string) (domain.ContextEntry, error) {
	if kind == "" {
		kind = "note"
	}
	if content == "" {
		return domain.ContextEntry{}, fmt.Errorf("%w: context content is required", domain.ErrValidation)
	}
	e := domain.ContextEntry{
		AgentID:   agentID,
		Kind:      kind,
		Content:   content,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContextEntry{}, err
	}
	defer tx.Rollback()

	s.observe("context.insert")
	res, err := tx.ExecContext(ctx, `INSERT INTO context_feed(agent_id,kind,content,consumed,created_at) VALUES (?,?,?,0,?)`,
		e.AgentID, e.Kind, e.Content, e.CreatedAt)
	if err != nil {
		return domain.ContextEntry{}, err
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return domain.ContextEntry{}, err
	}
	if _, err := s.Events.Append(ctx, tx, agentID, "context_posted", events.EventPayload{
		"kind":    e.Kind,
		"content": truncate(e.Content, 200),
	}); err != nil {
		return domain.ContextEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ContextEntry{}, err
	}
	return e, nil
}

// RecentContext returns the newest feed entries addressed to the agent,
// including broadcasts. An empty agent id returns the whole feed.
func (s Store) RecentContext(ctx context.Context, agentID string, limit int) ([]domain.ContextEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,agent_id,kind,content,consumed,created_at FROM context_feed`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id=? OR agent_id=''`
		args = append(args, agentID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	s.observe("context.recent")
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ContextEntry
	for rows.Next() {
		var e domain.ContextEntry
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Kind, &e.Content, &e.Consumed, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// HasInterruption reports whether the agent has an unconsumed interrupt
// waiting.
func (s Store) HasInterruption(ctx context.Context, agentID string) (bool, error) {
	s.observe("context.interrupt")
	var waiting bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM context_feed WHERE agent_id=? AND kind='interrupt' AND consumed=0)`, agentID).Scan(&waiting)
	return waiting, err
}

// ConsumeInterruptions marks the agent's pending interrupts consumed and
// returns how many there were.
func (s Store) ConsumeInterruptions(ctx context.Context, agentID string) (int, error) {
	s.observe("context.consume")
	res, err := s.DB.ExecContext(ctx, `UPDATE context_feed SET consumed=1 WHERE agent_id=? AND kind='interrupt' AND consumed=0`, agentID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RegisterService upserts a long-running helper process under its name.
func (s Store) RegisterService(ctx context.Context, name string, pid, port int, detail, actor string) (domain.ServiceRecord, error) {
	if name == "" {
		return domain.ServiceRecord{}, fmt.Errorf("%w: service name is required", domain.ErrValidation)
	}
	rec := domain.ServiceRecord{
		Name:      name,
		PID:       pid,
		Port:      port,
		Detail:    detail,
		StartedAt: s.now().UTC().Format(time.RFC3339),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ServiceRecord{}, err
	}
	defer tx.Rollback()

	s.observe("services.upsert")
	if _, err := tx.ExecContext(ctx, `INSERT INTO services(name,pid,port,detail,started_at) VALUES (?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET pid=excluded.pid, port=excluded.port, detail=excluded.detail, started_at=excluded.started_at`,
		rec.Name, rec.PID, rec.Port, rec.Detail, rec.StartedAt); err != nil {
		return domain.ServiceRecord{}, err
	}
	if _, err := s.Events.Append(ctx, tx, actor, "service_registered", events.EventPayload{
		"name": rec.Name,
		"pid":  rec.PID,
		"port": rec.Port,
	}); err != nil {
		return domain.ServiceRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ServiceRecord{}, err
	}
	return rec, nil
}

// StopService removes a service registration, reporting false when the
// name is unknown.
func (s Store) StopService(ctx context.Context, name, actor string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	s.observe("services.delete")
	res, err := tx.ExecContext(ctx, `DELETE FROM services WHERE name=?`, name)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := s.Events.Append(ctx, tx, actor, "service_stopped", events.EventPayload{"name": name}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s Store) RunningServices(ctx context.Context) ([]domain.ServiceRecord, error) {
	s.observe("services.list")
	rows, err := s.DB.QueryContext(ctx, `SELECT name,pid,port,detail,started_at FROM services ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ServiceRecord
	for rows.Next() {
		var r domain.ServiceRecord
		if err := rows.Scan(&r.Name, &r.PID, &r.Port, &r.Detail, &r.StartedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// RecordDecision logs a peer decision so later agents can check the
// topic before re-deciding it.
func (s Store) RecordDecision(ctx context.Context, agentID, topic, decision, rationale string) (domain.PeerDecision, error) {
	if topic == "" || decision == "" {
		return domain.PeerDecision{}, fmt.Errorf("%w: decision topic and text are required", domain.ErrValidation)
	}
	d := domain.PeerDecision{
		AgentID:   agentID,
		Topic:     topic,
		Decision:  decision,
		Rationale: rationale,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PeerDecision{}, err
	}
	defer tx.Rollback()

	s.observe("decisions.insert")
	res, err := tx.ExecContext(ctx, `INSERT INTO decisions(agent_id,topic,decision,rationale,created_at) VALUES (?,?,?,?,?)`,
		d.AgentID, d.Topic, d.Decision, d.Rationale, d.CreatedAt)
	if err != nil {
		return domain.PeerDecision{}, err
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return domain.PeerDecision{}, err
	}
	if _, err := s.Events.Append(ctx, tx, agentID, "decision_recorded", events.EventPayload{
		"topic":    d.Topic,
		"decision": truncate(d.Decision, 200),
	}); err != nil {
		return domain.PeerDecision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PeerDecision{}, err
	}
	return d, nil
}

// DecisionsByTopic returns the newest decisions for a topic, or across
// all topics when topic is empty.
func (s Store) DecisionsByTopic(ctx context.Context, topic string, limit int) ([]domain.PeerDecision, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,agent_id,topic,decision,rationale,created_at FROM decisions`
	var args []any
	if topic != "" {
		query += ` WHERE topic=?`
		args = append(args, topic)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	s.observe("decisions.list")
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PeerDecision
	for rows.Next() {
		var d domain.PeerDecision
		if err := rows.Scan(&d.ID, &d.AgentID, &d.Topic, &d.Decision, &d.Rationale, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

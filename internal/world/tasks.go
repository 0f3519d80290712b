package world

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/events"
)

type TaskCreateOptions struct {
	ID          string
	DirectiveID string
	Description string
	Priority    int
	DependsOn   []string
	Actor       string
}

// CreateBoardTask inserts an available task. Dependencies must name
// existing tasks in the same directive.
func (s Store) CreateBoardTask(ctx context.Context, opts TaskCreateOptions) (domain.BoardTask, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.DirectiveID == "" {
		return domain.BoardTask{}, fmt.Errorf("%w: directive id is required", domain.ErrValidation)
	}
	if opts.Description == "" {
		return domain.BoardTask{}, fmt.Errorf("%w: task description is required", domain.ErrValidation)
	}
	now := s.now().UTC().Format(time.RFC3339)
	t := domain.BoardTask{
		ID:          opts.ID,
		DirectiveID: opts.DirectiveID,
		Description: opts.Description,
		Priority:    opts.Priority,
		DependsOn:   opts.DependsOn,
		Status:      "available",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BoardTask{}, err
	}
	defer tx.Rollback()

	s.observe("directives.exists")
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM directives WHERE id=?`, t.DirectiveID).Scan(&one)
	if err == sql.ErrNoRows {
		return domain.BoardTask{}, fmt.Errorf("%w: unknown directive %s", domain.ErrValidation, t.DirectiveID)
	}
	if err != nil {
		return domain.BoardTask{}, err
	}
	s.observe("tasks.exists")
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM board_tasks WHERE id=?`, t.ID).Scan(&one)
	if err == nil {
		return domain.BoardTask{}, fmt.Errorf("%w: task %s", domain.ErrConflict, t.ID)
	}
	if err != sql.ErrNoRows {
		return domain.BoardTask{}, err
	}
	if len(opts.DependsOn) > 0 {
		if err := checkDependencies(ctx, tx, t.DirectiveID, opts.DependsOn); err != nil {
			return domain.BoardTask{}, err
		}
	}
	s.observe("tasks.insert")
	if _, err := tx.ExecContext(ctx, `INSERT INTO board_tasks(id,directive_id,description,priority,status,claimed_by,output,created_at,updated_at) VALUES (?,?,?,?,?,NULL,NULL,?,?)`,
		t.ID, t.DirectiveID, t.Description, t.Priority, t.Status, t.CreatedAt, t.UpdatedAt); err != nil {
		return domain.BoardTask{}, fmt.Errorf("insert task: %w", err)
	}
	for _, dep := range opts.DependsOn {
		s.observe("task_deps.insert")
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_deps(task_id,depends_on) VALUES (?,?)`, t.ID, dep); err != nil {
			return domain.BoardTask{}, err
		}
	}
	if _, err := s.Events.Append(ctx, tx, opts.Actor, "task_created", events.EventPayload{
		"task_id":      t.ID,
		"directive_id": t.DirectiveID,
		"priority":     t.Priority,
	}); err != nil {
		return domain.BoardTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BoardTask{}, err
	}
	return t, nil
}

func checkDependencies(ctx context.Context, tx *sql.Tx, directiveID string, deps []string) error {
	args := make([]any, 0, len(deps))
	for _, d := range deps {
		args = append(args, d)
	}
	rows, err := tx.QueryContext(ctx, `SELECT id,directive_id FROM board_tasks WHERE id IN (`+placeholders(len(deps))+`)`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := map[string]string{}
	for rows.Next() {
		var id, dir string
		if err := rows.Scan(&id, &dir); err != nil {
			return err
		}
		found[id] = dir
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, d := range deps {
		dir, ok := found[d]
		if !ok {
			return fmt.Errorf("%w: depends on unknown task %s", domain.ErrValidation, d)
		}
		if dir != directiveID {
			return fmt.Errorf("%w: dependency %s belongs to directive %s", domain.ErrValidation, d, dir)
		}
	}
	return nil
}

// ClaimTask transitions a task available to claimed for one agent. The
// transition is a single conditional update with an affected-row check:
// concurrent claimers race on the same statement and exactly one wins.
// Missing tasks, already-claimed tasks and unmet dependencies all report
// false without error.
func (s Store) ClaimTask(ctx context.Context, taskID, agentID string) (bool, error) {
	if taskID == "" || agentID == "" {
		return false, fmt.Errorf("%w: task id and agent id are required", domain.ErrValidation)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	s.observe("tasks.claim")
	res, err := tx.ExecContext(ctx, `UPDATE board_tasks SET status='claimed', claimed_by=?, updated_at=?
		WHERE id=? AND status='available' AND NOT EXISTS (
			SELECT 1 FROM task_deps d
			JOIN board_tasks dep ON dep.id=d.depends_on
			WHERE d.task_id=board_tasks.id AND dep.status != 'complete'
		)`, agentID, s.now().UTC().Format(time.RFC3339), taskID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := s.Events.Append(ctx, tx, agentID, "task_claimed", events.EventPayload{
		"task_id":  taskID,
		"agent_id": agentID,
	}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// CompleteBoardTask marks a task complete. A nil output keeps whatever
// output the task already has.
func (s Store) CompleteBoardTask(ctx context.Context, id string, output *string, actor string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s.observe("tasks.complete")
	res, err := tx.ExecContext(ctx, `UPDATE board_tasks SET status='complete', output=COALESCE(?,output), updated_at=? WHERE id=?`,
		nullableStringPtr(output), s.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	if _, err := s.Events.Append(ctx, tx, actor, "task_completed", events.EventPayload{"task_id": id}); err != nil {
		return err
	}
	return tx.Commit()
}

// FailBoardTask marks a task failed and records the error text into its
// output with an ERROR: prefix.
func (s Store) FailBoardTask(ctx context.Context, id, errText, actor string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s.observe("tasks.fail")
	res, err := tx.ExecContext(ctx, `UPDATE board_tasks SET status='failed', output=?, updated_at=? WHERE id=?`,
		"ERROR: "+errText, s.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	if _, err := s.Events.Append(ctx, tx, actor, "task_failed", events.EventPayload{
		"task_id": id,
		"error":   truncate(errText, 200),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ResetBoardTask returns a claimed or failed task to available and
// clears its claim, enabling retry.
func (s Store) ResetBoardTask(ctx context.Context, id, actor string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s.observe("tasks.reset")
	res, err := tx.ExecContext(ctx, `UPDATE board_tasks SET status='available', claimed_by=NULL, output=NULL, updated_at=? WHERE id=? AND status IN ('claimed','failed')`,
		s.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.observe("tasks.get")
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM board_tasks WHERE id=?`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: task %s is %s, only claimed or failed tasks reset", domain.ErrValidation, id, status)
	}
	if _, err := s.Events.Append(ctx, tx, actor, "task_reset", events.EventPayload{"task_id": id}); err != nil {
		return err
	}
	return tx.Commit()
}

const taskColumns = `id,directive_id,description,priority,status,claimed_by,output,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.BoardTask, error) {
	var t domain.BoardTask
	var claimedBy, output sql.NullString
	err := scan(&t.ID, &t.DirectiveID, &t.Description, &t.Priority, &t.Status, &claimedBy, &output, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if claimedBy.Valid {
		t.ClaimedBy = &claimedBy.String
	}
	if output.Valid {
		t.Output = &output.String
	}
	return t, nil
}

func (s Store) GetBoardTask(ctx context.Context, id string) (domain.BoardTask, error) {
	s.observe("tasks.get")
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM board_tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return t, err
	}
	deps, err := s.loadDeps(ctx, []string{id})
	if err != nil {
		return t, err
	}
	t.DependsOn = deps[id]
	return t, nil
}

// GetTasksBatch maps ids to tasks, silently omitting unknown ids.
// Duplicates are tolerated; empty input returns an empty map with no
// queries issued.
func (s Store) GetTasksBatch(ctx context.Context, ids []string) (map[string]domain.BoardTask, error) {
	res := map[string]domain.BoardTask{}
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
	s.observe("tasks.batch")
	rows, err := s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM board_tasks WHERE id IN (`+placeholders(len(args))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found []string
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res[t.ID] = t
		found = append(found, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	deps, err := s.loadDeps(ctx, found)
	if err != nil {
		return nil, err
	}
	for id, d := range deps {
		t := res[id]
		t.DependsOn = d
		res[id] = t
	}
	return res, nil
}

func (s Store) loadDeps(ctx context.Context, taskIDs []string) (map[string][]string, error) {
	res := map[string][]string{}
	if len(taskIDs) == 0 {
		return res, nil
	}
	args := make([]any, 0, len(taskIDs))
	for _, id := range taskIDs {
		args = append(args, id)
	}
	s.observe("task_deps.list")
	rows, err := s.DB.QueryContext(ctx, `SELECT task_id,depends_on FROM task_deps WHERE task_id IN (`+placeholders(len(args))+`) ORDER BY task_id,depends_on`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, dep string
		if err := rows.Scan(&taskID, &dep); err != nil {
			return nil, err
		}
		res[taskID] = append(res[taskID], dep)
	}
	return res, rows.Err()
}

// AreDependenciesMet reports whether every dependency of the task is
// complete. Unknown tasks report false, vacuously-empty dependency sets
// report true.
func (s Store) AreDependenciesMet(ctx context.Context, taskID string) (bool, error) {
	s.observe("tasks.deps_met")
	var exists, met bool
	err := s.DB.QueryRowContext(ctx, `SELECT
		EXISTS(SELECT 1 FROM board_tasks WHERE id=?),
		NOT EXISTS(
			SELECT 1 FROM task_deps d
			JOIN board_tasks dep ON dep.id=d.depends_on
			WHERE d.task_id=? AND dep.status != 'complete'
		)`, taskID, taskID).Scan(&exists, &met)
	if err != nil {
		return false, err
	}
	return exists && met, nil
}

// AvailableTasks lists claimable work for a directive: available status
// with every dependency complete, highest priority first, creation
// order breaking ties.
func (s Store) AvailableTasks(ctx context.Context, directiveID string) ([]domain.BoardTask, error) {
	s.observe("tasks.available")
	rows, err := s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM board_tasks
		WHERE directive_id=? AND status='available' AND NOT EXISTS (
			SELECT 1 FROM task_deps d
			JOIN board_tasks dep ON dep.id=d.depends_on
			WHERE d.task_id=board_tasks.id AND dep.status != 'complete'
		)
		ORDER BY priority DESC, rowid ASC`, directiveID)
	if err != nil {
		return nil, err
	}
	return s.collectTasks(ctx, rows)
}

// BoardTasks lists a directive's tasks in creation order, optionally
// filtered by status.
func (s Store) BoardTasks(ctx context.Context, directiveID, status string) ([]domain.BoardTask, error) {
	clauses := []string{"directive_id=?"}
	args := []any{directiveID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	s.observe("tasks.list")
	rows, err := s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM board_tasks WHERE `+strings.Join(clauses, " AND ")+` ORDER BY rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	return s.collectTasks(ctx, rows)
}

func (s Store) collectTasks(ctx context.Context, rows *sql.Rows) ([]domain.BoardTask, error) {
	defer rows.Close()
	var res []domain.BoardTask
	var ids []string
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	deps, err := s.loadDeps(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].DependsOn = deps[res[i].ID]
	}
	return res, nil
}

// ReassignTasks moves every claimed task held by the from agents to the
// to agent in one update. It returns the number of tasks moved.
func (s Store) ReassignTasks(ctx context.Context, fromIDs []string, toID, actor string) (int, error) {
	if len(fromIDs) == 0 || toID == "" {
		return 0, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	args := []any{toID, s.now().UTC().Format(time.RFC3339)}
	for _, id := range fromIDs {
		args = append(args, id)
	}
	s.observe("tasks.reassign")
	res, err := tx.ExecContext(ctx, `UPDATE board_tasks SET claimed_by=?, updated_at=? WHERE status='claimed' AND claimed_by IN (`+placeholders(len(fromIDs))+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, tx.Commit()
	}
	if _, err := s.Events.Append(ctx, tx, actor, "tasks_reassigned", events.EventPayload{
		"from":  fromIDs,
		"to":    toID,
		"count": n,
	}); err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
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

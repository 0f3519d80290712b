package world

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
)

const snapshotRecentEvents = 30

// Snapshot assembles the composite world view. Every world row comes
// from one read transaction, so the board and the event log can never
// disagree inside a single snapshot. The agent roster lives in the
// registry database and is read adjacent to the transaction.
func (s Store) Snapshot(ctx context.Context) (domain.WorldSnapshot, error) {
	snap := domain.WorldSnapshot{
		Tasks:        []domain.BoardTask{},
		Agents:       []domain.AgentRecord{},
		OpenDefects:  []domain.Defect{},
		Services:     []domain.ServiceRecord{},
		RecentEvents: []domain.Event{},
	}
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return snap, err
	}
	defer tx.Rollback()

	s.observe("snapshot.directive")
	d, err := scanDirective(tx.QueryRowContext(ctx,
		`SELECT id,text,intent,project_path,status,created_at,updated_at FROM directives
		 WHERE status NOT IN ('complete','cancelled')
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return snap, err
	}
	if err == nil {
		snap.Directive = &d

		s.observe("snapshot.tasks")
		rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM board_tasks WHERE directive_id=? ORDER BY rowid ASC`, d.ID)
		if err != nil {
			return snap, err
		}
		tasks, ids, err := collectTaskRows(rows)
		if err != nil {
			return snap, err
		}
		deps, err := loadDepsTx(ctx, tx, ids)
		if err != nil {
			return snap, err
		}
		for i := range tasks {
			tasks[i].DependsOn = deps[tasks[i].ID]
		}
		snap.Tasks = tasks
	}

	s.observe("snapshot.defects")
	defectRows, err := tx.QueryContext(ctx, `SELECT id,directive_id,task_id,title,description,severity,filed_by,assigned_to,resolved_at,created_at FROM defects WHERE resolved_at IS NULL ORDER BY rowid ASC`)
	if err != nil {
		return snap, err
	}
	snap.OpenDefects, err = collectDefectRows(defectRows)
	if err != nil {
		return snap, err
	}

	s.observe("snapshot.services")
	svcRows, err := tx.QueryContext(ctx, `SELECT name,pid,port,detail,started_at FROM services ORDER BY name ASC`)
	if err != nil {
		return snap, err
	}
	defer svcRows.Close()
	for svcRows.Next() {
		var r domain.ServiceRecord
		if err := svcRows.Scan(&r.Name, &r.PID, &r.Port, &r.Detail, &r.StartedAt); err != nil {
			return snap, err
		}
		snap.Services = append(snap.Services, r)
	}
	if err := svcRows.Err(); err != nil {
		return snap, err
	}

	s.observe("snapshot.events")
	evtRows, err := tx.QueryContext(ctx, `SELECT id,actor,type,payload,created_at FROM event_log ORDER BY id DESC LIMIT ?`, snapshotRecentEvents)
	if err != nil {
		return snap, err
	}
	recent, err := scanEvents(evtRows)
	if err != nil {
		return snap, err
	}
	if recent != nil {
		snap.RecentEvents = recent
	}

	s.observe("snapshot.stats")
	err = tx.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM event_log),
		(SELECT COUNT(*) FROM board_tasks WHERE status='available')`).
		Scan(&snap.Stats.TotalEvents, &snap.Stats.PendingTasks)
	if err != nil {
		return snap, err
	}

	if s.Directory != nil {
		agents, err := s.Directory.ActiveAgents(ctx)
		if err != nil {
			return snap, err
		}
		if agents != nil {
			snap.Agents = agents
		}
	}
	snap.Stats.ActiveAgents = len(snap.Agents)
	return snap, nil
}

func collectTaskRows(rows *sql.Rows) ([]domain.BoardTask, []string, error) {
	defer rows.Close()
	tasks := []domain.BoardTask{}
	var ids []string
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	return tasks, ids, rows.Err()
}

func loadDepsTx(ctx context.Context, tx *sql.Tx, taskIDs []string) (map[string][]string, error) {
	res := map[string][]string{}
	if len(taskIDs) == 0 {
		return res, nil
	}
	args := make([]any, 0, len(taskIDs))
	for _, id := range taskIDs {
		args = append(args, id)
	}
	rows, err := tx.QueryContext(ctx, `SELECT task_id,depends_on FROM task_deps WHERE task_id IN (`+placeholders(len(args))+`) ORDER BY task_id,depends_on`, args...)
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

func collectDefectRows(rows *sql.Rows) ([]domain.Defect, error) {
	defer rows.Close()
	res := []domain.Defect{}
	for rows.Next() {
		var d domain.Defect
		var taskID, assignedTo, resolvedAt sql.NullString
		if err := rows.Scan(&d.ID, &d.DirectiveID, &taskID, &d.Title, &d.Description, &d.Severity, &d.FiledBy, &assignedTo, &resolvedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			d.TaskID = &taskID.String
		}
		if assignedTo.Valid {
			d.AssignedTo = &assignedTo.String
		}
		if resolvedAt.Valid {
			d.ResolvedAt = &resolvedAt.String
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/db"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/events"
)

// AgentDirectory supplies the agent roster for snapshots. The registry
// implements it; a nil directory degrades snapshots to an empty roster.
type AgentDirectory interface {
	ActiveAgents(ctx context.Context) ([]domain.AgentRecord, error)
}

// Store owns the world database: directives, the task board, the event
// log, defects, the context feed, services and decisions.
type Store struct {
	DB        *sql.DB
	Events    events.Writer
	Directory AgentDirectory
	Now       func() time.Time
	Observer  db.QueryObserver
}

func New(conn *sql.DB) Store {
	return Store{
		DB:     conn,
		Events: events.Writer{DB: conn},
		Now:    time.Now,
	}
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Store) observe(label string) {
	if s.Observer != nil {
		s.Observer(label)
	}
}

type DirectiveCreateOptions struct {
	ID          string
	Text        string
	Intent      string
	ProjectPath string
	Actor       string
}

// CreateDirective inserts a directive with status received.
func (s Store) CreateDirective(ctx context.Context, opts DirectiveCreateOptions) (domain.Directive, error) {
	if opts.ID == "" {
		return domain.Directive{}, fmt.Errorf("%w: directive id is required", domain.ErrValidation)
	}
	if opts.Text == "" {
		return domain.Directive{}, fmt.Errorf("%w: directive text is required", domain.ErrValidation)
	}
	now := s.now().UTC().Format(time.RFC3339)
	d := domain.Directive{
		ID:          opts.ID,
		Text:        opts.Text,
		Intent:      opts.Intent,
		ProjectPath: opts.ProjectPath,
		Status:      "received",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Directive{}, err
	}
	defer tx.Rollback()

	s.observe("directives.exists")
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM directives WHERE id=?`, d.ID).Scan(&one)
	if err == nil {
		return domain.Directive{}, fmt.Errorf("%w: directive %s", domain.ErrConflict, d.ID)
	}
	if err != sql.ErrNoRows {
		return domain.Directive{}, err
	}
	s.observe("directives.insert")
	if _, err := tx.ExecContext(ctx, `INSERT INTO directives(id,text,intent,project_path,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.Text, d.Intent, d.ProjectPath, d.Status, d.CreatedAt, d.UpdatedAt); err != nil {
		return domain.Directive{}, fmt.Errorf("insert directive: %w", err)
	}
	if _, err := s.Events.Append(ctx, tx, opts.Actor, "directive_created", events.EventPayload{
		"directive_id": d.ID,
		"status":       d.Status,
	}); err != nil {
		return domain.Directive{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Directive{}, err
	}
	return d, nil
}

type DirectiveUpdateOptions struct {
	Status      *string
	Text        *string
	Intent      *string
	ProjectPath *string
	Actor       string
}

// UpdateDirective applies a partial update and touches updated_at. It
// reports false without error when the id is unknown, since callers
// update best-effort.
func (s Store) UpdateDirective(ctx context.Context, id string, opts DirectiveUpdateOptions) (bool, error) {
	fields := []string{"updated_at=?"}
	args := []any{s.now().UTC().Format(time.RFC3339)}
	payload := events.EventPayload{"directive_id": id}
	if opts.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *opts.Status)
		payload["status"] = *opts.Status
	}
	if opts.Text != nil {
		fields = append(fields, "text=?")
		args = append(args, *opts.Text)
	}
	if opts.Intent != nil {
		fields = append(fields, "intent=?")
		args = append(args, *opts.Intent)
	}
	if opts.ProjectPath != nil {
		fields = append(fields, "project_path=?")
		args = append(args, *opts.ProjectPath)
	}
	args = append(args, id)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	s.observe("directives.update")
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE directives SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if _, err := s.Events.Append(ctx, tx, opts.Actor, "directive_updated", payload); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func scanDirective(row *sql.Row) (domain.Directive, error) {
	var d domain.Directive
	err := row.Scan(&d.ID, &d.Text, &d.Intent, &d.ProjectPath, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, fmt.Errorf("%w: directive", domain.ErrNotFound)
	}
	return d, err
}

func (s Store) GetDirective(ctx context.Context, id string) (domain.Directive, error) {
	s.observe("directives.get")
	return scanDirective(s.DB.QueryRowContext(ctx, `SELECT id,text,intent,project_path,status,created_at,updated_at FROM directives WHERE id=?`, id))
}

// GetActiveDirective returns the most recently created directive whose
// status is non-terminal, or nil when there is none.
func (s Store) GetActiveDirective(ctx context.Context) (*domain.Directive, error) {
	s.observe("directives.active")
	d, err := scanDirective(s.DB.QueryRowContext(ctx,
		`SELECT id,text,intent,project_path,status,created_at,updated_at FROM directives
		 WHERE status NOT IN ('complete','cancelled')
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s Store) ListDirectives(ctx context.Context) ([]domain.Directive, error) {
	s.observe("directives.list")
	rows, err := s.DB.QueryContext(ctx, `SELECT id,text,intent,project_path,status,created_at,updated_at FROM directives ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Directive
	for rows.Next() {
		var d domain.Directive
		if err := rows.Scan(&d.ID, &d.Text, &d.Intent, &d.ProjectPath, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func placeholders(n int) string {
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

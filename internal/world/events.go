package world

import (
	"context"
	"database/sql"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/events"
)

// EmitEvent appends an arbitrary event to the log and returns its id.
func (s Store) EmitEvent(ctx context.Context, actor, evtType string, payload events.EventPayload) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	s.observe("events.append")
	id, err := s.Events.Append(ctx, tx, actor, evtType, payload)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// EventsSince returns events with id greater than since in ascending
// order, truncated to limit.
func (s Store) EventsSince(ctx context.Context, since int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	s.observe("events.since")
	rows, err := s.DB.QueryContext(ctx, `SELECT id,actor,type,payload,created_at FROM event_log WHERE id > ? ORDER BY id ASC LIMIT ?`, since, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// RecentEvents returns the newest events first.
func (s Store) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 30
	}
	s.observe("events.recent")
	rows, err := s.DB.QueryContext(ctx, `SELECT id,actor,type,payload,created_at FROM event_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the high-water mark of the log, 0 when empty.
func (s Store) LatestEventID(ctx context.Context) (int64, error) {
	s.observe("events.latest")
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM event_log`).Scan(&id)
	return id, err
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Actor, &e.Type, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

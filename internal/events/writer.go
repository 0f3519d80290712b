package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends rows to the event_log table. Appends always run inside
// the caller's transaction so the event commits or rolls back with the
// mutation it describes.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts one event and returns its log id. Ids are assigned by
// AUTOINCREMENT, so they are strictly increasing and never reused.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, actor, evtType string, payload EventPayload) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO event_log(actor,type,payload,created_at) VALUES (?,?,?,?)`,
		actor, evtType, string(data), ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

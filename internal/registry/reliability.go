package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
)

// RecordCircuitEvent appends a trip or recovery to the circuit log. The
// log is append-only; breaker state is always derived from it.
func (r Registry) RecordCircuitEvent(ctx context.Context, agentID, kind, reason string) (domain.CircuitEvent, error) {
	if agentID == "" {
		return domain.CircuitEvent{}, fmt.Errorf("%w: agent id is required", domain.ErrValidation)
	}
	if kind != "trip" && kind != "recovery" {
		return domain.CircuitEvent{}, fmt.Errorf("%w: circuit kind must be trip or recovery", domain.ErrValidation)
	}
	e := domain.CircuitEvent{
		AgentID: agentID,
		Kind:    kind,
		Reason:  reason,
		At:      r.now().UTC().Format(time.RFC3339),
	}
	r.observe("circuit.insert")
	res, err := r.DB.ExecContext(ctx, `INSERT INTO circuit_events(agent_id,kind,reason,at) VALUES (?,?,?,?)`,
		e.AgentID, e.Kind, e.Reason, e.At)
	if err != nil {
		return domain.CircuitEvent{}, err
	}
	e.ID, err = res.LastInsertId()
	return e, err
}

// ReliabilityBatch returns trip and recovery counts for every requested
// id. Unlike the record batches, unknown or event-less agents still get
// a row with zero counts, so callers can rank a mixed set directly.
func (r Registry) ReliabilityBatch(ctx context.Context, ids []string) (map[string]domain.Reliability, error) {
	res := map[string]domain.Reliability{}
	if len(ids) == 0 {
		return res, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		if _, ok := res[id]; ok {
			continue
		}
		res[id] = domain.Reliability{}
		args = append(args, id)
	}
	r.observe("circuit.batch")
	rows, err := r.DB.QueryContext(ctx, `SELECT agent_id,kind,COUNT(*) FROM circuit_events WHERE agent_id IN (`+placeholders(len(args))+`) GROUP BY agent_id,kind`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var agentID, kind string
		var n int
		if err := rows.Scan(&agentID, &kind, &n); err != nil {
			return nil, err
		}
		rel := res[agentID]
		switch kind {
		case "trip":
			rel.CircuitTrips = n
		case "recovery":
			rel.Recoveries = n
		}
		res[agentID] = rel
	}
	return res, rows.Err()
}

// Reliability counts one agent's circuit events inside a trailing
// window. A zero or negative window counts all time, matching
// ReliabilityBatch.
func (r Registry) Reliability(ctx context.Context, agentID string, windowHours int) (domain.Reliability, error) {
	query := `SELECT kind,COUNT(*) FROM circuit_events WHERE agent_id=?`
	args := []any{agentID}
	if windowHours > 0 {
		query += ` AND at>=?`
		args = append(args, r.now().UTC().Add(-time.Duration(windowHours)*time.Hour).Format(time.RFC3339))
	}
	query += ` GROUP BY kind`
	r.observe("circuit.window")
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Reliability{}, err
	}
	defer rows.Close()
	var rel domain.Reliability
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return domain.Reliability{}, err
		}
		switch kind {
		case "trip":
			rel.CircuitTrips = n
		case "recovery":
			rel.Recoveries = n
		}
	}
	return rel, rows.Err()
}

// IsCircuitBroken derives breaker state from the log: any trip after
// the last recovery means the circuit is open.
func (r Registry) IsCircuitBroken(ctx context.Context, agentID string) (bool, error) {
	r.observe("circuit.state")
	var trips int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM circuit_events
		WHERE agent_id=? AND kind='trip'
		AND id > COALESCE((SELECT MAX(id) FROM circuit_events WHERE agent_id=? AND kind='recovery'), 0)`,
		agentID, agentID).Scan(&trips)
	if err != nil {
		return false, err
	}
	return trips > 0, nil
}

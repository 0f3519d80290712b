package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// CreateKey mints an API key for an agent and returns the record plus
// the plaintext key. Only the hash is stored; the plaintext is shown
// once.
func (r Registry) CreateKey(ctx context.Context, agentID, name string) (domain.AgentKey, string, error) {
	if _, err := r.Get(ctx, agentID); err != nil {
		return domain.AgentKey{}, "", err
	}
	plaintext := "nx_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.AgentKey{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Name:      name,
		KeyHash:   HashAPIKey(plaintext),
		CreatedAt: r.now().UTC().Format(time.RFC3339),
	}
	r.observe("keys.insert")
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO agent_keys(id,agent_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.AgentID, key.Name, key.KeyHash, key.CreatedAt); err != nil {
		return domain.AgentKey{}, "", err
	}
	return key, plaintext, nil
}

// AgentByKeyHash resolves a hashed API key to its agent.
func (r Registry) AgentByKeyHash(ctx context.Context, hash string) (domain.AgentRecord, error) {
	r.observe("keys.lookup")
	var agentID string
	err := r.DB.QueryRowContext(ctx, `SELECT agent_id FROM agent_keys WHERE key_hash=? LIMIT 1`, hash).Scan(&agentID)
	if err == sql.ErrNoRows {
		return domain.AgentRecord{}, fmt.Errorf("%w: api key", domain.ErrNotFound)
	}
	if err != nil {
		return domain.AgentRecord{}, err
	}
	return r.Get(ctx, agentID)
}

// Keys lists key records, optionally for one agent. Hashes are included;
// plaintext keys are never stored.
func (r Registry) Keys(ctx context.Context, agentID string) ([]domain.AgentKey, error) {
	query := `SELECT id,agent_id,name,key_hash,created_at FROM agent_keys`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id=?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC`
	r.observe("keys.list")
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.AgentKey
	for rows.Next() {
		var k domain.AgentKey
		if err := rows.Scan(&k.ID, &k.AgentID, &k.Name, &k.KeyHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteKey revokes a key by id.
func (r Registry) DeleteKey(ctx context.Context, id string) error {
	r.observe("keys.delete")
	res, err := r.DB.ExecContext(ctx, `DELETE FROM agent_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: api key %s", domain.ErrNotFound, id)
	}
	return nil
}

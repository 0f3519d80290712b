package domain

import "errors"

// Sentinel errors shared by the component stores. Absence on probe-style
// reads (claim attempts, active-directive lookup) is reported as a zero
// value instead, never as an error.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("validation failed")
)

type Directive struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Intent      string `json:"intent,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	Status      string `json:"status" enum:"received,building,reviewing,complete,cancelled"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type BoardTask struct {
	ID          string   `json:"id"`
	DirectiveID string   `json:"directive_id"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Status      string   `json:"status" enum:"available,claimed,complete,failed"`
	ClaimedBy   *string  `json:"claimed_by,omitempty"`
	Output      *string  `json:"output,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Defect struct {
	ID          string  `json:"id"`
	DirectiveID string  `json:"directive_id"`
	TaskID      *string `json:"task_id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity" enum:"low,medium,high,critical"`
	FiledBy     string  `json:"filed_by"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	ResolvedAt  *string `json:"resolved_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// Event is one row of the append-only log. ID ordering is the sole
// ordering guarantee; wall-clock ties are possible.
type Event struct {
	ID        int64  `json:"id"`
	Actor     string `json:"actor"`
	Type      string `json:"type"`
	Payload   string `json:"payload_json"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AgentRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Role        string  `json:"role,omitempty"`
	Model       string  `json:"model,omitempty"`
	Status      string  `json:"status" enum:"idle,working"`
	ReportsTo   *string `json:"reports_to,omitempty"`
	LastAction  string  `json:"last_action,omitempty"`
	Description string  `json:"description,omitempty"`
	HiredAt     string  `json:"hired_at" format:"date-time"`
}

type CircuitEvent struct {
	ID      int64  `json:"id"`
	AgentID string `json:"agent_id"`
	Kind    string `json:"kind" enum:"trip,recovery"`
	Reason  string `json:"reason,omitempty"`
	At      string `json:"at" format:"date-time"`
}

// Reliability aggregates the circuit-event log for one agent. Counts are
// derived on read, never stored.
type Reliability struct {
	CircuitTrips int `json:"circuit_trips"`
	Recoveries   int `json:"recoveries"`
}

type CostRecord struct {
	ID           int64   `json:"id"`
	Model        string  `json:"model"`
	AgentID      string  `json:"agent_id"`
	Project      string  `json:"project,omitempty"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	At           string  `json:"at" format:"date-time"`
}

type ContextEntry struct {
	ID        int64  `json:"id"`
	AgentID   string `json:"agent_id"`
	Kind      string `json:"kind"`
	Content   string `json:"content"`
	Consumed  bool   `json:"consumed"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ServiceRecord struct {
	Name      string `json:"name"`
	PID       int    `json:"pid"`
	Port      int    `json:"port,omitempty"`
	Detail    string `json:"detail,omitempty"`
	StartedAt string `json:"started_at" format:"date-time"`
}

type PeerDecision struct {
	ID        int64  `json:"id"`
	AgentID   string `json:"agent_id"`
	Topic     string `json:"topic"`
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type OrgChange struct {
	ID        int64  `json:"id"`
	Action    string `json:"action"`
	AgentID   string `json:"agent_id"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AgentKey struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// WorldSnapshot is a composite read of the coordination state at one
// instant. The world rows come from a single read transaction; agents are
// supplied by the registry through the directory wired at construction.
type WorldSnapshot struct {
	Directive    *Directive      `json:"directive,omitempty"`
	Tasks        []BoardTask     `json:"tasks"`
	Agents       []AgentRecord   `json:"agents"`
	OpenDefects  []Defect        `json:"open_defects"`
	Services     []ServiceRecord `json:"services"`
	RecentEvents []Event         `json:"recent_events"`
	Stats        SnapshotStats   `json:"stats"`
}

type SnapshotStats struct {
	TotalEvents  int `json:"total_events"`
	ActiveAgents int `json:"active_agents"`
	PendingTasks int `json:"pending_tasks"`
}

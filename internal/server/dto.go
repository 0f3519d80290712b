package server

import (
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
)

// Request bodies. Responses reuse the domain types, which carry wire
// tags already; only composite or derived shapes get their own type.

type CreateDirectiveRequest struct {
	ID          *string `json:"id,omitempty"`
	Text        string  `json:"text"`
	Intent      *string `json:"intent,omitempty"`
	ProjectPath *string `json:"project_path,omitempty"`
}

type UpdateDirectiveRequest struct {
	Status *string `json:"status,omitempty" enum:"received,building,reviewing,complete,cancelled"`
	Text   *string `json:"text,omitempty"`
	Intent *string `json:"intent,omitempty"`
}

type CreateTaskRequest struct {
	ID          *string  `json:"id,omitempty"`
	DirectiveID string   `json:"directive_id"`
	Description string   `json:"description"`
	Priority    *int     `json:"priority,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

type CompleteTaskRequest struct {
	Output *string `json:"output,omitempty"`
}

type FailTaskRequest struct {
	Error string `json:"error"`
}

type IDBatchRequest struct {
	IDs []string `json:"ids"`
}

type ClaimResponse struct {
	Claimed bool              `json:"claimed"`
	Task    *domain.BoardTask `json:"task,omitempty"`
}

type DependenciesResponse struct {
	Met bool `json:"met"`
}

type CreateDefectRequest struct {
	ID          *string `json:"id,omitempty"`
	DirectiveID string  `json:"directive_id"`
	TaskID      *string `json:"task_id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Severity    *string `json:"severity,omitempty" enum:"low,medium,high,critical"`
}

type AssignDefectRequest struct {
	AgentID string `json:"agent_id"`
}

type ResolveResponse struct {
	Resolved bool `json:"resolved"`
}

type EmitEventRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

type PostContextRequest struct {
	AgentID string  `json:"agent_id"`
	Kind    *string `json:"kind,omitempty"`
	Content string  `json:"content"`
}

type ConsumeResponse struct {
	Consumed int `json:"consumed"`
}

type InterruptResponse struct {
	Interrupted bool `json:"interrupted"`
}

type RegisterServiceRequest struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	Port   int    `json:"port"`
	Detail string `json:"detail,omitempty"`
}

type StoppedResponse struct {
	Stopped bool `json:"stopped"`
}

type RecordDecisionRequest struct {
	AgentID   string `json:"agent_id"`
	Topic     string `json:"topic"`
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
}

type HireAgentRequest struct {
	ID          *string `json:"id,omitempty"`
	Name        string  `json:"name"`
	Role        *string `json:"role,omitempty"`
	Model       *string `json:"model,omitempty"`
	ReportsTo   *string `json:"reports_to,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UpdateAgentRequest struct {
	Name        *string `json:"name,omitempty"`
	Role        *string `json:"role,omitempty"`
	Model       *string `json:"model,omitempty"`
	Status      *string `json:"status,omitempty" enum:"idle,working"`
	LastAction  *string `json:"last_action,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CircuitEventRequest struct {
	Kind   string `json:"kind" enum:"trip,recovery"`
	Reason string `json:"reason,omitempty"`
}

type CircuitStateResponse struct {
	Broken bool `json:"broken"`
}

type ReassignRequest struct {
	AgentID      string `json:"agent_id"`
	NewManagerID string `json:"new_manager_id"`
}

type ConsolidateRequest struct {
	IDs            []string `json:"ids"`
	NewID          string   `json:"new_id"`
	NewName        string   `json:"new_name"`
	NewDescription string   `json:"new_description,omitempty"`
}

type CreateKeyRequest struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name,omitempty"`
}

// CreatedKeyResponse is the only place the plaintext key ever appears.
type CreatedKeyResponse struct {
	Key       domain.AgentKey `json:"key"`
	Plaintext string          `json:"plaintext"`
}

type RecordCostRequest struct {
	Model        string `json:"model"`
	AgentID      string `json:"agent_id,omitempty"`
	Project      string `json:"project,omitempty"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

type MonthlyCostResponse struct {
	MonthlyCost float64 `json:"monthly_cost"`
}

type CostReportResponse struct {
	Report string `json:"report"`
}

type EffectiveModelResponse struct {
	Model string `json:"model"`
}

type DowngradeStateResponse struct {
	Downgraded bool `json:"downgraded"`
}

type DevLoginRequest struct {
	AgentID string `json:"agent_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

package nexussdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Nexus HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no key or token is set. The
	// server only honors it when header auth is enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Directive represents the API directive model.
type Directive struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Intent      string `json:"intent,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Task represents the API board task model.
type Task struct {
	ID          string   `json:"id"`
	DirectiveID string   `json:"directive_id"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Status      string   `json:"status"`
	ClaimedBy   *string  `json:"claimed_by,omitempty"`
	Output      *string  `json:"output,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Agent represents the API agent model.
type Agent struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Role       string  `json:"role,omitempty"`
	Model      string  `json:"model,omitempty"`
	Status     string  `json:"status"`
	ReportsTo  *string `json:"reports_to,omitempty"`
	LastAction string  `json:"last_action,omitempty"`
	HiredAt    string  `json:"hired_at"`
}

// Event represents a log entry.
type Event struct {
	ID        int64  `json:"id"`
	Actor     string `json:"actor"`
	Type      string `json:"type"`
	Payload   string `json:"payload_json"`
	CreatedAt string `json:"created_at"`
}

// Defect represents a filed defect.
type Defect struct {
	ID          string  `json:"id"`
	DirectiveID string  `json:"directive_id"`
	TaskID      *string `json:"task_id,omitempty"`
	Title       string  `json:"title"`
	Severity    string  `json:"severity"`
	FiledBy     string  `json:"filed_by"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	ResolvedAt  *string `json:"resolved_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// Snapshot is the composite world read.
type Snapshot struct {
	Directive   *Directive `json:"directive,omitempty"`
	Tasks       []Task     `json:"tasks"`
	Agents      []Agent    `json:"agents"`
	OpenDefects []Defect   `json:"open_defects"`
	Events      []Event    `json:"recent_events"`
	Stats       struct {
		TotalEvents  int `json:"total_events"`
		ActiveAgents int `json:"active_agents"`
		PendingTasks int `json:"pending_tasks"`
	} `json:"stats"`
}

// BudgetStatus reports the budget checks run after a recorded call.
type BudgetStatus struct {
	Cost        float64  `json:"cost"`
	SessionCost float64  `json:"session_cost"`
	HourlyRate  float64  `json:"hourly_rate"`
	Alerts      []string `json:"alerts,omitempty"`
	Downgrade   bool     `json:"downgrade"`
	KillSession bool     `json:"kill_session"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDirective creates a directive.
func (c *Client) CreateDirective(ctx context.Context, id, text, intent string) (Directive, error) {
	body := map[string]any{
		"id":     id,
		"text":   text,
		"intent": intent,
	}
	var resp Directive
	err := c.do(ctx, http.MethodPost, c.apiPath("directives"), body, &resp)
	return resp, err
}

// ActiveDirective returns the directive currently being executed, or nil
// when no directive is active.
func (c *Client) ActiveDirective(ctx context.Context) (*Directive, error) {
	var resp Directive
	err := c.do(ctx, http.MethodGet, c.apiPath("directives/active"), nil, &resp)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetDirectiveStatus advances a directive through its lifecycle.
func (c *Client) SetDirectiveStatus(ctx context.Context, id, status string) (Directive, error) {
	var resp Directive
	endpoint := c.apiPath("directives/" + url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// TaskSpec describes a task to add to the board.
type TaskSpec struct {
	ID          string   `json:"id,omitempty"`
	DirectiveID string   `json:"directive_id"`
	Description string   `json:"description"`
	Priority    int      `json:"priority,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// CreateTask adds a task to the board.
func (c *Client) CreateTask(ctx context.Context, spec TaskSpec) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.apiPath("tasks"), spec, &resp)
	return resp, err
}

// AvailableTasks lists claimable tasks for a directive, highest priority
// first.
func (c *Client) AvailableTasks(ctx context.Context, directiveID string) ([]Task, error) {
	var resp []Task
	endpoint := c.apiPath("tasks/available")
	if directiveID != "" {
		endpoint += "?directive_id=" + url.QueryEscape(directiveID)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ClaimTask attempts to claim a task for the authenticated agent. Losing
// the race reports claimed=false, not an error.
func (c *Client) ClaimTask(ctx context.Context, taskID string) (*Task, bool, error) {
	var resp struct {
		Claimed bool  `json:"claimed"`
		Task    *Task `json:"task,omitempty"`
	}
	endpoint := c.apiPath("tasks/" + url.PathEscape(taskID) + "/claim")
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	if isStatus(err, http.StatusConflict) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return resp.Task, resp.Claimed, nil
}

// CompleteTask marks a claimed task done.
func (c *Client) CompleteTask(ctx context.Context, taskID, output string) (Task, error) {
	body := map[string]any{}
	if output != "" {
		body["output"] = output
	}
	var resp Task
	endpoint := c.apiPath("tasks/" + url.PathEscape(taskID) + "/complete")
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// FailTask marks a claimed task failed with a reason.
func (c *Client) FailTask(ctx context.Context, taskID, reason string) (Task, error) {
	var resp Task
	endpoint := c.apiPath("tasks/" + url.PathEscape(taskID) + "/fail")
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"error": reason}, &resp)
	return resp, err
}

// EmitEvent appends a custom event and returns its id.
func (c *Client) EmitEvent(ctx context.Context, eventType string, payload map[string]any) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	body := map[string]any{"type": eventType, "payload": payload}
	err := c.do(ctx, http.MethodPost, c.apiPath("events"), body, &resp)
	return resp.ID, err
}

// EventsSince returns events with id greater than since, oldest first.
func (c *Client) EventsSince(ctx context.Context, since int64, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("%s?since=%d", c.apiPath("events"), since)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Snapshot returns the composite world state.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodGet, c.apiPath("snapshot"), nil, &resp)
	return resp, err
}

// FileDefect files a defect against a directive.
func (c *Client) FileDefect(ctx context.Context, directiveID, title, severity string) (Defect, error) {
	body := map[string]any{
		"directive_id": directiveID,
		"title":        title,
		"severity":     severity,
	}
	var resp Defect
	err := c.do(ctx, http.MethodPost, c.apiPath("defects"), body, &resp)
	return resp, err
}

// PostContext shares a context entry addressed to an agent.
func (c *Client) PostContext(ctx context.Context, agentID, kind, content string) error {
	body := map[string]any{
		"agent_id": agentID,
		"kind":     kind,
		"content":  content,
	}
	return c.do(ctx, http.MethodPost, c.apiPath("context"), body, nil)
}

// HireSpec describes an agent to hire.
type HireSpec struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	Model     string `json:"model,omitempty"`
	ReportsTo string `json:"reports_to,omitempty"`
}

// Hire adds an agent to the roster.
func (c *Client) Hire(ctx context.Context, spec HireSpec) (Agent, error) {
	var resp Agent
	err := c.do(ctx, http.MethodPost, c.apiPath("agents"), spec, &resp)
	return resp, err
}

// Agents lists the active roster.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var resp []Agent
	err := c.do(ctx, http.MethodGet, c.apiPath("agents"), nil, &resp)
	return resp, err
}

// SetAgentStatus updates an agent's status and last action.
func (c *Client) SetAgentStatus(ctx context.Context, agentID, status, lastAction string) (Agent, error) {
	body := map[string]any{"status": status}
	if lastAction != "" {
		body["last_action"] = lastAction
	}
	var resp Agent
	endpoint := c.apiPath("agents/" + url.PathEscape(agentID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// RecordCost records a model call and returns the budget verdict.
func (c *Client) RecordCost(ctx context.Context, model string, inputTokens, outputTokens int64) (BudgetStatus, error) {
	body := map[string]any{
		"model":         model,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
	}
	var resp BudgetStatus
	err := c.do(ctx, http.MethodPost, c.apiPath("cost/records"), body, &resp)
	return resp, err
}

// EffectiveModel returns the model to use after any active downgrade.
func (c *Client) EffectiveModel(ctx context.Context, requested string) (string, error) {
	var resp struct {
		Model string `json:"model"`
	}
	endpoint := c.apiPath("cost/effective-model") + "?model=" + url.QueryEscape(requested)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Model, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func isStatus(err error, code int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == code
}

func (c *Client) apiPath(p string) string {
	return "v0/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/app"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/registry"
)

func registerAgents(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "hire-agent",
		Method:        http.MethodPost,
		Path:          "/agents",
		Summary:       "Hire an agent",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body HireAgentRequest `json:"body"`
	}) (*struct {
		Body domain.AgentRecord `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		opts := registry.HireOptions{Name: input.Body.Name}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Role != nil {
			opts.Role = *input.Body.Role
		}
		if input.Body.Model != nil {
			opts.Model = *input.Body.Model
		}
		if input.Body.ReportsTo != nil {
			opts.ReportsTo = *input.Body.ReportsTo
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		agent, err := a.Registry.Hire(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgentRecord `json:"body"`
		}{Body: agent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List all agents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.AgentRecord `json:"body"`
	}, error) {
		items, err := a.Registry.ActiveAgents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AgentRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "batch-agents",
		Method:      http.MethodPost,
		Path:        "/agents/batch",
		Summary:     "Fetch agents by id",
	}, func(ctx context.Context, input *struct {
		Body IDBatchRequest `json:"body"`
	}) (*struct {
		Body map[string]domain.AgentRecord `json:"body"`
	}, error) {
		items, err := a.Registry.AgentsBatch(ctx, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]domain.AgentRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}",
		Summary:     "Get agent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct {
		Body domain.AgentRecord `json:"body"`
	}, error) {
		agent, err := a.Registry.Get(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgentRecord `json:"body"`
		}{Body: agent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-agent",
		Method:      http.MethodPatch,
		Path:        "/agents/{agent_id}",
		Summary:     "Update agent",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AgentID string             `path:"agent_id"`
		Body    UpdateAgentRequest `json:"body"`
	}) (*struct {
		Body domain.AgentRecord `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		agent, err := a.Registry.Update(ctx, input.AgentID, registry.UpdateOptions{
			Name:        input.Body.Name,
			Role:        input.Body.Role,
			Model:       input.Body.Model,
			Status:      input.Body.Status,
			LastAction:  input.Body.LastAction,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgentRecord `json:"body"`
		}{Body: agent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fire-agent",
		Method:      http.MethodDelete,
		Path:        "/agents/{agent_id}",
		Summary:     "Fire an agent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct{}, error) {
		if err := a.Registry.Fire(ctx, input.AgentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOrg(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "org-tree",
		Method:      http.MethodGet,
		Path:        "/org/tree",
		Summary:     "Reporting tree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Root string `query:"root"`
	}) (*struct {
		Body registry.OrgNode `json:"body"`
	}, error) {
		node, err := a.Registry.ReportingTree(ctx, input.Root)
		if err != nil {
			return nil, handleError(err)
		}
		if node == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "org tree is empty", nil)
		}
		return &struct {
			Body registry.OrgNode `json:"body"`
		}{Body: *node}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-reports",
		Method:      http.MethodGet,
		Path:        "/org/reports/{manager_id}",
		Summary:     "Direct reports of a manager",
	}, func(ctx context.Context, input *struct {
		ManagerID string `path:"manager_id"`
	}) (*struct {
		Body []domain.AgentRecord `json:"body"`
	}, error) {
		items, err := a.Registry.DirectReports(ctx, input.ManagerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AgentRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-reassign",
		Method:      http.MethodPost,
		Path:        "/org/reassign",
		Summary:     "Move an agent to a new manager",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ReassignRequest `json:"body"`
	}) (*struct {
		Body domain.AgentRecord `json:"body"`
	}, error) {
		if input.Body.AgentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "agent_id is required", nil)
		}
		if err := a.Registry.Reassign(ctx, input.Body.AgentID, input.Body.NewManagerID); err != nil {
			return nil, handleError(err)
		}
		agent, err := a.Registry.Get(ctx, input.Body.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgentRecord `json:"body"`
		}{Body: agent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "org-consolidate",
		Method:        http.MethodPost,
		Path:          "/org/consolidate",
		Summary:       "Merge agents into one",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ConsolidateRequest `json:"body"`
	}) (*struct {
		Body domain.AgentRecord `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		merged, err := a.Registry.Consolidate(ctx, registry.ConsolidateOptions{
			IDs:            input.Body.IDs,
			NewID:          input.Body.NewID,
			NewName:        input.Body.NewName,
			NewDescription: input.Body.NewDescription,
			Actor:          actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgentRecord `json:"body"`
		}{Body: merged}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-summary",
		Method:      http.MethodGet,
		Path:        "/org/summary",
		Summary:     "Org headcount summary",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body registry.OrgSummaryReport `json:"body"`
	}, error) {
		report, err := a.Registry.OrgSummary(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body registry.OrgSummaryReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-changelog",
		Method:      http.MethodGet,
		Path:        "/org/changelog",
		Summary:     "Org change history",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.OrgChange `json:"body"`
	}, error) {
		items, err := a.Registry.Changelog(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.OrgChange `json:"body"`
		}{Body: items}, nil
	})
}

func registerReliability(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-circuit-event",
		Method:        http.MethodPost,
		Path:          "/agents/{agent_id}/circuit",
		Summary:       "Record a circuit trip or recovery",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		AgentID string              `path:"agent_id"`
		Body    CircuitEventRequest `json:"body"`
	}) (*struct {
		Body domain.CircuitEvent `json:"body"`
	}, error) {
		evt, err := a.Registry.RecordCircuitEvent(ctx, input.AgentID, input.Body.Kind, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CircuitEvent `json:"body"`
		}{Body: evt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "circuit-state",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/circuit",
		Summary:     "Current circuit state",
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct {
		Body CircuitStateResponse `json:"body"`
	}, error) {
		broken, err := a.Registry.IsCircuitBroken(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CircuitStateResponse `json:"body"`
		}{Body: CircuitStateResponse{Broken: broken}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-reliability",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/reliability",
		Summary:     "Reliability counters in a window",
	}, func(ctx context.Context, input *struct {
		AgentID     string `path:"agent_id"`
		WindowHours int    `query:"window_hours"`
	}) (*struct {
		Body domain.Reliability `json:"body"`
	}, error) {
		rel, err := a.Registry.Reliability(ctx, input.AgentID, input.WindowHours)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reliability `json:"body"`
		}{Body: rel}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reliability-batch",
		Method:      http.MethodPost,
		Path:        "/reliability/batch",
		Summary:     "Reliability counters for many agents",
	}, func(ctx context.Context, input *struct {
		Body IDBatchRequest `json:"body"`
	}) (*struct {
		Body map[string]domain.Reliability `json:"body"`
	}, error) {
		items, err := a.Registry.ReliabilityBatch(ctx, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]domain.Reliability `json:"body"`
		}{Body: items}, nil
	})
}

func registerKeys(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-key",
		Method:        http.MethodPost,
		Path:          "/keys",
		Summary:       "Mint an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateKeyRequest `json:"body"`
	}) (*struct {
		Body CreatedKeyResponse `json:"body"`
	}, error) {
		if input.Body.AgentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "agent_id is required", nil)
		}
		key, plaintext, err := a.Registry.CreateKey(ctx, input.Body.AgentID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedKeyResponse `json:"body"`
		}{Body: CreatedKeyResponse{Key: key, Plaintext: plaintext}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-keys",
		Method:      http.MethodGet,
		Path:        "/keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		AgentID string `query:"agent_id"`
	}) (*struct {
		Body []domain.AgentKey `json:"body"`
	}, error) {
		items, err := a.Registry.Keys(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AgentKey `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-key",
		Method:      http.MethodDelete,
		Path:        "/keys/{key_id}",
		Summary:     "Revoke an API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := a.Registry.DeleteKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

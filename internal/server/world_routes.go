package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/app"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/domain"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/events"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/world"
)

func registerDirectives(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-directive",
		Method:        http.MethodPost,
		Path:          "/directives",
		Summary:       "Create directive",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateDirectiveRequest `json:"body"`
	}) (*struct {
		Body domain.Directive `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Text == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := world.DirectiveCreateOptions{Text: input.Body.Text, Actor: actor}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Intent != nil {
			opts.Intent = *input.Body.Intent
		}
		if input.Body.ProjectPath != nil {
			opts.ProjectPath = *input.Body.ProjectPath
		}
		d, err := a.World.CreateDirective(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Directive `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-directives",
		Method:      http.MethodGet,
		Path:        "/directives",
		Summary:     "List directives",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Directive `json:"body"`
	}, error) {
		items, err := a.World.ListDirectives(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Directive `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-directive",
		Method:      http.MethodGet,
		Path:        "/directives/active",
		Summary:     "Get the active directive",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Directive `json:"body"`
	}, error) {
		d, err := a.World.GetActiveDirective(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if d == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no active directive", nil)
		}
		return &struct {
			Body domain.Directive `json:"body"`
		}{Body: *d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-directive",
		Method:      http.MethodGet,
		Path:        "/directives/{directive_id}",
		Summary:     "Get directive",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DirectiveID string `path:"directive_id"`
	}) (*struct {
		Body domain.Directive `json:"body"`
	}, error) {
		d, err := a.World.GetDirective(ctx, input.DirectiveID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Directive `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-directive",
		Method:      http.MethodPatch,
		Path:        "/directives/{directive_id}",
		Summary:     "Update directive",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DirectiveID string                 `path:"directive_id"`
		Body        UpdateDirectiveRequest `json:"body"`
	}) (*struct {
		Body domain.Directive `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		updated, err := a.World.UpdateDirective(ctx, input.DirectiveID, world.DirectiveUpdateOptions{
			Status: input.Body.Status,
			Text:   input.Body.Text,
			Intent: input.Body.Intent,
			Actor:  actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if !updated {
			return nil, newAPIError(http.StatusNotFound, "not_found", "directive not found", nil)
		}
		d, err := a.World.GetDirective(ctx, input.DirectiveID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Directive `json:"body"`
		}{Body: d}, nil
	})
}

func registerTasks(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create board task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.BoardTask `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.DirectiveID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "directive_id is required", nil)
		}
		if input.Body.Description == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "description is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := world.TaskCreateOptions{
			DirectiveID: input.Body.DirectiveID,
			Description: input.Body.Description,
			DependsOn:   input.Body.DependsOn,
			Actor:       actor,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		task, err := a.World.CreateBoardTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BoardTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List board tasks",
	}, func(ctx context.Context, input *struct {
		DirectiveID string `query:"directive_id"`
		Status      string `query:"status"`
	}) (*struct {
		Body []domain.BoardTask `json:"body"`
	}, error) {
		items, err := a.World.BoardTasks(ctx, input.DirectiveID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.BoardTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/available",
		Summary:     "List claimable tasks",
	}, func(ctx context.Context, input *struct {
		DirectiveID string `query:"directive_id"`
	}) (*struct {
		Body []domain.BoardTask `json:"body"`
	}, error) {
		items, err := a.World.AvailableTasks(ctx, input.DirectiveID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.BoardTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "batch-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/batch",
		Summary:     "Fetch tasks by id",
	}, func(ctx context.Context, input *struct {
		Body IDBatchRequest `json:"body"`
	}) (*struct {
		Body map[string]domain.BoardTask `json:"body"`
	}, error) {
		items, err := a.World.GetTasksBatch(ctx, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]domain.BoardTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get board task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.BoardTask `json:"body"`
	}, error) {
		task, err := a.World.GetBoardTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BoardTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-dependencies-met",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/dependencies",
		Summary:     "Check task dependencies",
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body DependenciesResponse `json:"body"`
	}, error) {
		met, err := a.World.AreDependenciesMet(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependenciesResponse `json:"body"`
		}{Body: DependenciesResponse{Met: met}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/claim",
		Summary:     "Claim a board task",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body ClaimResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		claimed, err := a.World.ClaimTask(ctx, input.TaskID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if !claimed {
			return nil, newAPIError(http.StatusConflict, "conflict", "task is not claimable", nil)
		}
		task, err := a.World.GetBoardTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ClaimResponse `json:"body"`
		}{Body: ClaimResponse{Claimed: true, Task: &task}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/complete",
		Summary:     "Complete a board task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string              `path:"task_id"`
		Body   CompleteTaskRequest `json:"body"`
	}) (*struct {
		Body domain.BoardTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.World.CompleteBoardTask(ctx, input.TaskID, input.Body.Output, actor); err != nil {
			return nil, handleError(err)
		}
		task, err := a.World.GetBoardTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BoardTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fail-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/fail",
		Summary:     "Fail a board task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   FailTaskRequest `json:"body"`
	}) (*struct {
		Body domain.BoardTask `json:"body"`
	}, error) {
		if input.Body.Error == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "error is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.World.FailBoardTask(ctx, input.TaskID, input.Body.Error, actor); err != nil {
			return nil, handleError(err)
		}
		task, err := a.World.GetBoardTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BoardTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/reset",
		Summary:     "Reset a task to available",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.BoardTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.World.ResetBoardTask(ctx, input.TaskID, actor); err != nil {
			return nil, handleError(err)
		}
		task, err := a.World.GetBoardTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BoardTask `json:"body"`
		}{Body: task}, nil
	})
}

func registerDefects(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "file-defect",
		Method:        http.MethodPost,
		Path:          "/defects",
		Summary:       "File a defect",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateDefectRequest `json:"body"`
	}) (*struct {
		Body domain.Defect `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := world.DefectFileOptions{
			DirectiveID: input.Body.DirectiveID,
			Title:       input.Body.Title,
			FiledBy:     actor,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.TaskID != nil {
			opts.TaskID = *input.Body.TaskID
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.Severity != nil {
			opts.Severity = *input.Body.Severity
		}
		defect, err := a.World.FileDefect(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Defect `json:"body"`
		}{Body: defect}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-open-defects",
		Method:      http.MethodGet,
		Path:        "/defects",
		Summary:     "List open defects",
	}, func(ctx context.Context, input *struct {
		DirectiveID string `query:"directive_id"`
	}) (*struct {
		Body []domain.Defect `json:"body"`
	}, error) {
		items, err := a.World.OpenDefects(ctx, input.DirectiveID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Defect `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-defect",
		Method:      http.MethodPost,
		Path:        "/defects/{defect_id}/assign",
		Summary:     "Assign a defect",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DefectID string              `path:"defect_id"`
		Body     AssignDefectRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.AgentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "agent_id is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.World.AssignDefect(ctx, input.DefectID, input.Body.AgentID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-defect",
		Method:      http.MethodPost,
		Path:        "/defects/{defect_id}/resolve",
		Summary:     "Resolve a defect",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DefectID string `path:"defect_id"`
	}) (*struct {
		Body ResolveResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		resolved, err := a.World.ResolveDefect(ctx, input.DefectID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResolveResponse `json:"body"`
		}{Body: ResolveResponse{Resolved: resolved}}, nil
	})
}

func registerEvents(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events after a cursor",
	}, func(ctx context.Context, input *struct {
		Since int64 `query:"since"`
		Limit int   `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := a.World.EventsSince(ctx, input.Since, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "emit-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Emit a custom event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body EmitEventRequest `json:"body"`
	}) (*struct {
		Body struct {
			ID int64 `json:"id"`
		} `json:"body"`
	}, error) {
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, err := a.World.EmitEvent(ctx, actor, input.Body.Type, events.EventPayload(input.Body.Payload))
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ID int64 `json:"id"`
			} `json:"body"`
		}{}
		out.Body.ID = id
		return out, nil
	})
}

func registerContextFeed(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "post-context",
		Method:        http.MethodPost,
		Path:          "/context",
		Summary:       "Post a context entry",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body PostContextRequest `json:"body"`
	}) (*struct {
		Body domain.ContextEntry `json:"body"`
	}, error) {
		kind := ""
		if input.Body.Kind != nil {
			kind = *input.Body.Kind
		}
		entry, err := a.World.PostContext(ctx, input.Body.AgentID, kind, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ContextEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recent-context",
		Method:      http.MethodGet,
		Path:        "/context/{agent_id}",
		Summary:     "Recent context for an agent",
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
		Limit   int    `query:"limit"`
	}) (*struct {
		Body []domain.ContextEntry `json:"body"`
	}, error) {
		items, err := a.World.RecentContext(ctx, input.AgentID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ContextEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-interrupt",
		Method:      http.MethodGet,
		Path:        "/context/{agent_id}/interrupt",
		Summary:     "Check for pending interruptions",
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct {
		Body InterruptResponse `json:"body"`
	}, error) {
		interrupted, err := a.World.HasInterruption(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InterruptResponse `json:"body"`
		}{Body: InterruptResponse{Interrupted: interrupted}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "consume-interrupts",
		Method:      http.MethodPost,
		Path:        "/context/{agent_id}/consume",
		Summary:     "Consume pending interruptions",
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct {
		Body ConsumeResponse `json:"body"`
	}, error) {
		n, err := a.World.ConsumeInterruptions(ctx, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConsumeResponse `json:"body"`
		}{Body: ConsumeResponse{Consumed: n}}, nil
	})
}

func registerServices(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-service",
		Method:        http.MethodPost,
		Path:          "/services",
		Summary:       "Register a running service",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RegisterServiceRequest `json:"body"`
	}) (*struct {
		Body domain.ServiceRecord `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		svc, err := a.World.RegisterService(ctx, input.Body.Name, input.Body.PID, input.Body.Port, input.Body.Detail, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ServiceRecord `json:"body"`
		}{Body: svc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/services",
		Summary:     "List running services",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ServiceRecord `json:"body"`
	}, error) {
		items, err := a.World.RunningServices(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ServiceRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-service",
		Method:      http.MethodDelete,
		Path:        "/services/{name}",
		Summary:     "Deregister a service",
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body StoppedResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stopped, err := a.World.StopService(ctx, input.Name, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoppedResponse `json:"body"`
		}{Body: StoppedResponse{Stopped: stopped}}, nil
	})
}

func registerDecisions(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-decision",
		Method:        http.MethodPost,
		Path:          "/decisions",
		Summary:       "Record a peer decision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body RecordDecisionRequest `json:"body"`
	}) (*struct {
		Body domain.PeerDecision `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		agentID := input.Body.AgentID
		if agentID == "" {
			agentID = actor
		}
		decision, err := a.World.RecordDecision(ctx, agentID, input.Body.Topic, input.Body.Decision, input.Body.Rationale)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PeerDecision `json:"body"`
		}{Body: decision}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "List decisions, optionally by topic",
	}, func(ctx context.Context, input *struct {
		Topic string `query:"topic"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []domain.PeerDecision `json:"body"`
	}, error) {
		items, err := a.World.DecisionsByTopic(ctx, input.Topic, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PeerDecision `json:"body"`
		}{Body: items}, nil
	})
}

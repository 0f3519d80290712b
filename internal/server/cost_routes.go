package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Garrett-s-Apps/nexus-sub001/internal/app"
	"github.com/Garrett-s-Apps/nexus-sub001/internal/cost"
)

func registerCost(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-cost",
		Method:        http.MethodPost,
		Path:          "/cost/records",
		Summary:       "Record a priced model call",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecordCostRequest `json:"body"`
	}) (*struct {
		Body cost.BudgetStatus `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Model == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "model is required", nil)
		}
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		agentID := input.Body.AgentID
		if agentID == "" {
			agentID = actor
		}
		status, err := a.Cost.Record(ctx, cost.RecordOptions{
			Model:        input.Body.Model,
			AgentID:      agentID,
			Project:      input.Body.Project,
			InputTokens:  input.Body.InputTokens,
			OutputTokens: input.Body.OutputTokens,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body cost.BudgetStatus `json:"body"`
		}{Body: status}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cost-session",
		Method:      http.MethodGet,
		Path:        "/cost/session",
		Summary:     "Session spend summary",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body cost.SessionSummary `json:"body"`
	}, error) {
		return &struct {
			Body cost.SessionSummary `json:"body"`
		}{Body: a.Cost.Session()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cost-monthly",
		Method:      http.MethodGet,
		Path:        "/cost/monthly",
		Summary:     "Month-to-date spend",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MonthlyCostResponse `json:"body"`
	}, error) {
		monthly, err := a.Cost.MonthlyCost(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MonthlyCostResponse `json:"body"`
		}{Body: MonthlyCostResponse{MonthlyCost: monthly}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cost-report",
		Method:      http.MethodGet,
		Path:        "/cost/report",
		Summary:     "Plain-text spend report",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CostReportResponse `json:"body"`
	}, error) {
		report, err := a.Cost.CFOReport(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CostReportResponse `json:"body"`
		}{Body: CostReportResponse{Report: report}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cost-by-model",
		Method:      http.MethodGet,
		Path:        "/cost/models",
		Summary:     "Month-to-date spend by model",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []cost.ModelCost `json:"body"`
	}, error) {
		items, err := a.Cost.ModelBreakdown(ctx, monthStartNow())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []cost.ModelCost `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cost-by-agent",
		Method:      http.MethodGet,
		Path:        "/cost/agents",
		Summary:     "Month-to-date spend by agent",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []cost.AgentCost `json:"body"`
	}, error) {
		items, err := a.Cost.AgentBreakdown(ctx, monthStartNow(), input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []cost.AgentCost `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cost-daily",
		Method:      http.MethodGet,
		Path:        "/cost/daily",
		Summary:     "Daily spend",
	}, func(ctx context.Context, input *struct {
		Days int `query:"days"`
	}) (*struct {
		Body []cost.DailyCost `json:"body"`
	}, error) {
		items, err := a.Cost.DailyBreakdown(ctx, input.Days)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []cost.DailyCost `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "effective-model",
		Method:      http.MethodGet,
		Path:        "/cost/effective-model",
		Summary:     "Resolve the model tier to use",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Model string `query:"model"`
	}) (*struct {
		Body EffectiveModelResponse `json:"body"`
	}, error) {
		if input.Model == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "model is required", nil)
		}
		return &struct {
			Body EffectiveModelResponse `json:"body"`
		}{Body: EffectiveModelResponse{Model: a.Cost.EffectiveModel(input.Model)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-downgrade",
		Method:      http.MethodPost,
		Path:        "/cost/downgrade/reset",
		Summary:     "Clear the model downgrade flag",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DowngradeStateResponse `json:"body"`
	}, error) {
		a.Cost.ResetDowngrade()
		return &struct {
			Body DowngradeStateResponse `json:"body"`
		}{Body: DowngradeStateResponse{Downgraded: a.Cost.Downgraded()}}, nil
	})
}

func monthStartNow() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

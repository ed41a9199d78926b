package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/psx_forecast/internal/archive"
	"github.com/dgnsrekt/psx_forecast/internal/controller"
)

type forecastIDInput struct {
	SessionAuth
	ForecastID string `path:"forecast_id" doc:"Archived forecast ID"`
}

func registerForecastHandlers(api huma.API, svc Service) {
	type runOutput struct {
		Body controller.ForecastRun
	}
	huma.Register(api, huma.Operation{OperationID: "run-forecast", Method: http.MethodPost, Path: "/api/v1/forecast", Summary: "Forecast a ticker", Description: "Fetches five years of daily closes, fits a seasonal model on monthly closes and forecasts the coming months.", Tags: []string{"Forecasts"}},
		func(ctx context.Context, input *struct {
			SessionAuth
			Body struct {
				Ticker string `json:"ticker,omitempty" doc:"PSX ticker without suffix" example:"HUBC"`
				Steps  int    `json:"steps,omitempty" minimum:"0" maximum:"24" doc:"Months to forecast. Omit for the configured default."`
			}
		}) (*runOutput, error) {
			u, err := requireUser(ctx, svc, input.SessionAuth)
			if err != nil {
				return nil, mapErr(err)
			}
			run, err := svc.Forecast(ctx, u, input.Body.Ticker, input.Body.Steps)
			if err != nil {
				return nil, mapErr(err)
			}
			return &runOutput{Body: run}, nil
		})

	type listOutput struct {
		Body struct {
			Forecasts []archive.Meta `json:"forecasts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-forecasts", Method: http.MethodGet, Path: "/api/v1/forecasts", Summary: "List archived forecasts", Tags: []string{"Forecasts"}},
		func(ctx context.Context, input *struct {
			SessionAuth
			Ticker string `query:"ticker" doc:"Optional ticker filter"`
		}) (*listOutput, error) {
			u, err := requireUser(ctx, svc, input.SessionAuth)
			if err != nil {
				return nil, mapErr(err)
			}
			metas, err := svc.ListForecasts(ctx, u, input.Ticker)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Forecasts = metas
			return out, nil
		})

	type recordOutput struct {
		Body archive.Record
	}
	huma.Register(api, huma.Operation{OperationID: "get-forecast", Method: http.MethodGet, Path: "/api/v1/forecasts/{forecast_id}", Summary: "Get archived forecast", Tags: []string{"Forecasts"}},
		func(ctx context.Context, input *forecastIDInput) (*recordOutput, error) {
			u, err := requireUser(ctx, svc, input.SessionAuth)
			if err != nil {
				return nil, mapErr(err)
			}
			rec, err := svc.GetForecast(ctx, u, input.ForecastID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &recordOutput{Body: rec}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-forecast", Method: http.MethodDelete, Path: "/api/v1/forecasts/{forecast_id}", Summary: "Delete archived forecast", Tags: []string{"Forecasts"}},
		func(ctx context.Context, input *forecastIDInput) (*statusOutput, error) {
			u, err := requireUser(ctx, svc, input.SessionAuth)
			if err != nil {
				return nil, mapErr(err)
			}
			if err := svc.DeleteForecast(ctx, u, input.ForecastID); err != nil {
				return nil, mapErr(err)
			}
			out := &statusOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})

	type imageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-forecast-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/forecasts/{forecast_id}/image",
		Summary:     "Get exported chart image",
		Tags:        []string{"Forecasts"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Chart PNG",
				Content: map[string]*huma.MediaType{
					"image/png": {
						Schema: &huma.Schema{Type: "string", Format: "binary"},
					},
				},
			},
		},
	}, func(ctx context.Context, input *forecastIDInput) (*imageOutput, error) {
		u, err := requireUser(ctx, svc, input.SessionAuth)
		if err != nil {
			return nil, mapErr(err)
		}
		data, err := svc.ForecastImage(ctx, u, input.ForecastID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &imageOutput{ContentType: "image/png", Body: data}, nil
	})
}

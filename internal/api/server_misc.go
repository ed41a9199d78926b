package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/psx_forecast/internal/controller"
	"github.com/dgnsrekt/psx_forecast/internal/watchlist"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body controller.Health
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			return &healthOutput{Body: svc.Health(ctx)}, nil
		})

	type watchlistOutput struct {
		Body struct {
			Stocks []watchlist.Entry `json:"stocks"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "get-watchlist", Method: http.MethodGet, Path: "/api/v1/watchlist", Summary: "Recommended stocks", Tags: []string{"Watchlist"}},
		func(ctx context.Context, input *struct{}) (*watchlistOutput, error) {
			out := &watchlistOutput{}
			out.Body.Stocks = svc.Watchlist()
			return out, nil
		})
}

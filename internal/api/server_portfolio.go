package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/dgnsrekt/psx_forecast/internal/portfolio"
)

type holdingBody struct {
	Ticker        string  `json:"ticker,omitempty" doc:"PSX ticker" example:"OGDC"`
	Quantity      int     `json:"quantity,omitempty" doc:"Number of shares, at least 1" example:"100"`
	PurchasePrice float64 `json:"purchase_price,omitempty" doc:"Price paid per share in PKR" example:"85.5"`
	PurchaseDate  string  `json:"purchase_date,omitempty" doc:"YYYY-MM-DD, defaults to today" example:"2024-01-15"`
}

func (b holdingBody) request() portfolio.AddRequest {
	return portfolio.AddRequest{
		Ticker:        b.Ticker,
		Quantity:      b.Quantity,
		PurchasePrice: decimal.NewFromFloat(b.PurchasePrice),
		PurchaseDate:  b.PurchaseDate,
	}
}

func registerPortfolioHandlers(api huma.API, svc Service) {
	type summaryOutput struct {
		Body portfolio.Summary
	}

	huma.Register(api, huma.Operation{OperationID: "get-portfolio", Method: http.MethodGet, Path: "/api/v1/portfolio", Summary: "Get portfolio with gain/loss totals", Tags: []string{"Portfolio"}},
		func(ctx context.Context, input *SessionAuth) (*summaryOutput, error) {
			u, err := requireUser(ctx, svc, *input)
			if err != nil {
				return nil, mapErr(err)
			}
			summary, err := svc.Portfolio(ctx, u)
			if err != nil {
				return nil, mapErr(err)
			}
			return &summaryOutput{Body: summary}, nil
		})

	type holdingOutput struct {
		Body struct {
			Holding   portfolio.Holding `json:"holding"`
			Portfolio portfolio.Summary `json:"portfolio"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "add-holding", Method: http.MethodPost, Path: "/api/v1/portfolio", Summary: "Add a holding", Description: "Values the holding at the latest close. Unknown tickers are rejected.", Tags: []string{"Portfolio"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			SessionAuth
			Body holdingBody
		}) (*holdingOutput, error) {
			u, err := requireUser(ctx, svc, input.SessionAuth)
			if err != nil {
				return nil, mapErr(err)
			}
			h, summary, err := svc.AddHolding(ctx, u, input.Body.request())
			if err != nil {
				return nil, mapErr(err)
			}
			out := &holdingOutput{}
			out.Body.Holding = h
			out.Body.Portfolio = summary
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "remove-holding", Method: http.MethodDelete, Path: "/api/v1/portfolio/{index}", Summary: "Remove a holding by position", Tags: []string{"Portfolio"}},
		func(ctx context.Context, input *struct {
			SessionAuth
			Index int `path:"index" doc:"Zero-based holding position"`
		}) (*holdingOutput, error) {
			u, err := requireUser(ctx, svc, input.SessionAuth)
			if err != nil {
				return nil, mapErr(err)
			}
			h, summary, err := svc.RemoveHolding(ctx, u, input.Index)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &holdingOutput{}
			out.Body.Holding = h
			out.Body.Portfolio = summary
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "refresh-portfolio", Method: http.MethodPost, Path: "/api/v1/portfolio/refresh", Summary: "Re-price every holding", Tags: []string{"Portfolio"}},
		func(ctx context.Context, input *SessionAuth) (*summaryOutput, error) {
			u, err := requireUser(ctx, svc, *input)
			if err != nil {
				return nil, mapErr(err)
			}
			summary, err := svc.RefreshPortfolio(ctx, u)
			if err != nil {
				return nil, mapErr(err)
			}
			return &summaryOutput{Body: summary}, nil
		})

	type reviewOutput struct {
		Body struct {
			Items []portfolio.ReviewItem `json:"items"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "review-portfolio", Method: http.MethodPost, Path: "/api/v1/portfolio/review", Summary: "Forecast every held ticker", Description: "Runs a forecast per distinct ticker and sends one alert listing downtrends when notifications are configured.", Tags: []string{"Portfolio"}},
		func(ctx context.Context, input *SessionAuth) (*reviewOutput, error) {
			u, err := requireUser(ctx, svc, *input)
			if err != nil {
				return nil, mapErr(err)
			}
			items, err := svc.ReviewPortfolio(ctx, u)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &reviewOutput{}
			out.Body.Items = items
			return out, nil
		})
}

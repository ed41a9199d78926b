// Package portfolio tracks a user's stock holdings and their gain or loss.
package portfolio

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// DateLayout is the stored purchase date format.
const DateLayout = "2006-01-02"

// ErrNotFound is returned by a Repository when no document exists.
var ErrNotFound = errors.New("portfolio: not found")

// Holding is one position as stored in the portfolio document.
type Holding struct {
	Ticker        string          `json:"ticker"`
	Quantity      int             `json:"quantity"`
	PurchaseValue decimal.Decimal `json:"purchase_value"`
	PurchaseDate  string          `json:"purchase_date"`
	CurrentValue  decimal.Decimal `json:"current_value"`
}

// GainLoss is current value minus purchase value.
func (h Holding) GainLoss() decimal.Decimal {
	return h.CurrentValue.Sub(h.PurchaseValue)
}

// Repository persists one portfolio document per user email.
type Repository interface {
	GetPortfolio(ctx context.Context, email string) ([]Holding, error)
	SavePortfolio(ctx context.Context, email string, holdings []Holding) error
}

// Line is a holding with its computed gain or loss, as displayed.
type Line struct {
	Index int `json:"index"`
	Holding
	GainLoss decimal.Decimal `json:"gain_loss"`
}

// Summary totals a portfolio.
type Summary struct {
	Lines              []Line          `json:"holdings"`
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalPurchaseValue decimal.Decimal `json:"total_purchase_value"`
	TotalGainLoss      decimal.Decimal `json:"total_gain_loss"`
}

// Summarize computes per holding gain/loss and portfolio totals.
func Summarize(holdings []Holding) Summary {
	sum := Summary{
		Lines:              make([]Line, 0, len(holdings)),
		TotalValue:         decimal.Zero,
		TotalPurchaseValue: decimal.Zero,
		TotalGainLoss:      decimal.Zero,
	}
	for i, h := range holdings {
		gl := h.GainLoss()
		sum.Lines = append(sum.Lines, Line{Index: i, Holding: h, GainLoss: gl})
		sum.TotalValue = sum.TotalValue.Add(h.CurrentValue)
		sum.TotalPurchaseValue = sum.TotalPurchaseValue.Add(h.PurchaseValue)
		sum.TotalGainLoss = sum.TotalGainLoss.Add(gl)
	}
	return sum
}

// FormatPKR renders an amount the way the dashboard shows money.
func FormatPKR(v decimal.Decimal) string {
	return "PKR " + v.StringFixed(2)
}

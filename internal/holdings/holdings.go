// Package holdings keeps average-cost positions per (ticker, account).
// Buys fold into the average cost; sells reduce quantity and realize pnl
// against that average.
package holdings

import (
	"context"
	"time"

	"github.com/minhokang/divtrack/internal/dividend"
)

type Position struct {
	ID          int64                `json:"id"`
	Ticker      string               `json:"ticker"`
	AccountType dividend.AccountType `json:"accountType"`
	Quantity    float64              `json:"quantity"`
	AvgPriceKRW float64              `json:"avgBuyPriceKrw"`
	CostKRW     float64              `json:"totalCostKrw"`
	RealizedKRW float64              `json:"realizedPnlKrw"`
	Note        string               `json:"note,omitempty"`
	Source      string               `json:"source"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// MarketValueKRW is the position's value at the given per-share price.
func (p Position) MarketValueKRW(price float64) float64 {
	return p.Quantity * price
}

type Repository interface {
	// Get returns (nil, nil) when no position exists for the key.
	Get(ctx context.Context, ticker string, account dividend.AccountType) (*Position, error)
	Save(ctx context.Context, p *Position) error
	// List returns open positions (quantity > 0) ordered by ticker.
	List(ctx context.Context, account dividend.AccountType) ([]Position, error)
}

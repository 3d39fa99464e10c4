package holdings

import (
	"context"
	"fmt"

	"github.com/minhokang/divtrack/internal/apperror"
	"github.com/minhokang/divtrack/internal/dividend"
	"github.com/minhokang/divtrack/internal/ticker"
)

// qtyEpsilon absorbs float drift when comparing a sell against the held
// quantity.
const qtyEpsilon = 1e-8

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type TradeRequest struct {
	Ticker      string               `json:"ticker"`
	AccountType dividend.AccountType `json:"accountType"`
	Quantity    float64              `json:"quantity"`
	PriceKRW    float64              `json:"priceKrw"`
	Note        string               `json:"note,omitempty"`
}

func (r TradeRequest) validate() (*TradeRequest, *apperror.AppError) {
	sym := ticker.Normalize(r.Ticker)
	if sym == "" {
		return nil, apperror.New(apperror.BadRequest, "ticker is required")
	}
	if r.Quantity <= 0 {
		return nil, apperror.New(apperror.BadRequest, "quantity must be positive")
	}
	if r.PriceKRW < 0 {
		return nil, apperror.New(apperror.BadRequest, "price cannot be negative")
	}
	if r.AccountType == "" {
		r.AccountType = dividend.AccountTaxable
	}
	r.Ticker = sym
	return &r, nil
}

// Buy folds the purchase into the position's average cost.
func (s *Service) Buy(ctx context.Context, req TradeRequest) (*Position, error) {
	r, aerr := req.validate()
	if aerr != nil {
		return nil, aerr
	}

	p, err := s.repo.Get(ctx, r.Ticker, r.AccountType)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	if p == nil {
		p = &Position{Ticker: r.Ticker, AccountType: r.AccountType, Source: "manual"}
	}

	p.Quantity += r.Quantity
	p.CostKRW += r.Quantity * r.PriceKRW
	p.AvgPriceKRW = p.CostKRW / p.Quantity
	if r.Note != "" {
		p.Note = r.Note
	}

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	return p, nil
}

// Sell reduces the position at its average cost and realizes the
// difference against the sale price. Selling more than is held is a
// client error, not a short position.
func (s *Service) Sell(ctx context.Context, req TradeRequest) (*Position, error) {
	r, aerr := req.validate()
	if aerr != nil {
		return nil, aerr
	}

	p, err := s.repo.Get(ctx, r.Ticker, r.AccountType)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	if p == nil || p.Quantity <= 0 {
		return nil, apperror.New(apperror.BadRequest,
			fmt.Sprintf("no open position for %s", r.Ticker))
	}
	if r.Quantity > p.Quantity+qtyEpsilon {
		return nil, apperror.New(apperror.BadRequest,
			fmt.Sprintf("sell quantity %g exceeds held %g", r.Quantity, p.Quantity))
	}

	costReduction := p.AvgPriceKRW * r.Quantity
	proceeds := r.PriceKRW * r.Quantity

	p.Quantity -= r.Quantity
	if p.Quantity < qtyEpsilon {
		p.Quantity = 0
	}
	p.CostKRW -= costReduction
	if p.Quantity == 0 {
		p.CostKRW = 0
		p.AvgPriceKRW = 0
	}
	p.RealizedKRW += proceeds - costReduction
	if r.Note != "" {
		p.Note = r.Note
	}

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save position: %w", err)
	}
	return p, nil
}

// Positions lists open positions, optionally narrowed to one account type.
func (s *Service) Positions(ctx context.Context, account dividend.AccountType) ([]Position, error) {
	return s.repo.List(ctx, account)
}

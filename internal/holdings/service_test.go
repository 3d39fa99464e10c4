package holdings

import (
	"context"
	"math"
	"testing"

	"github.com/minhokang/divtrack/internal/dividend"
)

type posKey struct {
	ticker  string
	account dividend.AccountType
}

type memRepo struct {
	positions map[posKey]Position
}

func newMemRepo() *memRepo {
	return &memRepo{positions: make(map[posKey]Position)}
}

func (r *memRepo) Get(_ context.Context, ticker string, account dividend.AccountType) (*Position, error) {
	p, ok := r.positions[posKey{ticker, account}]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (r *memRepo) Save(_ context.Context, p *Position) error {
	r.positions[posKey{p.Ticker, p.AccountType}] = *p
	return nil
}

func (r *memRepo) List(_ context.Context, account dividend.AccountType) ([]Position, error) {
	var out []Position
	for _, p := range r.positions {
		if p.Quantity <= 0 {
			continue
		}
		if account != "" && p.AccountType != account {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestBuy_AveragesCost(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	p, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", Quantity: 10, PriceKRW: 60000})
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if p.Quantity != 10 || !approx(p.AvgPriceKRW, 60000) {
		t.Errorf("unexpected position: %+v", p)
	}
	if p.AccountType != dividend.AccountTaxable {
		t.Errorf("expected default TAXABLE account, got %s", p.AccountType)
	}

	p, err = svc.Buy(ctx, TradeRequest{Ticker: "005930", Quantity: 10, PriceKRW: 80000})
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if p.Quantity != 20 || !approx(p.AvgPriceKRW, 70000) {
		t.Errorf("average not blended: %+v", p)
	}
	if !approx(p.CostKRW, 1400000) {
		t.Errorf("cost = %v, want 1400000", p.CostKRW)
	}
}

func TestSell_RealizesPnlAgainstAverage(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", Quantity: 20, PriceKRW: 70000}); err != nil {
		t.Fatal(err)
	}

	p, err := svc.Sell(ctx, TradeRequest{Ticker: "005930", Quantity: 5, PriceKRW: 75000})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if p.Quantity != 15 {
		t.Errorf("quantity = %v, want 15", p.Quantity)
	}
	if !approx(p.RealizedKRW, 5*(75000-70000)) {
		t.Errorf("realized = %v, want 25000", p.RealizedKRW)
	}
	if !approx(p.AvgPriceKRW, 70000) {
		t.Errorf("average moved on sell: %v", p.AvgPriceKRW)
	}
	if !approx(p.CostKRW, 15*70000) {
		t.Errorf("cost = %v, want %v", p.CostKRW, 15*70000.0)
	}
}

func TestSell_FullExitZeroesPosition(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", Quantity: 3, PriceKRW: 70000}); err != nil {
		t.Fatal(err)
	}
	p, err := svc.Sell(ctx, TradeRequest{Ticker: "005930", Quantity: 3, PriceKRW: 71000})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if p.Quantity != 0 || p.CostKRW != 0 || p.AvgPriceKRW != 0 {
		t.Errorf("position not zeroed: %+v", p)
	}
	if !approx(p.RealizedKRW, 3000) {
		t.Errorf("realized = %v, want 3000", p.RealizedKRW)
	}

	positions, err := svc.Positions(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 0 {
		t.Errorf("closed position still listed: %v", positions)
	}
}

func TestSell_RejectsOverselling(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", Quantity: 5, PriceKRW: 70000}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Sell(ctx, TradeRequest{Ticker: "005930", Quantity: 6, PriceKRW: 70000}); err == nil {
		t.Fatal("expected error selling more than held")
	}
	if _, err := svc.Sell(ctx, TradeRequest{Ticker: "000660", Quantity: 1, PriceKRW: 100000}); err == nil {
		t.Fatal("expected error selling a ticker with no position")
	}
}

func TestAccountsAreSeparatePositions(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", AccountType: dividend.AccountTaxable, Quantity: 10, PriceKRW: 60000}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", AccountType: dividend.AccountISA, Quantity: 5, PriceKRW: 65000}); err != nil {
		t.Fatal(err)
	}

	all, err := svc.Positions(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(all))
	}

	isa, err := svc.Positions(ctx, dividend.AccountISA)
	if err != nil {
		t.Fatal(err)
	}
	if len(isa) != 1 || isa[0].Quantity != 5 {
		t.Errorf("unexpected ISA positions: %v", isa)
	}
}

func TestTradeRequest_Validation(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "  ", Quantity: 1, PriceKRW: 100}); err == nil {
		t.Error("expected error for blank ticker")
	}
	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", Quantity: 0, PriceKRW: 100}); err == nil {
		t.Error("expected error for zero quantity")
	}
	if _, err := svc.Buy(ctx, TradeRequest{Ticker: "005930", Quantity: 1, PriceKRW: -5}); err == nil {
		t.Error("expected error for negative price")
	}
}

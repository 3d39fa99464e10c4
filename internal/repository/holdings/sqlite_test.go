package holdings

import (
	"context"
	"testing"

	"github.com/minhokang/divtrack/internal/dividend"
	domain "github.com/minhokang/divtrack/internal/holdings"
	"github.com/minhokang/divtrack/internal/platform/sqlite"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSave_And_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	p := &domain.Position{
		Ticker:      "005930",
		AccountType: dividend.AccountTaxable,
		Quantity:    20,
		AvgPriceKRW: 70000,
		CostKRW:     1400000,
	}
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Get(ctx, "005930", dividend.AccountTaxable)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Quantity != 20 || got.AvgPriceKRW != 70000 {
		t.Errorf("round trip failed: %+v", got)
	}
	if got.Source != "manual" {
		t.Errorf("expected default source manual, got %q", got.Source)
	}

	// Same key upserts in place.
	p.Quantity = 15
	p.RealizedKRW = 25000
	if err := repo.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err = repo.Get(ctx, "005930", dividend.AccountTaxable)
	if err != nil {
		t.Fatal(err)
	}
	if got.Quantity != 15 || got.RealizedKRW != 25000 {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestGet_MissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)

	p, err := repo.Get(context.Background(), "005930", dividend.AccountISA)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestList_SkipsClosedPositions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	open := &domain.Position{Ticker: "005930", AccountType: dividend.AccountTaxable, Quantity: 10, AvgPriceKRW: 70000, CostKRW: 700000}
	closed := &domain.Position{Ticker: "000660", AccountType: dividend.AccountTaxable, Quantity: 0, RealizedKRW: 5000}
	isa := &domain.Position{Ticker: "005930", AccountType: dividend.AccountISA, Quantity: 5, AvgPriceKRW: 65000, CostKRW: 325000}

	for _, p := range []*domain.Position{open, closed, isa} {
		if err := repo.Save(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 open positions, got %d", len(all))
	}

	taxable, err := repo.List(ctx, dividend.AccountTaxable)
	if err != nil {
		t.Fatal(err)
	}
	if len(taxable) != 1 || taxable[0].Ticker != "005930" {
		t.Errorf("account filter failed: %v", taxable)
	}
}

package pricecache

import (
	"context"
	"testing"
	"time"

	"github.com/minhokang/divtrack/internal/marketdata"
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

func TestSave_And_Latest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	older := time.Date(2025, 8, 29, 15, 30, 0, 0, time.UTC)
	newer := time.Date(2025, 8, 30, 15, 30, 0, 0, time.UTC)

	if err := repo.Save(ctx, &marketdata.Quote{
		Ticker: "005930", Price: 69000, Currency: "KRW", Source: "yahoo", AsOf: older,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, &marketdata.Quote{
		Ticker: "005930", Price: 70500, Currency: "KRW", Source: "yahoo", AsOf: newer,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	q, err := repo.Latest(ctx, "005930")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if q == nil {
		t.Fatal("expected a quote")
	}
	if q.Price != 70500 || !q.AsOf.Equal(newer) {
		t.Errorf("expected newest quote, got %+v", q)
	}
}

func TestSave_UpsertsSameTimestamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	asOf := time.Date(2025, 8, 30, 15, 30, 0, 0, time.UTC)
	for _, price := range []float64{70000, 70250} {
		if err := repo.Save(ctx, &marketdata.Quote{
			Ticker: "005930", Price: price, Currency: "KRW", Source: "yahoo", AsOf: asOf,
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	q, err := repo.Latest(ctx, "005930")
	if err != nil {
		t.Fatal(err)
	}
	if q.Price != 70250 {
		t.Errorf("expected replaced price 70250, got %v", q.Price)
	}
}

func TestLatest_MissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)

	q, err := repo.Latest(context.Background(), "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if q != nil {
		t.Errorf("expected nil for unknown ticker, got %+v", q)
	}
}

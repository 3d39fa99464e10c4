package marketdata

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeProvider struct {
	source string
	quotes map[string]*Quote
	err    error
	calls  int
}

func (f *fakeProvider) Source() string { return f.source }

func (f *fakeProvider) CurrentPrice(_ context.Context, ticker string) (*Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	q, ok := f.quotes[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, ticker)
	}
	return q, nil
}

func (f *fakeProvider) DividendHistory(_ context.Context, ticker string, _, _ time.Time) ([]Dividend, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.quotes[ticker]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, ticker)
	}
	return []Dividend{{Date: time.Now(), Amount: 1}}, nil
}

type memPriceCache struct {
	quotes map[string]*Quote
	saves  int
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{quotes: make(map[string]*Quote)}
}

func (c *memPriceCache) Latest(_ context.Context, ticker string) (*Quote, error) {
	return c.quotes[ticker], nil
}

func (c *memPriceCache) Save(_ context.Context, q *Quote) error {
	c.saves++
	c.quotes[q.Ticker] = q
	return nil
}

func TestChain_FallsThroughOnNotFound(t *testing.T) {
	primary := &fakeProvider{source: "primary", quotes: map[string]*Quote{}}
	secondary := &fakeProvider{source: "secondary", quotes: map[string]*Quote{
		"005930": {Ticker: "005930", Price: 70000, Source: "secondary"},
	}}
	chain := NewChain(primary, secondary)

	q, err := chain.CurrentPrice(context.Background(), "005930")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Source != "secondary" {
		t.Errorf("expected secondary to answer, got %s", q.Source)
	}
	if primary.calls != 1 {
		t.Errorf("primary not consulted first: calls=%d", primary.calls)
	}
}

func TestChain_StopsOnHardError(t *testing.T) {
	boom := errors.New("upstream down")
	primary := &fakeProvider{source: "primary", err: boom}
	secondary := &fakeProvider{source: "secondary", quotes: map[string]*Quote{
		"005930": {Ticker: "005930"},
	}}
	chain := NewChain(primary, secondary)

	_, err := chain.CurrentPrice(context.Background(), "005930")
	if !errors.Is(err, boom) {
		t.Fatalf("expected hard error to surface, got %v", err)
	}
	if secondary.calls != 0 {
		t.Error("secondary consulted despite hard error")
	}
}

func TestRegistry_UnsupportedMarket(t *testing.T) {
	reg := NewRegistry()
	reg.Register("KR", NewChain(&fakeProvider{source: "kr"}))

	if _, err := reg.Get("KR"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := reg.Get("US")
	if !errors.Is(err, ErrUnsupportedMarket) {
		t.Errorf("expected ErrUnsupportedMarket, got %v", err)
	}

	// A default chain catches what no market-specific chain claims.
	reg.Register("", NewChain(&fakeProvider{source: "default"}))
	if _, err := reg.Get("US"); err != nil {
		t.Errorf("expected default chain fallback, got %v", err)
	}
}

func TestService_ServesFreshQuotesFromCache(t *testing.T) {
	provider := &fakeProvider{source: "fake", quotes: map[string]*Quote{
		"005930": {Ticker: "005930", Price: 70000, AsOf: time.Now()},
	}}
	reg := NewRegistry()
	reg.Register("", NewChain(provider))
	cache := newMemPriceCache()
	svc := NewService(reg, cache, WithMaxAge(time.Hour))

	ctx := context.Background()
	if _, err := svc.GetQuote(ctx, "005930"); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	if _, err := svc.GetQuote(ctx, "005930"); err != nil {
		t.Fatalf("second quote: %v", err)
	}

	if provider.calls != 1 {
		t.Errorf("expected one provider call, got %d", provider.calls)
	}
	if cache.saves != 1 {
		t.Errorf("expected one cache save, got %d", cache.saves)
	}
}

func TestService_RefetchesStaleQuotes(t *testing.T) {
	provider := &fakeProvider{source: "fake", quotes: map[string]*Quote{
		"005930": {Ticker: "005930", Price: 71000, AsOf: time.Now()},
	}}
	reg := NewRegistry()
	reg.Register("", NewChain(provider))
	cache := newMemPriceCache()
	cache.quotes["005930"] = &Quote{
		Ticker: "005930", Price: 65000, AsOf: time.Now().Add(-24 * time.Hour),
	}
	svc := NewService(reg, cache, WithMaxAge(time.Hour))

	q, err := svc.GetQuote(context.Background(), "005930")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Price != 71000 {
		t.Errorf("expected refetched price 71000, got %v", q.Price)
	}
	if provider.calls != 1 {
		t.Errorf("expected provider to be consulted, calls=%d", provider.calls)
	}
}

func TestService_GetQuotes_TagsFailures(t *testing.T) {
	provider := &fakeProvider{source: "fake", quotes: map[string]*Quote{
		"005930": {Ticker: "005930", Price: 70000, AsOf: time.Now()},
	}}
	reg := NewRegistry()
	reg.Register("", NewChain(provider))
	svc := NewService(reg, newMemPriceCache(), WithWorkers(2))

	results, err := svc.GetQuotes(context.Background(), []string{"005930", "NOPE"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Quote == nil || results[0].Error != "" {
		t.Errorf("expected success for 005930: %+v", results[0])
	}
	if results[1].Quote != nil || results[1].Error == "" {
		t.Errorf("expected tagged failure for NOPE: %+v", results[1])
	}
}

func TestDefault_IsSwappableForTests(t *testing.T) {
	t.Cleanup(func() { SetDefault(nil) })

	fake := NewRegistry()
	fake.Register("", NewChain(&fakeProvider{source: "fake"}))
	SetDefault(fake)

	if Default() != fake {
		t.Error("Default did not return the injected registry")
	}

	SetDefault(nil)
	real := Default()
	if real == nil || real == fake {
		t.Error("Default did not rebuild after reset")
	}
}

package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/minhokang/divtrack/internal/ticker"
)

// PriceCache stores the latest known quote per ticker so a dashboard reload
// does not hammer the provider.
type PriceCache interface {
	// Latest returns (nil, nil) when no quote is cached for the ticker.
	Latest(ctx context.Context, ticker string) (*Quote, error)
	Save(ctx context.Context, q *Quote) error
}

// QuoteResult tags each ticker's outcome so one bad symbol in a batch does
// not hide the quotes that did resolve.
type QuoteResult struct {
	Ticker string `json:"ticker"`
	Quote  *Quote `json:"quote,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Service struct {
	registry *Registry
	cache    PriceCache
	workers  int
	maxAge   time.Duration
}

type ServiceOption func(*Service)

// WithWorkers sets the concurrency for batch quote fetching.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) { s.workers = n }
}

// WithMaxAge sets how old a cached quote may be before it is refetched.
func WithMaxAge(d time.Duration) ServiceOption {
	return func(s *Service) { s.maxAge = d }
}

func NewService(registry *Registry, cache PriceCache, opts ...ServiceOption) *Service {
	s := &Service{
		registry: registry,
		cache:    cache,
		workers:  4,
		maxAge:   15 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// marketFor classifies a ticker for registry lookup. Korean 6-digit codes
// map to KR; everything else falls through to the default chain.
func marketFor(t string) string {
	if ticker.IsKoreanListed(t) {
		return "KR"
	}
	return ""
}

// GetQuote returns a quote for the ticker, served from cache when fresh
// enough. Provider misses are cached misses: they return the error, they
// are not stored.
func (s *Service) GetQuote(ctx context.Context, t string) (*Quote, error) {
	sym := ticker.Normalize(t)
	if sym == "" {
		return nil, ErrQuoteNotFound
	}

	if s.cache != nil {
		cached, err := s.cache.Latest(ctx, sym)
		if err != nil {
			return nil, err
		}
		if cached != nil && time.Since(cached.AsOf) <= s.maxAge {
			return cached, nil
		}
	}

	provider, err := s.registry.Get(marketFor(sym))
	if err != nil {
		return nil, err
	}
	q, err := provider.CurrentPrice(ctx, sym)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Save(ctx, q); err != nil {
			slog.Error("failed to cache quote", "ticker", sym, "error", err)
		}
	}
	return q, nil
}

// GetQuotes fetches quotes for a batch of tickers in parallel, returning a
// tagged result per ticker in input order.
func (s *Service) GetQuotes(ctx context.Context, tickers []string) ([]QuoteResult, error) {
	syms := ticker.NormalizeAll(tickers)
	results := make([]QuoteResult, len(syms))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, sym := range syms {
		g.Go(func() error {
			q, err := s.GetQuote(ctx, sym)
			if err != nil {
				results[i] = QuoteResult{Ticker: sym, Error: err.Error()}
				return nil
			}
			results[i] = QuoteResult{Ticker: sym, Quote: q}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DividendHistory proxies to the ticker's provider chain.
func (s *Service) DividendHistory(ctx context.Context, t string, from, to time.Time) ([]Dividend, error) {
	sym := ticker.Normalize(t)
	if sym == "" {
		return nil, ErrQuoteNotFound
	}
	provider, err := s.registry.Get(marketFor(sym))
	if err != nil {
		return nil, err
	}
	divs, err := provider.DividendHistory(ctx, sym, from, to)
	if err != nil && !errors.Is(err, ErrQuoteNotFound) {
		return nil, err
	}
	return divs, nil
}

// Package marketdata provides current quotes and dividend history from
// external providers. Providers are composed into fallback chains and looked
// up through a market-code registry, so an unsupported market is a tagged
// error the caller can branch on rather than a panic deep in a provider.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrQuoteNotFound means every provider in the chain resolved the
	// request but had no data for the symbol.
	ErrQuoteNotFound = errors.New("marketdata: quote not found")

	// ErrUnsupportedMarket means no provider chain is registered for the
	// ticker's market.
	ErrUnsupportedMarket = errors.New("marketdata: unsupported market")
)

type Quote struct {
	Ticker   string    `json:"ticker"`
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Currency string    `json:"currency"`
	Source   string    `json:"source"`
	AsOf     time.Time `json:"asOf"`
}

type Dividend struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

type Provider interface {
	Source() string
	CurrentPrice(ctx context.Context, ticker string) (*Quote, error)
	DividendHistory(ctx context.Context, ticker string, from, to time.Time) ([]Dividend, error)
}

// Chain tries providers in order and returns the first answer. Only a
// not-found moves on to the next provider; other errors surface immediately
// since retrying a different source won't fix a bad request.
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Source() string { return "chain" }

func (c *Chain) CurrentPrice(ctx context.Context, ticker string) (*Quote, error) {
	if len(c.providers) == 0 {
		return nil, ErrQuoteNotFound
	}
	var lastErr error
	for _, p := range c.providers {
		q, err := p.CurrentPrice(ctx, ticker)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, ErrQuoteNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Chain) DividendHistory(ctx context.Context, ticker string, from, to time.Time) ([]Dividend, error) {
	if len(c.providers) == 0 {
		return nil, ErrQuoteNotFound
	}
	var lastErr error
	for _, p := range c.providers {
		divs, err := p.DividendHistory(ctx, ticker, from, to)
		if err == nil {
			return divs, nil
		}
		if !errors.Is(err, ErrQuoteNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Registry maps market codes to provider chains. The empty market code is
// the fallback for tickers that match no specific market.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{chains: make(map[string]Provider)}
}

func (r *Registry) Register(market string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[market] = p
}

func (r *Registry) Get(market string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.chains[market]; ok {
		return p, nil
	}
	if p, ok := r.chains[""]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedMarket, market)
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, building it on first use with
// a Yahoo-backed chain for every market. Tests swap it with SetDefault.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		yahoo := NewYahoo()
		defaultRegistry = NewRegistry()
		defaultRegistry.Register("", NewChain(yahoo))
	}
	return defaultRegistry
}

// SetDefault replaces the process-wide registry. Pass nil to reset so the
// next Default call rebuilds the real one.
func SetDefault(r *Registry) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRegistry = r
}

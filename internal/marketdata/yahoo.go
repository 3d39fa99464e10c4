package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/minhokang/divtrack/internal/ticker"
)

const (
	defaultChartEndpoint = "https://query2.finance.yahoo.com/v8/finance/chart"
	defaultCookieURL     = "https://fc.yahoo.com"
	defaultCrumbURL      = "https://query1.finance.yahoo.com/v1/test/getcrumb"
	userAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// quoteLookback is the chart window used for a current-price lookup;
	// wide enough to cover exchange holidays.
	quoteLookback = 7 * 24 * time.Hour
)

// Yahoo fetches quotes and dividend history from the Yahoo Finance v8 chart
// API, using cookie + crumb authentication the way the yfinance Python
// library does. Korean 6-digit tickers are tried with the .KS (KOSPI) then
// .KQ (KOSDAQ) suffix; other tickers are passed through as-is.
type Yahoo struct {
	client        *http.Client
	chartEndpoint string
	cookieURL     string
	crumbURL      string

	mu    sync.Mutex
	crumb string
}

func NewYahoo(opts ...YahooOption) *Yahoo {
	jar, _ := cookiejar.New(nil)
	y := &Yahoo{
		client:        &http.Client{Jar: jar, Timeout: 15 * time.Second},
		chartEndpoint: defaultChartEndpoint,
		cookieURL:     defaultCookieURL,
		crumbURL:      defaultCrumbURL,
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

type YahooOption func(*Yahoo)

// WithYahooClient sets the HTTP client. The client should have a cookie jar.
func WithYahooClient(c *http.Client) YahooOption {
	return func(y *Yahoo) { y.client = c }
}

// WithYahooEndpoints overrides the chart, cookie, and crumb URLs.
func WithYahooEndpoints(chart, cookie, crumb string) YahooOption {
	return func(y *Yahoo) {
		y.chartEndpoint = chart
		y.cookieURL = cookie
		y.crumbURL = crumb
	}
}

func (y *Yahoo) Source() string { return "yahoo" }

// candidateSymbols maps a portfolio ticker to the Yahoo symbols to try, in
// order. Korean listings don't carry their exchange in the ticker, so both
// suffixes are candidates.
func candidateSymbols(t string) []string {
	t = ticker.Normalize(t)
	if ticker.IsKoreanListed(t) {
		return []string{t + ".KS", t + ".KQ"}
	}
	return []string{t}
}

func (y *Yahoo) CurrentPrice(ctx context.Context, t string) (*Quote, error) {
	if err := y.ensureCrumb(ctx); err != nil {
		return nil, fmt.Errorf("yahoo auth: %w", err)
	}

	to := time.Now()
	from := to.Add(-quoteLookback)

	var lastErr error = ErrQuoteNotFound
	for _, symbol := range candidateSymbols(t) {
		result, err := y.fetchChart(ctx, symbol, from, to, false)
		if err != nil {
			lastErr = err
			continue
		}

		price, asOf, ok := latestClose(result)
		if !ok {
			lastErr = fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
			continue
		}
		return &Quote{
			Ticker:   ticker.Normalize(t),
			Symbol:   symbol,
			Price:    price,
			Currency: result.Meta.Currency,
			Source:   y.Source(),
			AsOf:     asOf,
		}, nil
	}
	return nil, lastErr
}

func (y *Yahoo) DividendHistory(ctx context.Context, t string, from, to time.Time) ([]Dividend, error) {
	if err := y.ensureCrumb(ctx); err != nil {
		return nil, fmt.Errorf("yahoo auth: %w", err)
	}
	if to.IsZero() {
		to = time.Now()
	}

	var lastErr error = ErrQuoteNotFound
	for _, symbol := range candidateSymbols(t) {
		result, err := y.fetchChart(ctx, symbol, from, to, true)
		if err != nil {
			lastErr = err
			continue
		}
		if len(result.Events.Dividends) == 0 {
			lastErr = fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
			continue
		}

		divs := make([]Dividend, 0, len(result.Events.Dividends))
		for _, d := range result.Events.Dividends {
			divs = append(divs, Dividend{
				Date:   time.Unix(d.Date, 0).UTC(),
				Amount: d.Amount,
			})
		}
		sort.Slice(divs, func(i, j int) bool { return divs[i].Date.Before(divs[j].Date) })

		slog.Info("retrieved yahoo dividends", "symbol", symbol, "count", len(divs))
		return divs, nil
	}
	return nil, lastErr
}

type chartResult struct {
	Meta struct {
		Currency           string  `json:"currency"`
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp []int64 `json:"timestamp"`
	Events    struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
	} `json:"events"`
	Indicators struct {
		Quote []struct {
			Close []any `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) ensureCrumb(ctx context.Context) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.crumb != "" {
		return nil
	}

	cookieReq, err := http.NewRequestWithContext(ctx, "GET", y.cookieURL, nil)
	if err != nil {
		return fmt.Errorf("build cookie request: %w", err)
	}
	cookieReq.Header.Set("User-Agent", userAgent)

	cookieRes, err := y.client.Do(cookieReq)
	if err != nil {
		return fmt.Errorf("fetch cookie: %w", err)
	}
	_ = cookieRes.Body.Close()

	crumbReq, err := http.NewRequestWithContext(ctx, "GET", y.crumbURL, nil)
	if err != nil {
		return fmt.Errorf("build crumb request: %w", err)
	}
	crumbReq.Header.Set("User-Agent", userAgent)

	crumbRes, err := y.client.Do(crumbReq)
	if err != nil {
		return fmt.Errorf("fetch crumb: %w", err)
	}
	defer func() { _ = crumbRes.Body.Close() }()

	if crumbRes.StatusCode != http.StatusOK {
		return fmt.Errorf("crumb endpoint returned HTTP %d", crumbRes.StatusCode)
	}

	body, err := io.ReadAll(crumbRes.Body)
	if err != nil {
		return fmt.Errorf("read crumb: %w", err)
	}

	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return fmt.Errorf("empty crumb received")
	}

	y.crumb = crumb
	return nil
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol string, from, to time.Time, withDividends bool) (*chartResult, error) {
	y.mu.Lock()
	crumb := y.crumb
	y.mu.Unlock()

	reqURL := fmt.Sprintf("%s/%s?period1=%s&period2=%s&interval=1d&crumb=%s",
		y.chartEndpoint, symbol,
		strconv.FormatInt(from.Unix(), 10),
		strconv.FormatInt(to.Unix(), 10),
		crumb,
	)
	if withDividends {
		reqURL += "&events=div"
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
	}
	if res.StatusCode != http.StatusOK {
		// Invalidate crumb on auth errors so the next call retries auth.
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			y.mu.Lock()
			y.crumb = ""
			y.mu.Unlock()
		}
		return nil, fmt.Errorf("yahoo returned HTTP %d for %s", res.StatusCode, symbol)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo response: %w", err)
	}
	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
		}
		return nil, fmt.Errorf("yahoo chart error: %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
	}

	return &resp.Chart.Result[0], nil
}

// latestClose picks the price to report: the meta regular-market price when
// present, otherwise the most recent non-null close in the window.
func latestClose(r *chartResult) (float64, time.Time, bool) {
	if r.Meta.RegularMarketPrice > 0 {
		asOf := time.Now().UTC()
		if r.Meta.RegularMarketTime > 0 {
			asOf = time.Unix(r.Meta.RegularMarketTime, 0).UTC()
		}
		return r.Meta.RegularMarketPrice, asOf, true
	}
	if len(r.Indicators.Quote) == 0 {
		return 0, time.Time{}, false
	}

	closes := r.Indicators.Quote[0].Close
	n := min(len(r.Timestamp), len(closes))
	for i := n - 1; i >= 0; i-- {
		if v, ok := toFloat64(closes[i]); ok {
			return v, time.Unix(r.Timestamp[i], 0).UTC(), true
		}
	}
	return 0, time.Time{}, false
}

// toFloat64 converts a JSON number to float64, rejecting the nulls Yahoo
// uses for missing data points.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

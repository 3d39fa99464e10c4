package fx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type memRepo struct {
	rates map[string]map[time.Time]float64
}

func newMemRepo() *memRepo {
	return &memRepo{rates: make(map[string]map[time.Time]float64)}
}

func (r *memRepo) SaveRates(_ context.Context, rates []Rate) (int64, error) {
	var n int64
	for _, rt := range rates {
		if r.rates[rt.Pair] == nil {
			r.rates[rt.Pair] = make(map[time.Time]float64)
		}
		if _, ok := r.rates[rt.Pair][rt.Date]; ok {
			continue
		}
		r.rates[rt.Pair][rt.Date] = rt.Rate
		n++
	}
	return n, nil
}

func (r *memRepo) ListRates(_ context.Context, pair string, from, to time.Time) ([]Rate, error) {
	var out []Rate
	for d, v := range r.rates[pair] {
		if !d.Before(from) && !d.After(to) {
			out = append(out, Rate{Pair: pair, Date: d, Rate: v})
		}
	}
	return out, nil
}

func (r *memRepo) ExistingDates(_ context.Context, pair string, from, to time.Time) (map[time.Time]bool, error) {
	out := make(map[time.Time]bool)
	for d := range r.rates[pair] {
		if !d.Before(from) && !d.After(to) {
			out[d] = true
		}
	}
	return out, nil
}

func chartServer(t *testing.T, closes map[int64]float64) *httptest.Server {
	t.Helper()

	var resp chartResponse
	var result struct {
		Timestamp  []int64 `json:"timestamp"`
		Indicators struct {
			Quote []struct {
				Close []float64 `json:"close"`
			} `json:"quote"`
		} `json:"indicators"`
	}
	var quote struct {
		Close []float64 `json:"close"`
	}
	for ts, v := range closes {
		result.Timestamp = append(result.Timestamp, ts)
		quote.Close = append(quote.Close, v)
	}
	result.Indicators.Quote = append(result.Indicators.Quote, quote)
	resp.Chart.Result = append(resp.Chart.Result, result)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestGetRates_ScrapesAndPersistsMissing(t *testing.T) {
	day1 := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 8, 26, 0, 0, 0, 0, time.UTC)

	ts := chartServer(t, map[int64]float64{
		day1.Unix(): 1390.5,
		day2.Unix(): 1394.2,
	})
	defer ts.Close()

	repo := newMemRepo()
	svc := NewService(repo, WithClient(ts.Client()), WithChartEndpoint(ts.URL+"/%s?p1=%s&p2=%s"))

	rates, err := svc.GetRates(context.Background(), PairUSDKRW, day1, day2)
	if err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if rates[day1] != 1390.5 || rates[day2] != 1394.2 {
		t.Errorf("unexpected rates: %v", rates)
	}
	if len(repo.rates[PairUSDKRW]) != 2 {
		t.Errorf("rates not persisted: %v", repo.rates)
	}
}

func TestGetRates_ScrapeFailureDegradesToCache(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	day := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	_, _ = repo.SaveRates(context.Background(), []Rate{{Pair: PairUSDKRW, Date: day, Rate: 1388}})

	svc := NewService(repo, WithClient(ts.Client()), WithChartEndpoint(ts.URL+"/%s?p1=%s&p2=%s"))

	rates, err := svc.GetRates(context.Background(), PairUSDKRW, day, day.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("expected cached subset, got error: %v", err)
	}
	if rates[day] != 1388 {
		t.Errorf("expected cached rate, got %v", rates)
	}
}

func TestRateOn_WeekendUsesNearestPriorClose(t *testing.T) {
	// Friday close covers the Saturday pay date.
	friday := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)

	ts := chartServer(t, map[int64]float64{friday.Unix(): 1392.0})
	defer ts.Close()

	svc := NewService(newMemRepo(), WithClient(ts.Client()), WithChartEndpoint(ts.URL+"/%s?p1=%s&p2=%s"))

	rate, err := svc.RateOn(context.Background(), PairUSDKRW, saturday)
	if err != nil {
		t.Fatalf("rate on: %v", err)
	}
	if rate != 1392.0 {
		t.Errorf("expected friday close 1392, got %v", rate)
	}
}

func TestForwardFill(t *testing.T) {
	mon := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	sat := mon.AddDate(0, 0, 5)

	rates := map[time.Time]float64{mon: 1390, tue: 1394}
	filled := ForwardFill(rates, []time.Time{mon, sat})

	if filled[mon] != 1390 {
		t.Errorf("exact date not used: %v", filled[mon])
	}
	if filled[sat] != 1394 {
		t.Errorf("nearest prior not used: %v", filled[sat])
	}

	before := mon.AddDate(0, 0, -3)
	filled = ForwardFill(rates, []time.Time{before})
	if _, ok := filled[before]; ok {
		t.Error("date before all rates should have no fill")
	}
}

func TestCountWeekdays(t *testing.T) {
	mon := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
	sun := mon.AddDate(0, 0, 6)
	if got := countWeekdays(mon, sun); got != 5 {
		t.Errorf("countWeekdays = %d, want 5", got)
	}
}

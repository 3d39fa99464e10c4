package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/minhokang/divtrack/internal/alimtalk"
	"github.com/minhokang/divtrack/internal/analytics"
	"github.com/minhokang/divtrack/internal/dividend"
	"github.com/minhokang/divtrack/internal/dps"
	"github.com/minhokang/divtrack/internal/holdings"
	"github.com/minhokang/divtrack/internal/importer"
	"github.com/minhokang/divtrack/internal/marketdata"
	"github.com/minhokang/divtrack/internal/prefetch"
)

type handler struct {
	prefetchSvc *prefetch.Service
	dpsSvc      *dps.Service
	dividendSvc *dividend.Service
	holdingsSvc *holdings.Service
	marketSvc   *marketdata.Service
	alimtalkImp *alimtalk.Importer
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createPrefetchJob(w http.ResponseWriter, r *http.Request) {
	var req prefetch.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	j, err := h.prefetchSvc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *handler) getPrefetchJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.prefetchSvc.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) listPrefetchJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.prefetchSvc.ListRecent(r.Context(), prefetch.ListJobsRequest{Limit: limit})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// jobTransition wraps the pause/resume/cancel handlers, which differ only
// in the service call.
func (h *handler) jobTransition(call func(r *http.Request, id string) (*prefetch.Job, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := call(r, r.PathValue("id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if j == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, j)
	}
}

func (h *handler) stepPrefetchJob(w http.ResponseWriter, r *http.Request) {
	var req prefetch.StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StepLimit == 0 {
		req.StepLimit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	}

	j, err := h.prefetchSvc.Step(r.Context(), r.PathValue("id"), req.StepLimit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) getDPSSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startYear, _ := strconv.Atoi(q.Get("startYear"))
	endYear, _ := strconv.Atoi(q.Get("endYear"))
	force, _ := strconv.ParseBool(q.Get("forceRefresh"))

	items, err := h.dpsSvc.GetSeries(r.Context(), dps.GetSeriesRequest{
		Ticker:       r.PathValue("ticker"),
		StartYear:    startYear,
		EndYear:      endYear,
		ReprtCode:    q.Get("reprtCode"),
		ForceRefresh: force,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) listDividends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, _ := strconv.Atoi(q.Get("year"))
	includeArchived, _ := strconv.ParseBool(q.Get("includeArchived"))

	events, err := h.dividendSvc.List(r.Context(), dividend.ListFilter{
		Ticker:          q.Get("ticker"),
		Year:            year,
		AccountType:     dividend.AccountType(q.Get("accountType")),
		IncludeArchived: includeArchived,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) importDividendCSV(w http.ResponseWriter, r *http.Request) {
	events, err := importer.ReadCSV(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sync := true
	if v := r.URL.Query().Get("sync"); v != "" {
		sync, _ = strconv.ParseBool(v)
	}

	res, err := h.dividendSvc.Import(r.Context(), events, dividend.SourceExcel, sync)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) importAlimtalk(w http.ResponseWriter, r *http.Request) {
	var req alimtalk.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	summary, err := h.alimtalkImp.Import(r.Context(), req)
	if err != nil {
		if errors.Is(err, alimtalk.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) listPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.holdingsSvc.Positions(r.Context(),
		dividend.AccountType(r.URL.Query().Get("accountType")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *handler) trade(call func(r *http.Request, req holdings.TradeRequest) (*holdings.Position, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req holdings.TradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		p, err := call(r, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (h *handler) getQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.marketSvc.GetQuote(r.Context(), r.PathValue("ticker"))
	if err != nil {
		if errors.Is(err, marketdata.ErrQuoteNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, marketdata.ErrUnsupportedMarket) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *handler) getQuotes(w http.ResponseWriter, r *http.Request) {
	tickers := r.URL.Query()["ticker"]
	if len(tickers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one ticker query parameter is required")
		return
	}

	results, err := h.marketSvc.GetQuotes(r.Context(), tickers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// dpsAnalytics summarizes a ticker's cached DPS series: annual values,
// growth metrics, and, when a quote is available, the yield of the latest
// fiscal year against the current price.
type dpsAnalytics struct {
	Ticker string                  `json:"ticker"`
	Annual []analytics.AnnualPoint `json:"annual"`
	Growth analytics.GrowthMetrics `json:"growth"`
	Yield  *float64                `json:"latestYearYield,omitempty"`
}

func (h *handler) getDPSAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startYear, _ := strconv.Atoi(q.Get("startYear"))
	endYear, _ := strconv.Atoi(q.Get("endYear"))

	sym := r.PathValue("ticker")
	items, err := h.dpsSvc.GetSeries(r.Context(), dps.GetSeriesRequest{
		Ticker:    sym,
		StartYear: startYear,
		EndYear:   endYear,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var points []analytics.Point
	for _, item := range items {
		if item.DPSCash == nil {
			continue
		}
		points = append(points, analytics.Point{
			Date:   time.Date(item.FiscalYear, 1, 1, 0, 0, 0, 0, time.UTC),
			Amount: *item.DPSCash,
		})
	}
	annual := analytics.AnnualTotals(points)

	out := dpsAnalytics{
		Ticker: sym,
		Annual: annual,
		Growth: analytics.Growth(annual),
	}

	if len(annual) > 0 {
		if quote, err := h.marketSvc.GetQuote(r.Context(), sym); err == nil && quote.Price > 0 {
			y := annual[len(annual)-1].Total / quote.Price
			out.Yield = &y
		}
	}

	writeJSON(w, http.StatusOK, out)
}

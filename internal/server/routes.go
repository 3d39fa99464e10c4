package server

import (
	"net/http"

	"github.com/minhokang/divtrack/internal/alimtalk"
	"github.com/minhokang/divtrack/internal/dividend"
	"github.com/minhokang/divtrack/internal/dps"
	"github.com/minhokang/divtrack/internal/holdings"
	"github.com/minhokang/divtrack/internal/marketdata"
	"github.com/minhokang/divtrack/internal/prefetch"
)

// Services bundles everything the HTTP layer dispatches to.
type Services struct {
	Prefetch *prefetch.Service
	DPS      *dps.Service
	Dividend *dividend.Service
	Holdings *holdings.Service
	Market   *marketdata.Service
	Alimtalk *alimtalk.Importer
}

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(svcs Services) http.Handler {
	return newMux(svcs)
}

func newMux(svcs Services) http.Handler {
	h := &handler{
		prefetchSvc: svcs.Prefetch,
		dpsSvc:      svcs.DPS,
		dividendSvc: svcs.Dividend,
		holdingsSvc: svcs.Holdings,
		marketSvc:   svcs.Market,
		alimtalkImp: svcs.Alimtalk,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /api/v1/prefetch/jobs", h.createPrefetchJob)
	mux.HandleFunc("GET /api/v1/prefetch/jobs", h.listPrefetchJobs)
	mux.HandleFunc("GET /api/v1/prefetch/jobs/{id}", h.getPrefetchJob)
	mux.HandleFunc("POST /api/v1/prefetch/jobs/{id}/resume", h.jobTransition(
		func(r *http.Request, id string) (*prefetch.Job, error) {
			return h.prefetchSvc.Resume(r.Context(), id)
		}))
	mux.HandleFunc("POST /api/v1/prefetch/jobs/{id}/pause", h.jobTransition(
		func(r *http.Request, id string) (*prefetch.Job, error) {
			return h.prefetchSvc.Pause(r.Context(), id)
		}))
	mux.HandleFunc("POST /api/v1/prefetch/jobs/{id}/cancel", h.jobTransition(
		func(r *http.Request, id string) (*prefetch.Job, error) {
			return h.prefetchSvc.RequestCancel(r.Context(), id)
		}))
	mux.HandleFunc("POST /api/v1/prefetch/jobs/{id}/step", h.stepPrefetchJob)

	mux.HandleFunc("GET /api/v1/dps/{ticker}", h.getDPSSeries)
	mux.HandleFunc("GET /api/v1/dps/{ticker}/analytics", h.getDPSAnalytics)

	mux.HandleFunc("GET /api/v1/dividends", h.listDividends)
	mux.HandleFunc("POST /api/v1/dividends/import/csv", h.importDividendCSV)
	mux.HandleFunc("POST /api/v1/dividends/import/alimtalk", h.importAlimtalk)

	mux.HandleFunc("GET /api/v1/holdings", h.listPositions)
	mux.HandleFunc("POST /api/v1/holdings/buy", h.trade(
		func(r *http.Request, req holdings.TradeRequest) (*holdings.Position, error) {
			return h.holdingsSvc.Buy(r.Context(), req)
		}))
	mux.HandleFunc("POST /api/v1/holdings/sell", h.trade(
		func(r *http.Request, req holdings.TradeRequest) (*holdings.Position, error) {
			return h.holdingsSvc.Sell(r.Context(), req)
		}))

	mux.HandleFunc("GET /api/v1/quotes", h.getQuotes)
	mux.HandleFunc("GET /api/v1/quotes/{ticker}", h.getQuote)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}

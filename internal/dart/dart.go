// Package dart implements a client for the OpenDART disclosure API. It
// retrieves per-share cash dividend figures from annual report "alotMatter"
// disclosures, resolving tickers to DART corp codes via the corpCode file.
package dart

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAlotMatterURL = "https://opendart.fss.or.kr/api/alotMatter.json"
	defaultCorpCodeURL   = "https://opendart.fss.or.kr/api/corpCode.xml"

	// ReportCodeAnnual selects the annual business report disclosure.
	ReportCodeAnnual = "11011"

	minFiscalYear = 2000
)

// ErrCorpCodeNotFound means DART has no corp code mapping for the ticker.
// Callers treat this as permanent for the ticker, not as a provider outage.
var ErrCorpCodeNotFound = errors.New("dart: corp code not found")

// ErrUnavailable covers everything else: network failures, quota errors,
// unexpected responses.
var ErrUnavailable = errors.New("dart: api unavailable")

// Record is one fiscal year's dividend disclosure for a ticker.
type Record struct {
	Ticker            string    `json:"ticker"`
	Year              int       `json:"year"`
	EventDate         time.Time `json:"eventDate"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	CashYieldPct      *float64  `json:"cashYieldPct,omitempty"`
	TotalCashDividend *float64  `json:"totalCashDividend,omitempty"`
	PayoutRatioPct    *float64  `json:"payoutRatioPct,omitempty"`
	FrequencyHint     string    `json:"frequencyHint,omitempty"`
	SourceNote        string    `json:"sourceNote,omitempty"`
}

// Client fetches dividend disclosures from OpenDART. The rate limiter is
// shared across all calls because DART enforces a global requests-per-second
// ceiling per API key.
type Client struct {
	client        *http.Client
	limiter       *rate.Limiter
	alotMatterURL string
	corpCodeURL   string
	apiKeyPath    string

	mu              sync.Mutex
	apiKey          string
	corpCodesLoaded bool
	corpByStock     map[string]string
	corpByName      map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) Option {
	return func(d *Client) { d.client = c }
}

// WithRateLimit sets the request budget in requests per second.
func WithRateLimit(perSec int) Option {
	return func(d *Client) {
		if perSec > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithAlotMatterURL overrides the dividend disclosure endpoint.
func WithAlotMatterURL(u string) Option {
	return func(d *Client) { d.alotMatterURL = u }
}

// WithCorpCodeURL overrides the corp code download endpoint.
func WithCorpCodeURL(u string) Option {
	return func(d *Client) { d.corpCodeURL = u }
}

// WithAPIKey sets the key directly instead of reading it from a file.
func WithAPIKey(key string) Option {
	return func(d *Client) { d.apiKey = key }
}

// New creates a Client. The API key is read lazily from apiKeyPath on first
// use unless WithAPIKey was given.
func New(apiKeyPath string, opts ...Option) *Client {
	d := &Client{
		client:        &http.Client{Timeout: 15 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(5), 1),
		alotMatterURL: defaultAlotMatterURL,
		corpCodeURL:   defaultCorpCodeURL,
		apiKeyPath:    apiKeyPath,
		corpByStock:   make(map[string]string),
		corpByName:    make(map[string]string),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// FetchDividendRecords returns dividend records for the ticker between
// startYear and endYear inclusive. Years without a disclosure are simply
// absent from the result. Returns ErrCorpCodeNotFound when the ticker has no
// DART mapping and ErrUnavailable for any other failure.
func (d *Client) FetchDividendRecords(ctx context.Context, tickerSym string, startYear, endYear int) ([]Record, error) {
	normalized := strings.ToUpper(strings.TrimSpace(tickerSym))
	if normalized == "" {
		return nil, nil
	}

	corpCode, err := d.resolveCorpCode(ctx, normalized)
	if err != nil {
		return nil, err
	}

	currentYear := time.Now().Year()
	start := max(startYear, minFiscalYear)
	end := endYear
	if end == 0 {
		end = currentYear
	}
	if end < start {
		end = start
	}

	var records []Record
	for year := start; year <= end; year++ {
		rows, err := d.fetchAlotMatter(ctx, corpCode, year)
		if err != nil {
			return nil, err
		}
		if rec, ok := convertAlotRows(rows, normalized, year); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

type alotResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	List    []alotRow `json:"list"`
}

type alotRow struct {
	Se       string `json:"se"`
	StockKnd string `json:"stock_knd"`
	Thstrm   string `json:"thstrm"`
	ThstrmDt string `json:"thstrm_dt"`
}

func (d *Client) fetchAlotMatter(ctx context.Context, corpCode string, year int) ([]alotRow, error) {
	apiKey, err := d.loadAPIKey()
	if err != nil {
		return nil, err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	reqURL := fmt.Sprintf("%s?crtfc_key=%s&corp_code=%s&bsns_year=%d&reprt_code=%s",
		d.alotMatterURL, apiKey, corpCode, year, ReportCodeAnnual)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	res, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: alotMatter returned HTTP %d", ErrUnavailable, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var resp alotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrUnavailable, err)
	}

	switch resp.Status {
	case "000":
		return resp.List, nil
	case "013": // no data for this year
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: dart status %s: %s", ErrUnavailable, resp.Status, resp.Message)
	}
}

func (d *Client) loadAPIKey() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.apiKey != "" {
		return d.apiKey, nil
	}
	data, err := os.ReadFile(d.apiKeyPath)
	if err != nil {
		return "", fmt.Errorf("%w: read api key %s: %v", ErrUnavailable, d.apiKeyPath, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: api key file %s is empty", ErrUnavailable, d.apiKeyPath)
	}
	d.apiKey = key
	return key, nil
}

type corpCodeFile struct {
	List []struct {
		CorpCode  string `xml:"corp_code"`
		CorpName  string `xml:"corp_name"`
		StockCode string `xml:"stock_code"`
	} `xml:"list"`
}

// resolveCorpCode maps a ticker (6-digit stock code) or company name to a
// DART corp code, downloading the mapping file on first use.
func (d *Client) resolveCorpCode(ctx context.Context, normalized string) (string, error) {
	if err := d.ensureCorpCodes(ctx); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	digits := digitsOnly(normalized)
	if digits != "" {
		if code, ok := d.corpByStock[digits]; ok {
			return code, nil
		}
	}
	if code, ok := d.corpByName[normalized]; ok {
		return code, nil
	}
	return "", fmt.Errorf("%w: %s", ErrCorpCodeNotFound, normalized)
}

func (d *Client) ensureCorpCodes(ctx context.Context) error {
	d.mu.Lock()
	loaded := d.corpCodesLoaded
	d.mu.Unlock()
	if loaded {
		return nil
	}

	apiKey, err := d.loadAPIKey()
	if err != nil {
		return err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", d.corpCodeURL+"?crtfc_key="+apiKey, nil)
	if err != nil {
		return fmt.Errorf("%w: build corp code request: %v", ErrUnavailable, err)
	}

	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: download corp codes: %v", ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: corp code download returned HTTP %d", ErrUnavailable, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read corp code archive: %v", ErrUnavailable, err)
	}

	xmlBytes, err := extractCorpCodeXML(body)
	if err != nil {
		return err
	}

	var file corpCodeFile
	if err := xml.Unmarshal(xmlBytes, &file); err != nil {
		return fmt.Errorf("%w: parse corp code xml: %v", ErrUnavailable, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, entry := range file.List {
		code := strings.TrimSpace(entry.CorpCode)
		stock := strings.TrimSpace(entry.StockCode)
		name := strings.ToUpper(strings.TrimSpace(entry.CorpName))
		if code == "" {
			continue
		}
		if stock != "" {
			d.corpByStock[stock] = code
		}
		if name != "" {
			d.corpByName[name] = code
		}
	}
	d.corpCodesLoaded = true
	slog.Info("dart: loaded corp codes", "stock_codes", len(d.corpByStock), "names", len(d.corpByName))
	return nil
}

// extractCorpCodeXML unpacks the first XML entry of the corpCode zip archive.
// The corpCode endpoint responds with a zip regardless of the .xml URL suffix.
func extractCorpCodeXML(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: open corp code archive: %v", ErrUnavailable, err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, f.Name, err)
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: no xml entry in corp code archive", ErrUnavailable)
}

// convertAlotRows extracts the common-stock per-share cash dividend from one
// year's alotMatter rows. Returns false when the year has no usable figure.
func convertAlotRows(rows []alotRow, tickerSym string, year int) (Record, bool) {
	perShare, ok := findRow(rows, "주당 현금배당금", true)
	if !ok {
		return Record{}, false
	}
	amount, ok := parseAmount(perShare.Thstrm)
	if !ok || amount <= 0 {
		return Record{}, false
	}

	rec := Record{
		Ticker:     tickerSym,
		Year:       year,
		EventDate:  extractEventDate(perShare, year),
		Amount:     amount,
		Currency:   "KRW",
		SourceNote: "alotMatter",
	}

	if v, ok := findRowAmount(rows, "현금배당수익률", true); ok {
		rec.CashYieldPct = &v
	}
	if v, ok := findRowAmount(rows, "(연결)현금배당성향", false); ok {
		rec.PayoutRatioPct = &v
	} else if v, ok := findRowAmount(rows, "현금배당성향", false); ok {
		rec.PayoutRatioPct = &v
	}
	if v, ok := findRowAmount(rows, "현금배당금총액", false); ok {
		total := v * 1_000_000 // disclosed in millions of KRW
		rec.TotalCashDividend = &total
	}
	rec.FrequencyHint = inferFrequency(amount)
	return rec, true
}

func findRow(rows []alotRow, keyword string, commonOnly bool) (alotRow, bool) {
	normalizedKeyword := normalizeLabel(keyword)
	for _, row := range rows {
		if !strings.Contains(normalizeLabel(row.Se), normalizedKeyword) {
			continue
		}
		if commonOnly && !isCommonStockKind(row.StockKnd) {
			continue
		}
		return row, true
	}
	return alotRow{}, false
}

func findRowAmount(rows []alotRow, keyword string, commonOnly bool) (float64, bool) {
	row, ok := findRow(rows, keyword, commonOnly)
	if !ok {
		return 0, false
	}
	return parseAmount(row.Thstrm)
}

func normalizeLabel(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// isCommonStockKind filters out preferred-stock rows; an empty kind column
// counts as common because older filings omit it.
func isCommonStockKind(kind string) bool {
	upper := strings.ToUpper(kind)
	if strings.Contains(upper, "보통") || strings.Contains(upper, "COMMON") {
		return true
	}
	if strings.Contains(upper, "PREF") || strings.Contains(upper, "우선") {
		return false
	}
	return true
}

func parseAmount(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(raw, ",", ""), "원", ""))
	if cleaned == "" || cleaned == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractEventDate(row alotRow, year int) time.Time {
	for _, layout := range []string{"2006-01-02", "2006.01.02", "20060102"} {
		if t, err := time.Parse(layout, strings.TrimSpace(row.ThstrmDt)); err == nil {
			return t
		}
	}
	return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
}

func inferFrequency(annualAmount float64) string {
	if annualAmount <= 0 {
		return ""
	}
	candidates := []struct {
		divisor float64
		label   string
	}{
		{4, "quarterly (estimated)"},
		{2, "semiannual (estimated)"},
		{12, "monthly (estimated)"},
		{1, "annual"},
	}
	for _, c := range candidates {
		portion := annualAmount / c.divisor
		if diff := portion - float64(int64(portion+0.5)); diff < 0.5 && diff > -0.5 {
			return c.label
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

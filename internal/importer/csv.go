// Package importer turns brokerage CSV exports into dividend events. The
// exports carry Korean headers; a representative mapping normalizes them to
// the ledger's field names.
package importer

import (
	"crypto/sha1"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/minhokang/divtrack/internal/dividend"
	"github.com/minhokang/divtrack/internal/ticker"
)

// headerMap translates export headers to canonical column names. Unknown
// columns pass through untouched and are ignored.
var headerMap = map[string]string{
	"rowId":  "rowId",
	"날짜":     "payDate",
	"년도":     "year",
	"월":      "month",
	"종목코드":   "ticker",
	"배당금":    "grossDividend",
	"통화":     "currency",
	"환율":     "fxRate",
	"세전배당금":  "krwGross",
	"세후배당금":  "netDividend",
	"세금":     "tax",
	"계좌구분":   "accountType",
}

var required = []string{"payDate", "ticker", "grossDividend", "krwGross", "accountType"}

// ReadCSV parses an export into ledger events. Rows missing a rowId get a
// deterministic one derived from the identity columns, so re-importing the
// same file stays idempotent.
func ReadCSV(r io.Reader) ([]dividend.Event, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if std, ok := headerMap[h]; ok {
			cols[std] = i
		}
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("csv is missing required column %q", c)
		}
	}

	var events []dividend.Event
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		line++

		e, err := rowToEvent(cols, record)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		events = append(events, *e)
	}

	return events, nil
}

func rowToEvent(cols map[string]int, record []string) (*dividend.Event, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	payDate, err := parseDate(field("payDate"))
	if err != nil {
		return nil, err
	}

	sym := ticker.Normalize(field("ticker"))
	if sym == "" {
		return nil, fmt.Errorf("empty ticker")
	}

	gross, err := requireNumber(field("grossDividend"), "grossDividend")
	if err != nil {
		return nil, err
	}
	krwGross, err := requireNumber(field("krwGross"), "krwGross")
	if err != nil {
		return nil, err
	}

	account, err := dividend.ParseAccountType(field("accountType"))
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(field("currency"))
	if currency == "" {
		currency = "KRW"
	}

	e := &dividend.Event{
		RowID:       field("rowId"),
		PayDate:     payDate,
		Year:        payDate.Year(),
		Month:       int(payDate.Month()),
		Ticker:      sym,
		Currency:    currency,
		FXRate:      parseNumber(field("fxRate")),
		Gross:       gross,
		Tax:         parseNumber(field("tax")),
		Net:         parseNumber(field("netDividend")),
		KRWGross:    &krwGross,
		AccountType: account,
		Source:      dividend.SourceExcel,
	}
	if y := parseNumber(field("year")); y != nil {
		e.Year = int(*y)
	}
	if m := parseNumber(field("month")); m != nil {
		e.Month = int(*m)
	}
	if e.RowID == "" {
		e.RowID = buildRowID(e)
	}
	return e, nil
}

// buildRowID derives a stable id from the columns that identify a payout.
func buildRowID(e *dividend.Event) string {
	base := fmt.Sprintf("%s|%s|%s|%s",
		e.PayDate.Format("2006-01-02"), e.Ticker,
		strconv.FormatFloat(e.Gross, 'f', -1, 64), e.AccountType)
	digest := sha1.Sum([]byte(base))
	return "excel:" + hex.EncodeToString(digest[:])[:16]
}

// dateFormats covers the export's "2020. 4. 9" form plus common fallbacks.
var dateFormats = []string{"2006. 1. 2", "2006-01-02", "2006.01.02", "2006/01/02"}

var multiSpace = regexp.MustCompile(`\s+`)

func parseDate(s string) (time.Time, error) {
	s = multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
	s = strings.TrimSuffix(s, ".")
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// parseNumber strips thousands separators and currency symbols. Blank,
// dash, and "nan" cells are nil.
func parseNumber(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" || strings.EqualFold(s, "nan") {
		return nil
	}
	s = nonNumeric.ReplaceAllString(s, "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func requireNumber(s, name string) (float64, error) {
	v := parseNumber(s)
	if v == nil {
		return 0, fmt.Errorf("missing %s value", name)
	}
	return *v, nil
}

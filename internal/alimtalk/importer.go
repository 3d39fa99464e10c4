package alimtalk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minhokang/divtrack/internal/dividend"
	"github.com/minhokang/divtrack/internal/fx"
	"github.com/minhokang/divtrack/internal/ticker"
)

// Importer turns parsed notifications into ledger events: domestic names
// are resolved to tickers through a caller-supplied mapping, overseas
// amounts are converted to KRW at the pay date's rate.
type Importer struct {
	ledger *dividend.Service
	rates  *fx.Service
}

func NewImporter(ledger *dividend.Service, rates *fx.Service) *Importer {
	return &Importer{ledger: ledger, rates: rates}
}

type ImportRequest struct {
	// Text is the pasted notification blob.
	Text string `json:"text"`
	// Tickers maps domestic stock names to tickers ("삼성전자" -> "005930").
	Tickers map[string]string `json:"tickers,omitempty"`
	// PayDate is the fallback date for messages that carry none
	// (overseas), in YYYY-MM-DD. Defaults to today.
	PayDate string `json:"payDate,omitempty"`
	// AccountType applies to every message; brokerage account references
	// are masked and cannot be mapped automatically.
	AccountType dividend.AccountType `json:"accountType,omitempty"`
}

// ImportSummary tags what happened per message: imported events plus the
// messages that parsed fine but could not be resolved to a ticker.
type ImportSummary struct {
	Result     dividend.ImportResult `json:"result"`
	Imported   int                   `json:"imported"`
	Unresolved []string              `json:"unresolved,omitempty"`
}

func (i *Importer) Import(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	msgs, err := ParseAll(req.Text)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fallbackDate := now.Truncate(24 * time.Hour)
	if req.PayDate != "" {
		d, err := time.Parse("2006-01-02", req.PayDate)
		if err != nil {
			return nil, fmt.Errorf("invalid payDate: %w", err)
		}
		fallbackDate = d
	}
	account := req.AccountType
	if account == "" {
		account = dividend.AccountTaxable
	}

	var events []dividend.Event
	var unresolved []string

	for _, m := range msgs {
		sym := m.Ticker
		if sym == "" {
			sym = ticker.Normalize(req.Tickers[m.TickerName])
		}
		if sym == "" {
			unresolved = append(unresolved, m.TickerName)
			continue
		}

		payDate := fallbackDate
		if m.PayDateHint != nil {
			payDate = m.PayDateHint.ResolvePayDate(now)
		}

		e := dividend.Event{
			RowID:       BuildRowID(m.RawText, payDate, sym),
			PayDate:     payDate,
			Ticker:      sym,
			Currency:    m.Currency,
			Gross:       m.Gross,
			Net:         m.Net,
			Tax:         m.Tax,
			AccountType: account,
			RawText:     m.RawText,
		}

		if m.Currency == "KRW" {
			gross := m.Gross
			e.KRWGross = &gross
			e.KRWNet = m.Net
		} else {
			rate, err := i.rates.RateOn(ctx, m.Currency+"KRW", payDate)
			if err != nil {
				return nil, fmt.Errorf("fx rate for %s: %w", m.Currency, err)
			}
			if rate > 0 {
				e.FXRate = &rate
				krwGross := m.Gross * rate
				e.KRWGross = &krwGross
				if m.Net != nil {
					krwNet := *m.Net * rate
					e.KRWNet = &krwNet
				}
			} else {
				slog.Warn("no fx rate for pay date, storing unconverted",
					"currency", m.Currency, "payDate", payDate.Format("2006-01-02"))
			}
		}

		events = append(events, e)
	}

	res, err := i.ledger.Import(ctx, events, dividend.SourceAlimtalk, false)
	if err != nil {
		return nil, err
	}

	return &ImportSummary{
		Result:     res,
		Imported:   len(events),
		Unresolved: unresolved,
	}, nil
}

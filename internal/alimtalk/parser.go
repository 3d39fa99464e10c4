// Package alimtalk parses brokerage dividend-credit notifications (알림톡).
// Users paste a blob of messages; each one is classified as a domestic or
// overseas payout and reduced to the fields the ledger needs.
package alimtalk

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/minhokang/divtrack/internal/ticker"
)

type MessageType string

const (
	TypeDomestic MessageType = "domestic"
	TypeOverseas MessageType = "overseas"
)

// PayDateHint is the month/day prefix of a domestic message. The year is
// not in the message; the caller resolves it against the import date.
type PayDateHint struct {
	Month int
	Day   int
}

// Message is one parsed notification. Domestic messages carry only the
// stock's name; the ticker has to be resolved by the caller. Overseas
// messages carry the ticker directly.
type Message struct {
	RawText     string
	Type        MessageType
	TickerName  string
	Ticker      string
	Currency    string
	Gross       float64
	Net         *float64
	Tax         *float64
	AccountRef  string
	PayDateHint *PayDateHint
}

var ErrEmptyMessage = errors.New("alimtalk: empty message")

var (
	caseTagRe = regexp.MustCompile(`(?i)<case\d+>\s*`)
	splitRe   = regexp.MustCompile(`\n{2,}(\[)`)

	domesticDateRe   = regexp.MustCompile(`\[(?:키움)\]\s*(\d{1,2})/(\d{1,2})`)
	nameRe           = regexp.MustCompile(`▶종목명\s*[:：]\s*(.+)`)
	domesticAmountRe = regexp.MustCompile(`▶배당입금\s*[:：]\s*([\d,\.]+)\s*\(세전\)\s*/\s*([\d,\.]+)\s*\(세후\)`)
	overseasTickerRe = regexp.MustCompile(`▶종목코드\s*[:：]\s*([A-Za-z0-9\.\-]+)`)
	overseasAmountRe = regexp.MustCompile(`▶배당금액\s*[:：]\s*([\d,\.]+)\s*([A-Z]{3})\s*\(세전\)\s*/\s*([\d,\.]+)\s*([A-Z]{3})\s*\(세후\)`)
	foreignTaxRe     = regexp.MustCompile(`▶외국납부세액\s*[:：]\s*([\d,\.]+)\s*([A-Z]{3})`)
	accountRe        = regexp.MustCompile(`▶계좌(?:번호)?\s*[:：]\s*([0-9\-\*\s]+)`)
)

func cleanInput(raw string) string {
	return strings.TrimSpace(caseTagRe.ReplaceAllString(raw, ""))
}

// Split breaks a pasted blob into individual messages. Messages start with
// a bracketed sender tag, so a blank line followed by an opening bracket is
// a message boundary.
func Split(blob string) []string {
	cleaned := cleanInput(blob)
	if cleaned == "" {
		return nil
	}

	parts := splitRe.Split(cleaned, -1)
	if len(parts) == 1 {
		return []string{cleaned}
	}

	// Split consumed the bracket that opens each following message; put it
	// back.
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = "[" + p
		}
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseAll parses every message in the blob, stopping at the first one
// that does not parse.
func ParseAll(blob string) ([]Message, error) {
	var out []Message
	for i, chunk := range Split(blob) {
		m, err := Parse(chunk)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		out = append(out, *m)
	}
	return out, nil
}

func Parse(raw string) (*Message, error) {
	text := cleanInput(raw)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if strings.Contains(text, "해외주식") || strings.Contains(text, "▶종목코드") {
		return parseOverseas(text)
	}
	return parseDomestic(text)
}

func parseDomestic(text string) (*Message, error) {
	var hint *PayDateHint
	if m := domesticDateRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		hint = &PayDateHint{Month: month, Day: day}
	}

	name := nameRe.FindStringSubmatch(text)
	if name == nil {
		return nil, errors.New("domestic message has no 종목명 line")
	}

	amounts := domesticAmountRe.FindStringSubmatch(text)
	if amounts == nil {
		return nil, errors.New("domestic message has no 배당입금 line")
	}
	gross := toFloat(amounts[1])
	net := toFloat(amounts[2])

	m := &Message{
		RawText:     text,
		Type:        TypeDomestic,
		TickerName:  strings.TrimSpace(name[1]),
		Currency:    "KRW",
		Gross:       gross,
		Net:         &net,
		AccountRef:  extractAccount(text),
		PayDateHint: hint,
	}
	tax := gross - net
	m.Tax = &tax
	return m, nil
}

func parseOverseas(text string) (*Message, error) {
	tickerMatch := overseasTickerRe.FindStringSubmatch(text)
	if tickerMatch == nil {
		return nil, errors.New("overseas message has no 종목코드 line")
	}
	sym := ticker.Normalize(tickerMatch[1])

	tickerName := sym
	if name := nameRe.FindStringSubmatch(text); name != nil {
		tickerName = strings.TrimSpace(name[1])
	}

	amounts := overseasAmountRe.FindStringSubmatch(text)
	if amounts == nil {
		return nil, errors.New("overseas message has no 배당금액 line")
	}
	gross := toFloat(amounts[1])
	net := toFloat(amounts[3])
	currency := amounts[2]

	var tax float64
	if taxLine := foreignTaxRe.FindStringSubmatch(text); taxLine != nil {
		tax = toFloat(taxLine[1])
	} else {
		tax = round6(gross - net)
	}

	return &Message{
		RawText:    text,
		Type:       TypeOverseas,
		TickerName: tickerName,
		Ticker:     sym,
		Currency:   currency,
		Gross:      gross,
		Net:        &net,
		Tax:        &tax,
		AccountRef: extractAccount(text),
	}, nil
}

// ResolvePayDate turns a month/day hint into a concrete date relative to
// the import time: a hint later than today belongs to last year.
func (h *PayDateHint) ResolvePayDate(now time.Time) time.Time {
	d := time.Date(now.Year(), time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
	if d.After(now.UTC()) {
		d = d.AddDate(-1, 0, 0)
	}
	return d
}

// BuildRowID derives a stable ledger id from the message body and resolved
// pay date, so pasting the same notification twice stays one event.
func BuildRowID(rawText string, payDate time.Time, sym string) string {
	base := fmt.Sprintf("%s|%s|%s",
		strings.TrimSpace(rawText), payDate.Format("2006-01-02"), strings.ToUpper(sym))
	digest := sha1.Sum([]byte(base))
	return "alimtalk:" + hex.EncodeToString(digest[:])[:16]
}

func extractAccount(text string) string {
	if m := accountRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func toFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	return v
}

func round6(v float64) float64 {
	return float64(int64(v*1e6+0.5)) / 1e6
}

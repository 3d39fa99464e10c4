// Package dividend is the payout ledger: one Event per dividend credited to
// an account, keyed by an external row id so repeated imports are idempotent.
package dividend

import (
	"fmt"
	"strings"
	"time"
)

type AccountType string

const (
	AccountTaxable AccountType = "TAXABLE"
	AccountISA     AccountType = "ISA"
)

// ParseAccountType accepts the canonical codes and the Korean labels used
// in brokerage exports ("일반" for a regular taxable account).
func ParseAccountType(v string) (AccountType, error) {
	s := strings.TrimSpace(v)
	switch {
	case s == "일반":
		return AccountTaxable, nil
	case strings.EqualFold(s, string(AccountISA)):
		return AccountISA, nil
	case strings.EqualFold(s, string(AccountTaxable)):
		return AccountTaxable, nil
	}
	return "", fmt.Errorf("invalid account type: %q", v)
}

type Source string

const (
	SourceExcel    Source = "excel"
	SourceAlimtalk Source = "alimtalk"
	SourceManual   Source = "manual"
)

// Event is a single credited dividend. Amounts are in the payout currency;
// the KRW columns hold the converted figures used for aggregation. Nil
// pointers mean the source did not carry the value.
type Event struct {
	ID          int64       `json:"id"`
	RowID       string      `json:"rowId"`
	PayDate     time.Time   `json:"payDate"`
	Year        int         `json:"year"`
	Month       int         `json:"month"`
	Ticker      string      `json:"ticker"`
	Currency    string      `json:"currency"`
	FXRate      *float64    `json:"fxRate,omitempty"`
	Gross       float64     `json:"grossDividend"`
	Tax         *float64    `json:"tax,omitempty"`
	Net         *float64    `json:"netDividend,omitempty"`
	KRWGross    *float64    `json:"krwGross,omitempty"`
	KRWNet      *float64    `json:"krwNet,omitempty"`
	AccountType AccountType `json:"accountType"`
	Source      Source      `json:"source"`
	Archived    bool        `json:"archived"`
	RawText     string      `json:"rawText,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// KRWAmount is the figure aggregations use: net when known, else gross.
func (e Event) KRWAmount() float64 {
	if e.KRWNet != nil {
		return *e.KRWNet
	}
	if e.KRWGross != nil {
		return *e.KRWGross
	}
	return 0
}

package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/minhokang/divtrack/internal/dividend"
)

const sampleCSV = `날짜,년도,월,종목코드,배당금,통화,환율,세전배당금,계좌구분
2020. 4. 9,2020,4,005930,"35,400",KRW,,"35,400",일반
2024. 11. 14,2024,11,aapl,0.25,USD,1395.5,348.88,ISA
`

func TestReadCSV(t *testing.T) {
	events, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if !first.PayDate.Equal(time.Date(2020, 4, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date not parsed: %v", first.PayDate)
	}
	if first.Ticker != "005930" || first.Currency != "KRW" {
		t.Errorf("unexpected ticker/currency: %+v", first)
	}
	if first.Gross != 35400 {
		t.Errorf("comma-separated amount not parsed: %v", first.Gross)
	}
	if first.KRWGross == nil || *first.KRWGross != 35400 {
		t.Errorf("krw gross mismatch: %v", first.KRWGross)
	}
	if first.AccountType != dividend.AccountTaxable {
		t.Errorf("일반 not mapped to TAXABLE: %v", first.AccountType)
	}
	if first.FXRate != nil {
		t.Errorf("blank fx rate should be nil, got %v", first.FXRate)
	}
	if !strings.HasPrefix(first.RowID, "excel:") {
		t.Errorf("derived row id missing prefix: %q", first.RowID)
	}

	second := events[1]
	if second.Ticker != "AAPL" {
		t.Errorf("ticker not normalized: %q", second.Ticker)
	}
	if second.AccountType != dividend.AccountISA {
		t.Errorf("ISA account not mapped: %v", second.AccountType)
	}
	if second.FXRate == nil || *second.FXRate != 1395.5 {
		t.Errorf("fx rate not parsed: %v", second.FXRate)
	}
}

func TestReadCSV_DerivedRowIDIsStable(t *testing.T) {
	first, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	second, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i].RowID != second[i].RowID {
			t.Errorf("row id not stable: %q vs %q", first[i].RowID, second[i].RowID)
		}
	}
	if first[0].RowID == first[1].RowID {
		t.Error("distinct rows share a row id")
	}
}

func TestReadCSV_ExplicitRowIDWins(t *testing.T) {
	csv := `rowId,날짜,종목코드,배당금,세전배당금,계좌구분
my-row-1,2020-04-09,005930,35400,35400,TAXABLE
`
	events, err := ReadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	if events[0].RowID != "my-row-1" {
		t.Errorf("explicit row id not kept: %q", events[0].RowID)
	}
}

func TestReadCSV_MissingRequiredColumn(t *testing.T) {
	csv := `날짜,종목코드,배당금
2020. 4. 9,005930,35400
`
	if _, err := ReadCSV(strings.NewReader(csv)); err == nil {
		t.Fatal("expected error for missing required columns")
	}
}

func TestReadCSV_BadAccountType(t *testing.T) {
	csv := `날짜,종목코드,배당금,세전배당금,계좌구분
2020. 4. 9,005930,35400,35400,연금
`
	if _, err := ReadCSV(strings.NewReader(csv)); err == nil {
		t.Fatal("expected error for unknown account type")
	}
}

func TestParseDate_Formats(t *testing.T) {
	want := time.Date(2020, 4, 9, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2020. 4. 9", "2020-04-09", "2020.04.09", "2020/04/09", "2020.  4.  9"} {
		got, err := parseDate(s)
		if err != nil {
			t.Errorf("parseDate(%q): %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := parseDate("9 Apr 2020"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

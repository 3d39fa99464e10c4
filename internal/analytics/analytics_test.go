package analytics

import (
	"math"
	"testing"
	"time"
)

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAnnualTotals(t *testing.T) {
	points := []Point{
		{Date: day(2023, 4, 9), Amount: 361},
		{Date: day(2023, 11, 14), Amount: 361},
		{Date: day(2024, 4, 10), Amount: 365},
	}

	annual := AnnualTotals(points)
	if len(annual) != 2 {
		t.Fatalf("expected 2 years, got %d", len(annual))
	}
	if annual[0].Year != 2023 || !approx(annual[0].Total, 722) {
		t.Errorf("2023 total = %+v", annual[0])
	}
	if annual[1].Year != 2024 || !approx(annual[1].Total, 365) {
		t.Errorf("2024 total = %+v", annual[1])
	}
}

func TestGrowth_YoYAndCAGR(t *testing.T) {
	annual := []AnnualPoint{
		{2020, 1000}, {2021, 1100}, {2022, 1210}, {2023, 1331}, {2024, 1464.1},
	}

	m := Growth(annual)

	if m.YoY[2020] != nil {
		t.Error("first year YoY should be undefined")
	}
	if v := m.YoY[2021]; v == nil || !approx(*v, 0.1) {
		t.Errorf("2021 YoY = %v, want 0.1", v)
	}

	// 10% growth each year, so both windows report 10%.
	if m.CAGR3Y == nil || !approx(*m.CAGR3Y, 0.1) {
		t.Errorf("CAGR3Y = %v, want 0.1", m.CAGR3Y)
	}
	if m.CAGR5Y == nil || !approx(*m.CAGR5Y, 0.1) {
		t.Errorf("CAGR5Y = %v, want 0.1", m.CAGR5Y)
	}
	if m.Streak != 4 {
		t.Errorf("streak = %d, want 4", m.Streak)
	}
	if m.Trend != TrendGrowing {
		t.Errorf("trend = %s, want Growing", m.Trend)
	}
}

func TestGrowth_ShortSeries(t *testing.T) {
	m := Growth([]AnnualPoint{{2023, 1000}, {2024, 1100}})
	if m.CAGR3Y != nil || m.CAGR5Y != nil {
		t.Errorf("CAGR defined for short series: %v %v", m.CAGR3Y, m.CAGR5Y)
	}
	if m.Streak != 1 {
		t.Errorf("streak = %d, want 1", m.Streak)
	}
}

func TestGrowth_ZeroBaseYearYoYUndefined(t *testing.T) {
	m := Growth([]AnnualPoint{{2022, 0}, {2023, 500}})
	if m.YoY[2023] != nil {
		t.Error("YoY against zero base should be undefined")
	}
}

func TestGrowth_ShrinkingTrend(t *testing.T) {
	m := Growth([]AnnualPoint{{2021, 1500}, {2022, 1400}, {2023, 1300}, {2024, 1200}})
	if m.Trend != TrendShrinking {
		t.Errorf("trend = %s, want Shrinking", m.Trend)
	}
	if m.Streak != 0 {
		t.Errorf("streak = %d, want 0", m.Streak)
	}
}

func TestGrowth_Empty(t *testing.T) {
	m := Growth(nil)
	if m.Trend != TrendUnknown {
		t.Errorf("trend = %s, want Unknown", m.Trend)
	}
}

func TestTrailing(t *testing.T) {
	asOf := day(2025, 8, 31)
	points := []Point{
		{Date: day(2025, 4, 9), Amount: 361},   // inside window
		{Date: day(2024, 11, 14), Amount: 361}, // inside window
		{Date: day(2024, 4, 10), Amount: 365},  // outside
	}

	y := Trailing(points, 70000, asOf, 365)
	if !approx(y.TrailingDividend, 722) {
		t.Errorf("trailing sum = %v, want 722", y.TrailingDividend)
	}
	if y.EventCount != 2 {
		t.Errorf("event count = %d, want 2", y.EventCount)
	}
	if !approx(y.Yield, 722.0/70000) {
		t.Errorf("yield = %v", y.Yield)
	}
}

func TestTrailing_ZeroPrice(t *testing.T) {
	y := Trailing([]Point{{Date: day(2025, 4, 9), Amount: 361}}, 0, day(2025, 8, 31), 365)
	if y.Yield != 0 {
		t.Errorf("expected zero yield for zero price, got %v", y.Yield)
	}
	if !approx(y.TrailingDividend, 361) {
		t.Errorf("sum should still accumulate: %v", y.TrailingDividend)
	}
}

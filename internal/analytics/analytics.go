// Package analytics derives growth and yield figures from per-share
// dividend series. Inputs are plain points so both the DPS cache and the
// ledger can feed it.
package analytics

import (
	"math"
	"sort"
	"time"
)

type Trend string

const (
	TrendUnknown   Trend = "Unknown"
	TrendGrowing   Trend = "Growing"
	TrendShrinking Trend = "Shrinking"
	TrendVolatile  Trend = "Volatile"
)

// Point is one dividend payment: per-share amount on a date.
type Point struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// AnnualPoint is the per-year total, ordered ascending by year.
type AnnualPoint struct {
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

// GrowthMetrics summarizes an annual series. Nil ratio pointers mean the
// value is undefined for the series (too short, or a zero base year).
type GrowthMetrics struct {
	YoY    map[int]*float64 `json:"yoy"`
	CAGR3Y *float64         `json:"cagr3y"`
	CAGR5Y *float64         `json:"cagr5y"`
	Streak int              `json:"increaseStreak"`
	Trend  Trend            `json:"trend"`
}

// AnnualTotals aggregates payments into per-year totals.
func AnnualTotals(points []Point) []AnnualPoint {
	totals := make(map[int]float64)
	for _, p := range points {
		totals[p.Date.Year()] += p.Amount
	}

	out := make([]AnnualPoint, 0, len(totals))
	for year, total := range totals {
		out = append(out, AnnualPoint{Year: year, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Growth computes YoY ratios, trailing CAGR windows, the consecutive
// year-over-year increase streak, and a coarse trend label.
func Growth(annual []AnnualPoint) GrowthMetrics {
	m := GrowthMetrics{YoY: make(map[int]*float64), Trend: TrendUnknown}
	if len(annual) == 0 {
		return m
	}

	for i, p := range annual {
		if i == 0 || annual[i-1].Total == 0 {
			m.YoY[p.Year] = nil
			continue
		}
		v := p.Total/annual[i-1].Total - 1
		m.YoY[p.Year] = &v
	}

	m.CAGR3Y = cagr(annual, 3)
	m.CAGR5Y = cagr(annual, 5)
	m.Streak = increaseStreak(annual)
	m.Trend = classify(annual, m.CAGR3Y, m.CAGR5Y)
	return m
}

func cagr(annual []AnnualPoint, window int) *float64 {
	if len(annual) < window {
		return nil
	}
	tail := annual[len(annual)-window:]
	start, end := tail[0], tail[len(tail)-1]
	span := end.Year - start.Year
	if start.Total <= 0 || end.Total <= 0 || span <= 0 {
		return nil
	}
	v := math.Pow(end.Total/start.Total, 1/float64(span)) - 1
	return &v
}

func increaseStreak(annual []AnnualPoint) int {
	streak := 0
	for i := len(annual) - 1; i > 0; i-- {
		if annual[i].Total > annual[i-1].Total {
			streak++
		} else {
			break
		}
	}
	return streak
}

func classify(annual []AnnualPoint, cagr3, cagr5 *float64) Trend {
	trend := TrendVolatile

	if len(annual) >= 3 {
		tail := annual[len(annual)-3:]
		nonDecreasing := tail[1].Total >= tail[0].Total && tail[2].Total >= tail[1].Total
		positiveCAGR := (cagr3 != nil && *cagr3 > 0) || (cagr5 != nil && *cagr5 > 0)
		if nonDecreasing && positiveCAGR {
			trend = TrendGrowing
		}
	}
	if len(annual) >= 2 && annual[len(annual)-1].Total < annual[len(annual)-2].Total {
		trend = TrendShrinking
	} else if (cagr3 != nil && *cagr3 < 0) || (cagr5 != nil && *cagr5 < 0) {
		trend = TrendShrinking
	}
	return trend
}

// TrailingYield sums payments inside the window ending at asOf and divides
// by the current per-share price. Zero price yields a zero result rather
// than a division blowup.
type TrailingYield struct {
	TrailingDividend float64 `json:"trailingDividend"`
	Yield            float64 `json:"trailingYield"`
	EventCount       int     `json:"eventCount"`
	WindowDays       int     `json:"windowDays"`
}

func Trailing(points []Point, price float64, asOf time.Time, windowDays int) TrailingYield {
	if windowDays <= 0 {
		windowDays = 365
	}
	windowStart := asOf.AddDate(0, 0, -windowDays)

	out := TrailingYield{WindowDays: windowDays}
	for _, p := range points {
		if !p.Date.Before(windowStart) && !p.Date.After(asOf) {
			out.TrailingDividend += p.Amount
			out.EventCount++
		}
	}
	if price > 0 {
		out.Yield = out.TrailingDividend / price
	}
	return out
}

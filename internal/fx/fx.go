// Package fx maintains daily exchange rates, scraped from the Yahoo chart
// API and cached in sqlite. The portfolio is KRW-denominated, so USDKRW is
// the pair that matters; anything in the PAIR=X form works.
package fx

import (
	"context"
	"time"
)

const PairUSDKRW = "USDKRW"

type Rate struct {
	ID        int64
	Pair      string
	Date      time.Time
	Rate      float64
	CreatedAt time.Time
}

type Repository interface {
	SaveRates(ctx context.Context, rates []Rate) (int64, error)
	ListRates(ctx context.Context, pair string, from, to time.Time) ([]Rate, error)
	ExistingDates(ctx context.Context, pair string, from, to time.Time) (map[time.Time]bool, error)
}

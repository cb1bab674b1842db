package backtest

import (
	"math"
	"time"

	"folio/internal/domain"
)

// Book tracks the equity curve of a run and charges the linear cost model on
// every trade. Costs are cost_bps of the traded notional, where the traded
// notional is the sum of absolute weight changes times current equity.
type Book struct {
	dataset  *domain.Dataset
	equity   float64
	costRate float64

	lastDate time.Time
	held     map[string]float64

	curve     []float64
	totalCost float64
}

func newBook(dataset *domain.Dataset, initialCapital, costBps float64) *Book {
	return &Book{
		dataset:  dataset,
		equity:   initialCapital,
		costRate: costBps / 10_000,
		held:     map[string]float64{},
	}
}

// MarkToMarket rolls equity forward from the previous rebalance date to the
// given date using the weights held over that interval, and appends a point
// to the equity curve. Assets without a price on either endpoint contribute
// no return for the interval.
func (b *Book) MarkToMarket(date time.Time) {
	if !b.lastDate.IsZero() {
		growth := 0.0
		for asset, w := range b.held {
			prev, ok1 := b.dataset.PriceAt(asset, b.lastDate)
			cur, ok2 := b.dataset.PriceAt(asset, date)
			if !ok1 || !ok2 || prev <= 0 {
				continue
			}
			growth += w * (cur/prev - 1)
		}
		b.equity *= 1 + growth
	}
	b.lastDate = date
	b.curve = append(b.curve, b.equity)
}

// Trade moves the book to the target weights, charging costs on the traded
// notional. It returns the one-way turnover fraction and the cost charged.
func (b *Book) Trade(target map[string]float64) (turnover, cost float64) {
	traded := 0.0
	for asset, w := range target {
		traded += math.Abs(w - b.held[asset])
	}
	for asset, w := range b.held {
		if _, ok := target[asset]; !ok {
			traded += math.Abs(w)
		}
	}

	cost = b.equity * b.costRate * traded
	b.equity -= cost
	b.totalCost += cost
	if n := len(b.curve); n > 0 {
		b.curve[n-1] = b.equity
	}

	b.held = make(map[string]float64, len(target))
	for asset, w := range target {
		b.held[asset] = w
	}
	return traded / 2, cost
}

// Equity returns the current equity value.
func (b *Book) Equity() float64 { return b.equity }

// TotalCost returns the cumulative trading costs charged.
func (b *Book) TotalCost() float64 { return b.totalCost }

// Curve returns the equity value recorded at each rebalance date.
func (b *Book) Curve() []float64 { return b.curve }

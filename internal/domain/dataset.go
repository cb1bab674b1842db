package domain

import (
	"sort"
	"time"
)

// Dataset is an immutable, per-asset, date-sorted view over a set of
// observations. It is built once at load time and only read afterwards,
// which is what makes concurrent per-asset scoring safe.
type Dataset struct {
	byAsset map[string][]Observation
	assets  []string
	dates   []time.Time
}

// NewDataset builds a Dataset from raw observations. Rows are sorted by date
// per asset and deduplicated by (asset, date), keeping the last occurrence.
func NewDataset(obs []Observation) *Dataset {
	byAsset := make(map[string][]Observation)
	for _, o := range obs {
		byAsset[o.Asset] = append(byAsset[o.Asset], o)
	}

	dateSet := make(map[time.Time]struct{})
	assets := make([]string, 0, len(byAsset))
	for asset, series := range byAsset {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Date.Before(series[j].Date)
		})
		// Dedup consecutive rows on the same date, keeping the later row.
		deduped := series[:0]
		for i, o := range series {
			if i+1 < len(series) && series[i+1].Date.Equal(o.Date) {
				continue
			}
			deduped = append(deduped, o)
		}
		byAsset[asset] = deduped
		assets = append(assets, asset)
		for _, o := range deduped {
			dateSet[o.Date] = struct{}{}
		}
	}
	sort.Strings(assets)

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	return &Dataset{byAsset: byAsset, assets: assets, dates: dates}
}

// Assets returns all asset identifiers in sorted order.
func (d *Dataset) Assets() []string {
	return d.assets
}

// Dates returns the sorted union of all observation dates.
func (d *Dataset) Dates() []time.Time {
	return d.dates
}

// Series returns the full date-sorted observation series for an asset, or
// nil if the asset is unknown.
func (d *Dataset) Series(asset string) []Observation {
	return d.byAsset[asset]
}

// Through returns the asset's observations with date <= end.
func (d *Dataset) Through(asset string, end time.Time) []Observation {
	series := d.byAsset[asset]
	n := sort.Search(len(series), func(i int) bool {
		return series[i].Date.After(end)
	})
	return series[:n]
}

// PricesEnding returns up to n prices for the asset from observations with
// date <= end, most recent last. The skip parameter drops that many of the
// most recent observations before taking the window.
func (d *Dataset) PricesEnding(asset string, end time.Time, n, skip int) []float64 {
	series := d.Through(asset, end)
	if skip > 0 {
		if skip >= len(series) {
			return nil
		}
		series = series[:len(series)-skip]
	}
	if len(series) > n {
		series = series[len(series)-n:]
	}
	prices := make([]float64, len(series))
	for i, o := range series {
		prices[i] = o.Price
	}
	return prices
}

// PriceAt returns the most recent price for the asset at or before the given
// date. The second return value reports whether any such observation exists.
func (d *Dataset) PriceAt(asset string, date time.Time) (float64, bool) {
	series := d.Through(asset, date)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1].Price, true
}

// NextObservationAfter returns the asset's first observation strictly after
// the given date. Used only by the offline delisting check, which is allowed
// to look past the decision date.
func (d *Dataset) NextObservationAfter(asset string, after time.Time) (Observation, bool) {
	series := d.byAsset[asset]
	i := sort.Search(len(series), func(i int) bool {
		return series[i].Date.After(after)
	})
	if i >= len(series) {
		return Observation{}, false
	}
	return series[i], true
}

// Returns converts a price series into simple period returns. The result has
// one fewer element than the input.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, prices[i]/prices[i-1]-1)
	}
	return rets
}

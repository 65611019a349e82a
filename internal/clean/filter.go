package clean

import (
	"math"
	"slices"
	"time"

	"quantdata/internal/errors"
	"quantdata/internal/table"
)

// tradingValue computes a trading value series per row from whatever price
// and size columns the table carries, in order of preference: close price
// times volume, mid quote times average quoted size, trade price times trade
// size.
func tradingValue(t *table.Table) ([]float64, error) {
	n := t.Len()
	out := make([]float64, n)
	switch {
	case t.HasColumn("close") && t.HasColumn("volume"):
		c, v := t.Column("close"), t.Column("volume")
		for i := range out {
			out[i] = c[i] * v[i]
		}
	case t.HasColumn("bid") && t.HasColumn("ask") &&
		t.HasColumn("bid_size") && t.HasColumn("ask_size"):
		bid, ask := t.Column("bid"), t.Column("ask")
		bs, as := t.Column("bid_size"), t.Column("ask_size")
		for i := range out {
			out[i] = (bid[i] + ask[i]) / 2 * ((bs[i] + as[i]) / 2)
		}
	case t.HasColumn("trade_price") && t.HasColumn("trade_size"):
		p, s := t.Column("trade_price"), t.Column("trade_size")
		for i := range out {
			out[i] = p[i] * s[i]
		}
	default:
		return nil, errors.New(errors.CodeMissingColumn,
			"trading value needs close/volume, bid/ask quotes or trade price/size columns")
	}
	return out, nil
}

// AvgTradingValue blanks rows whose rolling average trading value falls at or
// below thresh, per entity. Columns in exclCols are left untouched. Window
// and threshold default to 30 observations and 10 million.
func AvgTradingValue(t *table.Table, thresh float64, window int, exclCols ...string) (*table.Table, error) {
	if window <= 0 {
		window = 30
	}
	if thresh <= 0 {
		thresh = 1e7
	}
	tv, err := tradingValue(t)
	if err != nil {
		return nil, err
	}

	out := t.Clone()
	for _, sp := range out.Spans() {
		seg := slices.Clone(tv[sp.Start:sp.End])
		avg := rolling(seg, window, 0, 1, meanFn)
		for i, a := range avg {
			if !table.Missing(a) && a > thresh {
				continue
			}
			row := sp.Start + i
			for _, col := range out.Columns() {
				if slices.Contains(exclCols, col) {
					continue
				}
				out.SetValue(row, col, table.NaN())
			}
		}
	}
	return out, nil
}

// MissingGaps blanks each (entity, column) series up to the end of its last
// complete gap, where a gap is a window of gapWindow consecutive missing
// values. Running the filter twice gives the same result as running it once.
// The window defaults to 30 observations.
func MissingGaps(t *table.Table, gapWindow int) *table.Table {
	if gapWindow <= 0 {
		gapWindow = 30
	}
	out := t.Clone()
	for _, col := range out.Columns() {
		vals := out.Column(col)
		for _, sp := range out.Spans() {
			seg := vals[sp.Start:sp.End]
			counts := rollingCount(seg, gapWindow)
			last := -1
			for i, c := range counts {
				if c == 0 {
					last = i
				}
			}
			for i := 0; i <= last; i++ {
				seg[i] = table.NaN()
			}
		}
	}
	return out
}

// MinObs removes entities with fewer than minObs valid observations in their
// sparsest column. It returns the filtered table and the removed tickers.
// The bound defaults to 100.
func MinObs(t *table.Table, minObs int) (*table.Table, []string) {
	if minObs <= 0 {
		minObs = 100
	}
	out := t.Clone()
	var removed []string
	for _, sp := range out.Spans() {
		minCount := -1
		for _, col := range out.Columns() {
			vals := out.Column(col)
			n := 0
			for _, v := range vals[sp.Start:sp.End] {
				if !table.Missing(v) {
					n++
				}
			}
			if minCount < 0 || n < minCount {
				minCount = n
			}
		}
		if minCount >= 0 && minCount < minObs {
			removed = append(removed, sp.Ticker)
		}
	}
	if len(removed) > 0 {
		out.RemoveEntities(removed...)
	}
	return out, removed
}

// TrimCoverage drops leading timestamps observed by fewer than minEntities
// entities, so a panel starts only once the cross section is broad enough.
func TrimCoverage(t *table.Table, minEntities int) *table.Table {
	out := t.Clone()
	if minEntities <= 1 || out.Len() == 0 {
		return out
	}

	// distinct entities with data per timestamp; an entity carrying several
	// subtype rows counts once
	coverage := make(map[int64]map[string]bool)
	for i := 0; i < out.Len(); i++ {
		k := out.Key(i)
		for _, col := range out.Columns() {
			if !table.Missing(out.Value(i, col)) {
				ts := k.Time.Unix()
				if coverage[ts] == nil {
					coverage[ts] = make(map[string]bool)
				}
				coverage[ts][k.Ticker] = true
				break
			}
		}
	}

	var cutoff int64 = -1
	for _, ts := range out.Times() {
		if len(coverage[ts.Unix()]) >= minEntities {
			cutoff = ts.Unix()
			break
		}
	}
	if cutoff < 0 {
		return table.New(out.Columns()...)
	}
	start := time.Unix(cutoff, 0).UTC()
	out.FilterDates(start, time.Time{})
	return out
}

// delistTol is the relative move below which consecutive prices count as
// unchanged. Stale feeds often jitter in the last decimal place.
const delistTol = 1e-4

func flatEq(v, ref float64) bool {
	if table.Missing(v) {
		return false
	}
	if ref == 0 {
		return v == 0
	}
	return math.Abs(v-ref) <= delistTol*math.Abs(ref)
}

// Delisted detects entities whose prices have gone flat over their trailing
// window, the usual footprint of a delisted or stale listing. When remove is
// true the entity is dropped, otherwise its trailing flat run is blanked.
// The window defaults to 30 observations.
func Delisted(t *table.Table, window int, remove bool) (*table.Table, []string) {
	if window <= 0 {
		window = 30
	}
	priceCol := ""
	for _, col := range []string{"close", "trade_price", "bid"} {
		if t.HasColumn(col) {
			priceCol = col
			break
		}
	}
	if priceCol == "" {
		return t.Clone(), nil
	}

	out := t.Clone()
	prices := out.Column(priceCol)
	var flagged []string
	type run struct{ start, end int }
	var blanks []run
	for _, sp := range out.Spans() {
		seg := prices[sp.Start:sp.End]
		if len(seg) < window {
			continue
		}
		// walk the trailing run of identical valid values
		last := seg[len(seg)-1]
		if table.Missing(last) {
			continue
		}
		runStart := len(seg) - 1
		for runStart > 0 && flatEq(seg[runStart-1], last) {
			runStart--
		}
		if len(seg)-runStart < window {
			continue
		}
		flagged = append(flagged, sp.Ticker)
		blanks = append(blanks, run{sp.Start + runStart, sp.End})
	}
	if len(flagged) == 0 {
		return out, nil
	}
	if remove {
		out.RemoveEntities(flagged...)
		return out, flagged
	}
	for _, r := range blanks {
		for row := r.start; row < r.end; row++ {
			for _, col := range out.Columns() {
				out.SetValue(row, col, table.NaN())
			}
		}
	}
	return out, flagged
}

// DropEntities removes the given tickers from the table.
func DropEntities(t *table.Table, tickers ...string) *table.Table {
	out := t.Clone()
	out.RemoveEntities(tickers...)
	return out
}

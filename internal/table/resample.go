package table

import (
	"sort"
	"time"

	"quantdata/internal/request"
)

// Agg selects how a column's values are combined into a resample bucket.
type Agg int

const (
	// AggLast keeps the last non-missing value in the bucket. Suits level
	// series such as prices, open interest and supply.
	AggLast Agg = iota
	// AggSum adds the non-missing values in the bucket. Suits flow series
	// such as volumes, fees and transaction counts.
	AggSum
	// AggCompound chains period rates: (1+r1)(1+r2)...-1. Suits funding
	// rates and returns.
	AggCompound
)

// Rule maps a column name to its bucket aggregation.
type Rule func(col string) Agg

// DefaultRule sums the flow columns, compounds rate columns and keeps the
// last value for everything else.
func DefaultRule(col string) Agg {
	switch col {
	case "volume", "volume_quote", "trade_size", "tx_count", "issuance", "fees":
		return AggSum
	case "funding_rate", "ret":
		return AggCompound
	}
	return AggLast
}

// BucketLabel returns the canonical timestamp of the resample bucket that t
// falls into at the given frequency. Intraday and daily buckets carry the
// truncated period start; weekly buckets carry the following Sunday; monthly,
// quarterly and yearly buckets carry the period end date.
func BucketLabel(t time.Time, freq request.Frequency) time.Time {
	t = t.UTC()
	switch freq {
	case request.Freq1Min:
		return t.Truncate(time.Minute)
	case request.Freq5Min:
		return t.Truncate(5 * time.Minute)
	case request.Freq10Min:
		return t.Truncate(10 * time.Minute)
	case request.Freq15Min:
		return t.Truncate(15 * time.Minute)
	case request.Freq30Min:
		return t.Truncate(30 * time.Minute)
	case request.Freq1H:
		return t.Truncate(time.Hour)
	case request.Freq2H:
		return t.Truncate(2 * time.Hour)
	case request.Freq4H:
		return t.Truncate(4 * time.Hour)
	case request.Freq8H:
		return t.Truncate(8 * time.Hour)
	case request.FreqDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case request.FreqWeekly:
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (7 - int(d.Weekday())) % 7
		return d.AddDate(0, 0, offset)
	case request.FreqMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	case request.FreqQuarterly:
		qEnd := time.Month(((int(t.Month())-1)/3)*3 + 3)
		return time.Date(t.Year(), qEnd, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
	case request.FreqYearly:
		return time.Date(t.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// Resample buckets each entity's rows at the target frequency and aggregates
// per column according to rule. Tick data is returned unchanged since there
// is no coarser native bar to build from a trade tape here. The result is
// sorted canonically.
func (t *Table) Resample(freq request.Frequency, rule Rule) *Table {
	if freq == request.FreqTick {
		return t.Clone()
	}
	if rule == nil {
		rule = DefaultRule
	}
	out := New(t.cols...)
	for _, sp := range t.Spans() {
		type bucket struct {
			label time.Time
			rows  []int
		}
		var buckets []bucket
		byLabel := make(map[time.Time]int)
		for i := sp.Start; i < sp.End; i++ {
			label := BucketLabel(t.keys[i].Time, freq)
			bi, ok := byLabel[label]
			if !ok {
				bi = len(buckets)
				byLabel[label] = bi
				buckets = append(buckets, bucket{label: label})
			}
			buckets[bi].rows = append(buckets[bi].rows, i)
		}
		sort.Slice(buckets, func(a, b int) bool {
			return buckets[a].label.Before(buckets[b].label)
		})
		for _, b := range buckets {
			row := make([]float64, len(t.cols))
			for c, name := range t.cols {
				row[c] = aggregate(t.data[c], b.rows, rule(name))
			}
			out.Append(Key{Time: b.label, Ticker: sp.Ticker, Subtype: sp.Subtype}, row)
		}
	}
	out.Sort()
	return out
}

func aggregate(col []float64, rows []int, agg Agg) float64 {
	switch agg {
	case AggSum:
		sum, seen := 0.0, false
		for _, r := range rows {
			if !Missing(col[r]) {
				sum += col[r]
				seen = true
			}
		}
		if !seen {
			return NaN()
		}
		return sum
	case AggCompound:
		prod, seen := 1.0, false
		for _, r := range rows {
			if !Missing(col[r]) {
				prod *= 1 + col[r]
				seen = true
			}
		}
		if !seen {
			return NaN()
		}
		return prod - 1
	default:
		last := NaN()
		for _, r := range rows {
			if !Missing(col[r]) {
				last = col[r]
			}
		}
		return last
	}
}

package clean

import (
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"quantdata/internal/table"
)

// unionColumns returns the column names of all tables, in order of first
// appearance.
func unionColumns(tables []*table.Table) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, col := range t.Columns() {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	return cols
}

// unionKeys returns a sorted table holding every key of the inputs once,
// all values missing.
func unionKeys(tables []*table.Table, cols []string) *table.Table {
	out := table.New(cols...)
	seen := make(map[table.Key]bool)
	blank := make([]float64, len(cols))
	for i := range blank {
		blank[i] = table.NaN()
	}
	for _, t := range tables {
		for i := 0; i < t.Len(); i++ {
			k := t.Key(i)
			if !seen[k] {
				seen[k] = true
				out.Append(k, blank)
			}
		}
	}
	out.Sort()
	return out
}

// earliestValid returns the time of the first valid observation of col in t,
// or the zero time if the column has none.
func earliestValid(t *table.Table, col string) time.Time {
	if !t.HasColumn(col) {
		return time.Time{}
	}
	vals := t.Column(col)
	best := time.Time{}
	for i, v := range vals {
		if table.Missing(v) {
			continue
		}
		ts := t.Key(i).Time
		if best.IsZero() || ts.Before(best) {
			best = ts
		}
	}
	return best
}

// Stitch combines overlapping tables into one covering the union of their
// dates, entities and columns. For each column the table with the earliest
// valid observation takes precedence where sources overlap; ties keep
// argument order.
func Stitch(tables ...*table.Table) *table.Table {
	switch len(tables) {
	case 0:
		return table.New()
	case 1:
		return tables[0].Clone()
	}

	cols := unionColumns(tables)
	out := unionKeys(tables, cols)

	idx := make([]map[table.Key]int, len(tables))
	for i, t := range tables {
		idx[i] = t.KeyIndex()
	}

	for _, col := range cols {
		// source order for this column: earliest history first
		order := make([]int, 0, len(tables))
		for i, t := range tables {
			if t.HasColumn(col) && !earliestValid(t, col).IsZero() {
				order = append(order, i)
			}
		}
		sort.SliceStable(order, func(a, b int) bool {
			return earliestValid(tables[order[a]], col).Before(earliestValid(tables[order[b]], col))
		})

		vals := out.Column(col)
		for row := range vals {
			k := out.Key(row)
			for _, src := range order {
				j, ok := idx[src][k]
				if !ok {
					continue
				}
				if v := tables[src].Value(j, col); !table.Missing(v) {
					vals[row] = v
					break
				}
			}
		}
	}
	return out
}

// RefMethod selects how a reference value is computed across sources.
type RefMethod string

const (
	RefMedian      RefMethod = "median"
	RefTrimmedMean RefMethod = "trimmed_mean"
)

// ReferencePrice computes a cross-source reference value per cell: the
// pointwise median of the sources, or their trimmed mean with the given trim
// share cut from each tail.
func ReferencePrice(tables []*table.Table, method RefMethod, trim float64) *table.Table {
	cols := unionColumns(tables)
	out := unionKeys(tables, cols)

	idx := make([]map[table.Key]int, len(tables))
	for i, t := range tables {
		idx[i] = t.KeyIndex()
	}

	buf := make([]float64, 0, len(tables))
	for _, col := range cols {
		vals := out.Column(col)
		for row := range vals {
			k := out.Key(row)
			buf = buf[:0]
			for i, t := range tables {
				j, ok := idx[i][k]
				if !ok || !t.HasColumn(col) {
					continue
				}
				if v := t.Value(j, col); !table.Missing(v) {
					buf = append(buf, v)
				}
			}
			if len(buf) == 0 {
				continue
			}
			sort.Float64s(buf)
			switch method {
			case RefTrimmedMean:
				cut := int(trim * float64(len(buf)))
				trimmed := buf[cut : len(buf)-cut]
				if len(trimmed) == 0 {
					trimmed = buf
				}
				vals[row] = stat.Mean(trimmed, nil)
			default:
				vals[row] = stat.Quantile(0.5, stat.Empirical, buf, nil)
			}
		}
	}
	return out
}

// rebaseInvert maps each price column to the column it takes its inverted
// value from. High and low swap since inversion flips the range.
var rebaseInvert = map[string]string{
	"open":  "open",
	"high":  "low",
	"low":   "high",
	"close": "close",
	"bid":   "ask",
	"ask":   "bid",
}

// RebaseFX requotes USD-base currency pairs as foreign versus USD, so USDJPY
// becomes JPYUSD with inverted prices. Pairs already quoted against USD pass
// through unchanged.
func RebaseFX(t *table.Table) *table.Table {
	cols := t.Columns()
	out := table.New(cols...)
	row := make([]float64, len(cols))
	for i := 0; i < t.Len(); i++ {
		k := t.Key(i)
		ticker := strings.ToUpper(k.Ticker)
		flip := len(ticker) == 6 && strings.HasPrefix(ticker, "USD")
		if flip {
			k.Ticker = ticker[3:] + "USD"
		}
		for j, col := range cols {
			src := col
			if flip {
				if inv, ok := rebaseInvert[col]; ok {
					src = inv
				}
			}
			v := t.Value(i, src)
			if flip {
				if _, ok := rebaseInvert[col]; ok && !table.Missing(v) && v != 0 {
					v = 1 / v
				}
			}
			row[j] = v
		}
		out.Append(k, row)
	}
	out.Sort()
	return out
}

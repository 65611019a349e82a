// Package table implements the canonical tidy table: rows keyed by
// (timestamp, ticker[, subtype]), columns holding canonical fields as nullable
// float64 values. NaN is the missing-value sentinel throughout the pipeline.
//
// Tables are not safe for concurrent mutation; pipeline stages clone their
// input and return a fresh table, so the raw table is never aliased.
package table

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Key identifies one observation row.
type Key struct {
	Time    time.Time
	Ticker  string
	Subtype string
}

// Table is a tidy table in canonical form. Rows are kept sorted by
// (ticker, subtype, time) so per-entity series occupy contiguous row ranges.
type Table struct {
	keys []Key
	cols []string
	// column-major values, data[c][r] aligned with cols and keys
	data [][]float64
}

// Missing reports whether v is the missing-value sentinel.
func Missing(v float64) bool {
	return math.IsNaN(v)
}

// NaN returns the missing-value sentinel.
func NaN() float64 {
	return math.NaN()
}

// New creates an empty table with the given columns.
func New(cols ...string) *Table {
	t := &Table{cols: append([]string(nil), cols...)}
	t.data = make([][]float64, len(t.cols))
	return t
}

// Append adds one row. The values slice must align with Columns(); use NaN
// for missing cells. Call Sort once all rows are appended.
func (t *Table) Append(k Key, values []float64) error {
	if len(values) != len(t.cols) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.cols))
	}
	t.keys = append(t.keys, k)
	for c, v := range values {
		t.data[c] = append(t.data[c], v)
	}
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.keys)
}

// Columns returns the ordered column names.
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.colIndex(name) >= 0
}

func (t *Table) colIndex(name string) int {
	for i, c := range t.cols {
		if c == name {
			return i
		}
	}
	return -1
}

// Key returns the key of row i.
func (t *Table) Key(i int) Key {
	return t.keys[i]
}

// Value returns the cell at row i, named column. Missing cells and unknown
// columns return NaN.
func (t *Table) Value(i int, col string) float64 {
	c := t.colIndex(col)
	if c < 0 {
		return NaN()
	}
	return t.data[c][i]
}

// SetValue overwrites the cell at row i, named column. Unknown columns are a
// no-op.
func (t *Table) SetValue(i int, col string, v float64) {
	c := t.colIndex(col)
	if c < 0 {
		return
	}
	t.data[c][i] = v
}

// Column returns the live backing slice for a column, or nil. Callers that
// need purity must Clone first.
func (t *Table) Column(col string) []float64 {
	c := t.colIndex(col)
	if c < 0 {
		return nil
	}
	return t.data[c]
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		keys: append([]Key(nil), t.keys...),
		cols: append([]string(nil), t.cols...),
		data: make([][]float64, len(t.data)),
	}
	for c := range t.data {
		out.data[c] = append([]float64(nil), t.data[c]...)
	}
	return out
}

// Sort orders rows by (ticker, subtype, time), the canonical row order.
func (t *Table) Sort() {
	order := make([]int, len(t.keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := t.keys[order[a]], t.keys[order[b]]
		if ka.Ticker != kb.Ticker {
			return ka.Ticker < kb.Ticker
		}
		if ka.Subtype != kb.Subtype {
			return ka.Subtype < kb.Subtype
		}
		return ka.Time.Before(kb.Time)
	})
	t.permute(order)
}

func (t *Table) permute(order []int) {
	keys := make([]Key, len(order))
	for i, o := range order {
		keys[i] = t.keys[o]
	}
	t.keys = keys
	for c := range t.data {
		vals := make([]float64, len(order))
		for i, o := range order {
			vals[i] = t.data[c][o]
		}
		t.data[c] = vals
	}
}

// keep retains the rows whose indices appear in rows (ascending).
func (t *Table) keep(rows []int) {
	keys := make([]Key, len(rows))
	for i, r := range rows {
		keys[i] = t.keys[r]
	}
	t.keys = keys
	for c := range t.data {
		vals := make([]float64, len(rows))
		for i, r := range rows {
			vals[i] = t.data[c][r]
		}
		t.data[c] = vals
	}
}

// Dedupe collapses duplicate keys, keeping the first occurrence. The table
// must be sorted.
func (t *Table) Dedupe() {
	if len(t.keys) == 0 {
		return
	}
	rows := []int{0}
	for i := 1; i < len(t.keys); i++ {
		if t.keys[i] != t.keys[i-1] {
			rows = append(rows, i)
		}
	}
	if len(rows) < len(t.keys) {
		t.keep(rows)
	}
}

// DropEmptyRows removes rows whose cells are all missing.
func (t *Table) DropEmptyRows() {
	var rows []int
	for i := range t.keys {
		empty := true
		for c := range t.data {
			if !Missing(t.data[c][i]) {
				empty = false
				break
			}
		}
		if !empty {
			rows = append(rows, i)
		}
	}
	if len(rows) < len(t.keys) {
		t.keep(rows)
	}
}

// DropEmptyColumns removes columns whose cells are all missing.
func (t *Table) DropEmptyColumns() {
	var cols []string
	var data [][]float64
	for c, name := range t.cols {
		empty := true
		for _, v := range t.data[c] {
			if !Missing(v) {
				empty = false
				break
			}
		}
		if !empty {
			cols = append(cols, name)
			data = append(data, t.data[c])
		}
	}
	t.cols = cols
	t.data = data
}

// DropColumns removes the named columns if present.
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	var cols []string
	var data [][]float64
	for c, name := range t.cols {
		if _, ok := drop[name]; ok {
			continue
		}
		cols = append(cols, name)
		data = append(data, t.data[c])
	}
	t.cols = cols
	t.data = data
}

// ZeroToMissing replaces literal zeros with the missing sentinel, except in
// the listed columns where zero is a legitimate observation (e.g. funding
// rates or macro surprises).
func (t *Table) ZeroToMissing(except ...string) {
	keep := make(map[string]struct{}, len(except))
	for _, n := range except {
		keep[n] = struct{}{}
	}
	for c, name := range t.cols {
		if _, ok := keep[name]; ok {
			continue
		}
		for i, v := range t.data[c] {
			if v == 0 {
				t.data[c][i] = NaN()
			}
		}
	}
}

// FilterDates drops rows outside [start, end]. Zero bounds are open.
func (t *Table) FilterDates(start, end time.Time) {
	var rows []int
	for i, k := range t.keys {
		if !start.IsZero() && k.Time.Before(start) {
			continue
		}
		if !end.IsZero() && k.Time.After(end) {
			continue
		}
		rows = append(rows, i)
	}
	if len(rows) < len(t.keys) {
		t.keep(rows)
	}
}

// NonNullCount returns the number of non-missing cells in a column.
func (t *Table) NonNullCount(col string) int {
	c := t.colIndex(col)
	if c < 0 {
		return 0
	}
	n := 0
	for _, v := range t.data[c] {
		if !Missing(v) {
			n++
		}
	}
	return n
}

// Entities returns the distinct tickers in row order.
func (t *Table) Entities() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, k := range t.keys {
		if _, ok := seen[k.Ticker]; !ok {
			seen[k.Ticker] = struct{}{}
			out = append(out, k.Ticker)
		}
	}
	return out
}

// Times returns the distinct timestamps in ascending order.
func (t *Table) Times() []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, k := range t.keys {
		if _, ok := seen[k.Time]; !ok {
			seen[k.Time] = struct{}{}
			out = append(out, k.Time)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Before(out[b]) })
	return out
}

// RemoveEntities drops all rows for the named tickers.
func (t *Table) RemoveEntities(tickers ...string) {
	drop := make(map[string]struct{}, len(tickers))
	for _, n := range tickers {
		drop[n] = struct{}{}
	}
	var rows []int
	for i, k := range t.keys {
		if _, ok := drop[k.Ticker]; !ok {
			rows = append(rows, i)
		}
	}
	if len(rows) < len(t.keys) {
		t.keep(rows)
	}
}

// Span is a contiguous row range holding one entity's series. The table must
// be sorted for spans to be contiguous.
type Span struct {
	Ticker  string
	Subtype string
	Start   int // inclusive
	End     int // exclusive
}

// Spans returns the per-entity row ranges of a sorted table.
func (t *Table) Spans() []Span {
	var spans []Span
	for i := 0; i < len(t.keys); {
		j := i + 1
		for j < len(t.keys) &&
			t.keys[j].Ticker == t.keys[i].Ticker &&
			t.keys[j].Subtype == t.keys[i].Subtype {
			j++
		}
		spans = append(spans, Span{
			Ticker:  t.keys[i].Ticker,
			Subtype: t.keys[i].Subtype,
			Start:   i,
			End:     j,
		})
		i = j
	}
	return spans
}

// KeyIndex builds a key -> row lookup. Keys must be unique.
func (t *Table) KeyIndex() map[Key]int {
	idx := make(map[Key]int, len(t.keys))
	for i, k := range t.keys {
		idx[k] = i
	}
	return idx
}

// ForwardFill replaces missing cells with the latest prior non-missing value
// within each entity span.
func (t *Table) ForwardFill() {
	for _, sp := range t.Spans() {
		for c := range t.data {
			last := NaN()
			for i := sp.Start; i < sp.End; i++ {
				if Missing(t.data[c][i]) {
					t.data[c][i] = last
				} else {
					last = t.data[c][i]
				}
			}
		}
	}
}

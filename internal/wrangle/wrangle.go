// Package wrangle turns raw vendor payloads into canonical tidy tables.
// Every vendor shares one six-stage pipeline: rename columns through the
// field catalog, build the (time, ticker) index, filter the date range,
// resample to the requested frequency, remove bad data, and coerce types.
// Vendors differ only in the flattening step that precedes the pipeline.
package wrangle

import (
	"log/slog"
	"sort"
	"time"

	apperrors "quantdata/internal/errors"
	"quantdata/internal/fieldmap"
	"quantdata/internal/request"
	"quantdata/internal/table"
)

// Response is one raw vendor payload. Ticker and Field carry identifiers for
// payload shapes that omit them (per-ticker or per-field endpoints).
type Response struct {
	Ticker string
	Field  string
	Raw    any
}

// record is one flattened observation before renaming.
type record struct {
	date    time.Time
	ticker  string
	subtype string
	fields  map[string]any
}

// Wrangler normalizes raw payloads using the shared field catalog.
type Wrangler struct {
	catalog *fieldmap.Map
	logger  *slog.Logger
}

// NewWrangler creates a Wrangler. A nil logger falls back to slog.Default.
func NewWrangler(catalog *fieldmap.Map, logger *slog.Logger) *Wrangler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wrangler{catalog: catalog, logger: logger}
}

// zeroOK lists columns where a literal zero is a legitimate observation
// rather than a missing-data sentinel.
var zeroOK = map[string]bool{"funding_rate": true, "ret": true}

// keepZeros marks vendors whose payloads never use zero as a sentinel.
var keepZeros = map[string]bool{"tiingo": true}

// Wrangle flattens the raw responses for a vendor and runs the shared
// pipeline. A payload that flattens to nothing yields an empty table; the
// whole call fails only when every response fails to flatten.
func (w *Wrangler) Wrangle(req *request.Request, vendor string, resps []Response) (*table.Table, error) {
	flatten, ok := flatteners[vendor]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeBadResponse, "no wrangler for vendor %q", vendor)
	}

	var records []record
	var failed int
	var firstErr error
	for _, resp := range resps {
		recs, err := flatten(req, resp)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			w.logger.Warn("skipping unusable vendor payload",
				"vendor", vendor, "ticker", resp.Ticker, "error", err)
			continue
		}
		records = append(records, recs...)
	}
	if len(resps) > 0 && failed == len(resps) {
		return nil, apperrors.Wrap(firstErr, apperrors.CodeBadResponse,
			"no vendor response could be wrangled")
	}

	renamed, cols := w.rename(vendor, records)
	if len(renamed) == 0 {
		// empty extraction short-circuits to an empty table
		return table.New(), nil
	}
	tbl := w.build(renamed, cols)
	tbl.Sort()
	tbl.FilterDates(req.StartDate, req.EndDate)

	tbl = tbl.Resample(req.Freq, table.DefaultRule)
	if req.Freq != request.FreqTick {
		tbl.ForwardFill()
	}

	tbl.Dedupe()
	if !keepZeros[vendor] {
		tbl.ZeroToMissing(zeroExceptions(tbl)...)
	}
	tbl.DropEmptyRows()
	tbl.DropEmptyColumns()
	return tbl, nil
}

// rename maps vendor field names to canonical ones, case-insensitively, and
// drops columns with no mapping. Identifier aliases recognized across
// vendors: index and asset mean ticker, level means close.
func (w *Wrangler) rename(vendor string, records []record) ([]record, []string) {
	var cols []string
	seen := make(map[string]bool)
	dropped := make(map[string]bool)

	out := make([]record, 0, len(records))
	for _, rec := range records {
		fields := make(map[string]any, len(rec.fields))
		for name, v := range rec.fields {
			canonical, ok := w.canonicalName(vendor, name)
			if !ok {
				dropped[name] = true
				continue
			}
			switch canonical {
			case "ticker":
				if s, isStr := v.(string); isStr && rec.ticker == "" {
					rec.ticker = s
				}
				continue
			case "institution":
				if s, isStr := v.(string); isStr && rec.subtype == "" {
					rec.subtype = s
				}
				continue
			case "date":
				continue
			}
			fields[canonical] = v
			if !seen[canonical] {
				seen[canonical] = true
				cols = append(cols, canonical)
			}
		}
		if len(fields) == 0 {
			continue
		}
		rec.fields = fields
		out = append(out, rec)
	}
	if len(dropped) > 0 {
		names := make([]string, 0, len(dropped))
		for n := range dropped {
			names = append(names, n)
		}
		sort.Strings(names)
		w.logger.Warn("dropping unmapped response columns", "vendor", vendor, "columns", names)
	}
	return out, cols
}

func (w *Wrangler) canonicalName(vendor, name string) (string, bool) {
	if canonical, ok := w.catalog.Canonical(vendor, name); ok {
		return canonical, true
	}
	// flatteners may emit canonical names directly
	if w.catalog.IsCanonical(name) {
		return name, true
	}
	switch name {
	case "index", "asset":
		return "ticker", true
	case "level":
		return "close", true
	case "institution":
		return "institution", true
	}
	return "", false
}

func (w *Wrangler) build(records []record, cols []string) *table.Table {
	tbl := table.New(cols...)
	for _, rec := range records {
		row := make([]float64, len(cols))
		for i, col := range cols {
			v, ok := rec.fields[col]
			if !ok {
				row[i] = table.NaN()
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				row[i] = table.NaN()
				continue
			}
			row[i] = f
		}
		tbl.Append(table.Key{Time: rec.date.UTC(), Ticker: rec.ticker, Subtype: rec.subtype}, row)
	}
	return tbl
}

func zeroExceptions(tbl *table.Table) []string {
	var out []string
	for _, col := range tbl.Columns() {
		if zeroOK[col] {
			out = append(out, col)
		}
	}
	return out
}

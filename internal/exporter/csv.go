// Package exporter reads and writes canonical tables as tidy CSV: one row
// per (time, ticker, subtype) key, one column per field, empty cells for
// missing values.
package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"quantdata/internal/clean"
	"quantdata/internal/table"
)

// header columns preceding the field columns.
var keyCols = []string{"time", "ticker", "subtype"}

// WriteTable writes a table to path, creating parent directories as needed.
func WriteTable(path string, t *table.Table) error {
	slog.Info("writing table", "path", path, "rows", t.Len(), "columns", len(t.Columns()))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	cols := t.Columns()
	if err := w.Write(append(append([]string{}, keyCols...), cols...)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(keyCols)+len(cols))
	for i := 0; i < t.Len(); i++ {
		k := t.Key(i)
		record[0] = k.Time.UTC().Format(time.RFC3339)
		record[1] = k.Ticker
		record[2] = k.Subtype
		for j, col := range cols {
			record[len(keyCols)+j] = formatValue(t.Value(i, col))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return w.Error()
}

func formatValue(v float64) string {
	if table.Missing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// timeLayouts accepted when reading the time column.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadTable parses a tidy CSV written by WriteTable, or any CSV with time,
// ticker and field columns. Rows arrive sorted regardless of file order.
func ReadTable(path string) (*table.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(rows) == 0 {
		return table.New(), nil
	}

	header := rows[0]
	// tolerate a UTF-8 BOM on the first header cell
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}
	idx := make(map[string]int, len(header))
	var fields []string
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		idx[name] = i
		switch name {
		case "time", "date", "ticker", "subtype":
		default:
			fields = append(fields, name)
		}
	}
	timeIdx, ok := idx["time"]
	if !ok {
		if timeIdx, ok = idx["date"]; !ok {
			return nil, fmt.Errorf("csv has no time column")
		}
	}
	tickerIdx, ok := idx["ticker"]
	if !ok {
		return nil, fmt.Errorf("csv has no ticker column")
	}

	out := table.New(fields...)
	values := make([]float64, len(fields))
	for n, row := range rows[1:] {
		ts, err := parseTime(row[timeIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		k := table.Key{Time: ts, Ticker: row[tickerIdx]}
		if i, ok := idx["subtype"]; ok {
			k.Subtype = row[i]
		}
		for j, field := range fields {
			values[j] = parseValue(row[idx[field]])
		}
		if err := out.Append(k, values); err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
	}
	out.Sort()
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

func parseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return table.NaN()
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return table.NaN()
	}
	return v
}

// WriteSummary writes a cleaning summary as CSV, one row per metric and one
// column per field.
func WriteSummary(path string, s *clean.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	cols := s.Columns()
	if err := w.Write(append([]string{"metric"}, cols...)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(cols)+1)
	for _, metric := range s.Metrics() {
		record[0] = metric
		for i, col := range cols {
			record[i+1] = ""
			if v, ok := s.Value(metric, col); ok {
				record[i+1] = strconv.FormatFloat(v, 'f', 2, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write metric %s: %w", metric, err)
		}
	}
	return w.Error()
}

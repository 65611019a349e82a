package wrangle

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"quantdata/internal/request"
)

// flattenXLSX handles vendors that publish workbooks instead of APIs. Two
// sheet shapes are supported: long sheets with a date column plus vendor
// field columns (PRICE, RET), and wide sheets with a date column plus one
// column per ticker holding a single metric named by Response.Field.
func flattenXLSX(req *request.Request, resp Response) ([]record, error) {
	raw, ok := resp.Raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("spreadsheet payload is %T, want bytes", resp.Raw)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, sheet, err := findDataSheet(f)
	if err != nil {
		return nil, err
	}
	header := rows[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("sheet %q header has %d columns, want at least 2", sheet, len(header))
	}

	field := resp.Field
	if field == "" {
		field = "ret"
	}

	var out []record
	for _, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		date, err := parseSheetDate(row[0])
		if err != nil {
			continue
		}
		for col := 1; col < len(header) && col < len(row); col++ {
			cell := strings.ReplaceAll(strings.TrimSpace(row[col]), ",", "")
			if cell == "" {
				continue
			}
			name := strings.TrimSpace(header[col])
			rec := record{date: date, ticker: resp.Ticker}
			if looksLikeFieldID(name) {
				rec.fields = map[string]any{name: cell}
			} else {
				// wide sheet: column header is the ticker
				rec.ticker = strings.ToUpper(name)
				rec.fields = map[string]any{field: cell}
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// findDataSheet returns the first sheet whose leading header cell is a date
// column.
func findDataSheet(f *excelize.File) ([][]string, string, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) < 2 {
			continue
		}
		head := strings.ToLower(strings.TrimSpace(rows[0][0]))
		if head == "date" || head == "month" {
			return rows, name, nil
		}
	}
	return nil, "", fmt.Errorf("no sheet with a date header column")
}

// looksLikeFieldID reports whether a column header is a vendor field id
// rather than a ticker. Workbook field ids are spelled in full upper case
// words longer than a ticker symbol, so single short tokens read as tickers.
func looksLikeFieldID(name string) bool {
	switch strings.ToUpper(name) {
	case "PRICE", "RET", "RETURN", "LEVEL", "VALUE":
		return true
	}
	return false
}

var sheetDateLayouts = []string{
	"2006-01-02", "01/02/2006", "1/2/2006", "01-02-06", "Jan-06", "200601",
}

func parseSheetDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range sheetDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized sheet date %q", s)
}

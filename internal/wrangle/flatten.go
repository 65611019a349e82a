package wrangle

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"quantdata/internal/request"
)

// flattener turns one vendor payload into flat observation records. The
// shared pipeline handles everything after flattening.
type flattener func(*request.Request, Response) ([]record, error)

var flatteners = map[string]flattener{
	"cryptocompare": flattenCryptoCompare,
	"coinmetrics":   flattenCoinMetrics,
	"glassnode":     flattenGlassnode,
	"tiingo":        flattenTiingo,
	"ccxt":          flattenCCXT,
	"yahoo":         flattenYahoo,
	"aqr":           flattenXLSX,
}

// flattenCryptoCompare handles histo bar payloads: {"Data": {"Data": [bar...]}}
// with unix-second bar times, one payload per ticker.
func flattenCryptoCompare(req *request.Request, resp Response) ([]record, error) {
	m, ok := resp.Raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cryptocompare payload is %T, want object", resp.Raw)
	}
	data := m["Data"]
	if inner, ok := data.(map[string]any); ok {
		data = inner["Data"]
	}
	bars, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("cryptocompare payload has no Data list")
	}

	var out []record
	for _, b := range bars {
		bar, ok := b.(map[string]any)
		if !ok {
			continue
		}
		ts, ok := toFloat(bar["time"])
		if !ok {
			continue
		}
		fields := make(map[string]any, len(bar))
		for k, v := range bar {
			if k == "time" {
				continue
			}
			fields[k] = v
		}
		out = append(out, record{
			date:   time.Unix(int64(ts), 0).UTC(),
			ticker: resp.Ticker,
			fields: fields,
		})
	}
	return out, nil
}

// flattenCoinMetrics handles list-of-dict payloads with RFC3339 times and a
// market, asset or institution identifier per row. Market ids like
// binance-btc-usdt-spot are reduced to the base ticker.
func flattenCoinMetrics(req *request.Request, resp Response) ([]record, error) {
	rows, ok := resp.Raw.([]any)
	if !ok {
		return nil, fmt.Errorf("coinmetrics payload is %T, want list", resp.Raw)
	}

	var out []record
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		ts, err := parseTimeString(str(row["time"]))
		if err != nil {
			continue
		}
		rec := record{date: ts, ticker: resp.Ticker}
		if mkt := str(row["market"]); mkt != "" {
			rec.ticker = coinmetricsTicker(mkt, req)
		} else if asset := str(row["asset"]); asset != "" {
			rec.ticker = strings.ToUpper(asset)
		}
		rec.fields = make(map[string]any, len(row))
		for k, v := range row {
			switch k {
			case "time", "market", "asset":
				continue
			}
			rec.fields[k] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

func coinmetricsTicker(market string, req *request.Request) string {
	parts := strings.Split(market, "-")
	if len(parts) < 2 {
		return strings.ToUpper(market)
	}
	ticker := strings.ToUpper(parts[1])
	if req.MktType == request.MarketPerpetualFuture {
		quote := strings.ToUpper(req.QuoteCcy)
		if quote == "" {
			quote = "USDT"
		}
		ticker = strings.TrimSuffix(ticker, quote)
	}
	return ticker
}

// flattenGlassnode handles keyed metric payloads [{t, v}] and nested OHLC
// payloads [{t, o: {o,h,l,c}}], one payload per ticker and field.
func flattenGlassnode(req *request.Request, resp Response) ([]record, error) {
	rows, ok := resp.Raw.([]any)
	if !ok {
		return nil, fmt.Errorf("glassnode payload is %T, want list", resp.Raw)
	}

	var out []record
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		ts, ok := toFloat(row["t"])
		if !ok {
			continue
		}
		rec := record{
			date:   time.Unix(int64(ts), 0).UTC(),
			ticker: resp.Ticker,
			fields: make(map[string]any),
		}
		if ohlc, ok := row["o"].(map[string]any); ok {
			for k, v := range ohlc {
				rec.fields[k] = v
			}
		} else if v, ok := row["v"]; ok {
			name := resp.Field
			if name == "" {
				name = "v"
			}
			rec.fields[name] = v
		}
		if len(rec.fields) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// flattenTiingo handles both the crypto shape, a list whose first element
// wraps bars under priceData, and the flat bar lists of the iex and fx
// endpoints.
func flattenTiingo(req *request.Request, resp Response) ([]record, error) {
	rows, ok := resp.Raw.([]any)
	if !ok {
		return nil, fmt.Errorf("tiingo payload is %T, want list", resp.Raw)
	}
	ticker := resp.Ticker
	if len(rows) > 0 {
		if wrapper, ok := rows[0].(map[string]any); ok {
			if priceData, ok := wrapper["priceData"].([]any); ok {
				if t := str(wrapper["ticker"]); t != "" {
					ticker = strings.ToUpper(t)
				}
				rows = priceData
			}
		}
	}

	var out []record
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		ts, err := parseTimeString(str(row["date"]))
		if err != nil {
			continue
		}
		fields := make(map[string]any, len(row))
		for k, v := range row {
			if k == "date" {
				continue
			}
			fields[k] = v
		}
		out = append(out, record{date: ts, ticker: ticker, fields: fields})
	}
	return out, nil
}

// ohlcvOrder names the positional columns of a ccxt OHLCV row after the
// leading millisecond timestamp.
var ohlcvOrder = []string{"open", "high", "low", "close", "volume"}

// flattenCCXT handles OHLCV list-of-list payloads [[ms, o, h, l, c, v]] and
// funding-rate history lists of objects.
func flattenCCXT(req *request.Request, resp Response) ([]record, error) {
	rows, ok := resp.Raw.([]any)
	if !ok {
		return nil, fmt.Errorf("ccxt payload is %T, want list", resp.Raw)
	}

	var out []record
	for _, r := range rows {
		switch row := r.(type) {
		case []any:
			if len(row) < 2 {
				continue
			}
			ms, ok := toFloat(row[0])
			if !ok {
				continue
			}
			fields := make(map[string]any, len(row)-1)
			for i, v := range row[1:] {
				if i >= len(ohlcvOrder) {
					break
				}
				fields[ohlcvOrder[i]] = v
			}
			out = append(out, record{
				date:   time.UnixMilli(int64(ms)).UTC(),
				ticker: resp.Ticker,
				fields: fields,
			})
		case map[string]any:
			ms, ok := toFloat(row["timestamp"])
			if !ok {
				continue
			}
			rec := record{
				date:   time.UnixMilli(int64(ms)).Truncate(time.Second).UTC(),
				ticker: resp.Ticker,
				fields: make(map[string]any, len(row)),
			}
			if rec.ticker == "" {
				if sym := str(row["symbol"]); sym != "" {
					rec.ticker = strings.SplitN(sym, "/", 2)[0]
				}
			}
			for k, v := range row {
				switch k {
				case "timestamp", "datetime", "symbol", "info":
					continue
				}
				rec.fields[k] = v
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// flattenYahoo handles stacked row payloads with Date, ticker and title-cased
// price columns.
func flattenYahoo(req *request.Request, resp Response) ([]record, error) {
	rows, ok := resp.Raw.([]any)
	if !ok {
		return nil, fmt.Errorf("yahoo payload is %T, want list", resp.Raw)
	}

	var out []record
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		rawDate := row["Date"]
		if rawDate == nil {
			rawDate = row["date"]
		}
		ts, err := parseTimeString(str(rawDate))
		if err != nil {
			continue
		}
		fields := make(map[string]any, len(row))
		for k, v := range row {
			if k == "Date" || k == "date" {
				continue
			}
			fields[k] = v
		}
		out = append(out, record{date: ts, ticker: resp.Ticker, fields: fields})
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

package convert

import (
	"fmt"
	"strings"
	"time"

	"quantdata/internal/request"
)

// LetterCase selects ticker or quote-currency casing for a vendor.
type LetterCase int

const (
	CaseKeep LetterCase = iota
	CaseUpper
	CaseLower
)

func (lc LetterCase) apply(s string) string {
	switch lc {
	case CaseUpper:
		return strings.ToUpper(s)
	case CaseLower:
		return strings.ToLower(s)
	}
	return s
}

// MarketStyle selects how a (ticker, quote, exchange) triple becomes the
// vendor's market symbol.
type MarketStyle int

const (
	// MarketNone means the vendor takes tickers directly, no market symbol.
	MarketNone MarketStyle = iota
	// MarketSlash builds BASE/QUOTE for spot and BASE/QUOTE:QUOTE for
	// perpetual futures.
	MarketSlash
	// MarketDashedExch builds exch-base-quote-spot in lowercase, the
	// exchange-prefixed market id style.
	MarketDashedExch
	// MarketConcatLower builds basequote in lowercase.
	MarketConcatLower
)

// DateEncoding selects how the vendor takes start and end dates.
type DateEncoding int

const (
	// DateTime passes time.Time through unchanged.
	DateTime DateEncoding = iota
	// DateUnixSec encodes as integer Unix seconds.
	DateUnixSec
	// DateUnixMilli encodes as integer Unix milliseconds.
	DateUnixMilli
)

// Vendor is a data-driven vendor configuration record. Conversion behavior
// differs between vendors only through these fields, never through code.
type Vendor struct {
	Name         string
	TickerCase   LetterCase
	QuoteCase    LetterCase
	DefaultQuote string
	DefaultExch  string
	// PerpExch overrides the exchange for perpetual-future requests, keyed
	// by the requested exchange ("" matches an absent exchange).
	PerpExch map[string]string
	// Freqs maps canonical frequency codes to vendor tokens. A frequency
	// missing from the map is unsupported and fails conversion.
	Freqs map[request.Frequency]string
	// Categories the vendor serves. Empty means all categories.
	Categories map[request.Category]bool
	Market     MarketStyle
	Dates      DateEncoding
	// MinStart is the vendor's earliest supported history, used when the
	// request has no start date.
	MinStart time.Time
	// IntradayLookback caps minute-frequency history to a trailing window
	// from now, for vendors that only retain recent intraday data.
	IntradayLookback time.Duration
	DefaultInst      string
	// EasternSecurities marks vendors that quote equities and fx in New
	// York time rather than UTC.
	EasternSecurities bool
}

// SupportsCategory reports whether the vendor serves cat.
func (v Vendor) SupportsCategory(cat request.Category) bool {
	if len(v.Categories) == 0 {
		return true
	}
	return v.Categories[cat]
}

func (v Vendor) perpExchange(exch string) string {
	if v.PerpExch == nil {
		return exch
	}
	if mapped, ok := v.PerpExch[exch]; ok {
		return mapped
	}
	return exch
}

var (
	date20090103 = time.Date(2009, 1, 3, 0, 0, 0, 0, time.UTC)
	date20100101 = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	date19200101 = time.Date(1920, 1, 1, 0, 0, 0, 0, time.UTC)
)

var vendors = map[string]Vendor{
	"cryptocompare": {
		Name:         "cryptocompare",
		TickerCase:   CaseUpper,
		QuoteCase:    CaseUpper,
		DefaultQuote: "USD",
		DefaultExch:  "CCCAGG",
		Freqs: map[request.Frequency]string{
			request.Freq1Min: "histominute", request.Freq5Min: "histominute",
			request.Freq10Min: "histominute", request.Freq15Min: "histominute",
			request.Freq30Min: "histominute",
			request.Freq1H:    "histohour", request.Freq2H: "histohour",
			request.Freq4H: "histohour", request.Freq8H: "histohour",
			request.FreqDaily: "histoday", request.FreqWeekly: "histoday",
			request.FreqMonthly: "histoday", request.FreqQuarterly: "histoday",
			request.FreqYearly: "histoday",
		},
		Categories:       map[request.Category]bool{request.CatCrypto: true},
		Dates:            DateUnixSec,
		MinStart:         date20090103,
		IntradayLookback: 7 * 24 * time.Hour,
	},
	"coinmetrics": {
		Name:         "coinmetrics",
		TickerCase:   CaseLower,
		QuoteCase:    CaseLower,
		DefaultQuote: "usdt",
		DefaultExch:  "binance",
		Freqs: map[request.Frequency]string{
			request.FreqTick: "tick",
			request.Freq1Min: "1m", request.Freq5Min: "1m",
			request.Freq10Min: "1m", request.Freq15Min: "1m",
			request.Freq30Min: "1m",
			request.Freq1H:    "1h", request.Freq2H: "1h",
			request.Freq4H: "1h", request.Freq8H: "1h",
			request.FreqDaily: "1d", request.FreqWeekly: "1d",
			request.FreqMonthly: "1d", request.FreqQuarterly: "1d",
			request.FreqYearly: "1d",
		},
		Categories:  map[request.Category]bool{request.CatCrypto: true},
		Market:      MarketDashedExch,
		Dates:       DateTime,
		DefaultInst: "grayscale",
	},
	"glassnode": {
		Name:         "glassnode",
		TickerCase:   CaseKeep,
		QuoteCase:    CaseUpper,
		DefaultQuote: "USD",
		Freqs: map[request.Frequency]string{
			request.Freq1Min: "10m", request.Freq5Min: "10m",
			request.Freq10Min: "10m", request.Freq15Min: "10m",
			request.Freq30Min: "10m",
			request.Freq1H:    "1h", request.Freq2H: "1h",
			request.Freq4H: "1h", request.Freq8H: "1h",
			request.FreqDaily: "24h", request.FreqWeekly: "1w",
			request.FreqMonthly: "1month",
		},
		Categories:  map[request.Category]bool{request.CatCrypto: true},
		Dates:       DateUnixSec,
		MinStart:    date20090103,
		DefaultInst: "purpose",
	},
	"tiingo": {
		Name:         "tiingo",
		TickerCase:   CaseLower,
		QuoteCase:    CaseLower,
		DefaultQuote: "usd",
		Freqs: map[request.Frequency]string{
			request.Freq1Min: "1min", request.Freq5Min: "5min",
			request.Freq10Min: "10min", request.Freq15Min: "15min",
			request.Freq30Min: "30min",
			request.Freq1H:    "1hour", request.Freq2H: "2hour",
			request.Freq4H: "4hour", request.Freq8H: "8hour",
			request.FreqDaily: "1day", request.FreqWeekly: "1week",
			request.FreqMonthly: "1month",
		},
		Categories: map[request.Category]bool{
			request.CatCrypto: true, request.CatEqty: true, request.CatFX: true,
		},
		Market:            MarketConcatLower,
		Dates:             DateTime,
		MinStart:          date20100101,
		EasternSecurities: true,
	},
	"ccxt": {
		Name:         "ccxt",
		TickerCase:   CaseUpper,
		QuoteCase:    CaseUpper,
		DefaultQuote: "USDT",
		DefaultExch:  "binance",
		PerpExch: map[string]string{
			"": "binanceusdm", "binance": "binanceusdm",
			"kucoin": "kucoinfutures", "huobi": "huobipro",
			"bitfinex": "bitfinex2", "mexc": "mexc3",
		},
		Freqs: map[request.Frequency]string{
			request.FreqTick: "tick",
			request.Freq1Min: "1m", request.Freq5Min: "5m",
			request.Freq10Min: "10m", request.Freq15Min: "15m",
			request.Freq30Min: "30m",
			request.Freq1H:    "1h", request.Freq2H: "2h",
			request.Freq4H: "4h", request.Freq8H: "8h",
			request.FreqDaily: "1d", request.FreqWeekly: "1w",
			request.FreqMonthly: "1M", request.FreqQuarterly: "1q",
			request.FreqYearly: "1y",
		},
		Categories: map[request.Category]bool{request.CatCrypto: true},
		Market:     MarketSlash,
		Dates:      DateUnixMilli,
		MinStart:   date20100101,
	},
	"yahoo": {
		Name:       "yahoo",
		TickerCase: CaseUpper,
		QuoteCase:  CaseUpper,
		Freqs: map[request.Frequency]string{
			request.FreqDaily: "1d", request.FreqWeekly: "1wk",
			request.FreqMonthly: "1mo", request.FreqQuarterly: "3mo",
			request.FreqYearly: "1y",
		},
		Dates:             DateTime,
		MinStart:          date19200101,
		EasternSecurities: true,
	},
	"aqr": {
		Name:       "aqr",
		TickerCase: CaseUpper,
		QuoteCase:  CaseUpper,
		Freqs: map[request.Frequency]string{
			request.FreqDaily:   "daily",
			request.FreqMonthly: "monthly",
		},
		Categories: map[request.Category]bool{
			request.CatEqty: true, request.CatFX: true, request.CatCmdty: true,
			request.CatRates: true, request.CatCredit: true,
		},
		Dates:    DateTime,
		MinStart: date19200101,
	},
}

// Lookup returns the configuration record for a vendor name.
func Lookup(name string) (Vendor, error) {
	v, ok := vendors[strings.ToLower(name)]
	if !ok {
		return Vendor{}, fmt.Errorf("unknown vendor %q", name)
	}
	return v, nil
}

// Vendors returns the configured vendor names.
func Vendors() []string {
	out := make([]string, 0, len(vendors))
	for name := range vendors {
		out = append(out, name)
	}
	return out
}

// fxBaseCcys are quoted base-side against USD by market convention.
var fxBaseCcys = map[string]bool{"EUR": true, "GBP": true, "AUD": true, "NZD": true}

// FXPairs builds currency pairs from tickers following fx quoting convention:
// EUR, GBP, AUD and NZD trade as base against USD, every other currency
// quotes against a USD base. Non-USD quote currencies put the ticker on the
// base side.
func FXPairs(tickers []string, quoteCcy string) []string {
	quote := strings.ToUpper(quoteCcy)
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		base := strings.ToUpper(t)
		switch {
		case quote == "USD" && fxBaseCcys[base]:
			out = append(out, base+"/"+quote)
		case quote == "USD":
			out = append(out, quote+"/"+base)
		default:
			out = append(out, base+"/"+quote)
		}
	}
	return out
}

package request

import "strings"

// Frequency is a canonical observation frequency code.
type Frequency string

const (
	FreqTick      Frequency = "tick"
	Freq1Min      Frequency = "1min"
	Freq5Min      Frequency = "5min"
	Freq10Min     Frequency = "10min"
	Freq15Min     Frequency = "15min"
	Freq30Min     Frequency = "30min"
	Freq1H        Frequency = "1h"
	Freq2H        Frequency = "2h"
	Freq4H        Frequency = "4h"
	Freq8H        Frequency = "8h"
	FreqDaily     Frequency = "d"
	FreqWeekly    Frequency = "w"
	FreqMonthly   Frequency = "m"
	FreqQuarterly Frequency = "q"
	FreqYearly    Frequency = "y"
)

var frequencies = map[Frequency]string{
	FreqTick:      "bid/ask quote or executed trade",
	Freq1Min:      "one minute",
	Freq5Min:      "five minutes",
	Freq10Min:     "ten minutes",
	Freq15Min:     "fifteen minutes",
	Freq30Min:     "thirty minutes",
	Freq1H:        "one hour",
	Freq2H:        "two hours",
	Freq4H:        "four hours",
	Freq8H:        "eight hours",
	FreqDaily:     "daily",
	FreqWeekly:    "weekly",
	FreqMonthly:   "monthly",
	FreqQuarterly: "quarterly",
	FreqYearly:    "yearly",
}

// Valid reports whether f is a supported frequency code.
func (f Frequency) Valid() bool {
	_, ok := frequencies[f]
	return ok
}

// IsMinute reports whether f is a sub-hour intraday frequency.
func (f Frequency) IsMinute() bool {
	return strings.HasSuffix(string(f), "min")
}

// IsHourly reports whether f is an hour-denominated frequency.
func (f Frequency) IsHourly() bool {
	return strings.HasSuffix(string(f), "h")
}

// IsIntraday reports whether observations are finer than daily.
func (f Frequency) IsIntraday() bool {
	return f == FreqTick || f.IsMinute() || f.IsHourly()
}

// Frequencies returns all supported frequency codes.
func Frequencies() []Frequency {
	out := make([]Frequency, 0, len(frequencies))
	for f := range frequencies {
		out = append(out, f)
	}
	return out
}

// Category is an asset-class or series taxonomy bucket.
type Category string

const (
	CatCrypto Category = "crypto"
	CatFX     Category = "fx"
	CatRates  Category = "rates"
	CatEqty   Category = "eqty"
	CatCmdty  Category = "cmdty"
	CatBonds  Category = "bonds"
	CatCredit Category = "credit"
	CatMacro  Category = "macro"
	CatAlt    Category = "alt"
)

var categories = map[Category]struct{}{
	CatCrypto: {}, CatFX: {}, CatRates: {}, CatEqty: {}, CatCmdty: {},
	CatBonds: {}, CatCredit: {}, CatMacro: {}, CatAlt: {},
}

// Valid reports whether c is a supported category.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// MarketType identifies the instrument type of a market data request.
type MarketType string

const (
	MarketSpot            MarketType = "spot"
	MarketETF             MarketType = "etf"
	MarketFuture          MarketType = "future"
	MarketPerpetualFuture MarketType = "perpetual_future"
	MarketSwap            MarketType = "swap"
	MarketOption          MarketType = "option"
)

var marketTypes = map[MarketType]struct{}{
	MarketSpot: {}, MarketETF: {}, MarketFuture: {},
	MarketPerpetualFuture: {}, MarketSwap: {}, MarketOption: {},
}

// Valid reports whether mt is a supported market type.
func (mt MarketType) Valid() bool {
	_, ok := marketTypes[mt]
	return ok
}

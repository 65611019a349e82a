package convert

import (
	"strings"

	"quantdata/internal/request"
)

// marketSymbol builds one vendor market id from a ticker, quote currency and
// exchange according to the vendor's style.
func marketSymbol(style MarketStyle, mktType request.MarketType, ticker, quoteCcy, exch string) string {
	switch style {
	case MarketSlash:
		base := strings.ToUpper(ticker)
		quote := strings.ToUpper(quoteCcy)
		if mktType == request.MarketPerpetualFuture && exch != "binanceusdm" {
			return base + "/" + quote + ":" + quote
		}
		return base + "/" + quote
	case MarketDashedExch:
		if mktType == request.MarketPerpetualFuture {
			return strings.ToLower(exch) + "-" +
				strings.ToUpper(ticker) + strings.ToUpper(quoteCcy) + "-future"
		}
		return strings.ToLower(exch) + "-" + strings.ToLower(ticker) + "-" +
			strings.ToLower(quoteCcy) + "-" + string(mktType)
	case MarketConcatLower:
		return strings.ToLower(ticker) + strings.ToLower(quoteCcy)
	}
	return ticker
}

// concatLower collapses a BASE/QUOTE pair into the concatenated lowercase
// form some vendors use for fx symbols.
func concatLower(pair string) string {
	return strings.ToLower(strings.ReplaceAll(pair, "/", ""))
}

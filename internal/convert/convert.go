// Package convert translates a canonical data request into the parameter
// shape one vendor expects: ticker casing, market symbols, frequency tokens,
// date encoding and field ids. Vendors are configuration records, not types;
// all conversion logic lives in one routine driven by the record.
package convert

import (
	"log/slog"
	"time"

	apperrors "quantdata/internal/errors"
	"quantdata/internal/fieldmap"
	"quantdata/internal/request"
)

// Params is the vendor-shaped parameter mapping handed to a vendor
// collaborator. Keys mirror the vendor request surface; values are opaque to
// the rest of the pipeline.
type Params map[string]any

// Converter turns requests into vendor parameters using the shared field
// catalog.
type Converter struct {
	catalog *fieldmap.Map
	logger  *slog.Logger
	now     func() time.Time
}

// NewConverter creates a Converter. A nil logger falls back to slog.Default.
func NewConverter(catalog *fieldmap.Map, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{catalog: catalog, logger: logger, now: time.Now}
}

// Option adjusts a single conversion call.
type Option func(*callOpts)

type callOpts struct {
	defaultStart time.Time
}

// WithDefaultStart overrides the vendor's minimum-history start date used
// when the request carries no start date.
func WithDefaultStart(t time.Time) Option {
	return func(o *callOpts) { o.defaultStart = t }
}

// Convert produces vendor parameters for the named vendor. Unsupported
// categories and frequencies fail before any network call; canonical fields
// with no vendor id are dropped with a warning as long as at least one maps.
func (c *Converter) Convert(req *request.Request, vendorName string, opts ...Option) (Params, error) {
	v, err := Lookup(vendorName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidRequest, "vendor lookup")
	}
	var co callOpts
	for _, opt := range opts {
		opt(&co)
	}

	if req.Cat != "" && !v.SupportsCategory(req.Cat) {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedCategory,
			"vendor %s does not serve category %q", v.Name, req.Cat)
	}

	freq, err := c.convertFreq(req, v)
	if err != nil {
		return nil, err
	}
	fields, err := c.convertFields(req, v)
	if err != nil {
		return nil, err
	}

	tickers := c.convertTickers(req, v)
	quoteCcy := c.convertQuote(req, v)
	exch := c.convertExch(req, v)
	markets := c.buildMarkets(req, v, tickers, quoteCcy, exch)
	start, end := c.convertDates(req, v, co)

	inst := req.Inst
	if inst == "" {
		inst = v.DefaultInst
	}
	cat := req.Cat
	if len(v.Categories) == 1 {
		for only := range v.Categories {
			cat = only
		}
	}

	return Params{
		"tickers":        tickers,
		"freq":           freq,
		"quote_ccy":      quoteCcy,
		"exch":           exch,
		"mkt_type":       string(req.MktType),
		"mkts":           markets,
		"start_date":     start,
		"end_date":       end,
		"fields":         fields,
		"tz":             c.timezone(req, v),
		"inst":           inst,
		"cat":            string(cat),
		"trials":         req.Trials,
		"pause":          req.Pause,
		"source_tickers": req.SourceTickers,
		"source_freq":    req.SourceFreq,
		"source_fields":  req.SourceFields,
	}, nil
}

func (c *Converter) convertTickers(req *request.Request, v Vendor) []string {
	if len(req.SourceTickers) > 0 {
		return append([]string(nil), req.SourceTickers...)
	}
	out := make([]string, len(req.Tickers))
	for i, t := range req.Tickers {
		out[i] = v.TickerCase.apply(t)
	}
	return out
}

func (c *Converter) convertFreq(req *request.Request, v Vendor) (string, error) {
	if req.SourceFreq != "" {
		return req.SourceFreq, nil
	}
	token, ok := v.Freqs[req.Freq]
	if !ok {
		return "", apperrors.Newf(apperrors.CodeUnsupportedFrequency,
			"vendor %s does not support frequency %q", v.Name, req.Freq)
	}
	return token, nil
}

func (c *Converter) convertQuote(req *request.Request, v Vendor) string {
	if req.QuoteCcy == "" {
		return v.DefaultQuote
	}
	return v.QuoteCase.apply(req.QuoteCcy)
}

func (c *Converter) convertExch(req *request.Request, v Vendor) string {
	exch := req.Exch
	if req.MktType == request.MarketPerpetualFuture {
		exch = v.perpExchange(exch)
	}
	if exch == "" {
		exch = v.DefaultExch
	}
	return exch
}

func (c *Converter) buildMarkets(req *request.Request, v Vendor, tickers []string, quoteCcy, exch string) []string {
	if len(req.SourceTickers) > 0 {
		return append([]string(nil), req.SourceTickers...)
	}
	if req.Cat == request.CatFX {
		pairs := FXPairs(tickers, quoteCcy)
		if v.Market == MarketConcatLower {
			out := make([]string, len(pairs))
			for i, p := range pairs {
				out[i] = concatLower(p)
			}
			return out
		}
		return pairs
	}
	if v.Market == MarketNone {
		return nil
	}
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, marketSymbol(v.Market, req.MktType, t, quoteCcy, exch))
	}
	return out
}

func (c *Converter) convertDates(req *request.Request, v Vendor, co callOpts) (any, any) {
	start := req.StartDate
	if start.IsZero() {
		start = co.defaultStart
	}
	if start.IsZero() {
		start = v.MinStart
	}
	// intraday history is capped to the vendor's retention window
	if req.Freq.IsMinute() && v.IntradayLookback > 0 {
		start = c.now().UTC().Add(-v.IntradayLookback)
	}
	end := req.EndDate
	if end.IsZero() {
		end = c.now().UTC()
	}
	return encodeDate(start, v.Dates), encodeDate(end, v.Dates)
}

func encodeDate(t time.Time, enc DateEncoding) any {
	if t.IsZero() {
		return nil
	}
	switch enc {
	case DateUnixSec:
		return t.Unix()
	case DateUnixMilli:
		return t.UnixMilli()
	default:
		return t.UTC()
	}
}

func (c *Converter) convertFields(req *request.Request, v Vendor) ([]string, error) {
	if len(req.SourceFields) > 0 {
		return append([]string(nil), req.SourceFields...), nil
	}
	mapped, unmapped := c.catalog.MapFields(v.Name, req.Fields)
	if len(unmapped) > 0 {
		c.logger.Warn("dropping fields with no vendor id",
			"vendor", v.Name, "fields", unmapped)
	}
	if len(mapped) == 0 {
		return nil, apperrors.Newf(apperrors.CodeUnmappedFields,
			"no requested field has a %s id", v.Name).WithDetails(unmapped)
	}
	return mapped, nil
}

func (c *Converter) timezone(req *request.Request, v Vendor) string {
	if v.EasternSecurities &&
		(req.Cat == request.CatEqty || req.Cat == request.CatFX) {
		return "America/New_York"
	}
	return "UTC"
}

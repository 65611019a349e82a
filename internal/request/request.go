// Package request defines the vendor-agnostic data request: which series to
// pull, at what frequency, over which date range, and with which retry policy.
// Requests are validated at construction and never mutated afterwards.
package request

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "quantdata/internal/errors"
)

var validate = validator.New()

// Request describes one data pull in canonical terms. Build it with New;
// a zero Request is not valid.
type Request struct {
	Tickers   []string   `validate:"required,min=1,dive,required"`
	Freq      Frequency  `validate:"required"`
	QuoteCcy  string     `validate:"omitempty,alpha"`
	Exch      string     ``
	MktType   MarketType `validate:"required"`
	StartDate time.Time  ``
	EndDate   time.Time  ``
	Fields    []string   `validate:"required,min=1,dive,required"`
	Inst      string     ``
	Cat       Category   `validate:"omitempty"`

	// Retry policy, passed through to the fetch collaborator unmodified.
	Trials int           `validate:"min=1"`
	Pause  time.Duration `validate:"min=0"`

	// Vendor-native overrides. When set they bypass conversion entirely.
	SourceTickers []string
	SourceFreq    string
	SourceFields  []string
}

// Option configures a Request under construction.
type Option func(*Request) error

// New builds a validated Request. Defaults match the common case: BTC close
// prices, daily spot, three trials with a 100ms pause.
func New(opts ...Option) (*Request, error) {
	r := &Request{
		Tickers: []string{"BTC"},
		Freq:    FreqDaily,
		MktType: MarketSpot,
		Fields:  []string{"close"},
		Trials:  3,
		Pause:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if err := r.validateEnums(); err != nil {
		return nil, err
	}
	if err := validate.Struct(r); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidRequest, "invalid request")
	}
	if !r.StartDate.IsZero() && !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return nil, apperrors.Validation("end_date", "must not precede start_date")
	}
	return r, nil
}

func (r *Request) validateEnums() error {
	if !r.Freq.Valid() {
		return apperrors.Validation("freq", fmt.Sprintf("%q is not a supported frequency", r.Freq))
	}
	if !r.MktType.Valid() {
		return apperrors.Validation("mkt_type", fmt.Sprintf("%q is not a supported market type", r.MktType))
	}
	if r.Cat != "" && !r.Cat.Valid() {
		return apperrors.Validation("cat", fmt.Sprintf("%q is not a supported category", r.Cat))
	}
	return nil
}

// WithTickers sets the entity identifiers. Empty strings are rejected by
// validation; a single ticker is still stored as a slice.
func WithTickers(tickers ...string) Option {
	return func(r *Request) error {
		r.Tickers = append([]string(nil), tickers...)
		return nil
	}
}

// WithFields sets the requested canonical field names, in order.
func WithFields(fields ...string) Option {
	return func(r *Request) error {
		r.Fields = append([]string(nil), fields...)
		return nil
	}
}

// WithFreq sets the observation frequency.
func WithFreq(f Frequency) Option {
	return func(r *Request) error {
		r.Freq = f
		return nil
	}
}

// WithQuoteCcy sets the quote currency, e.g. "USD" for BTCUSD.
func WithQuoteCcy(ccy string) Option {
	return func(r *Request) error {
		r.QuoteCcy = ccy
		return nil
	}
}

// WithExch sets the venue, e.g. "binance".
func WithExch(exch string) Option {
	return func(r *Request) error {
		r.Exch = exch
		return nil
	}
}

// WithMktType sets the market type.
func WithMktType(mt MarketType) Option {
	return func(r *Request) error {
		r.MktType = mt
		return nil
	}
}

// WithCat sets the data category.
func WithCat(c Category) Option {
	return func(r *Request) error {
		r.Cat = c
		return nil
	}
}

// WithInst sets the institution for fund-level series.
func WithInst(inst string) Option {
	return func(r *Request) error {
		r.Inst = inst
		return nil
	}
}

// WithStartDate sets the range start. Accepts a "2006-01-02" or
// "2006-01-02 15:04:05" string, a time.Time, or a Unix timestamp in seconds.
func WithStartDate(v any) Option {
	return func(r *Request) error {
		t, err := ParseDate(v)
		if err != nil {
			return apperrors.Validation("start_date", err.Error())
		}
		r.StartDate = t
		return nil
	}
}

// WithEndDate sets the range end. Accepts the same representations as
// WithStartDate.
func WithEndDate(v any) Option {
	return func(r *Request) error {
		t, err := ParseDate(v)
		if err != nil {
			return apperrors.Validation("end_date", err.Error())
		}
		r.EndDate = t
		return nil
	}
}

// WithRetry sets the bounded retry policy handed to the fetch collaborator.
func WithRetry(trials int, pause time.Duration) Option {
	return func(r *Request) error {
		r.Trials = trials
		r.Pause = pause
		return nil
	}
}

// WithSourceTickers supplies vendor-native tickers that bypass conversion.
func WithSourceTickers(tickers ...string) Option {
	return func(r *Request) error {
		r.SourceTickers = append([]string(nil), tickers...)
		return nil
	}
}

// WithSourceFreq supplies a vendor-native frequency token that bypasses
// conversion.
func WithSourceFreq(freq string) Option {
	return func(r *Request) error {
		r.SourceFreq = freq
		return nil
	}
}

// WithSourceFields supplies vendor-native field names that bypass mapping.
func WithSourceFields(fields ...string) Option {
	return func(r *Request) error {
		r.SourceFields = append([]string(nil), fields...)
		return nil
	}
}

// ParseDate coerces the accepted date representations to a UTC-naive
// time.Time (UTC wall clock, location always time.UTC).
func ParseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), nil
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("date %q must be in YYYY-MM-DD format", s)
	case int:
		return time.Unix(int64(d), 0).UTC(), nil
	case int64:
		return time.Unix(d, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}

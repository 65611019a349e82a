package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "quantdata/internal/errors"
)

func TestNewDefaults(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC"}, r.Tickers)
	assert.Equal(t, FreqDaily, r.Freq)
	assert.Equal(t, MarketSpot, r.MktType)
	assert.Equal(t, []string{"close"}, r.Fields)
	assert.Equal(t, 3, r.Trials)
	assert.Equal(t, 100*time.Millisecond, r.Pause)
	assert.True(t, r.StartDate.IsZero())
	assert.True(t, r.EndDate.IsZero())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"empty tickers", []Option{WithTickers()}},
		{"blank ticker", []Option{WithTickers("")}},
		{"empty fields", []Option{WithFields()}},
		{"bad frequency", []Option{WithFreq("5s")}},
		{"bad market type", []Option{WithMktType("forward")}},
		{"bad category", []Option{WithCat("equities")}},
		{"bad start date", []Option{WithStartDate("01/02/2020")}},
		{"end before start", []Option{WithStartDate("2021-01-01"), WithEndDate("2020-01-01")}},
		{"zero trials", []Option{WithRetry(0, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidRequest))
		})
	}
}

func TestNewFullRequest(t *testing.T) {
	r, err := New(
		WithTickers("BTC", "ETH"),
		WithFields("close", "volume"),
		WithFreq(Freq1H),
		WithQuoteCcy("USDT"),
		WithExch("binance"),
		WithMktType(MarketPerpetualFuture),
		WithCat(CatCrypto),
		WithStartDate("2020-01-01"),
		WithEndDate(time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC)),
		WithRetry(5, time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH"}, r.Tickers)
	assert.Equal(t, Freq1H, r.Freq)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), r.StartDate)
	assert.Equal(t, 5, r.Trials)
}

func TestParseDate(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)

	tests := []struct {
		name    string
		in      any
		want    time.Time
		wantErr bool
	}{
		{"date string", "2020-03-15", time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC), false},
		{"datetime string", "2020-03-15 12:30:00", time.Date(2020, 3, 15, 12, 30, 0, 0, time.UTC), false},
		{"time.Time in zone", time.Date(2020, 3, 15, 0, 0, 0, 0, est), time.Date(2020, 3, 15, 5, 0, 0, 0, time.UTC), false},
		{"unix seconds", int64(1584230400), time.Unix(1584230400, 0).UTC(), false},
		{"bad string", "15/03/2020", time.Time{}, true},
		{"bad type", 3.14, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestFrequencyHelpers(t *testing.T) {
	assert.True(t, Freq5Min.IsMinute())
	assert.True(t, Freq5Min.IsIntraday())
	assert.True(t, Freq4H.IsHourly())
	assert.False(t, FreqDaily.IsIntraday())
	assert.True(t, FreqTick.IsIntraday())
	assert.False(t, Frequency("5s").Valid())

	for _, f := range Frequencies() {
		assert.True(t, f.Valid())
	}
}

func TestSourceOverrides(t *testing.T) {
	r, err := New(
		WithSourceTickers("binance-btc-usdt-spot"),
		WithSourceFreq("1d"),
		WithSourceFields("price_close"),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"binance-btc-usdt-spot"}, r.SourceTickers)
	assert.Equal(t, "1d", r.SourceFreq)
	assert.Equal(t, []string{"price_close"}, r.SourceFields)
}

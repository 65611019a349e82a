package clean

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantdata/internal/errors"
	"quantdata/internal/shared/testutil"
	"quantdata/internal/table"
)

func day(d int) time.Time {
	return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC)
}

func key(ticker string, d int) table.Key {
	return table.Key{Time: day(d), Ticker: ticker}
}

// newSeries builds a single-column table for one ticker with daily rows
// starting on day 1.
func newSeries(t *testing.T, ticker, col string, vals ...float64) *table.Table {
	t.Helper()
	tbl := table.New(col)
	for i, v := range vals {
		require.NoError(t, tbl.Append(key(ticker, i+1), []float64{v}))
	}
	tbl.Sort()
	return tbl
}

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// noisySeries is a deterministic wiggle around base so rolling dispersion
// stays positive.
func noisySeries(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64((i*37)%11-5)*0.4
	}
	return out
}

func TestNewDetector(t *testing.T) {
	for _, method := range []string{"z_score", "mad", "iqr", "ewma", "atr", "seasonal_decomp"} {
		d, err := NewDetector(method, Options{})
		require.NoError(t, err, method)
		assert.NotNil(t, d, method)
	}
	_, err := NewDetector("grubbs", Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidRequest))
}

func TestZScoreFlagsSpike(t *testing.T) {
	vals := constSeries(20, 100)
	vals[10] = 500
	tbl := newSeries(t, "BTC", "close", vals...)

	det, err := NewZScore(Options{Window: 7, Thresh: 2}).Detect(tbl)
	require.NoError(t, err)

	assert.True(t, table.Missing(det.Filtered.Value(10, "close")))
	assert.False(t, table.Missing(det.Outliers.Value(10, "close")))
	assert.Equal(t, 1, det.Outliers.NonNullCount("close"))
	assert.InDelta(t, 157.14, det.Forecast.Value(10, "close"), 0.01)

	// neighbours survive even with the spike inside their window
	assert.Equal(t, 100.0, det.Filtered.Value(11, "close"))
	assert.Equal(t, 100.0, det.Filtered.Value(9, "close"))
}

func TestZScoreCenteredEstimatesEdges(t *testing.T) {
	vals := constSeries(20, 100)
	tbl := newSeries(t, "BTC", "close", vals...)

	det, err := NewZScore(Options{Window: 7, Centered: true}).Detect(tbl)
	require.NoError(t, err)

	// centered windows relax the minimum count, so the first row gets a fit
	assert.False(t, table.Missing(det.Forecast.Value(0, "close")))

	trailing, err := NewZScore(Options{Window: 7}).Detect(tbl)
	require.NoError(t, err)
	assert.True(t, table.Missing(trailing.Forecast.Value(0, "close")))
}

func TestMADFlagsSpike(t *testing.T) {
	vals := noisySeries(30, 100)
	vals[15] = 500
	tbl := newSeries(t, "BTC", "close", vals...)

	det, err := NewMAD(Options{Window: 7, Thresh: 10}).Detect(tbl)
	require.NoError(t, err)
	assert.False(t, table.Missing(det.Outliers.Value(15, "close")))
	assert.True(t, table.Missing(det.Filtered.Value(15, "close")))
}

func TestIQRFlagsSpike(t *testing.T) {
	vals := noisySeries(30, 100)
	vals[15] = 500
	tbl := newSeries(t, "BTC", "close", vals...)

	det, err := NewIQR(Options{Window: 7}).Detect(tbl)
	require.NoError(t, err)
	assert.False(t, table.Missing(det.Outliers.Value(15, "close")))
}

func TestEWMAFlagsSpike(t *testing.T) {
	vals := constSeries(20, 100)
	vals[12] = 500
	tbl := newSeries(t, "BTC", "close", vals...)

	det, err := NewEWMA(Options{Window: 7, Thresh: 1.5}).Detect(tbl)
	require.NoError(t, err)
	assert.False(t, table.Missing(det.Outliers.Value(12, "close")))
	// flat stretches have zero dispersion and are never flagged
	assert.True(t, table.Missing(det.Outliers.Value(5, "close")))
}

func TestExcludedColumnsUntouched(t *testing.T) {
	vals := constSeries(20, 100)
	vals[10] = 500
	tbl := table.New("close", "funding_rate")
	for i, v := range vals {
		require.NoError(t, tbl.Append(key("BTC", i+1), []float64{v, v}))
	}
	tbl.Sort()

	det, err := NewZScore(Options{Window: 7, ExclCols: []string{"funding_rate"}}).Detect(tbl)
	require.NoError(t, err)
	assert.Equal(t, 0, det.Outliers.NonNullCount("funding_rate"))
	assert.Equal(t, 500.0, det.Filtered.Value(10, "funding_rate"))
	assert.True(t, table.Missing(det.Filtered.Value(10, "close")))
}

func newOHLCV(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New("open", "high", "low", "close", "volume")
	for i := 0; i < 14; i++ {
		h, c := 101.0, 100.0
		if i == 10 {
			h, c = 150.0, 150.0
		}
		require.NoError(t, tbl.Append(key("BTC", i+1), []float64{100, h, 99, c, 10}))
	}
	tbl.Sort()
	return tbl
}

func TestATRRequiresOHLC(t *testing.T) {
	tbl := newSeries(t, "BTC", "close", constSeries(10, 100)...)
	_, err := NewATR(Options{}).Detect(tbl)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingColumn))
}

func TestATRFlagsSpike(t *testing.T) {
	det, err := NewATR(Options{Window: 7, Thresh: 2}).Detect(newOHLCV(t))
	require.NoError(t, err)

	assert.False(t, table.Missing(det.Outliers.Value(10, "close")))
	assert.True(t, table.Missing(det.Filtered.Value(10, "close")))
	// volume is not a price column and is never scored
	assert.Equal(t, 0, det.Outliers.NonNullCount("volume"))
	assert.Equal(t, 10.0, det.Filtered.Value(10, "volume"))
}

func TestSeasonalDecompFlagsSpike(t *testing.T) {
	season := []float64{0, 2, 4, 6, 4, 2, 0}
	vals := noisySeries(42, 100)
	for i := range vals {
		vals[i] += season[i%7]
	}
	vals[20] += 50
	tbl := newSeries(t, "BTC", "close", vals...)

	det, err := NewSeasonalDecomp(Options{Period: 7, Thresh: 5}).Detect(tbl)
	require.NoError(t, err)
	assert.False(t, table.Missing(det.Outliers.Value(20, "close")))
	assert.True(t, table.Missing(det.Filtered.Value(20, "close")))
}

func TestInterpolateLinearInterior(t *testing.T) {
	nan := table.NaN()
	tbl := newSeries(t, "BTC", "close", nan, 1, nan, 3, nan)

	out, err := Interpolate(tbl, InterpLinear)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.Value(2, "close"))
	// leading and trailing gaps stay missing
	assert.True(t, table.Missing(out.Value(0, "close")))
	assert.True(t, table.Missing(out.Value(4, "close")))
	// input untouched
	assert.True(t, table.Missing(tbl.Value(2, "close")))
}

func TestInterpolateTooFewPoints(t *testing.T) {
	nan := table.NaN()
	tbl := newSeries(t, "BTC", "close", nan, 5, nan)
	out, err := Interpolate(tbl, InterpLinear)
	require.NoError(t, err)
	assert.True(t, table.Missing(out.Value(0, "close")))
	assert.True(t, table.Missing(out.Value(2, "close")))
}

func TestInterpolateUnknownMethod(t *testing.T) {
	tbl := newSeries(t, "BTC", "close", 1, 2)
	_, err := Interpolate(tbl, "quadratic")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidRequest))
}

func TestFillFromForecast(t *testing.T) {
	vals := constSeries(20, 100)
	vals[10] = 500
	tbl := newSeries(t, "BTC", "close", vals...)

	det, err := NewZScore(Options{Window: 7, Thresh: 2}).Detect(tbl)
	require.NoError(t, err)

	repaired := FillFromForecast(det.Filtered, det.Forecast)
	assert.InDelta(t, 157.14, repaired.Value(10, "close"), 0.01)
	// valid observations win over the fit
	assert.Equal(t, 100.0, repaired.Value(11, "close"))
}

func newTradingTable(t *testing.T, volumes ...float64) *table.Table {
	t.Helper()
	tbl := table.New("close", "volume", "ret")
	for i, v := range volumes {
		require.NoError(t, tbl.Append(key("BTC", i+1), []float64{10, v, 0.01}))
	}
	tbl.Sort()
	return tbl
}

func TestAvgTradingValueBlanksIlliquidRows(t *testing.T) {
	// first five rows trade 100 a day, the rest 100k
	volumes := append(constSeries(5, 10), constSeries(5, 10000)...)
	tbl := newTradingTable(t, volumes...)

	out, err := AvgTradingValue(tbl, 1000, 3, "ret")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		assert.True(t, table.Missing(out.Value(i, "close")), "row %d", i)
		assert.True(t, table.Missing(out.Value(i, "volume")), "row %d", i)
		assert.Equal(t, 0.01, out.Value(i, "ret"), "excluded column row %d", i)
	}
	for i := 5; i < 10; i++ {
		assert.Equal(t, 10.0, out.Value(i, "close"), "row %d", i)
	}
}

func TestAvgTradingValueNeedsInputs(t *testing.T) {
	tbl := newSeries(t, "BTC", "ret", 0.01, 0.02)
	_, err := AvgTradingValue(tbl, 1000, 3)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMissingColumn))
}

func TestMissingGapsIdempotent(t *testing.T) {
	nan := table.NaN()
	tbl := newSeries(t, "BTC", "close", 1, 2, nan, nan, nan, 7, 8, 9, 10)

	once := MissingGaps(tbl, 3)
	for i := 0; i <= 4; i++ {
		assert.True(t, table.Missing(once.Value(i, "close")), "row %d", i)
	}
	for i := 5; i < 9; i++ {
		assert.False(t, table.Missing(once.Value(i, "close")), "row %d", i)
	}

	twice := MissingGaps(once, 3)
	for i := 0; i < once.Len(); i++ {
		a, b := once.Value(i, "close"), twice.Value(i, "close")
		assert.True(t, a == b || (math.IsNaN(a) && math.IsNaN(b)), "row %d", i)
	}
}

func TestMinObsDropsSparseTickers(t *testing.T) {
	tbl := table.New("close")
	for i := 0; i < 5; i++ {
		require.NoError(t, tbl.Append(key("BTC", i+1), []float64{100}))
	}
	require.NoError(t, tbl.Append(key("ETH", 1), []float64{10}))
	require.NoError(t, tbl.Append(key("ETH", 2), []float64{11}))
	tbl.Sort()

	out, removed := MinObs(tbl, 3)
	assert.Equal(t, []string{"ETH"}, removed)
	assert.Equal(t, []string{"BTC"}, out.Entities())
	// input untouched
	assert.Len(t, tbl.Entities(), 2)
}

func TestTrimCoverage(t *testing.T) {
	tbl := table.New("close")
	// BTC covers days 1-5, ETH joins on day 3
	for i := 1; i <= 5; i++ {
		require.NoError(t, tbl.Append(key("BTC", i), []float64{100}))
	}
	for i := 3; i <= 5; i++ {
		require.NoError(t, tbl.Append(key("ETH", i), []float64{10}))
	}
	tbl.Sort()

	out := TrimCoverage(tbl, 2)
	assert.Equal(t, 6, out.Len())
	for _, ts := range out.Times() {
		assert.False(t, ts.Before(day(3)))
	}

	// a bound no date reaches empties the table
	assert.Equal(t, 0, TrimCoverage(tbl, 3).Len())
	// a bound of one is a no-op
	assert.Equal(t, tbl.Len(), TrimCoverage(tbl, 1).Len())
}

func TestTrimCoverageCountsDistinctEntities(t *testing.T) {
	tbl := table.New("close")
	// BTC alone on day 1, split across two subtype rows; ETH joins on day 2
	require.NoError(t, tbl.Append(table.Key{Time: day(1), Ticker: "BTC", Subtype: "spot"}, []float64{100}))
	require.NoError(t, tbl.Append(table.Key{Time: day(1), Ticker: "BTC", Subtype: "perp"}, []float64{101}))
	require.NoError(t, tbl.Append(table.Key{Time: day(2), Ticker: "BTC", Subtype: "spot"}, []float64{102}))
	require.NoError(t, tbl.Append(key("ETH", 2), []float64{10}))
	tbl.Sort()

	out := TrimCoverage(tbl, 2)
	require.NotZero(t, out.Len())
	assert.Equal(t, day(2), out.Times()[0])
}

func TestDelisted(t *testing.T) {
	tbl := table.New("close")
	moving := []float64{100, 101, 102, 103, 104}
	flat := append([]float64{50, 51, 52}, constSeries(5, 53)...)
	for i, v := range moving {
		require.NoError(t, tbl.Append(key("BTC", i+1), []float64{v}))
	}
	for i, v := range flat {
		require.NoError(t, tbl.Append(key("XYZ", i+1), []float64{v}))
	}
	tbl.Sort()

	out, flagged := Delisted(tbl, 3, true)
	assert.Equal(t, []string{"XYZ"}, flagged)
	assert.Equal(t, []string{"BTC"}, out.Entities())

	blanked, flagged := Delisted(tbl, 3, false)
	assert.Equal(t, []string{"XYZ"}, flagged)
	assert.Len(t, blanked.Entities(), 2)
	// trailing flat run is blanked, the moving prefix survives
	n := 0
	for i := 0; i < blanked.Len(); i++ {
		k := blanked.Key(i)
		if k.Ticker != "XYZ" {
			continue
		}
		if !table.Missing(blanked.Value(i, "close")) {
			n++
		}
	}
	assert.Equal(t, 3, n)
}

func TestDelistedToleratesFeedJitter(t *testing.T) {
	tbl := table.New("close")
	// stale feed wobbling in the last decimal place around 53
	vals := []float64{50, 51, 52, 53, 53.0001, 52.9999, 53, 53.0002}
	for i, v := range vals {
		require.NoError(t, tbl.Append(key("XYZ", i+1), []float64{v}))
	}
	tbl.Sort()

	_, flagged := Delisted(tbl, 5, true)
	assert.Equal(t, []string{"XYZ"}, flagged)

	// a real move breaks the run
	require.NoError(t, tbl.Append(key("XYZ", 9), []float64{55}))
	tbl.Sort()
	_, flagged = Delisted(tbl, 5, true)
	assert.Empty(t, flagged)
}

func TestCleanerChain(t *testing.T) {
	vals := constSeries(20, 100)
	vals[10] = 500
	tbl := newSeries(t, "BTC", "close", vals...)

	logger, handler := testutil.NewTestLogger(t)
	c := NewCleaner(tbl, logger).
		FilterOutliers(NewZScore(Options{Window: 7, Thresh: 2})).
		RepairFromForecast()
	require.NoError(t, c.Err())
	testutil.AssertLogAttr(t, handler, "column", "close")

	// raw keeps the spike, the cleaned table has the fit in its place
	assert.Equal(t, 500.0, c.Raw().Value(10, "close"))
	assert.InDelta(t, 157.14, c.Table().Value(10, "close"), 0.01)
	assert.Equal(t, 1, c.Outliers().NonNullCount("close"))

	s := c.Summary()
	nObs, ok := s.Value(MetricNObs, "close")
	require.True(t, ok)
	assert.Equal(t, 20.0, nObs)
	out, ok := s.Value(MetricOutliers, "close")
	require.True(t, ok)
	assert.Equal(t, 5.0, out)
	imp, ok := s.Value(MetricImputed, "close")
	require.True(t, ok)
	assert.Equal(t, 5.0, imp)
	end, ok := s.Value(MetricNaNEnd, "close")
	require.True(t, ok)
	assert.Equal(t, 0.0, end)
}

func TestCleanerStickyError(t *testing.T) {
	tbl := newSeries(t, "BTC", "close", constSeries(10, 100)...)
	c := NewCleaner(tbl, nil).
		FilterOutliers(NewATR(Options{})).
		RepairForwardFill().
		FilterMinObs(3)
	require.Error(t, c.Err())
	assert.True(t, errors.IsCode(c.Err(), errors.CodeMissingColumn))
	// the failed chain leaves the table as it was
	assert.Equal(t, 100.0, c.Table().Value(0, "close"))
}

func TestCleanerFilterTickers(t *testing.T) {
	tbl := table.New("close")
	require.NoError(t, tbl.Append(key("BTC", 1), []float64{100}))
	require.NoError(t, tbl.Append(key("ETH", 1), []float64{10}))
	tbl.Sort()

	logger, handler := testutil.NewTestLogger(t)
	c := NewCleaner(tbl, logger).FilterTickers("ETH")
	require.NoError(t, c.Err())
	assert.Equal(t, []string{"BTC"}, c.Table().Entities())
	assert.Equal(t, []string{"ETH"}, c.Removed())
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "tickers removed")
}

func TestStitchPrefersEarliestSource(t *testing.T) {
	early := table.New("close")
	for i := 1; i <= 5; i++ {
		require.NoError(t, early.Append(key("BTC", i), []float64{float64(i)}))
	}
	early.Sort()

	late := table.New("close", "volume")
	for i := 3; i <= 8; i++ {
		require.NoError(t, late.Append(key("BTC", i), []float64{float64(i * 10), 1}))
	}
	late.Sort()

	out := Stitch(early, late)
	assert.ElementsMatch(t, []string{"close", "volume"}, out.Columns())
	assert.Equal(t, 8, out.Len())

	idx := out.KeyIndex()
	// overlap keeps the longer history, the later source extends it
	assert.Equal(t, 3.0, out.Value(idx[key("BTC", 3)], "close"))
	assert.Equal(t, 60.0, out.Value(idx[key("BTC", 6)], "close"))
	assert.Equal(t, 1.0, out.Value(idx[key("BTC", 6)], "volume"))
	assert.True(t, table.Missing(out.Value(idx[key("BTC", 1)], "volume")))
}

func TestStitchFillsGapsFromSecondSource(t *testing.T) {
	a := newSeries(t, "BTC", "close", 1, table.NaN(), 3)
	b := newSeries(t, "BTC", "close", 10, 20, 30)

	out := Stitch(a, b)
	idx := out.KeyIndex()
	assert.Equal(t, 1.0, out.Value(idx[key("BTC", 1)], "close"))
	assert.Equal(t, 20.0, out.Value(idx[key("BTC", 2)], "close"))
	assert.Equal(t, 3.0, out.Value(idx[key("BTC", 3)], "close"))
}

func TestStitchDegenerateInputs(t *testing.T) {
	assert.Equal(t, 0, Stitch().Len())

	one := newSeries(t, "BTC", "close", 1, 2)
	assert.Equal(t, 2, Stitch(one).Len())
}

func TestReferencePrice(t *testing.T) {
	a := newSeries(t, "BTC", "close", 1)
	b := newSeries(t, "BTC", "close", 2)
	c := newSeries(t, "BTC", "close", 9)

	med := ReferencePrice([]*table.Table{a, b, c}, RefMedian, 0)
	assert.Equal(t, 2.0, med.Value(0, "close"))

	trimmed := ReferencePrice([]*table.Table{a, b, c}, RefTrimmedMean, 0.34)
	assert.Equal(t, 2.0, trimmed.Value(0, "close"))
}

func TestRebaseFX(t *testing.T) {
	tbl := table.New("high", "low", "close")
	require.NoError(t, tbl.Append(key("USDJPY", 1), []float64{151, 149, 150}))
	require.NoError(t, tbl.Append(key("EURUSD", 1), []float64{1.11, 1.09, 1.10}))
	tbl.Sort()

	out := RebaseFX(tbl)
	assert.ElementsMatch(t, []string{"EURUSD", "JPYUSD"}, out.Entities())

	idx := out.KeyIndex()
	jpy := idx[key("JPYUSD", 1)]
	assert.InDelta(t, 1.0/150, out.Value(jpy, "close"), 1e-12)
	// inversion flips the range, so high comes from the old low
	assert.InDelta(t, 1.0/149, out.Value(jpy, "high"), 1e-12)
	assert.InDelta(t, 1.0/151, out.Value(jpy, "low"), 1e-12)

	eur := idx[key("EURUSD", 1)]
	assert.Equal(t, 1.10, out.Value(eur, "close"))
}

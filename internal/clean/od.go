// Package clean implements the data quality engine: rolling-window outlier
// detection, repair of flagged values, liquidity and coverage filters, and
// stitching of overlapping sources into a single table.
package clean

import (
	"math"
	"slices"

	"quantdata/internal/errors"
	"quantdata/internal/table"
)

// Options tunes an outlier detector. Zero values fall back to the detector's
// defaults.
type Options struct {
	// Window is the rolling window size in observations.
	Window int
	// Thresh is the score threshold above which a value is flagged.
	Thresh float64
	// Log detects in log space. Non-positive values are skipped.
	Log bool
	// Centered uses a window centered on each observation instead of a
	// trailing one. Centered windows give better estimates but look ahead,
	// so trailing windows should be used for anything feeding a live signal.
	Centered bool
	// Period is the seasonal period for decomposition detectors.
	Period int
	// ExclCols are columns left untouched by detection.
	ExclCols []string
}

// Detection is the outcome of running a detector over a table.
type Detection struct {
	// Filtered is the input with flagged values replaced by the missing
	// sentinel.
	Filtered *table.Table
	// Outliers holds the flagged values and the missing sentinel elsewhere.
	Outliers *table.Table
	// Forecast holds the detector's fitted value for every cell.
	Forecast *table.Table
}

// Detector flags anomalous values in a table, series by series.
type Detector interface {
	Detect(t *table.Table) (*Detection, error)
}

// seriesFit scores one (entity, column) series. It returns the fitted values
// and a flag per observation.
type seriesFit func(vals []float64) (yhat []float64, outlier []bool)

func (o Options) window(def int) int {
	if o.Window > 0 {
		return o.Window
	}
	return def
}

func (o Options) thresh(def float64) float64 {
	if o.Thresh > 0 {
		return o.Thresh
	}
	return def
}

// shift returns the window shift: centered windows look (w+1)/2 observations
// ahead, trailing windows do not.
func (o Options) shift(w int) int {
	if o.Centered {
		return (w + 1) / 2
	}
	return 0
}

func (o Options) minPeriods(w int) int {
	if o.Centered {
		return 1
	}
	return w
}

// detect runs fit over every non-excluded series of t and assembles the
// filtered, outlier and forecast tables.
func detect(t *table.Table, opts Options, fit seriesFit) *Detection {
	return detectRows(t, opts, func(vals []float64, _ int) ([]float64, []bool) {
		return fit(vals)
	})
}

// scoreFlags converts deviations and scales into outlier flags at the given
// threshold. Missing scores are never flagged.
func scoreFlags(vals, center, scale []float64, thresh float64) []bool {
	flags := make([]bool, len(vals))
	for i, v := range vals {
		if table.Missing(v) || table.Missing(center[i]) || table.Missing(scale[i]) || scale[i] == 0 {
			continue
		}
		if math.Abs((v-center[i])/scale[i]) > thresh {
			flags[i] = true
		}
	}
	return flags
}

// NewDetector builds a detector by method name, for config-driven callers.
func NewDetector(method string, opts Options) (Detector, error) {
	switch method {
	case "z_score":
		return NewZScore(opts), nil
	case "mad":
		return NewMAD(opts), nil
	case "iqr":
		return NewIQR(opts), nil
	case "ewma":
		return NewEWMA(opts), nil
	case "atr":
		return NewATR(opts), nil
	case "seasonal_decomp":
		return NewSeasonalDecomp(opts), nil
	default:
		return nil, errors.Newf(errors.CodeInvalidRequest, "unknown outlier method %q", method)
	}
}

// ZScore flags values more than Thresh rolling standard deviations from the
// rolling mean. Defaults: window 7, threshold 2.
type ZScore struct{ Options }

// NewZScore returns a z-score detector.
func NewZScore(opts Options) *ZScore { return &ZScore{opts} }

// Detect implements Detector.
func (d *ZScore) Detect(t *table.Table) (*Detection, error) {
	w := d.window(7)
	thresh := d.thresh(2)
	shift, minp := d.shift(w), d.minPeriods(w)
	return detect(t, d.Options, func(vals []float64) ([]float64, []bool) {
		mean := rolling(vals, w, shift, minp, meanFn)
		std := rolling(vals, w, shift, minp, stdFn)
		return mean, scoreFlags(vals, mean, std, thresh)
	}), nil
}

// MAD flags values whose deviation from the rolling median exceeds Thresh
// times the rolling median absolute deviation. Defaults: window 7,
// threshold 10.
type MAD struct{ Options }

// NewMAD returns a median absolute deviation detector.
func NewMAD(opts Options) *MAD { return &MAD{opts} }

// Detect implements Detector.
func (d *MAD) Detect(t *table.Table) (*Detection, error) {
	w := d.window(7)
	thresh := d.thresh(10)
	shift, minp := d.shift(w), d.minPeriods(w)
	return detect(t, d.Options, func(vals []float64) ([]float64, []bool) {
		med := rolling(vals, w, shift, minp, medianFn)
		dev := make([]float64, len(vals))
		for i, v := range vals {
			if table.Missing(v) || table.Missing(med[i]) {
				dev[i] = table.NaN()
			} else {
				dev[i] = math.Abs(v - med[i])
			}
		}
		mad := rolling(dev, w, shift, minp, medianFn)
		return med, scoreFlags(vals, med, mad, thresh)
	}), nil
}

// IQR flags values outside the rolling interquartile band widened by Thresh
// times the interquartile range. Defaults: window 7, multiplier 1.5.
type IQR struct{ Options }

// NewIQR returns an interquartile range detector.
func NewIQR(opts Options) *IQR { return &IQR{opts} }

// Detect implements Detector.
func (d *IQR) Detect(t *table.Table) (*Detection, error) {
	w := d.window(7)
	mult := d.thresh(1.5)
	shift, minp := d.shift(w), d.minPeriods(w)
	return detect(t, d.Options, func(vals []float64) ([]float64, []bool) {
		q25 := rolling(vals, w, shift, minp, quantileFn(0.25))
		q75 := rolling(vals, w, shift, minp, quantileFn(0.75))
		med := rolling(vals, w, shift, minp, medianFn)
		flags := make([]bool, len(vals))
		for i, v := range vals {
			if table.Missing(v) || table.Missing(q25[i]) || table.Missing(q75[i]) {
				continue
			}
			iqr := q75[i] - q25[i]
			if v > q75[i]+mult*iqr || v < q25[i]-mult*iqr {
				flags[i] = true
			}
		}
		return med, flags
	}), nil
}

// EWMA flags values more than Thresh exponentially weighted standard
// deviations from the exponentially weighted mean. Defaults: span 7,
// threshold 1.5.
type EWMA struct{ Options }

// NewEWMA returns an exponentially weighted moving average detector.
func NewEWMA(opts Options) *EWMA { return &EWMA{opts} }

// Detect implements Detector.
func (d *EWMA) Detect(t *table.Table) (*Detection, error) {
	w := d.window(7)
	thresh := d.thresh(1.5)
	return detect(t, d.Options, func(vals []float64) ([]float64, []bool) {
		mean, std := ewm(vals, w)
		return mean, scoreFlags(vals, mean, std, thresh)
	}), nil
}

// atrPriceCols are the columns an ATR detector scores.
var atrPriceCols = []string{"open", "high", "low", "close"}

// ATR flags price values whose deviation from the rolling median exceeds
// Thresh average true ranges. The table must carry high, low and close
// columns. Defaults: window 7, threshold 2.
type ATR struct{ Options }

// NewATR returns an average true range detector.
func NewATR(opts Options) *ATR { return &ATR{opts} }

// Detect implements Detector.
func (d *ATR) Detect(t *table.Table) (*Detection, error) {
	for _, col := range []string{"high", "low", "close"} {
		if !t.HasColumn(col) {
			return nil, errors.Newf(errors.CodeMissingColumn,
				"atr detection requires OHLC data, column %q not found", col)
		}
	}
	w := d.window(7)
	thresh := d.thresh(2)
	shift, minp := d.shift(w), d.minPeriods(w)

	// true range per entity, computed once and indexed by row
	atr := make([]float64, t.Len())
	high, low, closes := t.Column("high"), t.Column("low"), t.Column("close")
	for _, sp := range t.Spans() {
		tr := make([]float64, sp.End-sp.Start)
		for i := range tr {
			row := sp.Start + i
			h, l := high[row], low[row]
			if d.Log {
				h, l = safeLog(h), safeLog(l)
			}
			rng := math.Abs(h - l)
			if i > 0 {
				pc := closes[row-1]
				if d.Log {
					pc = safeLog(pc)
				}
				rng = math.Max(rng, math.Abs(h-pc))
				rng = math.Max(rng, math.Abs(l-pc))
			}
			tr[i] = rng
		}
		var avg []float64
		if d.Centered {
			avg = rolling(tr, w, d.shift(w), 1, meanFn)
		} else {
			avg, _ = ewm(tr, w)
		}
		copy(atr[sp.Start:sp.End], avg)
	}

	opts := d.Options
	excl := make([]string, 0, len(t.Columns()))
	for _, col := range t.Columns() {
		if !slices.Contains(atrPriceCols, col) {
			excl = append(excl, col)
		}
	}
	opts.ExclCols = append(slices.Clone(opts.ExclCols), excl...)

	return detectRows(t, opts, func(vals []float64, start int) ([]float64, []bool) {
		med := rolling(vals, w, shift, minp, medianFn)
		scale := atr[start : start+len(vals)]
		return med, scoreFlags(vals, med, scale, thresh)
	}), nil
}

func safeLog(v float64) float64 {
	if table.Missing(v) || v <= 0 {
		return table.NaN()
	}
	return math.Log(v)
}

// detectRows is the shared assembly loop. The fit function also receives the
// span's starting row so detectors can score against a table-level series.
func detectRows(t *table.Table, opts Options, fit func(vals []float64, start int) ([]float64, []bool)) *Detection {
	filtered := t.Clone()
	outliers := t.Clone()
	forecast := t.Clone()

	for _, col := range t.Columns() {
		fCol := filtered.Column(col)
		oCol := outliers.Column(col)
		yCol := forecast.Column(col)
		if slices.Contains(opts.ExclCols, col) {
			for i := range oCol {
				oCol[i] = table.NaN()
				yCol[i] = table.NaN()
			}
			continue
		}
		src := t.Column(col)
		for _, sp := range t.Spans() {
			vals := slices.Clone(src[sp.Start:sp.End])
			if opts.Log {
				vals = logSeries(vals)
			}
			yhat, flags := fit(vals, sp.Start)
			for i := range vals {
				row := sp.Start + i
				y := yhat[i]
				if opts.Log && !table.Missing(y) {
					y = math.Exp(y)
				}
				yCol[row] = y
				if flags[i] {
					fCol[row] = table.NaN()
				} else {
					oCol[row] = table.NaN()
				}
			}
		}
	}
	return &Detection{Filtered: filtered, Outliers: outliers, Forecast: forecast}
}

// SeasonalDecomp flags residuals of a classical seasonal decomposition whose
// deviation from the residual median exceeds Thresh times the residual median
// absolute deviation. Defaults: period 7, threshold 5.
type SeasonalDecomp struct{ Options }

// NewSeasonalDecomp returns a seasonal decomposition detector.
func NewSeasonalDecomp(opts Options) *SeasonalDecomp { return &SeasonalDecomp{opts} }

// Detect implements Detector.
func (d *SeasonalDecomp) Detect(t *table.Table) (*Detection, error) {
	period := d.Period
	if period <= 0 {
		period = 7
	}
	thresh := d.thresh(5)
	return detect(t, d.Options, func(vals []float64) ([]float64, []bool) {
		return seasonalFit(vals, period, thresh)
	}), nil
}

// seasonalFit decomposes one series into trend, seasonal and residual parts
// and flags residuals far from their own median in MAD units. The fitted
// value is the trend, forward filled over the trailing edge.
func seasonalFit(vals []float64, period int, thresh float64) ([]float64, []bool) {
	n := len(vals)
	flags := make([]bool, n)

	// centered moving average trend; odd window keeps it symmetric
	w := period
	if w%2 == 0 {
		w++
	}
	trend := rolling(vals, w, (w+1)/2, w, meanFn)

	// seasonal component: phase means of the detrended series, centered
	phaseSum := make([]float64, period)
	phaseN := make([]int, period)
	for i, v := range vals {
		if table.Missing(v) || table.Missing(trend[i]) {
			continue
		}
		phaseSum[i%period] += v - trend[i]
		phaseN[i%period]++
	}
	seasonal := make([]float64, period)
	var seasMean float64
	var seasCount int
	for p := range seasonal {
		if phaseN[p] == 0 {
			seasonal[p] = 0
			continue
		}
		seasonal[p] = phaseSum[p] / float64(phaseN[p])
		seasMean += seasonal[p]
		seasCount++
	}
	if seasCount > 0 {
		seasMean /= float64(seasCount)
		for p := range seasonal {
			seasonal[p] -= seasMean
		}
	}

	// residuals normalized by their global median and MAD
	resid := make([]float64, n)
	valid := make([]float64, 0, n)
	for i, v := range vals {
		if table.Missing(v) || table.Missing(trend[i]) {
			resid[i] = table.NaN()
			continue
		}
		resid[i] = v - trend[i] - seasonal[i%period]
		valid = append(valid, resid[i])
	}
	if len(valid) > 0 {
		slices.Sort(valid)
		med := medianFn(valid)
		absDev := make([]float64, len(valid))
		for i, r := range valid {
			absDev[i] = math.Abs(r - med)
		}
		slices.Sort(absDev)
		mad := medianFn(absDev)
		if mad > 0 {
			for i := range resid {
				if table.Missing(resid[i]) {
					continue
				}
				if math.Abs((resid[i]-med)/mad) > thresh {
					flags[i] = true
				}
			}
		}
	}

	// trend is the fit, forward filled over the trailing window edge
	yhat := slices.Clone(trend)
	last := table.NaN()
	for i := range yhat {
		if table.Missing(yhat[i]) {
			yhat[i] = last
		} else {
			last = yhat[i]
		}
	}
	return yhat, flags
}

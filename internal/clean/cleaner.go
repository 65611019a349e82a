package clean

import (
	"log/slog"

	"quantdata/internal/table"
)

// Summary metric names, in the order stages usually run.
const (
	MetricNObs            = "n_obs"
	MetricNaNStart        = "%_NaN_start"
	MetricOutliers        = "%_outliers"
	MetricImputed         = "%_imputed"
	MetricBelowTradingVal = "%_below_avg_trading_val"
	MetricMissingGaps     = "%_missing_vals_gaps"
	MetricBelowMinObs     = "n_tickers_below_min_obs"
	MetricFilteredTickers = "n_filtered_tickers"
	MetricNaNEnd          = "%_NaN_end"
)

// Cleaner chains cleaning stages over a table while keeping the raw input,
// the flagged outliers and a running summary. Stage methods return the
// receiver so calls can be chained; the first failure sticks and short
// circuits every later stage. Check Err before reading results.
type Cleaner struct {
	raw      *table.Table
	cur      *table.Table
	outliers *table.Table
	forecast *table.Table
	removed  []string
	summary  *Summary
	logger   *slog.Logger
	err      error
}

// NewCleaner starts a cleaning chain over t. The table itself is never
// modified.
func NewCleaner(t *table.Table, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cleaner{
		raw:     t.Clone(),
		cur:     t.Clone(),
		summary: newSummary(t.Columns()),
		logger:  logger,
	}
	for _, col := range t.Columns() {
		n := t.NonNullCount(col)
		c.summary.set(MetricNObs, col, float64(n))
		c.summary.set(MetricNaNStart, col, missingPct(t, col))
	}
	return c
}

func missingPct(t *table.Table, col string) float64 {
	if t.Len() == 0 {
		return 0
	}
	missing := t.Len() - t.NonNullCount(col)
	return float64(missing) / float64(t.Len()) * 100
}

// FilterOutliers runs a detector and replaces flagged values with the
// missing sentinel. The flagged values and the detector's fitted values are
// kept for inspection and repair.
func (c *Cleaner) FilterOutliers(d Detector) *Cleaner {
	if c.err != nil {
		return c
	}
	det, err := d.Detect(c.cur)
	if err != nil {
		c.err = err
		return c
	}
	for _, col := range c.cur.Columns() {
		flagged := det.Outliers.NonNullCount(col)
		c.summary.set(MetricOutliers, col, pctOf(flagged, c.cur.Len()))
		if flagged > 0 {
			c.logger.Debug("outliers flagged", "column", col, "count", flagged)
		}
	}
	c.outliers = det.Outliers
	c.forecast = det.Forecast
	c.cur = det.Filtered
	return c
}

// RepairForwardFill fills missing values by carrying the last valid
// observation forward within each entity.
func (c *Cleaner) RepairForwardFill() *Cleaner {
	return c.repair(func(t *table.Table) (*table.Table, error) {
		return ForwardFill(t), nil
	})
}

// RepairInterpolate fills interior missing values by interpolation.
func (c *Cleaner) RepairInterpolate(method InterpMethod) *Cleaner {
	return c.repair(func(t *table.Table) (*table.Table, error) {
		return Interpolate(t, method)
	})
}

// RepairFromForecast fills missing values with the fitted values of the last
// outlier detection. FilterOutliers must have run first.
func (c *Cleaner) RepairFromForecast() *Cleaner {
	return c.repair(func(t *table.Table) (*table.Table, error) {
		if c.forecast == nil {
			return ForwardFill(t), nil
		}
		return FillFromForecast(t, c.forecast), nil
	})
}

func (c *Cleaner) repair(fn func(*table.Table) (*table.Table, error)) *Cleaner {
	if c.err != nil {
		return c
	}
	before := make(map[string]int, len(c.cur.Columns()))
	for _, col := range c.cur.Columns() {
		before[col] = c.cur.NonNullCount(col)
	}
	repaired, err := fn(c.cur)
	if err != nil {
		c.err = err
		return c
	}
	for _, col := range repaired.Columns() {
		filled := repaired.NonNullCount(col) - before[col]
		c.summary.set(MetricImputed, col, pctOf(filled, c.cur.Len()))
	}
	c.cur = repaired
	return c
}

// FilterAvgTradingValue blanks rows trading below the liquidity threshold.
func (c *Cleaner) FilterAvgTradingValue(thresh float64, window int, exclCols ...string) *Cleaner {
	if c.err != nil {
		return c
	}
	before := c.nonNullByCol()
	filtered, err := AvgTradingValue(c.cur, thresh, window, exclCols...)
	if err != nil {
		c.err = err
		return c
	}
	c.recordBlanked(MetricBelowTradingVal, before, filtered)
	c.cur = filtered
	return c
}

// FilterMissingGaps blanks series history preceding long runs of missing
// values.
func (c *Cleaner) FilterMissingGaps(gapWindow int) *Cleaner {
	if c.err != nil {
		return c
	}
	before := c.nonNullByCol()
	filtered := MissingGaps(c.cur, gapWindow)
	c.recordBlanked(MetricMissingGaps, before, filtered)
	c.cur = filtered
	return c
}

// FilterMinObs removes entities with too sparse a history.
func (c *Cleaner) FilterMinObs(minObs int) *Cleaner {
	if c.err != nil {
		return c
	}
	filtered, removed := MinObs(c.cur, minObs)
	c.summary.broadcast(MetricBelowMinObs, float64(len(removed)))
	c.noteRemoved(removed)
	c.cur = filtered
	return c
}

// FilterCoverage trims leading dates with too narrow an entity cross
// section.
func (c *Cleaner) FilterCoverage(minEntities int) *Cleaner {
	if c.err != nil {
		return c
	}
	c.cur = TrimCoverage(c.cur, minEntities)
	return c
}

// FilterDelisted removes or blanks entities whose prices have gone flat.
func (c *Cleaner) FilterDelisted(window int, remove bool) *Cleaner {
	if c.err != nil {
		return c
	}
	filtered, flagged := Delisted(c.cur, window, remove)
	if remove {
		c.noteRemoved(flagged)
	}
	c.cur = filtered
	return c
}

// FilterTickers removes the given tickers outright.
func (c *Cleaner) FilterTickers(tickers ...string) *Cleaner {
	if c.err != nil {
		return c
	}
	c.cur = DropEntities(c.cur, tickers...)
	c.summary.broadcast(MetricFilteredTickers, float64(len(tickers)))
	c.noteRemoved(tickers)
	return c
}

func (c *Cleaner) noteRemoved(tickers []string) {
	if len(tickers) == 0 {
		return
	}
	c.removed = append(c.removed, tickers...)
	c.logger.Info("tickers removed", "tickers", tickers)
}

func (c *Cleaner) nonNullByCol() map[string]int {
	out := make(map[string]int, len(c.cur.Columns()))
	for _, col := range c.cur.Columns() {
		out[col] = c.cur.NonNullCount(col)
	}
	return out
}

func (c *Cleaner) recordBlanked(metric string, before map[string]int, after *table.Table) {
	for _, col := range after.Columns() {
		blanked := before[col] - after.NonNullCount(col)
		c.summary.set(metric, col, pctOf(blanked, after.Len()))
	}
}

func pctOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Err returns the first stage failure, or nil.
func (c *Cleaner) Err() error { return c.err }

// Table returns the cleaned table.
func (c *Cleaner) Table() *table.Table { return c.cur }

// Raw returns the table as it was before any cleaning.
func (c *Cleaner) Raw() *table.Table { return c.raw }

// Outliers returns the values flagged by the last detection, or nil if no
// detection has run.
func (c *Cleaner) Outliers() *table.Table { return c.outliers }

// Forecast returns the fitted values of the last detection, or nil if no
// detection has run.
func (c *Cleaner) Forecast() *table.Table { return c.forecast }

// Removed returns the tickers dropped by filtering stages, in order.
func (c *Cleaner) Removed() []string { return c.removed }

// Summary returns the accumulated statistics, with the final missing-value
// share computed at call time.
func (c *Cleaner) Summary() *Summary {
	for _, col := range c.cur.Columns() {
		c.summary.set(MetricNaNEnd, col, missingPct(c.cur, col))
	}
	return c.summary
}

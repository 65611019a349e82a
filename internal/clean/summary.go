package clean

import "slices"

// Summary accumulates per-column statistics as cleaning stages run, one row
// per metric in the order the stages executed.
type Summary struct {
	metrics []string
	cols    []string
	vals    map[string]map[string]float64
}

func newSummary(cols []string) *Summary {
	return &Summary{
		cols: slices.Clone(cols),
		vals: make(map[string]map[string]float64),
	}
}

func (s *Summary) set(metric, col string, v float64) {
	row, ok := s.vals[metric]
	if !ok {
		row = make(map[string]float64)
		s.vals[metric] = row
		s.metrics = append(s.metrics, metric)
	}
	if !slices.Contains(s.cols, col) {
		s.cols = append(s.cols, col)
	}
	row[col] = v
}

// broadcast records the same value for every column.
func (s *Summary) broadcast(metric string, v float64) {
	for _, col := range s.cols {
		s.set(metric, col, v)
	}
}

// Value returns the recorded value for a metric and column.
func (s *Summary) Value(metric, col string) (float64, bool) {
	row, ok := s.vals[metric]
	if !ok {
		return 0, false
	}
	v, ok := row[col]
	return v, ok
}

// Metrics returns the metric names in execution order.
func (s *Summary) Metrics() []string { return slices.Clone(s.metrics) }

// Columns returns the column names covered by the summary.
func (s *Summary) Columns() []string { return slices.Clone(s.cols) }

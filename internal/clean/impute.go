package clean

import (
	"gonum.org/v1/gonum/interp"

	"quantdata/internal/errors"
	"quantdata/internal/table"
)

// InterpMethod selects the interpolation scheme used to repair missing
// values.
type InterpMethod string

const (
	InterpLinear InterpMethod = "linear"
	InterpCubic  InterpMethod = "cubic"
	InterpAkima  InterpMethod = "akima"
)

// ForwardFill repairs missing values by carrying the last valid observation
// forward within each entity. The input is not modified.
func ForwardFill(t *table.Table) *table.Table {
	out := t.Clone()
	out.ForwardFill()
	return out
}

// minInterpPoints is the number of known points each scheme needs to fit.
var minInterpPoints = map[InterpMethod]int{
	InterpLinear: 2,
	InterpCubic:  2,
	InterpAkima:  3,
}

func newPredictor(method InterpMethod) (interp.FittablePredictor, error) {
	switch method {
	case InterpLinear, "":
		return &interp.PiecewiseLinear{}, nil
	case InterpCubic:
		return &interp.NaturalCubic{}, nil
	case InterpAkima:
		return &interp.AkimaSpline{}, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidRequest, "unknown interpolation method %q", method)
	}
}

// Interpolate repairs interior missing values of each (entity, column) series
// by interpolating between the surrounding valid observations. Leading and
// trailing gaps are left missing. Series with too few valid points for the
// chosen scheme are left untouched.
func Interpolate(t *table.Table, method InterpMethod) (*table.Table, error) {
	if method == "" {
		method = InterpLinear
	}
	if _, err := newPredictor(method); err != nil {
		return nil, err
	}
	minPts := minInterpPoints[method]

	out := t.Clone()
	for _, col := range out.Columns() {
		vals := out.Column(col)
		for _, sp := range out.Spans() {
			seg := vals[sp.Start:sp.End]
			xs := make([]float64, 0, len(seg))
			ys := make([]float64, 0, len(seg))
			for i, v := range seg {
				if !table.Missing(v) {
					xs = append(xs, float64(i))
					ys = append(ys, v)
				}
			}
			if len(xs) < minPts || len(xs) == len(seg) {
				continue
			}
			p, err := newPredictor(method)
			if err != nil {
				return nil, err
			}
			if err := p.Fit(xs, ys); err != nil {
				return nil, errors.Transform(err, "interpolation fit failed")
			}
			first, last := int(xs[0]), int(xs[len(xs)-1])
			for i := first + 1; i < last; i++ {
				if table.Missing(seg[i]) {
					seg[i] = p.Predict(float64(i))
				}
			}
		}
	}
	return out, nil
}

// FillFromForecast repairs missing values of t with the detector's fitted
// values. Only missing cells are touched, so valid observations always win
// over the fit.
func FillFromForecast(t, forecast *table.Table) *table.Table {
	out := t.Clone()
	idx := forecast.KeyIndex()
	for _, col := range out.Columns() {
		if !forecast.HasColumn(col) {
			continue
		}
		vals := out.Column(col)
		for i := range vals {
			if !table.Missing(vals[i]) {
				continue
			}
			if j, ok := idx[out.Key(i)]; ok {
				vals[i] = forecast.Value(j, col)
			}
		}
	}
	return out
}

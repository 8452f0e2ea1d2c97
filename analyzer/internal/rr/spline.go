package rr

import (
	"errors"

	"gonum.org/v1/gonum/interp"
)

// ErrSplineKnots недостаточно или некорректные узлы сплайна
var ErrSplineKnots = errors.New("rr: spline needs at least 2 increasing knots")

// Spline естественный кубический сплайн (нулевые вторые производные на концах).
// По двум узлам строится отрезок прямой.
type Spline struct {
	p interp.Predictor
}

// NewSpline строит сплайн по узлам с возрастающими x
func NewSpline(x, y []float64) (*Spline, error) {
	n := len(x)
	if n < 2 || len(y) != n {
		return nil, ErrSplineKnots
	}
	for i := 1; i < n; i++ {
		if x[i] <= x[i-1] {
			return nil, ErrSplineKnots
		}
	}

	var fp interp.FittablePredictor
	if n == 2 {
		fp = &interp.PiecewiseLinear{}
	} else {
		fp = &interp.NaturalCubic{}
	}
	if err := fp.Fit(x, y); err != nil {
		return nil, err
	}
	return &Spline{p: fp}, nil
}

// At значение сплайна в точке; за пределами узлов берется значение крайнего узла
func (s *Spline) At(v float64) float64 {
	return s.p.Predict(v)
}

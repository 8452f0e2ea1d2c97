package filter

import (
	"errors"
	"fmt"
)

// ErrInvalidFilterSpec некорректные коэффициенты фильтра
var ErrInvalidFilterSpec = errors.New("filter: invalid filter spec")

// Filter потоковый фильтр: один отсчет на входе, один на выходе
type Filter interface {
	// Next обрабатывает очередной отсчет
	Next(x float64) float64
	// GroupDelay задержка фильтра в отсчетах
	GroupDelay() int
	// Reset сбрасывает внутреннее состояние
	Reset()
}

// Digital рекурсивный (IIR) или нерекурсивный (FIR) цифровой фильтр в прямой форме:
//
//	y[n] = (Σ b[i]·x[n-i] - Σ a[j]·y[n-j]) / a[0],  j ≥ 1
type Digital struct {
	b, a  []float64
	x, y  []float64 // история входа и выхода, x[0] и y[0] самые новые
	delay int
}

// NewDigital создает фильтр по коэффициентам b (числитель) и a (знаменатель)
func NewDigital(b, a []float64, groupDelay int) (*Digital, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty numerator", ErrInvalidFilterSpec)
	}
	nonZero := false
	for _, v := range b {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		return nil, fmt.Errorf("%w: all-zero numerator", ErrInvalidFilterSpec)
	}
	if len(a) == 0 {
		return nil, fmt.Errorf("%w: empty denominator", ErrInvalidFilterSpec)
	}
	if a[0] == 0 {
		return nil, fmt.Errorf("%w: a[0] must be non-zero", ErrInvalidFilterSpec)
	}
	if groupDelay < 0 {
		return nil, fmt.Errorf("%w: negative group delay %d", ErrInvalidFilterSpec, groupDelay)
	}

	return &Digital{
		b:     append([]float64(nil), b...),
		a:     append([]float64(nil), a...),
		x:     make([]float64, len(b)),
		y:     make([]float64, len(a)),
		delay: groupDelay,
	}, nil
}

// NewFIR создает нерекурсивный фильтр (a = [1])
func NewFIR(b []float64, groupDelay int) (*Digital, error) {
	return NewDigital(b, []float64{1}, groupDelay)
}

// Next обрабатывает очередной отсчет
func (f *Digital) Next(x float64) float64 {
	copy(f.x[1:], f.x[:len(f.x)-1])
	f.x[0] = x

	var acc float64
	for i, c := range f.b {
		acc += c * f.x[i]
	}
	// y[0] еще хранит предыдущий выход, поэтому a[j] умножается на y[j-1]
	for j := 1; j < len(f.a); j++ {
		acc -= f.a[j] * f.y[j-1]
	}
	out := acc / f.a[0]

	copy(f.y[1:], f.y[:len(f.y)-1])
	f.y[0] = out
	return out
}

// GroupDelay задержка фильтра в отсчетах
func (f *Digital) GroupDelay() int {
	return f.delay
}

// Reset обнуляет историю
func (f *Digital) Reset() {
	clear(f.x)
	clear(f.y)
}

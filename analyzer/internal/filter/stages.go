package filter

import (
	"math"

	"github.com/Krimson/ecg-monitory/analyzer/internal/ringbuffer"
)

// OddWindow переводит длительность в секундах в нечетную длину окна
func OddWindow(seconds, fs float64) int {
	return 2*int(math.Round(seconds*fs/2)) + 1
}

// MovingAverage скользящее среднее по нечетному окну.
// Пока окно не заполнено, недостающие отсчеты считаются нулевыми.
type MovingAverage struct {
	window *ringbuffer.Buffer[float64]
	n      int
	sum    float64
}

// NewMovingAverage создает скользящее среднее; четная длина округляется вверх до нечетной
func NewMovingAverage(n int) *MovingAverage {
	if n < 1 {
		n = 1
	}
	if n%2 == 0 {
		n++
	}
	return &MovingAverage{window: ringbuffer.New[float64](n), n: n}
}

// Next обрабатывает очередной отсчет
func (m *MovingAverage) Next(x float64) float64 {
	if m.window.Size() >= int64(m.n) {
		oldest, _ := m.window.Get(m.window.Size() - int64(m.n))
		m.sum -= oldest
	}
	m.window.Add(x)
	m.sum += x
	return m.sum / float64(m.n)
}

// GroupDelay (N-1)/2
func (m *MovingAverage) GroupDelay() int {
	return (m.n - 1) / 2
}

// Len длина окна
func (m *MovingAverage) Len() int {
	return m.n
}

// Reset сбрасывает окно
func (m *MovingAverage) Reset() {
	m.window.Reset()
	m.sum = 0
}

// Square возводит отсчет в квадрат
type Square struct{}

func (Square) Next(x float64) float64 { return x * x }
func (Square) GroupDelay() int        { return 0 }
func (Square) Reset()                 {}

// Identity пропускает отсчет без изменений
type Identity struct{}

func (Identity) Next(x float64) float64 { return x }
func (Identity) GroupDelay() int        { return 0 }
func (Identity) Reset()                 {}

// NewDerivative пятиточечная производная (2x[n] + x[n-1] - x[n-3] - 2x[n-4])·fs/8, задержка 2 отсчета
func NewDerivative(fs float64) *Digital {
	k := fs / 8
	f, _ := NewFIR([]float64{2 * k, k, 0, -k, -2 * k}, 2)
	return f
}

// Cascade последовательное соединение фильтров, задержка равна сумме задержек звеньев
type Cascade []Filter

// Next прогоняет отсчет через все звенья
func (c Cascade) Next(x float64) float64 {
	for _, f := range c {
		x = f.Next(x)
	}
	return x
}

// GroupDelay сумма задержек звеньев
func (c Cascade) GroupDelay() int {
	d := 0
	for _, f := range c {
		d += f.GroupDelay()
	}
	return d
}

// Reset сбрасывает все звенья
func (c Cascade) Reset() {
	for _, f := range c {
		f.Reset()
	}
}

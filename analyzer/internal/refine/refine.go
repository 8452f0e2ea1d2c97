package refine

import (
	"math"
	"sort"

	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

const (
	// MaxSearchSpan поиск максимума ±200 мс
	MaxSearchSpan = 0.2
	// SlacknessSpan поиск максимального отклонения ±250 мс
	SlacknessSpan = 0.25
	// SlacknessBaselineOffset точки изолинии R±100 мс
	SlacknessBaselineOffset = 0.1
)

func samples(seconds, fs float64) int64 {
	return int64(math.Round(seconds * fs))
}

// MaxSearch переносит R в максимум сырого сигнала в окрестности.
// Подходит для чистого отведения с положительным R.
type MaxSearch struct {
	Span float64 // секунды
}

var _ qrs.Refiner = MaxSearch{}

func (m MaxSearch) span() float64 {
	if m.Span <= 0 {
		return MaxSearchSpan
	}
	return m.Span
}

// Refine сдвигает R; если окно выходит за доступный сигнал, ничего не меняет
func (m MaxSearch) Refine(c *qrs.Complex, sig signal.Signal) int64 {
	w := samples(m.span(), sig.SamplingRate())
	values, err := signal.Window(sig, c.R-w, c.R+w+1)
	if err != nil || len(values) == 0 {
		return 0
	}

	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return move(c, c.R-w+int64(best))
}

// Reach дальность чтения сигнала от R
func (m MaxSearch) Reach(fs float64) int64 {
	return samples(m.span(), fs)
}

// SlacknessReduction ищет точку наибольшего отклонения от локальной изолинии.
// Изолиния медиана значений в R и R±100 мс. Подходит для отведений с любой полярностью R.
type SlacknessReduction struct {
	Span float64 // секунды
}

var _ qrs.Refiner = SlacknessReduction{}

func (s SlacknessReduction) span() float64 {
	if s.Span <= 0 {
		return SlacknessSpan
	}
	return s.Span
}

// Refine сдвигает R; если окно выходит за доступный сигнал, ничего не меняет
func (s SlacknessReduction) Refine(c *qrs.Complex, sig signal.Signal) int64 {
	fs := sig.SamplingRate()
	offset := samples(SlacknessBaselineOffset, fs)

	var base [3]float64
	for i, idx := range [3]int64{c.R - offset, c.R, c.R + offset} {
		v, err := sig.Sample(idx)
		if err != nil {
			return 0
		}
		base[i] = v
	}
	sort.Float64s(base[:])
	baseline := base[1]

	w := samples(s.span(), fs)
	values, err := signal.Window(sig, c.R-w, c.R+w+1)
	if err != nil || len(values) == 0 {
		return 0
	}

	best, deviation := 0, -1.0
	for i, v := range values {
		if d := math.Abs(v - baseline); d > deviation {
			best, deviation = i, d
		}
	}
	return move(c, c.R-w+int64(best))
}

// Reach дальность чтения сигнала от R
func (s SlacknessReduction) Reach(fs float64) int64 {
	return max(samples(s.span(), fs), samples(SlacknessBaselineOffset, fs))
}

func move(c *qrs.Complex, r int64) int64 {
	old := c.R
	c.R = r
	return old - r
}

// ForLead выбирает уточнение: поиск максимума, если найдено предпочтительное отведение,
// иначе поиск отклонения от изолинии
func ForLead(exact bool) qrs.Refiner {
	if exact {
		return MaxSearch{}
	}
	return SlacknessReduction{}
}

package qrs

import (
	"errors"
	"fmt"

	"github.com/goccmack/godsp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// ErrAlreadyFinalized повторная финализация комплекса
var ErrAlreadyFinalized = errors.New("qrs: complex already finalized")

// Handle порядковый номер комплекса в потоке; используется как ссылка на соседей
type Handle int64

// NoHandle отсутствие ссылки
const NoHandle Handle = -1

// Stats описательная статистика окрестности комплекса
type Stats struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Skewness float64 `json:"skewness"`
	// Kurtosis избыточный эксцесс
	Kurtosis float64 `json:"kurtosis"`
	Energy   float64 `json:"energy"`
	Peak     float64 `json:"peak"`
}

// Complex QRS-комплекс. Создается открытым с предварительным положением R,
// финализируется ровно один раз, после чего морфология неизменна.
type Complex struct {
	Seq  Handle `json:"seq"`
	Lead string `json:"lead,omitempty"`

	R          int64   `json:"r"`
	RAmplitude float64 `json:"r_amplitude"`
	Q          int64   `json:"q"`
	QAmplitude float64 `json:"q_amplitude"`
	S          int64   `json:"s"`
	SAmplitude float64 `json:"s_amplitude"`

	// Start и End границы окрестности [Start, End], по которой снят шаблон
	Start    int64     `json:"start"`
	End      int64     `json:"end"`
	Template []float64 `json:"-"`

	Stats       Stats   `json:"stats"`
	Correlation float64 `json:"correlation"`
	// Displacement сдвиг R при уточнении: предварительное минус итоговое положение
	Displacement int64 `json:"displacement"`

	Prev Handle `json:"prev"`
	Next Handle `json:"next"`
	Beat Handle `json:"beat"`

	finalized bool
}

// Window параметры окрестности комплекса в отсчетах
type Window struct {
	Pre, Post int64
	QS        int64 // поиск Q и S по обе стороны от R
}

func newComplex(seq Handle, r int64, lead string) *Complex {
	return &Complex{
		Seq:  seq,
		Lead: lead,
		R:    r,
		Q:    r,
		S:    r,
		Prev: NoHandle,
		Next: NoHandle,
		Beat: NoHandle,
	}
}

// Finalized признак финализации
func (c *Complex) Finalized() bool {
	return c.finalized
}

// Finalize снимает морфологию с сигнала: амплитуды Q/R/S, копию окрестности и статистику.
// Недоступное начало окрестности отбрасывается.
func (c *Complex) Finalize(sig signal.Signal, w Window) error {
	if c.finalized {
		return fmt.Errorf("%w: seq=%d", ErrAlreadyFinalized, c.Seq)
	}

	amp, err := sig.Sample(c.R)
	if err != nil {
		return fmt.Errorf("read R at %d: %w", c.R, err)
	}
	c.RAmplitude = amp

	c.Start = c.R - w.Pre
	for c.Start < c.R {
		if _, err := sig.Sample(c.Start); err == nil {
			break
		}
		c.Start++
	}
	c.End = c.R + w.Post
	for c.End > c.R {
		if _, err := sig.Sample(c.End); err == nil {
			break
		}
		c.End--
	}

	c.Template, err = signal.Window(sig, c.Start, c.End+1)
	if err != nil {
		return fmt.Errorf("copy template: %w", err)
	}

	c.Q, c.QAmplitude = c.R, c.RAmplitude
	for i := c.R - 1; i >= max(c.Start, c.R-w.QS); i-- {
		if v := c.Template[i-c.Start]; v < c.QAmplitude {
			c.Q, c.QAmplitude = i, v
		}
	}
	c.S, c.SAmplitude = c.R, c.RAmplitude
	for i := c.R + 1; i <= min(c.End, c.R+w.QS); i++ {
		if v := c.Template[i-c.Start]; v < c.SAmplitude {
			c.S, c.SAmplitude = i, v
		}
	}

	c.Stats = describe(c.Template)
	c.finalized = true
	return nil
}

// describe считает моменты распределения отсчетов. Дисперсия, асимметрия и эксцесс
// выборочные; на окрестности короче четырех отсчетов или на постоянном сигнале моменты нулевые.
func describe(x []float64) Stats {
	if len(x) == 0 {
		return Stats{}
	}

	st := Stats{
		Mean:   godsp.Average(x),
		Energy: floats.Dot(x, x),
		Peak:   godsp.Max(x),
	}
	if len(x) < 4 {
		return st
	}
	st.Variance = stat.Variance(x, nil)
	if st.Variance > 0 {
		st.Skewness = stat.Skew(x, nil)
		st.Kurtosis = stat.ExKurtosis(x, nil)
	}
	return st
}

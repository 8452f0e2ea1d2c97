package heartbeat

import (
	"math"

	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// WaveMorphology границы и пик P или T волны
type WaveMorphology struct {
	Onset           int64   `json:"onset"`
	OnsetAmplitude  float64 `json:"onset_amplitude"`
	Peak            int64   `json:"peak"`
	PeakAmplitude   float64 `json:"peak_amplitude"`
	Offset          int64   `json:"offset"`
	OffsetAmplitude float64 `json:"offset_amplitude"`
}

// WaveFinder поиск волны относительно финализированного QRS
type WaveFinder interface {
	FindWave(sig signal.Signal, c *qrs.Complex) (*WaveMorphology, bool)
}

// NoWave поиск, который никогда не находит волну
type NoWave struct{}

func (NoWave) FindWave(signal.Signal, *qrs.Complex) (*WaveMorphology, bool) {
	return nil, false
}

// WindowPeakFinder ищет наибольшее отклонение от изолинии в окне [R+From, R+To].
// Изолиния берется в начале окрестности QRS. Границы волны там, где отклонение
// падает ниже половины пикового.
type WindowPeakFinder struct {
	From, To     float64 // секунды относительно R
	MinAmplitude float64
}

// DefaultPFinder окно P волны: 250–80 мс до R
func DefaultPFinder() WindowPeakFinder {
	return WindowPeakFinder{From: -0.25, To: -0.08, MinAmplitude: 0.02}
}

// DefaultTFinder окно T волны: 100–450 мс после R
func DefaultTFinder() WindowPeakFinder {
	return WindowPeakFinder{From: 0.1, To: 0.45, MinAmplitude: 0.02}
}

// FindWave возвращает волну или false, если окно недоступно или отклонение слишком мало
func (f WindowPeakFinder) FindWave(sig signal.Signal, c *qrs.Complex) (*WaveMorphology, bool) {
	if len(c.Template) == 0 {
		return nil, false
	}
	fs := sig.SamplingRate()
	from := c.R + int64(math.Round(f.From*fs))
	to := c.R + int64(math.Round(f.To*fs))

	values, err := signal.Window(sig, from, to+1)
	if err != nil || len(values) < 3 {
		return nil, false
	}
	iso := c.Template[0]

	peak := 0
	for i, v := range values {
		if math.Abs(v-iso) > math.Abs(values[peak]-iso) {
			peak = i
		}
	}
	height := math.Abs(values[peak] - iso)
	if height < f.MinAmplitude {
		return nil, false
	}

	onset := peak
	for onset > 0 && math.Abs(values[onset-1]-iso) >= height/2 {
		onset--
	}
	offset := peak
	for offset < len(values)-1 && math.Abs(values[offset+1]-iso) >= height/2 {
		offset++
	}

	return &WaveMorphology{
		Onset:           from + int64(onset),
		OnsetAmplitude:  values[onset],
		Peak:            from + int64(peak),
		PeakAmplitude:   values[peak],
		Offset:          from + int64(offset),
		OffsetAmplitude: values[offset],
	}, true
}

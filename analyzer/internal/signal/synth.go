package signal

import (
	"math"
	"math/rand"
)

// SynthConfig параметры синтетического ЭКГ
type SynthConfig struct {
	Rate        float64 // частота дискретизации, Гц
	HeartRate   float64 // средний пульс, уд/мин
	Variability float64 // относительный разброс RR, 0.05 = ±5%
	Noise       float64 // СКО аддитивного шума
	Wander      float64 // амплитуда дрейфа изолинии
	Seed        int64
}

// DefaultSynthConfig 250 Гц, 72 уд/мин
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		Rate:        250,
		HeartRate:   72,
		Variability: 0.03,
		Noise:       0.01,
		Wander:      0.05,
		Seed:        1,
	}
}

// Synthesizer генерирует ЭКГ-подобный сигнал: P, Q, R, S, T как гауссианы
// на каждом кардиоцикле плюс дрейф изолинии и шум.
// Положения R-зубцов известны, что позволяет проверять детекторы.
type Synthesizer struct {
	cfg   SynthConfig
	rand  *rand.Rand
	n     int64 // номер следующего отсчета
	start int64 // начало текущего цикла
	rr    int64 // длина текущего цикла в отсчетах
	peaks []int64
}

// NewSynthesizer создает генератор
func NewSynthesizer(cfg SynthConfig) *Synthesizer {
	s := &Synthesizer{cfg: cfg, rand: rand.New(rand.NewSource(cfg.Seed))}
	s.nextCycle(0)
	return s
}

func (s *Synthesizer) nextCycle(start int64) {
	base := s.cfg.Rate * 60 / s.cfg.HeartRate
	variation := (2*s.rand.Float64() - 1) * s.cfg.Variability
	s.start = start
	s.rr = int64(math.Round(base * (1 + variation)))
	s.peaks = append(s.peaks, start+int64(math.Round(0.32*float64(s.rr))))
}

// Next возвращает следующий отсчет
func (s *Synthesizer) Next() float64 {
	if s.n-s.start >= s.rr {
		s.nextCycle(s.n)
	}

	t := float64(s.n-s.start) / float64(s.rr)
	// ширина комплекса не зависит от длины цикла
	w := s.cfg.Rate * 60 / 72 / float64(s.rr)

	p := 0.08 * gauss(t, 0.18, 0.03)
	q := -0.12 * gauss(t, 0.30, 0.01*w)
	r := 1.00 * gauss(t, 0.32, 0.008*w)
	sv := -0.25 * gauss(t, 0.35, 0.012*w)
	tt := 0.25 * gauss(t, 0.60, 0.06)

	seconds := float64(s.n) / s.cfg.Rate
	baseline := s.cfg.Wander * math.Sin(2*math.Pi*0.33*seconds)
	noise := s.cfg.Noise * s.rand.NormFloat64()

	s.n++
	return baseline + p + q + r + sv + tt + noise
}

// Generate возвращает n следующих отсчетов
func (s *Synthesizer) Generate(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

// Peaks положения R-зубцов уже сгенерированных циклов
func (s *Synthesizer) Peaks() []int64 {
	var out []int64
	for _, p := range s.peaks {
		if p < s.n {
			out = append(out, p)
		}
	}
	return out
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

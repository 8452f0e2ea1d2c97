package qrs

import (
	"math"

	"github.com/Krimson/ecg-monitory/analyzer/internal/filter"
	"github.com/Krimson/ecg-monitory/analyzer/internal/ringbuffer"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// Classical детектор в духе Пана–Томпкинса: полоса 5–15 Гц, производная, квадрат,
// интегрирование скользящим окном. Пики интегратора сравниваются с адаптивным порогом
// между уровнями сигнала (SPKI) и шума (NPKI). Первые секунды уходят на обучение уровней.
type Classical struct {
	cfg      Config
	bandpass *filter.Digital
	pipe     *filter.Pipeline
	window   int64
	bpAbs    *ringbuffer.Buffer[float64]

	bpDelay    int64
	refractory int64
	learning   int64

	learnMax float64
	learnSum float64
	spki     float64
	npki     float64

	prev1, prev2 float64
	lastR        int64
	state        State

	fin finisher
}

var _ Detector = (*Classical)(nil)

// NewClassical создает классический детектор; refiner может быть nil
func NewClassical(cfg Config, refiner Refiner) *Classical {
	coeffs := filter.PanTompkinsBand(cfg.Rate)
	window := filter.OddWindow(cfg.IntegrationSpan, cfg.Rate)

	// рефрактерный период классического алгоритма 200 мс
	refractory := cfg.samples(max(cfg.Refractory, 0.2))

	return &Classical{
		cfg:      cfg,
		bandpass: filter.NewBandpass(coeffs),
		pipe: filter.NewPipeline(
			filter.Identity{},
			filter.Cascade{
				filter.NewDerivative(cfg.Rate),
				filter.Square{},
				filter.NewMovingAverage(window),
			},
		),
		window:     int64(window),
		bpAbs:      ringbuffer.New[float64](window + 1),
		bpDelay:    int64(coeffs.GroupDelay),
		refractory: refractory,
		learning:   cfg.samples(cfg.Learning),
		lastR:      -1 << 40,
		fin:        newFinisher(cfg, refiner),
	}
}

// Next обрабатывает сырой отсчет
func (d *Classical) Next(x float64) (*Complex, bool) {
	t := d.fin.raw.Push(x)

	out := d.pipe.Next(d.bandpass.Next(x))
	integrated := out[1]
	d.bpAbs.Add(math.Abs(out[0]))

	if t < d.learning {
		d.learn(t, integrated)
	} else {
		// пик интегратора на предыдущем отсчете
		if d.prev1 > d.prev2 && d.prev1 >= integrated {
			d.classify(t, d.prev1)
		}
	}
	d.prev2, d.prev1 = d.prev1, integrated

	if len(d.fin.pending) == 0 {
		d.state = Idle
	}
	if d.fin.ready(t) {
		return d.fin.emit()
	}
	return nil, false
}

func (d *Classical) learn(t int64, v float64) {
	d.learnMax = max(d.learnMax, v)
	d.learnSum += v
	if t == d.learning-1 {
		d.spki = 0.25 * d.learnMax
		d.npki = 0.5 * d.learnSum / float64(d.learning)
	}
}

// classify относит пик интегратора к сигналу или к шуму
func (d *Classical) classify(t int64, peak float64) {
	threshold := d.npki + d.cfg.ThresholdRatio*(d.spki-d.npki)

	// R в максимуме |полосового сигнала| в пределах окна интегратора
	from := max(t-d.window, d.bpAbs.Oldest())
	seg, err := d.bpAbs.Subrange(from, t)
	if err != nil || len(seg) == 0 {
		return
	}
	best := 0
	for j, v := range seg {
		if v > seg[best] {
			best = j
		}
	}
	r := from + int64(best) - int64(d.pipe.MaxDelay()) - d.bpDelay

	w := d.cfg.SignalWeight
	if peak > threshold && r-d.lastR >= d.refractory {
		d.spki = w*peak + (1-w)*d.spki
		d.lastR = r
		d.fin.locate(r)
		d.state = RLocated
		return
	}
	d.npki = w*peak + (1-w)*d.npki
}

// Flush финализирует комплексы, ожидающие хвоста сигнала
func (d *Classical) Flush() []*Complex {
	d.state = Idle
	return d.fin.drain()
}

// State текущее состояние
func (d *Classical) State() State {
	return d.state
}

// Raw сырой сигнал, с которым работает детектор
func (d *Classical) Raw() *signal.Ring {
	return d.fin.raw
}

// Levels текущие уровни сигнала и шума
func (d *Classical) Levels() (spki, npki float64) {
	return d.spki, d.npki
}

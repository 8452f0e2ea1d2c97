package qrs

import (
	"github.com/Krimson/ecg-monitory/analyzer/internal/filter"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// KnowledgeBased многооконный детектор QRS.
//
// Сигнал проходит полосовой фильтр 8–20 Гц и возводится в квадрат. Три скользящих
// средних (короткое ~97 мс, среднее ~611 мс, длинное ~2 с) выравниваются конвейером.
// Блок интереса открывается на фронте, когда короткое среднее превышает порог
// β·long + medium, и закрывается на спаде. Блок короче половины короткого окна
// считается шумом: он не дает комплекса, и следующий за ним блок тоже не открывается.
// R берется в максимуме квадрата внутри блока.
type KnowledgeBased struct {
	cfg      Config
	bandpass *filter.Digital
	pipe     *filter.Pipeline

	bpDelay    int64
	refractory int64
	minBlock   int64

	state      State
	blockStart int64
	peakIndex  int64
	peakValue  float64
	lastR      int64

	// above, runStart и lastBlockLen отслеживают каждый блок над порогом,
	// в том числе не ставший кандидатом
	above        bool
	runStart     int64
	lastBlockLen int64

	fin finisher
}

var _ Detector = (*KnowledgeBased)(nil)

// NewKnowledgeBased создает многооконный детектор; refiner может быть nil
func NewKnowledgeBased(cfg Config, refiner Refiner) *KnowledgeBased {
	short := filter.OddWindow(cfg.ShortWindow, cfg.Rate)
	coeffs := filter.QRSBand(cfg.Rate)

	return &KnowledgeBased{
		cfg:      cfg,
		bandpass: filter.NewBandpass(coeffs),
		pipe: filter.NewPipeline(
			filter.Identity{},
			filter.NewMovingAverage(short),
			filter.NewMovingAverage(filter.OddWindow(cfg.MediumWindow, cfg.Rate)),
			filter.NewMovingAverage(filter.OddWindow(cfg.LongWindow, cfg.Rate)),
		),
		bpDelay:    int64(coeffs.GroupDelay),
		refractory: cfg.samples(cfg.Refractory),
		minBlock:   int64(short / 2),
		lastR:      -1 << 40,
		fin:        newFinisher(cfg, refiner),
		// до первого блока открытие ничем не ограничено
		lastBlockLen: int64(short / 2),
	}
}

// Next обрабатывает сырой отсчет
func (d *KnowledgeBased) Next(x float64) (*Complex, bool) {
	t := d.fin.raw.Push(x)

	y := d.bandpass.Next(x)
	out := d.pipe.Next(y * y)
	energy, short, medium, long := out[0], out[1], out[2], out[3]

	// k индекс выровненного квадрата, в координатах после полосового фильтра
	k := t - int64(d.pipe.MaxDelay())
	d.step(k, energy, short > d.cfg.Beta*long+medium)

	if d.state == RLocated && d.fin.ready(t) {
		d.state = Idle
		return d.fin.emit()
	}
	return nil, false
}

// step продвигает автомат блоков на отсчет k квадрата
func (d *KnowledgeBased) step(k int64, energy float64, above bool) {
	rising := above && !d.above
	falling := !above && d.above
	d.above = above

	switch d.state {
	case Idle:
		if rising && d.lastBlockLen >= d.minBlock && (k-d.bpDelay)-d.lastR >= d.refractory {
			d.state = CandidateOpen
			d.blockStart = k
			d.peakIndex = k
			d.peakValue = energy
		}
	case CandidateOpen:
		if above {
			if energy > d.peakValue {
				d.peakIndex = k
				d.peakValue = energy
			}
			break
		}
		if k-d.blockStart >= d.minBlock {
			r := d.peakIndex - d.bpDelay
			d.lastR = r
			d.fin.locate(r)
			d.state = RLocated
		} else {
			d.state = Idle
		}
	}

	// длительность каждого блока над порогом проверяется при открытии следующего
	if rising {
		d.runStart = k
	}
	if falling {
		d.lastBlockLen = k - d.runStart
	}
}

// Flush финализирует комплекс, ожидающий хвоста сигнала
func (d *KnowledgeBased) Flush() []*Complex {
	d.state = Idle
	return d.fin.drain()
}

// State текущее состояние автомата
func (d *KnowledgeBased) State() State {
	return d.state
}

// Raw сырой сигнал, с которым работает детектор
func (d *KnowledgeBased) Raw() *signal.Ring {
	return d.fin.raw
}

// Latency задержка обнаружения относительно R в отсчетах (без учета длины блока)
func (d *KnowledgeBased) Latency() int64 {
	return int64(d.pipe.MaxDelay()) + d.bpDelay
}

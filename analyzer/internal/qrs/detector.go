package qrs

import (
	"math"

	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// State состояние конечного автомата детектора
type State int

const (
	Idle State = iota
	CandidateOpen
	RLocated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CandidateOpen:
		return "candidate_open"
	case RLocated:
		return "r_located"
	default:
		return "unknown"
	}
}

// Detector потоковый детектор QRS: по одному сырому отсчету на вызов.
// Возвращает комплекс, когда он финализирован.
type Detector interface {
	Next(x float64) (*Complex, bool)
}

// Flusher детектор, который может выдать комплексы, ожидающие хвоста сигнала.
// Используется в конце записи.
type Flusher interface {
	Flush() []*Complex
}

// Refiner уточняет положение R перед финализацией
type Refiner interface {
	// Refine сдвигает R комплекса и возвращает сдвиг (старое минус новое)
	Refine(c *Complex, sig signal.Signal) int64
	// Reach насколько далеко от предварительного R уточнение может читать сигнал
	Reach(fs float64) int64
}

// Config параметры детекторов. Длительности в секундах.
type Config struct {
	Rate float64
	Lead string

	Pre        float64 // окрестность до R
	Post       float64 // окрестность после R
	QSSearch   float64 // поиск Q и S
	Refractory float64
	RawHistory float64 // сколько сырого сигнала хранится для уточнения и поиска волн

	// многооконный детектор
	Beta         float64
	ShortWindow  float64
	MediumWindow float64
	LongWindow   float64

	// классический детектор
	Learning        float64
	IntegrationSpan float64
	SignalWeight    float64
	ThresholdRatio  float64
}

// DefaultConfig параметры по умолчанию для частоты fs
func DefaultConfig(fs float64) Config {
	return Config{
		Rate:       fs,
		Pre:        0.12,
		Post:       0.28,
		QSSearch:   0.08,
		Refractory: 0.1,
		RawHistory: 10,

		Beta:         0.07,
		ShortWindow:  0.097,
		MediumWindow: 0.611,
		LongWindow:   2.0,

		Learning:        2.0,
		IntegrationSpan: 0.15,
		SignalWeight:    0.125,
		ThresholdRatio:  0.25,
	}
}

func (c Config) samples(seconds float64) int64 {
	return int64(math.Round(seconds * c.Rate))
}

// finisher общая часть детекторов: сырой сигнал, очередь найденных R,
// уточнение, финализация, связывание соседей и шаблон
type finisher struct {
	raw      *signal.Ring
	window   Window
	refiner  Refiner
	reach    int64
	lead     string
	template Template

	seq     Handle
	prev    *Complex
	pending []*Complex
}

func newFinisher(cfg Config, refiner Refiner) finisher {
	w := Window{
		Pre:  cfg.samples(cfg.Pre),
		Post: cfg.samples(cfg.Post),
		QS:   cfg.samples(cfg.QSSearch),
	}
	f := finisher{
		window:  w,
		refiner: refiner,
		lead:    cfg.Lead,
	}
	if refiner != nil {
		f.reach = refiner.Reach(cfg.Rate)
	}

	capacity := int(cfg.samples(cfg.RawHistory))
	// окрестность, уточнение и задержка фильтров должны помещаться в буфер
	capacity = max(capacity, int(2*(w.Pre+w.Post+f.reach)+cfg.samples(3)))
	f.raw = signal.NewRing(capacity, cfg.Rate)
	return f
}

// locate ставит в очередь комплекс с предварительным R
func (f *finisher) locate(r int64) {
	f.pending = append(f.pending, newComplex(NoHandle, r, f.lead))
}

// ready проверяет, доступен ли сигнал до R + Post + Reach для первого в очереди
func (f *finisher) ready(t int64) bool {
	if len(f.pending) == 0 {
		return false
	}
	return t >= f.pending[0].R+f.window.Post+f.reach
}

// emit уточняет, финализирует и связывает первый комплекс очереди
func (f *finisher) emit() (*Complex, bool) {
	c := f.pending[0]
	f.pending[0] = nil
	f.pending = f.pending[1:]

	if f.refiner != nil {
		c.Displacement = f.refiner.Refine(c, f.raw)
	}
	if err := c.Finalize(f.raw, f.window); err != nil {
		// R вне хранимого сигнала: комплекс не может быть описан
		return nil, false
	}
	c.Seq = f.seq
	f.seq++

	c.Correlation = f.template.Correlate(c.Template)
	f.template.Update(c.Template, c.Correlation)

	if f.prev != nil {
		c.Prev = f.prev.Seq
		f.prev.Next = c.Seq
	}
	f.prev = c
	return c, true
}

// drain финализирует все комплексы очереди без ожидания хвоста сигнала
func (f *finisher) drain() []*Complex {
	var out []*Complex
	for len(f.pending) > 0 {
		if c, ok := f.emit(); ok {
			out = append(out, c)
		}
	}
	return out
}

package heartbeat

import (
	"fmt"
	"iter"
	"log"
	"strings"

	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/refine"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// Method алгоритм детекции QRS
type Method string

const (
	MethodKnowledgeBased Method = "knowledge"
	MethodClassical      Method = "classical"
)

// ParseMethod разбирает имя алгоритма
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodKnowledgeBased:
		return MethodKnowledgeBased, nil
	case MethodClassical:
		return MethodClassical, nil
	default:
		return "", fmt.Errorf("unknown detection method: %q", s)
	}
}

// Options параметры потока ударов
type Options struct {
	Detector qrs.Config
	Method   Method
	// ExactLead найдено ли предпочтительное отведение; определяет уточнение R
	ExactLead bool
	// Refiner явное уточнение; если nil, выбирается по ExactLead
	Refiner qrs.Refiner

	PFinder WaveFinder
	TFinder WaveFinder
	// ChainLimit сколько ударов хранить в цепочке; 0 без ограничения
	ChainLimit int
	OnBeat     func(*Heartbeat)
}

// DefaultOptions параметры по умолчанию для частоты fs
func DefaultOptions(fs float64) Options {
	return Options{
		Detector:  qrs.DefaultConfig(fs),
		Method:    MethodKnowledgeBased,
		ExactLead: true,
		PFinder:   DefaultPFinder(),
		TFinder:   DefaultTFinder(),
	}
}

// rawDetector детектор, владеющий сырым сигналом
type rawDetector interface {
	qrs.Detector
	qrs.Flusher
	Raw() *signal.Ring
}

// Stream живой поток: отсчеты на входе, связанные удары на выходе
type Stream struct {
	det rawDetector
	asm *Assembler

	complexes    int64
	displacement int64
}

// NewStream создает поток
func NewStream(opts Options) (*Stream, error) {
	if opts.Detector.Rate <= 0 {
		return nil, fmt.Errorf("invalid sampling rate: %v", opts.Detector.Rate)
	}

	refiner := opts.Refiner
	if refiner == nil {
		refiner = refine.ForLead(opts.ExactLead)
	}

	var det rawDetector
	switch opts.Method {
	case "", MethodKnowledgeBased:
		det = qrs.NewKnowledgeBased(opts.Detector, refiner)
	case MethodClassical:
		det = qrs.NewClassical(opts.Detector, refiner)
	default:
		return nil, fmt.Errorf("unknown detection method: %q", opts.Method)
	}

	return &Stream{
		det: det,
		asm: NewAssembler(det.Raw(), NewChain(opts.ChainLimit), opts.PFinder, opts.TFinder, opts.OnBeat),
	}, nil
}

// Push обрабатывает один сырой отсчет
func (s *Stream) Push(x float64) {
	if c, ok := s.det.Next(x); ok {
		s.accept(c)
	}
}

func (s *Stream) accept(c *qrs.Complex) {
	s.complexes++
	s.displacement += abs(c.Displacement)
	s.asm.Add(c)
}

// PushBatch обрабатывает блок отсчетов и возвращает удары, ставшие готовыми
func (s *Stream) PushBatch(xs []float64) []*Heartbeat {
	for _, x := range xs {
		s.Push(x)
	}
	return s.drain()
}

// Beats итератор по готовым ударам
func (s *Stream) Beats() iter.Seq[*Heartbeat] {
	return s.asm.Ready()
}

// Close завершает поток: выдает комплексы, ожидающие хвоста, и последний удар
func (s *Stream) Close() []*Heartbeat {
	for _, c := range s.det.Flush() {
		s.accept(c)
	}
	s.asm.Flush()
	return s.drain()
}

func (s *Stream) drain() []*Heartbeat {
	var out []*Heartbeat
	for b := range s.asm.Ready() {
		out = append(out, b)
	}
	return out
}

// Raw сырой сигнал потока
func (s *Stream) Raw() *signal.Ring {
	return s.det.Raw()
}

// Chain цепочка ударов
func (s *Stream) Chain() *Chain {
	return s.asm.Chain()
}

// Stats количество комплексов и суммарный модуль сдвига R при уточнении
func (s *Stream) Stats() (complexes, displacement int64) {
	return s.complexes, s.displacement
}

// Replay прогоняет запись целиком. Удары выдаются по порядку по мере готовности.
// Ошибка создания потока или чтения записи завершает итерацию и попадает в журнал;
// Collect возвращает ее вызывающему.
func Replay(src signal.Source, opts Options) iter.Seq[*Heartbeat] {
	return func(yield func(*Heartbeat) bool) {
		s, err := replayStream(src, opts)
		if err != nil {
			log.Printf("[ERROR] Replay aborted: %v", err)
			return
		}
		if err := replay(s, src, yield); err != nil {
			log.Printf("[ERROR] Replay aborted: %v", err)
		}
	}
}

// Collect прогоняет запись и возвращает все удары
func Collect(src signal.Source, opts Options) ([]*Heartbeat, error) {
	s, err := replayStream(src, opts)
	if err != nil {
		return nil, err
	}
	var out []*Heartbeat
	err = replay(s, src, func(b *Heartbeat) bool {
		out = append(out, b)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func replayStream(src signal.Source, opts Options) (*Stream, error) {
	opts.Detector.Rate = src.SamplingRate()
	s, err := NewStream(opts)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return s, nil
}

func replay(s *Stream, src signal.Source, yield func(*Heartbeat) bool) error {
	n := src.Len()
	for i := int64(0); i < n; i++ {
		x, err := src.Sample(i)
		if err != nil {
			return fmt.Errorf("read sample %d: %w", i, err)
		}
		s.Push(x)
		for b := range s.Beats() {
			if !yield(b) {
				return nil
			}
		}
	}
	for _, b := range s.Close() {
		if !yield(b) {
			return nil
		}
	}
	return nil
}

// ReplayRecording выбирает отведение через resolver и прогоняет его
func ReplayRecording(rec *signal.Recording, resolver signal.LeadResolver, preferred string, opts Options) ([]*Heartbeat, error) {
	lead, name, exact, err := rec.ResolveLead(resolver, preferred)
	if err != nil {
		return nil, fmt.Errorf("resolve lead: %w", err)
	}
	opts.Detector.Lead = name
	opts.ExactLead = exact
	return Collect(lead, opts)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

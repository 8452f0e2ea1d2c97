package batch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/Krimson/ecg-monitory/analyzer/internal/heartbeat"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// BeatEvent удары одного отведения сессии, ставшие готовыми после батча
type BeatEvent struct {
	Key  BatchKey
	Rate float64
	// Offset абсолютный индекс отсчета, с которого начат поток; R ударов отсчитываются от него
	Offset int64
	Beats  []*heartbeat.Heartbeat
	// Exact отведение совпало с предпочтительным
	Exact bool
}

// BeatSink интерфейс для получателей ударов
type BeatSink interface {
	ConsumeBeats(ctx context.Context, ev BeatEvent) error
}

// MultiBeatSink рассылает удары нескольким получателям по порядку
type MultiBeatSink []BeatSink

func (m MultiBeatSink) ConsumeBeats(ctx context.Context, ev BeatEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.ConsumeBeats(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OptionsProvider уточняет параметры детекции для конкретной сессии
type OptionsProvider interface {
	StreamOptions(sessionID string, base heartbeat.Options) heartbeat.Options
}

type leadStream struct {
	stream *heartbeat.Stream
	rate   float64
	maxGap int64
	lead   string
	exact  bool
	offset int64
	next   int64 // следующий ожидаемый абсолютный индекс
	last   float64
}

type sessionStreams struct {
	seen    []string
	current *leadStream
}

// DetectorSink прогоняет батчи через детектор ударов. На сессию работает одно
// отведение, выбранное resolver'ом среди пришедших; остальные отведения игнорируются.
type DetectorSink struct {
	opts      heartbeat.Options
	provider  OptionsProvider
	resolver  signal.LeadResolver
	preferred string
	beats     BeatSink

	mu       sync.Mutex
	sessions map[string]*sessionStreams

	stats struct {
		mu       sync.Mutex
		ignored  int64
		late     int64
		filled   int64
		restarts int64
	}
}

// NewDetectorSink создает sink детекции
func NewDetectorSink(opts heartbeat.Options, resolver signal.LeadResolver, preferred string, beats BeatSink) *DetectorSink {
	if resolver == nil {
		resolver = signal.MatchTable{}
	}
	return &DetectorSink{
		opts:      opts,
		resolver:  resolver,
		preferred: preferred,
		beats:     beats,
		sessions:  make(map[string]*sessionStreams),
	}
}

// SetOptionsProvider подключает уточнение параметров по сессии
func (d *DetectorSink) SetOptionsProvider(p OptionsProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.provider = p
}

// Consume реализует интерфейс Sink
func (d *DetectorSink) Consume(ctx context.Context, b Batch) error {
	if len(b.Points) == 0 {
		return nil
	}

	events, err := d.process(b)
	if err != nil {
		return err
	}
	return d.emit(ctx, events)
}

func (d *DetectorSink) process(b Batch) ([]BeatEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ss, ok := d.sessions[b.Key.SessionID]
	if !ok {
		ss = &sessionStreams{}
		d.sessions[b.Key.SessionID] = ss
	}

	var events []BeatEvent
	if !slices.Contains(ss.seen, b.Key.Lead) {
		ss.seen = append(ss.seen, b.Key.Lead)
		name, exact, err := d.resolver.Resolve(d.preferred, ss.seen)
		if err != nil {
			return nil, fmt.Errorf("resolve lead: %w", err)
		}
		if ss.current == nil || ss.current.lead != name {
			if ss.current != nil {
				log.Printf("[INFO] Switching detection lead: session=%s %s -> %s (exact=%v)",
					b.Key.SessionID, ss.current.lead, name, exact)
				events = append(events, d.closeStream(b.Key.SessionID, ss.current))
			}
			ss.current = &leadStream{lead: name, exact: exact}
		}
	}

	ls := ss.current
	if ls.lead != b.Key.Lead {
		d.incIgnored(int64(len(b.Points)))
		return events, nil
	}

	points := slices.Clone(b.Points)
	slices.SortFunc(points, func(a, b Point) int {
		return cmp.Compare(a.Index, b.Index)
	})

	for _, p := range points {
		if ls.stream == nil {
			if err := d.open(b.Key.SessionID, ls, p.Index); err != nil {
				return events, err
			}
		}

		if p.Index < ls.next {
			d.incLate()
			continue
		}

		if gap := p.Index - ls.next; gap > 0 {
			if gap > ls.maxGap {
				log.Printf("[WARN] Sample gap too large, restarting detector: session=%s lead=%s gap=%d",
					b.Key.SessionID, ls.lead, gap)
				events = append(events, d.closeStream(b.Key.SessionID, ls))
				d.incRestarts()
				if err := d.open(b.Key.SessionID, ls, p.Index); err != nil {
					return events, err
				}
			} else {
				for ; ls.next < p.Index; ls.next++ {
					ls.stream.Push(ls.last)
				}
				d.incFilled(gap)
			}
		}

		ls.last = float64(p.Value)
		ls.stream.Push(ls.last)
		ls.next = p.Index + 1
	}

	if ls.stream != nil {
		var ready []*heartbeat.Heartbeat
		for hb := range ls.stream.Beats() {
			ready = append(ready, hb)
		}
		if len(ready) > 0 {
			events = append(events, d.event(b.Key.SessionID, ls, ready))
		}
	}
	return events, nil
}

// open запускает поток; заполняемый пропуск не длиннее 2 секунд сигнала
func (d *DetectorSink) open(sessionID string, ls *leadStream, first int64) error {
	opts := d.opts
	if d.provider != nil {
		opts = d.provider.StreamOptions(sessionID, opts)
	}
	opts.Detector.Lead = ls.lead
	opts.ExactLead = ls.exact
	s, err := heartbeat.NewStream(opts)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	ls.stream = s
	ls.rate = opts.Detector.Rate
	ls.maxGap = int64(2 * opts.Detector.Rate)
	ls.offset = first
	ls.next = first
	ls.last = 0
	return nil
}

// closeStream дописывает хвост потока; ls остается пригодным для повторного open
func (d *DetectorSink) closeStream(sessionID string, ls *leadStream) BeatEvent {
	var tail []*heartbeat.Heartbeat
	if ls.stream != nil {
		tail = ls.stream.Close()
	}
	ev := d.event(sessionID, ls, tail)
	ls.stream = nil
	return ev
}

func (d *DetectorSink) event(sessionID string, ls *leadStream, beats []*heartbeat.Heartbeat) BeatEvent {
	return BeatEvent{
		Key:    BatchKey{SessionID: sessionID, Lead: ls.lead},
		Rate:   ls.rate,
		Offset: ls.offset,
		Beats:  beats,
		Exact:  ls.exact,
	}
}

func (d *DetectorSink) emit(ctx context.Context, events []BeatEvent) error {
	if d.beats == nil {
		return nil
	}
	var errs []error
	for _, ev := range events {
		if len(ev.Beats) == 0 {
			continue
		}
		if err := d.beats.ConsumeBeats(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseSession завершает поток сессии и отдает оставшиеся удары
func (d *DetectorSink) CloseSession(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	ss, ok := d.sessions[sessionID]
	delete(d.sessions, sessionID)
	var events []BeatEvent
	if ok && ss.current != nil && ss.current.stream != nil {
		events = append(events, d.closeStream(sessionID, ss.current))
	}
	d.mu.Unlock()

	return d.emit(ctx, events)
}

// Sessions количество сессий с активными потоками
func (d *DetectorSink) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *DetectorSink) incIgnored(n int64) {
	d.stats.mu.Lock()
	d.stats.ignored += n
	d.stats.mu.Unlock()
}

func (d *DetectorSink) incLate() {
	d.stats.mu.Lock()
	d.stats.late++
	d.stats.mu.Unlock()
}

func (d *DetectorSink) incFilled(n int64) {
	d.stats.mu.Lock()
	d.stats.filled += n
	d.stats.mu.Unlock()
}

func (d *DetectorSink) incRestarts() {
	d.stats.mu.Lock()
	d.stats.restarts++
	d.stats.mu.Unlock()
}

// GetStats отсчеты чужих отведений, запоздавшие, заполненные пропуски и перезапуски
func (d *DetectorSink) GetStats() (ignored, late, filled, restarts int64) {
	d.stats.mu.Lock()
	defer d.stats.mu.Unlock()
	return d.stats.ignored, d.stats.late, d.stats.filled, d.stats.restarts
}

// SessionCloser сбрасывает накопленные батчи сессии в детектор и закрывает ее поток
type SessionCloser struct {
	Batcher  *Batcher
	Detector *DetectorSink
}

func (c SessionCloser) CloseSession(ctx context.Context, sessionID string) error {
	c.Batcher.Drain(ctx, sessionID)
	return c.Detector.CloseSession(ctx, sessionID)
}

package stream

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/Krimson/ecg-monitory/analyzer/internal/batch"
	"github.com/nats-io/nats.go"
)

// SampleAdder принимает блок отсчетов (batch.Batcher)
type SampleAdder interface {
	AddBlock(sessionID, lead string, first int64, values []float32) error
}

// Ingest переводит сообщения NATS с отсчетами в батчер
type Ingest struct {
	adder SampleAdder
	sub   *nats.Subscription

	mu   sync.Mutex
	next map[batch.BatchKey]int64

	stats struct {
		mu       sync.Mutex
		messages int64
		samples  int64
		rejected int64
	}
}

// NewIngest создает приемник
func NewIngest(adder SampleAdder) *Ingest {
	return &Ingest{
		adder: adder,
		next:  make(map[batch.BatchKey]int64),
	}
}

// Start подписывается на тему отсчетов, например ecg.wave.*.*
func (in *Ingest) Start(nc *nats.Conn, subject string) error {
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := in.Handle(msg); err != nil {
			log.Printf("[WARN] Rejected NATS message on %s: %v", msg.Subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	in.sub = sub
	log.Printf("[INFO] NATS ingest subscribed to %s", subject)
	return nil
}

// Stop отписывается
func (in *Ingest) Stop() error {
	if in.sub == nil {
		return nil
	}
	return in.sub.Unsubscribe()
}

// Handle разбирает одно сообщение. Индекс первого отсчета берется из заголовка,
// иначе продолжает предыдущее сообщение того же отведения.
func (in *Ingest) Handle(msg *nats.Msg) error {
	sessionID, lead, err := ParseWaveSubject(msg.Subject)
	if err != nil {
		in.reject()
		return err
	}
	values, err := DecodeSamples(msg.Data)
	if err != nil {
		in.reject()
		return err
	}
	if len(values) == 0 {
		return nil
	}

	key := batch.BatchKey{SessionID: sessionID, Lead: lead}

	in.mu.Lock()
	first := in.next[key]
	if h := msg.Header.Get(HeaderFirstIndex); h != "" {
		idx, err := strconv.ParseInt(h, 10, 64)
		if err != nil || idx < 0 {
			in.mu.Unlock()
			in.reject()
			return fmt.Errorf("bad %s header %q", HeaderFirstIndex, h)
		}
		first = idx
	}
	in.next[key] = first + int64(len(values))
	in.mu.Unlock()

	in.stats.mu.Lock()
	in.stats.messages++
	in.stats.samples += int64(len(values))
	in.stats.mu.Unlock()

	return in.adder.AddBlock(sessionID, lead, first, values)
}

// Forget сбрасывает счетчики индексов сессии
func (in *Ingest) Forget(sessionID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for key := range in.next {
		if key.SessionID == sessionID {
			delete(in.next, key)
		}
	}
}

func (in *Ingest) reject() {
	in.stats.mu.Lock()
	in.stats.rejected++
	in.stats.mu.Unlock()
}

// GetStats возвращает статистику приема
func (in *Ingest) GetStats() (messages, samples, rejected int64) {
	in.stats.mu.Lock()
	defer in.stats.mu.Unlock()
	return in.stats.messages, in.stats.samples, in.stats.rejected
}

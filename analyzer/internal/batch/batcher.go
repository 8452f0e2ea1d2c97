package batch

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/config"
)

// DropObserver получает уведомления об отброшенных отсчетах
type DropObserver interface {
	ObserveDrop(reason string)
}

type Batcher struct {
	cfg      *config.Config
	sink     Sink
	observer DropObserver
	mu       sync.RWMutex
	batches  map[BatchKey]*currentBatch

	flushChan chan Batch
	stopChan  chan struct{}
	stopOnce  sync.Once

	stats struct {
		mu         sync.RWMutex
		received   int64
		dropped    int64
		flushed    int64
		outOfOrder int64
	}
}

type LogSink struct{}

func (ls *LogSink) Consume(ctx context.Context, b Batch) error {
	log.Printf("[BATCH] session=%s lead=%s points=%d span=%d first=%d last=%d",
		b.Key.SessionID,
		b.Key.Lead,
		len(b.Points),
		b.Span(),
		b.First,
		b.Last)
	return nil
}

func NewBatcher(cfg *config.Config, sink Sink) *Batcher {
	b := &Batcher{
		cfg:       cfg,
		sink:      sink,
		batches:   make(map[BatchKey]*currentBatch),
		flushChan: make(chan Batch, 100),
		stopChan:  make(chan struct{}),
	}

	go b.flushWorker()
	go b.timerFlusher()

	return b
}

// SetObserver подключает наблюдателя за отброшенными отсчетами
func (b *Batcher) SetObserver(o DropObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = o
}

// Add добавляет отсчет. Некорректные и слишком старые отсчеты отбрасываются без ошибки.
func (b *Batcher) Add(sessionID, lead string, index int64, value float32) error {
	if err := validateSample(sessionID, lead, index, value); err != nil {
		b.drop("invalid")
		log.Printf("[WARN] Invalid sample dropped: %v", err)
		return nil
	}

	key := BatchKey{SessionID: sessionID, Lead: lead}
	point := Point{Index: index, Value: value}

	b.mu.Lock()
	defer b.mu.Unlock()

	batch, exists := b.batches[key]
	if !exists {
		batch = newCurrentBatch(key)
		b.batches[key] = batch
	}

	if exists && len(batch.Points) > 0 {
		lag := batch.Last - point.Index

		if lag > b.cfg.DropTooOld {
			b.dropLocked("too_old")
			log.Printf("[WARN] Sample too old, dropped: session=%s lead=%s lag=%d",
				key.SessionID, key.Lead, lag)
			return nil
		}

		if lag >= 0 {
			b.incrementOutOfOrder()
			log.Printf("[WARN] Out of order sample: session=%s lead=%s lag=%d",
				key.SessionID, key.Lead, lag)
		}
	}

	if len(batch.Points) > 0 {
		span := max(batch.Last, point.Index) - min(batch.First, point.Index)
		if span > b.cfg.BatchMaxSpan {
			b.flushBatch(key, batch)
			batch = newCurrentBatch(key)
			b.batches[key] = batch
		}
	}

	batch.addPoint(point, time.Now())
	b.incrementReceived()

	if batch.shouldFlushBySize(b.cfg.BatchMaxSamples) {
		b.flushBatch(key, batch)
	}

	return nil
}

// AddBlock добавляет подряд идущие отсчеты, начиная с индекса first
func (b *Batcher) AddBlock(sessionID, lead string, first int64, values []float32) error {
	for i, v := range values {
		if err := b.Add(sessionID, lead, first+int64(i), v); err != nil {
			return err
		}
	}
	return nil
}

func validateSample(sessionID, lead string, index int64, value float32) error {
	if sessionID == "" {
		return fmt.Errorf("empty session_id")
	}

	if lead == "" {
		return fmt.Errorf("empty lead")
	}

	if index < 0 {
		return fmt.Errorf("invalid index: %d", index)
	}

	if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return fmt.Errorf("invalid value: %f", value)
	}

	return nil
}

func (b *Batcher) flushBatch(key BatchKey, batch *currentBatch) {
	if len(batch.Points) == 0 {
		return
	}

	batchCopy := batch.clone()

	batch.reset()

	select {
	case b.flushChan <- batchCopy:
		b.incrementFlushed()
	default:
		log.Printf("[WARN] Flush channel full, batch dropped: session=%s lead=%s", key.SessionID, key.Lead)
		b.dropLocked("channel_full")
	}
}

func (b *Batcher) flushWorker() {
	for {
		select {
		case batch := <-b.flushChan:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.sink.Consume(ctx, batch); err != nil {
				log.Printf("[ERROR] Failed to consume batch: %v", err)
			}
			cancel()

		case <-b.stopChan:
			return
		}
	}
}

func (b *Batcher) timerFlusher() {
	ticker := time.NewTicker(b.cfg.FlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushOldBatches()

		case <-b.stopChan:
			return
		}
	}
}

func (b *Batcher) flushOldBatches() {
	now := time.Now()
	interval := b.cfg.FlushInterval()

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, batch := range b.batches {
		if len(batch.Points) > 0 && now.Sub(batch.lastAdded) > interval {
			b.flushBatch(key, batch)
		}
	}
}

// Drain отдает текущие батчи сессии в sink синхронно, минуя очередь
func (b *Batcher) Drain(ctx context.Context, sessionID string) {
	var pending []Batch

	b.mu.Lock()
	for key, batch := range b.batches {
		if key.SessionID != sessionID {
			continue
		}
		if len(batch.Points) > 0 {
			pending = append(pending, batch.clone())
		}
		delete(b.batches, key)
	}
	b.mu.Unlock()

	for _, batch := range pending {
		if err := b.sink.Consume(ctx, batch); err != nil {
			log.Printf("[ERROR] Failed to consume drained batch: %v", err)
			continue
		}
		b.incrementFlushed()
	}
}

func (b *Batcher) Stop() {
	log.Printf("[INFO] Stopping batcher...")

	b.flushAllBatches()

	for len(b.flushChan) > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	b.stopOnce.Do(func() { close(b.stopChan) })

	b.logStats()
}

func (b *Batcher) flushAllBatches() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, batch := range b.batches {
		if len(batch.Points) > 0 {
			b.flushBatch(key, batch)
		}
	}
}

func (b *Batcher) drop(reason string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.dropLocked(reason)
}

// dropLocked вызывается под b.mu
func (b *Batcher) dropLocked(reason string) {
	b.incrementDropped()
	if b.observer != nil {
		b.observer.ObserveDrop(reason)
	}
}

// Методы для работы со статистикой
func (b *Batcher) incrementReceived() {
	b.stats.mu.Lock()
	b.stats.received++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementDropped() {
	b.stats.mu.Lock()
	b.stats.dropped++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementFlushed() {
	b.stats.mu.Lock()
	b.stats.flushed++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementOutOfOrder() {
	b.stats.mu.Lock()
	b.stats.outOfOrder++
	b.stats.mu.Unlock()
}

func (b *Batcher) logStats() {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()

	log.Printf("[STATS] received=%d dropped=%d flushed=%d out_of_order=%d",
		b.stats.received,
		b.stats.dropped,
		b.stats.flushed,
		b.stats.outOfOrder)
}

func (b *Batcher) GetStats() (received, dropped, flushed, outOfOrder int64) {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()

	return b.stats.received, b.stats.dropped, b.stats.flushed, b.stats.outOfOrder
}

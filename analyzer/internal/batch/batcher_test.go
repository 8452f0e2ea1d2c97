package batch

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/config"
	"github.com/Krimson/ecg-monitory/analyzer/internal/heartbeat"
)

// TestSink для тестирования - собирает все батчи
type TestSink struct {
	mu      sync.Mutex
	batches []Batch
}

func (ts *TestSink) Consume(ctx context.Context, b Batch) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.batches = append(ts.batches, b)
	return nil
}

func (ts *TestSink) GetBatches() []Batch {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	result := make([]Batch, len(ts.batches))
	copy(result, ts.batches)
	return result
}

// TestBeatSink собирает события ударов
type TestBeatSink struct {
	mu     sync.Mutex
	events []BeatEvent
}

func (ts *TestBeatSink) ConsumeBeats(ctx context.Context, ev BeatEvent) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.events = append(ts.events, ev)
	return nil
}

// Peaks абсолютные положения R всех полученных ударов
func (ts *TestBeatSink) Peaks() []int64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []int64
	for _, ev := range ts.events {
		for _, b := range ev.Beats {
			out = append(out, ev.Offset+b.QRS.R)
		}
	}
	return out
}

type countingObserver struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (o *countingObserver) ObserveDrop(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reasons == nil {
		o.reasons = make(map[string]int)
	}
	o.reasons[reason]++
}

func TestBatcher_FlushBySize(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 3,
		BatchMaxSpan:    30000,
		FlushIntervalMS: 500,
		DropTooOld:      30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	// 5 отсчетов подряд - один полный батч из 3, 2 остаются
	for i := int64(0); i < 5; i++ {
		if err := batcher.Add("session1", "II", i, float32(i)*0.1); err != nil {
			t.Fatalf("Failed to add sample: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Errorf("Expected 1 flushed batch, got %d", len(batches))
	}

	if len(batches) > 0 && len(batches[0].Points) != 3 {
		t.Errorf("Expected 3 points in first batch, got %d", len(batches[0].Points))
	}
}

func TestBatcher_FlushBySpan(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpan:    100,
		FlushIntervalMS: 500,
		DropTooOld:      30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	for _, idx := range []int64{0, 50, 110} { // на 110 разброс превышает 100
		if err := batcher.Add("session1", "II", idx, 0.5); err != nil {
			t.Fatalf("Failed to add sample: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 flushed batch, got %d", len(batches))
	}

	// Флашится батч с первыми двумя точками, третья остается в новом батче
	if len(batches[0].Points) != 2 {
		t.Errorf("Expected 2 points in flushed batch, got %d", len(batches[0].Points))
	}
	if batches[0].Span() != 50 {
		t.Errorf("Expected span of 50 samples, got %d", batches[0].Span())
	}
}

func TestBatcher_OutOfOrder(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpan:    30000,
		FlushIntervalMS: 500,
		DropTooOld:      1000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)

	for _, idx := range []int64{0, 50, 20} {
		if err := batcher.Add("session1", "II", idx, 0.5); err != nil {
			t.Fatalf("Failed to add sample: %v", err)
		}
	}

	// Останавливаем batcher, чтобы все батчи были сброшены
	batcher.Stop()

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}
	if len(batches[0].Points) != 3 || batches[0].First != 0 || batches[0].Last != 50 {
		t.Errorf("Unexpected batch: first=%d last=%d points=%d",
			batches[0].First, batches[0].Last, len(batches[0].Points))
	}

	_, _, _, outOfOrder := batcher.GetStats()
	if outOfOrder != 1 {
		t.Errorf("Expected 1 out of order sample, got %d", outOfOrder)
	}
}

func TestBatcher_DropTooOld(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpan:    30000,
		FlushIntervalMS: 500,
		DropTooOld:      200,
	}

	sink := &TestSink{}
	observer := &countingObserver{}
	batcher := NewBatcher(cfg, sink)
	batcher.SetObserver(observer)
	defer batcher.Stop()

	for _, idx := range []int64{1000, 1250, 10} { // 10 отстает на 1240 отсчетов
		if err := batcher.Add("session1", "II", idx, 0.5); err != nil {
			t.Fatalf("Failed to add sample: %v", err)
		}
	}

	received, dropped, _, _ := batcher.GetStats()
	if received != 2 {
		t.Errorf("Expected 2 received samples, got %d", received)
	}
	if dropped != 1 {
		t.Errorf("Expected 1 dropped sample, got %d", dropped)
	}
	if observer.reasons["too_old"] != 1 {
		t.Errorf("Expected observer to see the drop, got %v", observer.reasons)
	}
}

func TestBatcher_InvalidSamplesDropped(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpan:    30000,
		FlushIntervalMS: 500,
		DropTooOld:      30000,
	}

	batcher := NewBatcher(cfg, &TestSink{})
	defer batcher.Stop()

	_ = batcher.Add("", "II", 0, 0.1)
	_ = batcher.Add("session1", "", 0, 0.1)
	_ = batcher.Add("session1", "II", -1, 0.1)
	_ = batcher.Add("session1", "II", 0, float32(math.NaN()))

	received, dropped, _, _ := batcher.GetStats()
	if received != 0 || dropped != 4 {
		t.Errorf("Expected 4 dropped and 0 received, got dropped=%d received=%d", dropped, received)
	}
}

func TestBatcher_TimerFlush(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpan:    30000,
		FlushIntervalMS: 100, // Очень частая проверка
		DropTooOld:      30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	if err := batcher.Add("session1", "II", 0, 0.5); err != nil {
		t.Fatalf("Failed to add sample: %v", err)
	}

	// Ждем, пока таймер сработает
	time.Sleep(350 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Errorf("Expected 1 batch flushed by timer, got %d", len(batches))
	}

	if len(batches) > 0 && len(batches[0].Points) != 1 {
		t.Errorf("Expected 1 point in batch, got %d", len(batches[0].Points))
	}
}

func TestBatcher_MultipleLeads(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 2,
		BatchMaxSpan:    30000,
		FlushIntervalMS: 500,
		DropTooOld:      30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	// Отсчеты разных отведений - должны быть в разных батчах
	_ = batcher.Add("session1", "II", 0, 0.1)
	_ = batcher.Add("session1", "V1", 0, 0.2)
	_ = batcher.Add("session1", "II", 1, 0.1) // Флаш II
	_ = batcher.Add("session1", "V1", 1, 0.2) // Флаш V1

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 2 {
		t.Errorf("Expected 2 batches (one per lead), got %d", len(batches))
	}
}

func TestBatcher_DrainIsSynchronous(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpan:    30000,
		FlushIntervalMS: 10000,
		DropTooOld:      30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	_ = batcher.AddBlock("session1", "II", 0, []float32{0.1, 0.2, 0.3})
	_ = batcher.AddBlock("session2", "II", 0, []float32{0.1})

	batcher.Drain(context.Background(), "session1")

	batches := sink.GetBatches()
	if len(batches) != 1 || batches[0].Key.SessionID != "session1" || len(batches[0].Points) != 3 {
		t.Errorf("Expected only session1 batch with 3 points, got %+v", batches)
	}
}

func pulseTrain(fs float64, rr, n, first int) ([]float64, []int64) {
	length := first + rr*(n-1) + int(2*fs) + rr
	sig := make([]float64, length)
	peaks := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		c := first + i*rr
		peaks = append(peaks, int64(c))
		for j := -15; j <= 15; j++ {
			x := float64(j)
			sig[c+j] += math.Exp(-0.5*(x/3)*(x/3)) -
				0.15*math.Exp(-0.5*((x+6)/2)*((x+6)/2)) -
				0.25*math.Exp(-0.5*((x-6)/2.5)*((x-6)/2.5))
		}
	}
	return sig, peaks
}

func toBatches(key BatchKey, data []float64, first int64, size int) []Batch {
	var out []Batch
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		b := Batch{Key: key, First: first + int64(start), Last: first + int64(end-1)}
		for i := start; i < end; i++ {
			b.Points = append(b.Points, Point{Index: first + int64(i), Value: float32(data[i])})
		}
		out = append(out, b)
	}
	return out
}

func TestDetectorSink_DetectsBeatsWithOffset(t *testing.T) {
	const fs = 250.0
	const first = 1000
	data, peaks := pulseTrain(fs, 200, 15, 125)

	beats := &TestBeatSink{}
	sink := NewDetectorSink(heartbeat.DefaultOptions(fs), nil, "II", beats)
	ctx := context.Background()

	for _, b := range toBatches(BatchKey{SessionID: "s1", Lead: "II"}, data, first, 250) {
		if err := sink.Consume(ctx, b); err != nil {
			t.Fatalf("Consume failed: %v", err)
		}
	}
	if err := sink.CloseSession(ctx, "s1"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	got := beats.Peaks()
	if len(got) != len(peaks) {
		t.Fatalf("Expected %d beats, got %d", len(peaks), len(got))
	}
	for i := range peaks {
		if got[i] != peaks[i]+first {
			t.Errorf("beat %d: R=%d, want %d", i, got[i], peaks[i]+first)
		}
	}
	if sink.Sessions() != 0 {
		t.Errorf("Closed session must be released, have %d", sink.Sessions())
	}
}

func TestDetectorSink_FillsSmallGapsAndSkipsLate(t *testing.T) {
	beats := &TestBeatSink{}
	sink := NewDetectorSink(heartbeat.DefaultOptions(250), nil, "II", beats)
	ctx := context.Background()
	key := BatchKey{SessionID: "s1", Lead: "II"}

	_ = sink.Consume(ctx, Batch{Key: key, Points: []Point{{Index: 0}, {Index: 1}, {Index: 5}}})
	_ = sink.Consume(ctx, Batch{Key: key, Points: []Point{{Index: 3}, {Index: 6}}})

	_, late, filled, restarts := sink.GetStats()
	if filled != 3 || late != 1 || restarts != 0 {
		t.Errorf("Expected filled=3 late=1 restarts=0, got filled=%d late=%d restarts=%d", filled, late, restarts)
	}

	_ = sink.Consume(ctx, Batch{Key: key, Points: []Point{{Index: 5000}}})
	if _, _, _, restarts := sink.GetStats(); restarts != 1 {
		t.Errorf("Expected restart on a large gap, got %d", restarts)
	}
}

func TestDetectorSink_PrefersExactLead(t *testing.T) {
	beats := &TestBeatSink{}
	sink := NewDetectorSink(heartbeat.DefaultOptions(250), nil, "II", beats)
	ctx := context.Background()

	v1 := BatchKey{SessionID: "s1", Lead: "V1"}
	ii := BatchKey{SessionID: "s1", Lead: "II"}

	_ = sink.Consume(ctx, Batch{Key: v1, Points: []Point{{Index: 0}, {Index: 1}}})
	_ = sink.Consume(ctx, Batch{Key: ii, Points: []Point{{Index: 0}, {Index: 1}}})
	_ = sink.Consume(ctx, Batch{Key: v1, Points: []Point{{Index: 2}, {Index: 3}, {Index: 4}}})

	ignored, _, _, _ := sink.GetStats()
	if ignored != 3 {
		t.Errorf("Expected V1 samples ignored after II arrived, got %d", ignored)
	}
}

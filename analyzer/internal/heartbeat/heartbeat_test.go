package heartbeat

import (
	"math"
	"testing"

	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

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

func TestCollect_ChainIsLinked(t *testing.T) {
	const fs = 250.0
	data, peaks := pulseTrain(fs, 200, 15, 125)

	beats, err := Collect(signal.NewSlice(data, fs), DefaultOptions(fs))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(beats) != len(peaks) {
		t.Fatalf("Expected %d beats, got %d", len(peaks), len(beats))
	}

	for i, b := range beats {
		if !b.Finalized() {
			t.Errorf("beat %d is not finalized", i)
		}
		if b.QRS.R != peaks[i] {
			t.Errorf("beat %d: R=%d, want %d", i, b.QRS.R, peaks[i])
		}
		if b.QRS.Beat != b.Handle {
			t.Errorf("beat %d: complex owner %d != handle %d", i, b.QRS.Beat, b.Handle)
		}
		if i == 0 {
			if b.Prev != NoHandle {
				t.Errorf("first beat has prev=%d", b.Prev)
			}
			continue
		}
		prev := beats[i-1]
		if b.Prev != prev.Handle || prev.Next != b.Handle {
			t.Errorf("beat %d is not linked both ways with %d", i, i-1)
		}
		if prev.RR != 200 {
			t.Errorf("beat %d: RR=%d, want 200", i-1, prev.RR)
		}
	}

	last := beats[len(beats)-1]
	if last.Next != NoHandle || last.RR != 0 {
		t.Errorf("last beat must have no next link: next=%d rr=%d", last.Next, last.RR)
	}
}

func TestCollect_AbsentWavesStayNil(t *testing.T) {
	const fs = 250.0
	data, _ := pulseTrain(fs, 200, 5, 125)

	// у импульсной последовательности нет ни P, ни T волн
	beats, err := Collect(signal.NewSlice(data, fs), DefaultOptions(fs))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, b := range beats {
		if b.P != nil || b.T != nil {
			t.Errorf("beat %d: expected no waves, got P=%v T=%v", b.Handle, b.P, b.T)
		}
	}
}

func TestReplay_StopsEarly(t *testing.T) {
	const fs = 250.0
	data, _ := pulseTrain(fs, 200, 10, 125)

	n := 0
	for range Replay(signal.NewSlice(data, fs), DefaultOptions(fs)) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("Expected iteration to stop at 3, got %d", n)
	}
}

func TestCollect_SyntheticECG(t *testing.T) {
	cfg := signal.DefaultSynthConfig()
	cfg.Noise = 0
	cfg.Variability = 0
	synth := signal.NewSynthesizer(cfg)
	data := synth.Generate(int(20 * cfg.Rate))
	peaks := synth.Peaks()

	beats, err := Collect(signal.NewSlice(data, cfg.Rate), DefaultOptions(cfg.Rate))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(beats) > len(peaks)+1 {
		t.Fatalf("Too many beats: %d for %d peaks", len(beats), len(peaks))
	}

	found := make(map[int64]bool)
	for _, b := range beats {
		found[b.QRS.R] = true
	}
	limit := int64(len(data)) - int64(2*cfg.Rate)
	for _, p := range peaks {
		if p >= limit {
			continue
		}
		ok := false
		for d := int64(-3); d <= 3; d++ {
			ok = ok || found[p+d]
		}
		if !ok {
			t.Errorf("R-peak at %d was not detected", p)
		}
	}
}

func TestCollect_ReportsStreamErrors(t *testing.T) {
	data, _ := pulseTrain(250, 200, 5, 125)

	if _, err := Collect(signal.NewSlice(data, 0), DefaultOptions(250)); err == nil {
		t.Error("Expected error for zero sampling rate")
	}

	opts := DefaultOptions(250)
	opts.Method = "wavelet"
	if _, err := Collect(signal.NewSlice(data, 250), opts); err == nil {
		t.Error("Expected error for unknown method")
	}
}

func TestAssembler_FinalizesOnNext(t *testing.T) {
	raw := signal.NewSlice(make([]float64, 1000), 250)
	var called []Handle
	asm := NewAssembler(raw, nil, nil, nil, func(b *Heartbeat) {
		called = append(called, b.Handle)
	})

	for i, r := range []int64{100, 300, 520} {
		asm.Add(&qrs.Complex{Seq: qrs.Handle(i), R: r, Template: []float64{0}})
	}

	if len(called) != 2 {
		t.Fatalf("Expected 2 finalized beats before flush, got %d", len(called))
	}
	if last, _ := asm.Chain().Last(); last.Finalized() {
		t.Error("Last beat must wait for the next complex or flush")
	}

	asm.Flush()
	if len(called) != 3 || asm.Pending() != 3 {
		t.Errorf("Expected 3 beats after flush, callback=%d queue=%d", len(called), asm.Pending())
	}

	var rr []int64
	for b := range asm.Ready() {
		rr = append(rr, b.RR)
	}
	if len(rr) != 3 || rr[0] != 200 || rr[1] != 220 || rr[2] != 0 {
		t.Errorf("Unexpected RR values: %v", rr)
	}
}

func TestChain_Bounded(t *testing.T) {
	c := NewChain(3)
	for i := 0; i < 5; i++ {
		c.Append(&Heartbeat{})
	}

	if c.Len() != 3 || c.Total() != 5 {
		t.Errorf("Expected 3 stored of 5 total, got %d of %d", c.Len(), c.Total())
	}
	if _, ok := c.Get(1); ok {
		t.Error("Pruned handle must not resolve")
	}
	if b, ok := c.Get(4); !ok || b.Handle != 4 {
		t.Error("Newest handle must resolve")
	}
}

func TestWindowPeakFinder_FindsTWave(t *testing.T) {
	const fs = 250.0
	data := make([]float64, 500)
	for i := range data {
		x := float64(i - 260)
		data[i] = 0.3 * math.Exp(-0.5*(x/10)*(x/10))
	}
	sig := signal.NewSlice(data, fs)
	c := &qrs.Complex{R: 200, Template: []float64{0}}

	w, ok := DefaultTFinder().FindWave(sig, c)
	if !ok {
		t.Fatal("Expected T wave")
	}
	if w.Peak != 260 {
		t.Errorf("Expected peak at 260, got %d", w.Peak)
	}
	if !(w.Onset < w.Peak && w.Peak < w.Offset) {
		t.Errorf("Bad wave bounds: %+v", w)
	}

	if _, ok := DefaultPFinder().FindWave(sig, c); ok {
		t.Error("Expected no P wave on flat segment")
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod("Classical"); err != nil || m != MethodClassical {
		t.Errorf("ParseMethod(Classical) = %v, %v", m, err)
	}
	if _, err := ParseMethod("wavelet"); err == nil {
		t.Error("Expected error for unknown method")
	}
}

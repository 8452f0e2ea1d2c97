package qrs

import (
	"errors"
	"math"
	"testing"

	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// pulseTrain синтетический сигнал: одинаковые QRS-комплексы с шагом rr отсчетов
// и хвостом, достаточным для выхода последнего комплекса из детектора
func pulseTrain(fs float64, rr, n, first int) ([]float64, []int64) {
	length := first + rr*(n-1) + int(2*fs) + rr
	sig := make([]float64, length)
	peaks := make([]int64, 0, n)

	for i := 0; i < n; i++ {
		c := first + i*rr
		peaks = append(peaks, int64(c))
		for j := -15; j <= 15; j++ {
			if c+j < 0 || c+j >= length {
				continue
			}
			x := float64(j)
			sig[c+j] += math.Exp(-0.5*(x/3)*(x/3)) -
				0.15*math.Exp(-0.5*((x+6)/2)*((x+6)/2)) -
				0.25*math.Exp(-0.5*((x-6)/2.5)*((x-6)/2.5))
		}
	}
	return sig, peaks
}

// localMax тестовое уточнение: максимум в окне ±radius
type localMax struct{ radius int64 }

func (m localMax) Refine(c *Complex, sig signal.Signal) int64 {
	best, bestValue := c.R, math.Inf(-1)
	for i := c.R - m.radius; i <= c.R+m.radius; i++ {
		v, err := sig.Sample(i)
		if err != nil {
			return 0
		}
		if v > bestValue {
			best, bestValue = i, v
		}
	}
	old := c.R
	c.R = best
	return old - best
}

func (m localMax) Reach(float64) int64 { return m.radius }

func run(d Detector, sig []float64) []*Complex {
	var out []*Complex
	for _, x := range sig {
		if c, ok := d.Next(x); ok {
			out = append(out, c)
		}
	}
	return out
}

func TestKnowledgeBased_DetectsEveryPulse(t *testing.T) {
	const fs = 250.0
	sig, peaks := pulseTrain(fs, 200, 20, 125)

	d := NewKnowledgeBased(DefaultConfig(fs), nil)
	found := run(d, sig)

	if len(found) != len(peaks) {
		t.Fatalf("Expected %d complexes, got %d", len(peaks), len(found))
	}
	for i, c := range found {
		if diff := c.R - peaks[i]; diff < -8 || diff > 8 {
			t.Errorf("complex %d: R=%d, true peak %d", i, c.R, peaks[i])
		}
		if !c.Finalized() {
			t.Errorf("complex %d is not finalized", i)
		}
	}
}

func TestKnowledgeBased_RefinedPeaksAreExact(t *testing.T) {
	const fs = 250.0
	sig, peaks := pulseTrain(fs, 200, 20, 125)

	d := NewKnowledgeBased(DefaultConfig(fs), localMax{radius: 20})
	found := run(d, sig)

	if len(found) != len(peaks) {
		t.Fatalf("Expected %d complexes, got %d", len(peaks), len(found))
	}
	for i, c := range found {
		if c.R != peaks[i] {
			t.Errorf("complex %d: R=%d, want %d (displacement %d)", i, c.R, peaks[i], c.Displacement)
		}
		if c.RAmplitude < 0.99 {
			t.Errorf("complex %d: R amplitude %v", i, c.RAmplitude)
		}
		if !(c.Q < c.R && c.R < c.S) || c.QAmplitude >= 0 || c.SAmplitude >= 0 {
			t.Errorf("complex %d: bad Q/S: Q=%d(%v) S=%d(%v)", i, c.Q, c.QAmplitude, c.S, c.SAmplitude)
		}
	}
}

func TestKnowledgeBased_LinksAndTemplate(t *testing.T) {
	const fs = 250.0
	sig, _ := pulseTrain(fs, 200, 10, 125)

	found := run(NewKnowledgeBased(DefaultConfig(fs), localMax{radius: 20}), sig)
	if len(found) < 2 {
		t.Fatalf("Expected several complexes, got %d", len(found))
	}

	if found[0].Prev != NoHandle {
		t.Errorf("First complex must have no previous link, got %d", found[0].Prev)
	}
	for i := 1; i < len(found); i++ {
		if found[i].Seq != found[i-1].Seq+1 {
			t.Errorf("Sequence gap between %d and %d", found[i-1].Seq, found[i].Seq)
		}
		if found[i].Prev != found[i-1].Seq || found[i-1].Next != found[i].Seq {
			t.Errorf("complex %d not linked to its predecessor", i)
		}
		if found[i].Correlation < 0.99 {
			t.Errorf("complex %d: template correlation %v", i, found[i].Correlation)
		}
	}

	window := int64(math.Round(0.12*fs)) + int64(math.Round(0.28*fs)) + 1
	if int64(len(found[0].Template)) != window {
		t.Errorf("Expected template of %d samples, got %d", window, len(found[0].Template))
	}
	if found[0].Stats.Energy <= 0 || found[0].Stats.Peak < 0.99 {
		t.Errorf("Unexpected stats: %+v", found[0].Stats)
	}
}

func TestKnowledgeBased_NoDetectionOnFlatSignal(t *testing.T) {
	d := NewKnowledgeBased(DefaultConfig(250), nil)
	found := run(d, make([]float64, 2500))
	if len(found) != 0 {
		t.Errorf("Expected no complexes on flat signal, got %d", len(found))
	}
	if d.State() != Idle {
		t.Errorf("Expected idle state, got %s", d.State())
	}
}

// feedBlocks подает автомату блоки над порогом [from, to) с максимумом энергии в середине
func feedBlocks(d *KnowledgeBased, end int64, blocks ...[2]int64) {
	for k := int64(0); k < end; k++ {
		above, energy := false, 0.0
		for _, b := range blocks {
			if k >= b[0] && k < b[1] {
				above = true
				energy = 1 / (1 + math.Abs(float64(k-(b[0]+b[1])/2)))
			}
		}
		d.step(k, energy, above)
		// в живом потоке хвост сигнала к этому моменту уже накоплен и комплекс выдан
		if d.state == RLocated {
			d.state = Idle
		}
	}
}

func TestKnowledgeBased_NarrowBlockRejected(t *testing.T) {
	d := NewKnowledgeBased(DefaultConfig(250), nil)
	narrow := [2]int64{100, 100 + d.minBlock/2}

	feedBlocks(d, 300, narrow)
	if len(d.fin.pending) != 0 || d.State() != Idle {
		t.Errorf("Narrow block must not produce a complex: pending=%d state=%s", len(d.fin.pending), d.State())
	}
}

func TestKnowledgeBased_BlockAfterNarrowIsSkipped(t *testing.T) {
	d := NewKnowledgeBased(DefaultConfig(250), nil)
	feedBlocks(d, 800, [2]int64{100, 100 + d.minBlock/2}, [2]int64{200, 240}, [2]int64{400, 440})

	if len(d.fin.pending) != 1 {
		t.Fatalf("Expected only the third block to be located, got %d", len(d.fin.pending))
	}
	if got, want := d.fin.pending[0].R, 420-d.bpDelay; got != want {
		t.Errorf("Expected R=%d, got %d", want, got)
	}

	clean := NewKnowledgeBased(DefaultConfig(250), nil)
	feedBlocks(clean, 800, [2]int64{200, 240}, [2]int64{400, 440})
	if len(clean.fin.pending) != 2 {
		t.Errorf("Expected both blocks located without noise, got %d", len(clean.fin.pending))
	}
}

func TestKnowledgeBased_RefractoryBlocksRisingEdge(t *testing.T) {
	d := NewKnowledgeBased(DefaultConfig(250), nil)
	// второй блок начинается через 17 отсчетов после R первого
	feedBlocks(d, 800, [2]int64{100, 130}, [2]int64{132, 180})

	if len(d.fin.pending) != 1 {
		t.Errorf("Block inside refractory period must be skipped, got %d located", len(d.fin.pending))
	}
}

func TestDetectors_RespectRefractory(t *testing.T) {
	const fs = 250.0
	sig, _ := pulseTrain(fs, 200, 20, 125)
	// дублет через 80 мс после каждого основного импульса
	echo, _ := pulseTrain(fs, 200, 20, 145)
	for i := range sig {
		sig[i] += 0.8 * echo[i]
	}
	cfg := DefaultConfig(fs)

	for name, d := range map[string]Detector{
		"knowledge": NewKnowledgeBased(cfg, nil),
		"classical": NewClassical(cfg, nil),
	} {
		refractory := cfg.samples(cfg.Refractory)
		if name == "classical" {
			refractory = cfg.samples(0.2)
		}
		found := run(d, sig)
		if len(found) == 0 {
			t.Errorf("%s: expected detections", name)
			continue
		}
		for i := 1; i < len(found); i++ {
			if gap := found[i].R - found[i-1].R; gap < refractory {
				t.Errorf("%s: complexes %d and %d are %d samples apart, refractory %d",
					name, i-1, i, gap, refractory)
			}
		}
	}
}

func TestDescribe_Moments(t *testing.T) {
	st := describe([]float64{1, 2, 3, 4, 10})
	if st.Mean != 4 || st.Peak != 10 || st.Energy != 130 {
		t.Errorf("Unexpected mean/peak/energy: %+v", st)
	}
	if math.Abs(st.Variance-12.5) > 1e-9 {
		t.Errorf("Expected sample variance 12.5, got %v", st.Variance)
	}
	if st.Skewness <= 0 {
		t.Errorf("Right tail must give positive skewness, got %v", st.Skewness)
	}

	if flat := describe([]float64{2, 2, 2, 2}); flat.Variance != 0 || flat.Skewness != 0 || flat.Kurtosis != 0 {
		t.Errorf("Constant window must have zero moments: %+v", flat)
	}
	if short := describe([]float64{1, 3}); short.Mean != 2 || short.Variance != 0 {
		t.Errorf("Short window keeps only mean and energy: %+v", short)
	}
}

func TestComplex_FinalizeOnce(t *testing.T) {
	sig := signal.NewSlice([]float64{0, 0.2, 1, 0.2, 0}, 250)
	c := newComplex(0, 2, "II")

	w := Window{Pre: 2, Post: 2, QS: 1}
	if err := c.Finalize(sig, w); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if c.RAmplitude != 1 || len(c.Template) != 5 {
		t.Errorf("Unexpected morphology: amp=%v template=%v", c.RAmplitude, c.Template)
	}
	if err := c.Finalize(sig, w); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("Expected ErrAlreadyFinalized, got %v", err)
	}
}

func TestClassical_DetectsAfterLearning(t *testing.T) {
	const fs = 250.0
	sig, peaks := pulseTrain(fs, 200, 20, 125)

	found := run(NewClassical(DefaultConfig(fs), nil), sig)

	// пики внутри периода обучения не детектируются
	var expected []int64
	for _, p := range peaks {
		if p > int64(2*fs) {
			expected = append(expected, p)
		}
	}
	if len(found) != len(expected) {
		t.Fatalf("Expected %d complexes, got %d", len(expected), len(found))
	}
	for i, c := range found {
		if diff := c.R - expected[i]; diff < -2 || diff > 2 {
			t.Errorf("complex %d: R=%d, true peak %d", i, c.R, expected[i])
		}
	}
}

func TestClassical_RefinedPeaksAreExact(t *testing.T) {
	const fs = 250.0
	sig, peaks := pulseTrain(fs, 200, 20, 125)

	found := run(NewClassical(DefaultConfig(fs), localMax{radius: 20}), sig)
	if len(found) == 0 {
		t.Fatal("Expected detections")
	}

	truth := make(map[int64]bool, len(peaks))
	for _, p := range peaks {
		truth[p] = true
	}
	for _, c := range found {
		if !truth[c.R] {
			t.Errorf("Refined R=%d does not match any pulse", c.R)
		}
	}
}

func TestTemplate_RejectsDissimilar(t *testing.T) {
	var tpl Template
	base := []float64{0, 1, 3, 1, 0}
	tpl.Update(base, 0)

	inverted := []float64{0, -1, -3, -1, 0}
	corr := tpl.Correlate(inverted)
	if corr > -0.99 {
		t.Errorf("Expected strong negative correlation, got %v", corr)
	}
	if tpl.Update(inverted, corr) {
		t.Error("Dissimilar complex must not update the template")
	}
	if tpl.Count() != 1 {
		t.Errorf("Expected template count 1, got %d", tpl.Count())
	}
}

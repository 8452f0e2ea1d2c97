package filter

import (
	"errors"
	"math"
	"testing"
)

func TestDigital_IdentityCoefficients(t *testing.T) {
	f, err := NewDigital([]float64{1}, []float64{1}, 0)
	if err != nil {
		t.Fatalf("NewDigital failed: %v", err)
	}

	for _, x := range []float64{0.5, -3, 7.25, 0, 1e-3} {
		if y := f.Next(x); y != x {
			t.Errorf("Next(%v) = %v, want %v", x, y, x)
		}
	}
}

func TestDigital_FirstOrderImpulseResponse(t *testing.T) {
	f, err := NewDigital([]float64{0.5}, []float64{1, -0.5}, 0)
	if err != nil {
		t.Fatalf("NewDigital failed: %v", err)
	}

	want := []float64{0.5, 0.25, 0.125, 0.0625}
	for i, w := range want {
		x := 0.0
		if i == 0 {
			x = 1
		}
		if y := f.Next(x); math.Abs(y-w) > 1e-12 {
			t.Errorf("step %d: got %v, want %v", i, y, w)
		}
	}
}

func TestDigital_InvalidSpec(t *testing.T) {
	cases := []struct {
		name string
		b, a []float64
	}{
		{"empty b", nil, []float64{1}},
		{"zero b", []float64{0, 0}, []float64{1}},
		{"empty a", []float64{1}, nil},
		{"zero a0", []float64{1}, []float64{0, 1}},
	}

	for _, tc := range cases {
		if _, err := NewDigital(tc.b, tc.a, 0); !errors.Is(err, ErrInvalidFilterSpec) {
			t.Errorf("%s: expected ErrInvalidFilterSpec, got %v", tc.name, err)
		}
	}
}

func TestQRSBand_NearestRate(t *testing.T) {
	cases := map[float64]float64{
		240:  250,
		250:  250,
		300:  256,
		400:  360,
		2000: 1000,
		100:  128,
	}
	for fs, want := range cases {
		if got := QRSBand(fs).Rate; got != want {
			t.Errorf("QRSBand(%v).Rate = %v, want %v", fs, got, want)
		}
	}
}

func TestBandpass_UnitGainAtCenter(t *testing.T) {
	const fs = 250.0
	center := math.Sqrt(8 * 20)
	f := NewBandpass(QRSBand(fs))

	peak := 0.0
	for n := 0; n < int(4*fs); n++ {
		y := f.Next(math.Sin(2 * math.Pi * center * float64(n) / fs))
		if n >= int(3*fs) {
			peak = max(peak, math.Abs(y))
		}
	}

	if math.Abs(peak-1) > 0.05 {
		t.Errorf("Expected unit gain at %.2f Hz, got %.3f", center, peak)
	}
}

func TestMovingAverage_GroupDelay(t *testing.T) {
	ma := NewMovingAverage(4)
	if ma.Len() != 5 {
		t.Errorf("Expected window rounded up to 5, got %d", ma.Len())
	}
	if ma.GroupDelay() != 2 {
		t.Errorf("Expected delay 2, got %d", ma.GroupDelay())
	}
	if OddWindow(0.097, 250) != 25 || OddWindow(0.611, 250) != 153 || OddWindow(2, 250) != 501 {
		t.Error("Unexpected odd window lengths at 250 Hz")
	}
}

func TestCascade_DelayIsSum(t *testing.T) {
	c := Cascade{NewDerivative(250), Square{}, NewMovingAverage(39)}
	if c.GroupDelay() != 2+0+19 {
		t.Errorf("Expected cascade delay 21, got %d", c.GroupDelay())
	}
}

func TestPipeline_AlignsOutputs(t *testing.T) {
	p := NewPipeline(Identity{}, NewMovingAverage(5))
	if p.MaxDelay() != 2 {
		t.Fatalf("Expected max delay 2, got %d", p.MaxDelay())
	}

	// на линейном сигнале центрированное среднее совпадает с задержанным входом
	for n := 0; n < 20; n++ {
		out := p.Next(float64(n))
		if n < 4 {
			continue
		}
		if math.Abs(out[0]-float64(n-2)) > 1e-9 {
			t.Errorf("n=%d: identity aligned to %v, want %v", n, out[0], n-2)
		}
		if math.Abs(out[1]-out[0]) > 1e-9 {
			t.Errorf("n=%d: outputs not aligned: %v vs %v", n, out[1], out[0])
		}
	}
}

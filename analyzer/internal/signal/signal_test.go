package signal

import (
	"errors"
	"strings"
	"testing"

	"github.com/Krimson/ecg-monitory/analyzer/internal/ringbuffer"
)

func TestRing_AbsoluteIndexing(t *testing.T) {
	r := NewRing(4, 250)
	for i := 0; i < 10; i++ {
		if idx := r.Push(float64(i)); idx != int64(i) {
			t.Fatalf("Push returned %d, want %d", idx, i)
		}
	}

	v, err := r.Sample(8)
	if err != nil || v != 8 {
		t.Errorf("Sample(8) = %v, %v; want 8", v, err)
	}
	if _, err := r.Sample(5); !errors.Is(err, ringbuffer.ErrStaleIndex) {
		t.Errorf("Expected stale error, got %v", err)
	}
	if _, err := r.Sample(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for negative index, got %v", err)
	}

	w, err := Window(r, 7, 10)
	if err != nil || len(w) != 3 || w[0] != 7 {
		t.Errorf("Window = %v, %v", w, err)
	}
}

func TestWindow_NegativeStart(t *testing.T) {
	r := NewRing(16, 250)
	for i := 0; i < 10; i++ {
		r.Push(float64(i))
	}
	s := NewSlice([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 250)

	for name, sig := range map[string]Signal{"ring": r, "slice": s} {
		if w, err := Window(sig, -3, 9); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: Window(-3, 9) = %v, %v; want ErrOutOfRange", name, w, err)
		}
	}

	w, err := Window(r, 0, 3)
	if err != nil || len(w) != 3 || w[0] != 0 || w[2] != 2 {
		t.Errorf("Window(0, 3) = %v, %v", w, err)
	}
}

func TestSlice_OutOfRange(t *testing.T) {
	s := NewSlice([]float64{1, 2, 3}, 360)
	if _, err := s.Sample(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if s.Len() != 3 || s.SamplingRate() != 360 {
		t.Errorf("Unexpected slice metadata: len=%d fs=%v", s.Len(), s.SamplingRate())
	}
}

func TestMatchTable_Resolve(t *testing.T) {
	cases := []struct {
		preferred string
		available []string
		want      string
		exact     bool
	}{
		{"II", []string{"V1", "II"}, "II", true},
		{"II", []string{"V1", "MLII"}, "MLII", true},
		{"II", []string{"V1", "aVF"}, "aVF", false},
		{"V1", []string{"I", "V2"}, "V2", false},
		{"II", []string{"X"}, "X", false},
	}

	for _, tc := range cases {
		name, exact, err := MatchTable{}.Resolve(tc.preferred, tc.available)
		if err != nil {
			t.Fatalf("Resolve(%s, %v) failed: %v", tc.preferred, tc.available, err)
		}
		if name != tc.want || exact != tc.exact {
			t.Errorf("Resolve(%s, %v) = (%s, %v), want (%s, %v)",
				tc.preferred, tc.available, name, exact, tc.want, tc.exact)
		}
	}

	if _, _, err := (MatchTable{}).Resolve("II", nil); !errors.Is(err, ErrNoLeads) {
		t.Errorf("Expected ErrNoLeads, got %v", err)
	}
}

func TestReadCSV_DerivesRate(t *testing.T) {
	data := "time,II,V1\n0.000,0.1,0.2\n0.004,0.3,0.4\n0.008,0.5,0.6\n0.012,0.7,0.8\n"
	rec, err := ReadCSV(strings.NewReader(data), 0)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if rec.Rate != 250 {
		t.Errorf("Expected rate 250, got %v", rec.Rate)
	}
	names := rec.Names()
	if len(names) != 2 || names[0] != "II" || names[1] != "V1" {
		t.Errorf("Unexpected leads: %v", names)
	}
	lead, _ := rec.Lead("V1")
	if v, _ := lead.Sample(2); v != 0.6 {
		t.Errorf("V1[2] = %v, want 0.6", v)
	}
}

func TestReadCSV_BadRecord(t *testing.T) {
	data := "II\n0.1\nabc\n"
	if _, err := ReadCSV(strings.NewReader(data), 250); err == nil {
		t.Error("Expected parse error")
	}
}

func TestSynthesizer_PeaksWithinCycles(t *testing.T) {
	cfg := DefaultSynthConfig()
	cfg.Variability = 0
	s := NewSynthesizer(cfg)
	s.Generate(int(10 * cfg.Rate))

	peaks := s.Peaks()
	// 72 уд/мин за 10 секунд
	if len(peaks) < 11 || len(peaks) > 13 {
		t.Errorf("Expected about 12 peaks, got %d", len(peaks))
	}
	for i := 1; i < len(peaks); i++ {
		if peaks[i]-peaks[i-1] != 208 {
			t.Errorf("RR[%d] = %d, want 208", i, peaks[i]-peaks[i-1])
		}
	}
}

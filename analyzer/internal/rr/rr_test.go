package rr

import (
	"math"
	"testing"
)

const fs = 250.0

func regular(n int, value int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

// checkLinks проверяет, что ссылки соседей совпадают с порядком последовательности
func checkLinks(t *testing.T, seq *Sequence) {
	t.Helper()
	for i := 0; i < seq.Len(); i++ {
		iv := seq.At(i)
		wantPrev, wantNext := NoHandle, NoHandle
		if i > 0 {
			wantPrev = seq.At(i - 1).Handle
		}
		if i < seq.Len()-1 {
			wantNext = seq.At(i + 1).Handle
		}
		if iv.Prev != wantPrev || iv.Next != wantNext {
			t.Errorf("interval %d: links (%d, %d), want (%d, %d)", i, iv.Prev, iv.Next, wantPrev, wantNext)
		}
	}
}

func checkContiguous(t *testing.T, seq *Sequence) {
	t.Helper()
	for i := 1; i < seq.Len(); i++ {
		if seq.At(i-1).End() != seq.At(i).Timestamp {
			t.Errorf("gap between intervals %d and %d: %d != %d",
				i-1, i, seq.At(i-1).End(), seq.At(i).Timestamp)
		}
	}
}

func TestCorrector_MissedBeat(t *testing.T) {
	values := regular(10, 200)
	values[5] = 400
	seq := FromValues(values, 100, fs)

	rep := Corrector{Quiet: true}.Correct(seq)

	if seq.Len() != 11 {
		t.Fatalf("Expected 11 intervals, got %d", seq.Len())
	}
	if rep.Inserted != 1 || rep.Deleted != 0 {
		t.Errorf("Expected one insert and no deletes, got %+v", rep)
	}
	outliers := seq.Outliers()
	if len(outliers) != 1 {
		t.Fatalf("Expected exactly one outlier, got %d", len(outliers))
	}
	inserted, _ := seq.Get(outliers[0])
	if inserted != seq.At(5) || inserted.Value != 200 {
		t.Errorf("Inserted interval misplaced: %+v", inserted)
	}
	for i, v := range seq.Values() {
		if v != 200 {
			t.Errorf("interval %d = %d, want 200", i, v)
		}
	}
	checkLinks(t, seq)
	checkContiguous(t, seq)
}

func TestCorrector_ArtifactDeleted(t *testing.T) {
	values := regular(10, 200)
	values[5] = 5
	seq := FromValues(values, 0, fs)

	rep := Corrector{Quiet: true}.Correct(seq)

	if seq.Len() != 9 {
		t.Fatalf("Expected 9 intervals, got %d", seq.Len())
	}
	if rep.Deleted != 1 || len(rep.DeletedAt) != 1 || rep.DeletedAt[0] != 1000 {
		t.Errorf("Deletion must be reported: %+v", rep)
	}
	for i := 1; i < seq.Len()-1; i++ {
		if seq.At(i).Prev == NoHandle || seq.At(i).Next == NoHandle {
			t.Errorf("interval %d lost a neighbour link", i)
		}
	}
	checkLinks(t, seq)
}

func TestCorrector_EctopicSplit(t *testing.T) {
	values := regular(10, 200)
	values[5] = 150
	values[6] = 250
	seq := FromValues(values, 0, fs)

	rep := Corrector{Quiet: true}.Correct(seq)

	if seq.Len() != 10 || rep.Ectopic != 1 {
		t.Fatalf("Expected ectopic repair without length change, len=%d report=%+v", seq.Len(), rep)
	}
	if !seq.At(5).Outlier || !seq.At(6).Outlier {
		t.Error("Both ectopic sub-intervals must be flagged")
	}
	if seq.At(5).Value != 200 || seq.At(6).Value != 200 {
		t.Errorf("Unexpected split: %d + %d", seq.At(5).Value, seq.At(6).Value)
	}
	if seq.At(5).Timestamp != 1000 || seq.At(6).Timestamp != 1200 {
		t.Errorf("Unexpected timestamps: %d, %d", seq.At(5).Timestamp, seq.At(6).Timestamp)
	}
	checkContiguous(t, seq)
}

func TestCorrector_ImplausibleFirstInterval(t *testing.T) {
	values := append([]int64{50}, regular(8, 200)...)
	seq := FromValues(values, 0, fs)

	rep := Corrector{Quiet: true}.Correct(seq)

	if seq.Len() != 8 || rep.Deleted != 1 {
		t.Errorf("Expected the first interval to be dropped, len=%d report=%+v", seq.Len(), rep)
	}
	if seq.At(0).Prev != NoHandle {
		t.Error("New first interval must have no previous link")
	}
}

func TestCorrector_Idempotent(t *testing.T) {
	values := regular(20, 200)
	values[4] = 400
	values[9] = 5
	values[13] = 150
	values[14] = 250
	seq := FromValues(values, 0, fs)

	first := Corrector{Quiet: true}.Correct(seq)
	if first.Changes() == 0 {
		t.Fatal("Expected corrections on the first pass")
	}
	before := seq.Values()

	second := Corrector{Quiet: true}.Correct(seq)
	if second.Changes() != 0 {
		t.Errorf("Second pass changed the sequence: %+v", second)
	}
	after := seq.Values()
	if len(before) != len(after) {
		t.Fatalf("Length changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("interval %d changed: %d -> %d", i, before[i], after[i])
		}
	}
}

func TestCorrector_IdempotentShortIntervals(t *testing.T) {
	const rate = 1000.0
	values := regular(12, 400)
	values[6] = 300
	values[7] = 560
	seq := FromValues(values, 0, rate)

	first := Corrector{Quiet: true}.Correct(seq)
	if first.Ectopic != 1 || first.Deleted != 1 || seq.Len() != 11 {
		t.Fatalf("Expected ectopic split with the remainder deleted, len=%d report=%+v", seq.Len(), first)
	}
	if len(first.DeletedAt) != 1 || first.DeletedAt[0] != 2800 {
		t.Errorf("Expected remainder at 2800 deleted, got %v", first.DeletedAt)
	}
	if seq.At(6).Timestamp != 2400 || seq.At(6).Value != 400 {
		t.Errorf("Unexpected split interval: %+v", seq.At(6))
	}

	second := Corrector{Quiet: true}.Correct(seq)
	if second.Changes() != 0 || seq.Len() != 11 {
		t.Errorf("Second pass changed the sequence: len=%d report=%+v", seq.Len(), second)
	}
	checkLinks(t, seq)
}

func TestCorrector_EctopicSplitAfterDrift(t *testing.T) {
	seq := FromValues([]int64{200, 200, 200, 200, 210, 150, 250, 200, 200}, 0, fs)

	rep := Corrector{Quiet: true}.Correct(seq)

	if rep.Ectopic != 1 || rep.Deleted != 0 || seq.Len() != 9 {
		t.Fatalf("Expected one ectopic repair, len=%d report=%+v", seq.Len(), rep)
	}
	if seq.At(5).Timestamp != 1010 || seq.At(6).Timestamp != 1210 {
		t.Errorf("Split must start at the previous R-peak: %d, %d", seq.At(5).Timestamp, seq.At(6).Timestamp)
	}
	checkContiguous(t, seq)
	checkLinks(t, seq)
}

func TestCorrector_ShortIntervalTolerance(t *testing.T) {
	const rate = 1000.0

	within := regular(10, 400)
	within[5] = 430
	seq := FromValues(within, 0, rate)
	if rep := (Corrector{Quiet: true}).Correct(seq); rep.Changes() != 0 {
		t.Errorf("7.5%% deviation of a short interval must pass, got %+v", rep)
	}

	beyond := regular(10, 400)
	beyond[5] = 445
	seq = FromValues(beyond, 0, rate)
	rep := Corrector{Quiet: true}.Correct(seq)
	if rep.Deleted != 1 || seq.Len() != 9 {
		t.Errorf("11%% deviation of a short interval must be removed, len=%d report=%+v", seq.Len(), rep)
	}
}

func TestCorrector_LongIntervalTolerance(t *testing.T) {
	values := regular(10, 200)
	values[5] = 230
	seq := FromValues(values, 0, fs)

	if rep := (Corrector{Quiet: true}).Correct(seq); rep.Changes() != 0 || seq.Len() != 10 {
		t.Errorf("15%% deviation of a long interval must pass, len=%d report=%+v", seq.Len(), rep)
	}
}

func TestCorrector_MissedBeatShortRemainderDeleted(t *testing.T) {
	const rate = 1000.0
	values := regular(10, 400)
	values[5] = 860
	seq := FromValues(values, 0, rate)

	rep := Corrector{Quiet: true}.Correct(seq)

	if rep.Inserted != 1 || rep.Deleted != 1 || seq.Len() != 10 {
		t.Fatalf("Expected insert plus deleted remainder, len=%d report=%+v", seq.Len(), rep)
	}
	if rep.DeletedAt[0] != 2400 {
		t.Errorf("Expected remainder at 2400 deleted, got %v", rep.DeletedAt)
	}
	if second := (Corrector{Quiet: true}).Correct(seq); second.Changes() != 0 {
		t.Errorf("Second pass changed the sequence: %+v", second)
	}
}

func TestCorrector_KeepUnexplainedUsesSpline(t *testing.T) {
	values := regular(10, 200)
	values[5] = 5
	seq := FromValues(values, 0, fs)

	rep := Corrector{KeepUnexplained: true, Quiet: true}.Correct(seq)

	if seq.Len() != 10 || rep.Deleted != 0 {
		t.Fatalf("Keep mode must not delete: len=%d report=%+v", seq.Len(), rep)
	}
	if rep.Repaired != 1 || seq.At(5).Value != 200 || !seq.At(5).Outlier {
		t.Errorf("Expected flagged interval repaired to 200, got %+v (report %+v)", seq.At(5), rep)
	}
}

func TestFromPeaks(t *testing.T) {
	seq, err := FromPeaks([]int64{10, 210, 400}, []float64{1, 0.9, 1.1}, fs)
	if err != nil {
		t.Fatalf("FromPeaks failed: %v", err)
	}
	if seq.Len() != 2 || seq.At(0).Value != 200 || seq.At(1).Value != 190 {
		t.Errorf("Unexpected values: %v", seq.Values())
	}
	if *seq.At(1).RPeak1 != 0.9 || *seq.At(1).RPeak2 != 1.1 {
		t.Error("Peak amplitudes not carried over")
	}

	if _, err := FromPeaks([]int64{10, 5}, nil, fs); err == nil {
		t.Error("Expected error for non-increasing peaks")
	}
}

func TestSequence_InsertDeleteRelink(t *testing.T) {
	seq := FromValues([]int64{100, 100, 100}, 0, fs)
	seq.Insert(1, &Interval{Value: 50})
	checkLinks(t, seq)

	seq.Delete(0)
	checkLinks(t, seq)
	if seq.Len() != 3 || seq.At(0).Value != 50 {
		t.Errorf("Unexpected order after splice: %v", seq.Values())
	}
	if _, ok := seq.Get(0); ok {
		t.Error("Deleted handle must not resolve")
	}
}

func TestSpline_PassesThroughKnots(t *testing.T) {
	x := []float64{0, 1, 2.5, 4}
	y := []float64{1, 3, 2, 5}
	s, err := NewSpline(x, y)
	if err != nil {
		t.Fatalf("NewSpline failed: %v", err)
	}
	for i := range x {
		if got := s.At(x[i]); math.Abs(got-y[i]) > 1e-9 {
			t.Errorf("At(%v) = %v, want %v", x[i], got, y[i])
		}
	}

	line, _ := NewSpline([]float64{0, 1, 2}, []float64{0, 2, 4})
	if got := line.At(1.5); math.Abs(got-3) > 1e-9 {
		t.Errorf("Linear data must stay linear, got %v", got)
	}

	two, err := NewSpline([]float64{0, 2}, []float64{1, 5})
	if err != nil {
		t.Fatalf("NewSpline with two knots failed: %v", err)
	}
	if got := two.At(1); math.Abs(got-3) > 1e-9 {
		t.Errorf("Two knots must give a line, got %v", got)
	}

	if _, err := NewSpline([]float64{1, 1}, []float64{0, 0}); err == nil {
		t.Error("Expected error for repeated knots")
	}
}

package ringbuffer

import (
	"errors"
	"testing"
)

func TestBuffer_WrapAround(t *testing.T) {
	b := New[int](5)
	for i := 0; i < 12; i++ {
		b.Add(i)
	}

	if b.Size() != 12 {
		t.Errorf("Expected size 12, got %d", b.Size())
	}
	if b.FilledSize() != 5 {
		t.Errorf("Expected filled size 5, got %d", b.FilledSize())
	}

	for i := int64(7); i < 12; i++ {
		v, err := b.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		if v != int(i) {
			t.Errorf("Get(%d) = %d, want %d", i, v, i)
		}
	}

	if _, err := b.Get(6); !errors.Is(err, ErrStaleIndex) {
		t.Errorf("Expected ErrStaleIndex for evicted index, got %v", err)
	}
	if _, err := b.Get(12); !errors.Is(err, ErrFutureIndex) {
		t.Errorf("Expected ErrFutureIndex, got %v", err)
	}
}

func TestBuffer_NegativeIndex(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 6; i++ {
		b.Add(i * 10)
	}

	last, err := b.Last()
	if err != nil || last != 60 {
		t.Errorf("Last() = %d, %v; want 60", last, err)
	}

	v, err := b.Get(-4)
	if err != nil || v != 30 {
		t.Errorf("Get(-4) = %d, %v; want 30", v, err)
	}

	if b.IsValid(-5) {
		t.Error("Index -5 must be stale")
	}
}

func TestBuffer_Empty(t *testing.T) {
	b := New[float64](3)
	if _, err := b.Get(0); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
	if _, err := b.Last(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
}

func TestBuffer_SubrangeIsCopy(t *testing.T) {
	b := New[int](4)
	for i := 0; i < 6; i++ {
		b.Add(i)
	}

	sub, err := b.Subrange(3, 6)
	if err != nil {
		t.Fatalf("Subrange failed: %v", err)
	}
	want := []int{3, 4, 5}
	for i := range want {
		if sub[i] != want[i] {
			t.Errorf("sub[%d] = %d, want %d", i, sub[i], want[i])
		}
	}

	// перезапись буфера не должна менять полученную копию
	for i := 0; i < 4; i++ {
		b.Add(100)
	}
	if sub[0] != 3 {
		t.Errorf("Subrange result aliased buffer storage: %v", sub)
	}

	if _, err := b.Subrange(0, 3); !errors.Is(err, ErrStaleIndex) {
		t.Errorf("Expected ErrStaleIndex, got %v", err)
	}
}

func TestMinMax(t *testing.T) {
	b := New[int](8)
	for _, v := range []int{4, -2, 9, 3, 7} {
		b.Add(v)
	}

	lo, hi, err := MinMax(b, 1, 4)
	if err != nil {
		t.Fatalf("MinMax failed: %v", err)
	}
	if lo != -2 || hi != 9 {
		t.Errorf("MinMax = (%d, %d), want (-2, 9)", lo, hi)
	}
}

func TestFloat_RangeAfterEviction(t *testing.T) {
	f := NewFloat(3)
	for _, v := range []float64{5, 1, 3, 2, 4} {
		f.Add(v)
	}

	// в буфере остались 3, 2, 4
	lo, hi, err := f.Range()
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if lo != 2 || hi != 4 {
		t.Errorf("Range = (%v, %v), want (2, 4)", lo, hi)
	}
}

package ringbuffer

import (
	"cmp"
	"errors"
	"fmt"
)

var (
	// ErrStaleIndex индекс уже вытеснен из буфера
	ErrStaleIndex = errors.New("ringbuffer: index is stale")
	// ErrFutureIndex индекс ещё не записан
	ErrFutureIndex = errors.New("ringbuffer: index is not written yet")
	// ErrEmpty в буфере нет ни одного значения
	ErrEmpty = errors.New("ringbuffer: buffer is empty")
)

// Buffer кольцевой буфер фиксированной емкости с адресацией по "времени жизни".
// Каждое добавленное значение получает порядковый номер (lifetime index),
// физическая ячейка = номер mod емкость. Читать можно только последние Capacity значений.
type Buffer[T any] struct {
	data []T
	size int64 // сколько значений добавлено за всё время
}

// New создает буфер заданной емкости
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Add добавляет значение, при заполнении перезаписывает самое старое
func (b *Buffer[T]) Add(v T) {
	b.data[b.size%int64(len(b.data))] = v
	b.size++
}

// Capacity возвращает емкость буфера
func (b *Buffer[T]) Capacity() int {
	return len(b.data)
}

// Size возвращает количество значений, добавленных за всё время
func (b *Buffer[T]) Size() int64 {
	return b.size
}

// FilledSize возвращает количество доступных для чтения значений
func (b *Buffer[T]) FilledSize() int {
	if b.size < int64(len(b.data)) {
		return int(b.size)
	}
	return len(b.data)
}

// Oldest возвращает lifetime-индекс самого старого читаемого значения
func (b *Buffer[T]) Oldest() int64 {
	return b.size - int64(b.FilledSize())
}

// resolve переводит индекс в lifetime-индекс.
// Отрицательный индекс отсчитывается от головы: -1 самое новое значение.
func (b *Buffer[T]) resolve(i int64) (int64, error) {
	if b.size == 0 {
		return 0, ErrEmpty
	}
	if i < 0 {
		i = b.size + i
	}
	if i >= b.size {
		return 0, fmt.Errorf("%w: index=%d size=%d", ErrFutureIndex, i, b.size)
	}
	if i < b.Oldest() {
		return 0, fmt.Errorf("%w: index=%d oldest=%d", ErrStaleIndex, i, b.Oldest())
	}
	return i, nil
}

// IsValid проверяет, можно ли прочитать значение по индексу
func (b *Buffer[T]) IsValid(i int64) bool {
	_, err := b.resolve(i)
	return err == nil
}

// Get возвращает значение по lifetime-индексу (или отрицательному относительно головы)
func (b *Buffer[T]) Get(i int64) (T, error) {
	var zero T
	idx, err := b.resolve(i)
	if err != nil {
		return zero, err
	}
	return b.data[idx%int64(len(b.data))], nil
}

// Last возвращает самое новое значение
func (b *Buffer[T]) Last() (T, error) {
	return b.Get(-1)
}

// Subrange возвращает копию значений в полуинтервале [from, to).
// Индексы интерпретируются так же, как в Get.
func (b *Buffer[T]) Subrange(from, to int64) ([]T, error) {
	if b.size == 0 {
		return nil, ErrEmpty
	}
	if from < 0 {
		from = b.size + from
	}
	if to < 0 {
		to = b.size + to
	}
	if to <= from {
		return []T{}, nil
	}
	if _, err := b.resolve(from); err != nil {
		return nil, err
	}
	if _, err := b.resolve(to - 1); err != nil {
		return nil, err
	}

	out := make([]T, 0, to-from)
	n := int64(len(b.data))
	for i := from; i < to; i++ {
		out = append(out, b.data[i%n])
	}
	return out, nil
}

// Snapshot возвращает все читаемые значения в хронологическом порядке
func (b *Buffer[T]) Snapshot() []T {
	if b.size == 0 {
		return []T{}
	}
	out, _ := b.Subrange(b.Oldest(), b.size)
	return out
}

// Reset очищает буфер
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.size = 0
}

// MinMax возвращает минимум и максимум на полуинтервале [from, to)
func MinMax[T cmp.Ordered](b *Buffer[T], from, to int64) (lo, hi T, err error) {
	values, err := b.Subrange(from, to)
	if err != nil {
		return lo, hi, err
	}
	if len(values) == 0 {
		return lo, hi, ErrEmpty
	}

	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi, nil
}

package ringbuffer

// Float буфер вещественных значений с инкрементальным минимумом и максимумом.
// Полный пересчет выполняется только когда вытесняется текущий экстремум.
type Float struct {
	*Buffer[float64]
	lo, hi float64
}

// NewFloat создает буфер вещественных значений
func NewFloat(capacity int) *Float {
	return &Float{Buffer: New[float64](capacity)}
}

// Add добавляет значение и обновляет экстремумы
func (f *Float) Add(v float64) {
	evicting := f.size >= int64(len(f.data))
	var evicted float64
	if evicting {
		evicted = f.data[f.size%int64(len(f.data))]
	}

	f.Buffer.Add(v)

	if f.size == 1 {
		f.lo, f.hi = v, v
		return
	}
	if evicting && (evicted == f.lo || evicted == f.hi) {
		f.rescan()
		return
	}
	f.lo = min(f.lo, v)
	f.hi = max(f.hi, v)
}

func (f *Float) rescan() {
	n := f.FilledSize()
	f.lo, f.hi = f.data[0], f.data[0]
	for _, v := range f.data[1:n] {
		f.lo = min(f.lo, v)
		f.hi = max(f.hi, v)
	}
}

// Range возвращает минимум и максимум по всем читаемым значениям
func (f *Float) Range() (lo, hi float64, err error) {
	if f.size == 0 {
		return 0, 0, ErrEmpty
	}
	return f.lo, f.hi, nil
}

// Reset очищает буфер
func (f *Float) Reset() {
	f.Buffer.Reset()
	f.lo, f.hi = 0, 0
}

package signal

import (
	"errors"
	"fmt"

	"github.com/Krimson/ecg-monitory/analyzer/internal/ringbuffer"
)

// ErrOutOfRange индекс за пределами записи
var ErrOutOfRange = errors.New("signal: index out of range")

// Signal произвольный доступ к отсчетам одного отведения
type Signal interface {
	// Sample возвращает отсчет по абсолютному индексу
	Sample(index int64) (float64, error)
	// SamplingRate частота дискретизации, Гц
	SamplingRate() float64
}

// Source конечная запись: сигнал с известной длиной
type Source interface {
	Signal
	Len() int64
}

// Window копирует отсчеты [from, to) из сигнала
func Window(s Signal, from, to int64) ([]float64, error) {
	if to <= from {
		return []float64{}, nil
	}
	// отрицательный индекс буфер понимает как отсчет от головы
	if from < 0 {
		return nil, fmt.Errorf("%w: window [%d, %d)", ErrOutOfRange, from, to)
	}
	if r, ok := s.(*Ring); ok {
		return r.buf.Subrange(from, to)
	}
	out := make([]float64, 0, to-from)
	for i := from; i < to; i++ {
		v, err := s.Sample(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Ring сигнал, хранящий последние отсчеты живого потока.
// Индексы абсолютные: номер отсчета с начала потока.
type Ring struct {
	buf *ringbuffer.Float
	fs  float64
}

// NewRing создает кольцевой сигнал емкостью capacity отсчетов
func NewRing(capacity int, fs float64) *Ring {
	return &Ring{buf: ringbuffer.NewFloat(capacity), fs: fs}
}

// Push добавляет отсчет и возвращает его абсолютный индекс
func (r *Ring) Push(x float64) int64 {
	r.buf.Add(x)
	return r.buf.Size() - 1
}

// Sample возвращает отсчет; вытесненные и еще не записанные индексы дают ошибку
func (r *Ring) Sample(index int64) (float64, error) {
	if index < 0 {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	return r.buf.Get(index)
}

// SamplingRate частота дискретизации
func (r *Ring) SamplingRate() float64 {
	return r.fs
}

// Size количество отсчетов с начала потока
func (r *Ring) Size() int64 {
	return r.buf.Size()
}

// Capacity емкость буфера
func (r *Ring) Capacity() int {
	return r.buf.Capacity()
}

// Range минимум и максимум по хранимым отсчетам
func (r *Ring) Range() (lo, hi float64, err error) {
	return r.buf.Range()
}

// Slice запись целиком в памяти
type Slice struct {
	data []float64
	fs   float64
}

// NewSlice оборачивает отсчеты в Source
func NewSlice(data []float64, fs float64) *Slice {
	return &Slice{data: data, fs: fs}
}

// Sample возвращает отсчет по индексу
func (s *Slice) Sample(index int64) (float64, error) {
	if index < 0 || index >= int64(len(s.data)) {
		return 0, fmt.Errorf("%w: %d of %d", ErrOutOfRange, index, len(s.data))
	}
	return s.data[index], nil
}

// SamplingRate частота дискретизации
func (s *Slice) SamplingRate() float64 {
	return s.fs
}

// Len количество отсчетов
func (s *Slice) Len() int64 {
	return int64(len(s.data))
}

// Values возвращает исходные отсчеты
func (s *Slice) Values() []float64 {
	return s.data
}

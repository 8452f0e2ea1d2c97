package rr

import (
	"fmt"
	"math"
)

// Handle стабильная ссылка на интервал в арене последовательности
type Handle int64

// NoHandle отсутствие ссылки
const NoHandle Handle = -1

// Interval RR-интервал между двумя соседними R-зубцами
type Interval struct {
	Handle Handle `json:"handle"`
	// Value длительность в отсчетах
	Value int64 `json:"value"`
	// Timestamp отсчет R-зубца, с которого начинается интервал
	Timestamp int64 `json:"timestamp"`
	// Reference медиана последних принятых значений на момент проверки
	Reference int64 `json:"reference"`
	Outlier   bool  `json:"outlier"`

	Prev Handle `json:"prev"`
	Next Handle `json:"next"`

	// амплитуды R-зубцов, между которыми измерен интервал; у синтезированных отсутствуют
	RPeak1 *float64 `json:"r_peak1,omitempty"`
	RPeak2 *float64 `json:"r_peak2,omitempty"`
}

// End отсчет R-зубца, которым интервал заканчивается
func (iv *Interval) End() int64 {
	return iv.Timestamp + iv.Value
}

// Seconds длительность в секундах
func (iv *Interval) Seconds(fs float64) float64 {
	return float64(iv.Value) / fs
}

// Sequence упорядоченная последовательность интервалов.
// Интервалы живут в арене и адресуются ссылками; порядок задается отдельным срезом.
// Вставка и удаление перевязывают соседей в той же операции.
type Sequence struct {
	Rate  float64
	arena []*Interval
	order []Handle
}

// NewSequence создает пустую последовательность
func NewSequence(fs float64) *Sequence {
	return &Sequence{Rate: fs}
}

// FromPeaks строит последовательность по положениям R-зубцов.
// amps может быть nil или той же длины, что и peaks.
func FromPeaks(peaks []int64, amps []float64, fs float64) (*Sequence, error) {
	if amps != nil && len(amps) != len(peaks) {
		return nil, fmt.Errorf("amplitudes length %d != peaks length %d", len(amps), len(peaks))
	}

	s := NewSequence(fs)
	for i := 1; i < len(peaks); i++ {
		if peaks[i] <= peaks[i-1] {
			return nil, fmt.Errorf("peaks are not strictly increasing at %d", i)
		}
		iv := &Interval{Value: peaks[i] - peaks[i-1], Timestamp: peaks[i-1]}
		if amps != nil {
			a1, a2 := amps[i-1], amps[i]
			iv.RPeak1, iv.RPeak2 = &a1, &a2
		}
		s.Append(iv)
	}
	return s, nil
}

// FromValues строит последовательность по длительностям, начиная с отсчета start
func FromValues(values []int64, start int64, fs float64) *Sequence {
	s := NewSequence(fs)
	ts := start
	for _, v := range values {
		s.Append(&Interval{Value: v, Timestamp: ts})
		ts += v
	}
	return s
}

func (s *Sequence) alloc(iv *Interval) Handle {
	iv.Handle = Handle(len(s.arena))
	s.arena = append(s.arena, iv)
	return iv.Handle
}

// Len количество интервалов
func (s *Sequence) Len() int {
	return len(s.order)
}

// At интервал по позиции
func (s *Sequence) At(i int) *Interval {
	return s.arena[s.order[i]]
}

// Get интервал по ссылке
func (s *Sequence) Get(h Handle) (*Interval, bool) {
	if h < 0 || int(h) >= len(s.arena) {
		return nil, false
	}
	iv := s.arena[h]
	return iv, iv != nil
}

// Append добавляет интервал в конец
func (s *Sequence) Append(iv *Interval) {
	s.Insert(len(s.order), iv)
}

// Insert вставляет интервал перед позицией i и перевязывает соседей
func (s *Sequence) Insert(i int, iv *Interval) Handle {
	h := s.alloc(iv)
	s.order = append(s.order, NoHandle)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = h
	s.relink(i - 1)
	s.relink(i)
	s.relink(i + 1)
	return h
}

// Delete удаляет интервал на позиции i и связывает бывших соседей напрямую
func (s *Sequence) Delete(i int) *Interval {
	h := s.order[i]
	iv := s.arena[h]
	s.order = append(s.order[:i], s.order[i+1:]...)
	s.arena[h] = nil
	iv.Prev, iv.Next = NoHandle, NoHandle
	s.relink(i - 1)
	s.relink(i)
	return iv
}

// relink выставляет ссылки интервала на позиции i по текущему порядку
func (s *Sequence) relink(i int) {
	if i < 0 || i >= len(s.order) {
		return
	}
	iv := s.arena[s.order[i]]
	iv.Prev, iv.Next = NoHandle, NoHandle
	if i > 0 {
		iv.Prev = s.order[i-1]
	}
	if i < len(s.order)-1 {
		iv.Next = s.order[i+1]
	}
}

// Intervals интервалы по порядку
func (s *Sequence) Intervals() []*Interval {
	out := make([]*Interval, len(s.order))
	for i, h := range s.order {
		out[i] = s.arena[h]
	}
	return out
}

// Values длительности по порядку
func (s *Sequence) Values() []int64 {
	out := make([]int64, len(s.order))
	for i, h := range s.order {
		out[i] = s.arena[h].Value
	}
	return out
}

// Outliers ссылки на интервалы с флагом выброса
func (s *Sequence) Outliers() []Handle {
	var out []Handle
	for _, h := range s.order {
		if s.arena[h].Outlier {
			out = append(out, h)
		}
	}
	return out
}

// Samples переводит секунды в отсчеты
func (s *Sequence) Samples(seconds float64) int64 {
	return int64(math.Round(seconds * s.Rate))
}

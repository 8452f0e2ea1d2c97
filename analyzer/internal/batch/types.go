package batch

import (
	"context"
	"time"
)

// Point представляет один отсчет ЭКГ
type Point struct {
	Index int64   // Абсолютный номер отсчета в отведении
	Value float32 // Значение, мВ
}

// BatchKey уникально идентифицирует батч по сессии и отведению
type BatchKey struct {
	SessionID string // Идентификатор сессии
	Lead      string // Имя отведения
}

// Batch представляет собранный батч отсчетов
type Batch struct {
	Key    BatchKey // Ключ батча (сессия + отведение)
	First  int64    // Наименьший индекс в батче
	Last   int64    // Наибольший индекс в батче
	Points []Point  // Отсчеты
}

// Span разброс индексов батча
func (b Batch) Span() int64 {
	return b.Last - b.First
}

// Sink интерфейс для обработки готовых батчей
type Sink interface {
	Consume(ctx context.Context, b Batch) error
}

// currentBatch - внутренняя структура для отслеживания текущего состояния батча
type currentBatch struct {
	Batch
	lastAdded time.Time // Время последнего добавления точки
}

// newCurrentBatch создает новый текущий батч
func newCurrentBatch(key BatchKey) *currentBatch {
	return &currentBatch{
		Batch: Batch{
			Key:    key,
			Points: make([]Point, 0),
		},
	}
}

// addPoint добавляет точку в текущий батч и обновляет границы индексов
func (cb *currentBatch) addPoint(point Point, now time.Time) {
	if len(cb.Points) == 0 {
		cb.First = point.Index
		cb.Last = point.Index
	} else {
		cb.First = min(cb.First, point.Index)
		cb.Last = max(cb.Last, point.Index)
	}

	cb.Points = append(cb.Points, point)
	cb.lastAdded = now
}

// shouldFlushBySize проверяет, нужно ли сбросить батч по размеру
func (cb *currentBatch) shouldFlushBySize(maxSamples int) bool {
	return len(cb.Points) >= maxSamples
}

// clone создает копию батча для отправки в sink
func (cb *currentBatch) clone() Batch {
	pointsCopy := make([]Point, len(cb.Points))
	copy(pointsCopy, cb.Points)

	return Batch{
		Key:    cb.Key,
		First:  cb.First,
		Last:   cb.Last,
		Points: pointsCopy,
	}
}

// reset очищает батч для переиспользования
func (cb *currentBatch) reset() {
	cb.First = 0
	cb.Last = 0
	cb.Points = cb.Points[:0] // Сохраняем capacity
	cb.lastAdded = time.Time{}
}

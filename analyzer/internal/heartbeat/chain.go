package heartbeat

import "github.com/Krimson/ecg-monitory/analyzer/internal/qrs"

// Handle ссылка на удар в цепочке
type Handle = qrs.Handle

// NoHandle отсутствие ссылки
const NoHandle = qrs.NoHandle

// Heartbeat один кардиоцикл: QRS-комплекс, необязательные P и T волны и ссылки на соседей
type Heartbeat struct {
	Handle Handle          `json:"handle"`
	QRS    *qrs.Complex    `json:"qrs"`
	P      *WaveMorphology `json:"p,omitempty"`
	T      *WaveMorphology `json:"t,omitempty"`
	Prev   Handle          `json:"prev"`
	Next   Handle          `json:"next"`
	// RR расстояние до R следующего удара в отсчетах; 0 у последнего удара
	RR int64 `json:"rr"`

	finalized bool
}

// Finalized признак того, что удар связан с соседями и волны найдены
func (h *Heartbeat) Finalized() bool {
	return h.finalized
}

// Chain хранилище ударов с плотными монотонными ссылками.
// При limit > 0 старые удары вытесняются, ссылки на них перестают разрешаться.
type Chain struct {
	beats []*Heartbeat
	base  Handle // ссылка первого хранимого удара
	next  Handle
	limit int
}

// NewChain создает цепочку; limit 0 без ограничения
func NewChain(limit int) *Chain {
	return &Chain{limit: limit}
}

// Append добавляет удар и назначает ему ссылку
func (c *Chain) Append(b *Heartbeat) Handle {
	b.Handle = c.next
	c.next++
	c.beats = append(c.beats, b)

	if c.limit > 0 && len(c.beats) > c.limit {
		drop := len(c.beats) - c.limit
		clear(c.beats[:drop])
		c.beats = c.beats[drop:]
		c.base += Handle(drop)
	}
	return b.Handle
}

// Get разрешает ссылку
func (c *Chain) Get(h Handle) (*Heartbeat, bool) {
	if h < c.base || h >= c.next {
		return nil, false
	}
	return c.beats[h-c.base], true
}

// Len количество хранимых ударов
func (c *Chain) Len() int {
	return len(c.beats)
}

// Total количество ударов за всё время
func (c *Chain) Total() int64 {
	return int64(c.next)
}

// Last последний удар
func (c *Chain) Last() (*Heartbeat, bool) {
	if len(c.beats) == 0 {
		return nil, false
	}
	return c.beats[len(c.beats)-1], true
}

// All хранимые удары по порядку
func (c *Chain) All() []*Heartbeat {
	return append([]*Heartbeat(nil), c.beats...)
}

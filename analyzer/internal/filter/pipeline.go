package filter

import "github.com/Krimson/ecg-monitory/analyzer/internal/ringbuffer"

// Pipeline прогоняет один входной поток через несколько фильтров с разной задержкой
// и выравнивает их выходы по максимальной задержке.
// Выход i-го фильтра читается из его истории со смещением maxDelay - delay(i).
type Pipeline struct {
	filters  []Filter
	history  []*ringbuffer.Buffer[float64]
	maxDelay int
}

// NewPipeline создает конвейер фильтров
func NewPipeline(filters ...Filter) *Pipeline {
	p := &Pipeline{filters: filters}
	for _, f := range filters {
		p.maxDelay = max(p.maxDelay, f.GroupDelay())
	}
	p.history = make([]*ringbuffer.Buffer[float64], len(filters))
	for i, f := range filters {
		p.history[i] = ringbuffer.New[float64](p.maxDelay - f.GroupDelay() + 1)
	}
	return p
}

// Next обрабатывает отсчет и возвращает выровненные выходы всех фильтров.
// Выход соответствует входному отсчету, поступившему MaxDelay отсчетов назад;
// пока история короче смещения, возвращается 0.
func (p *Pipeline) Next(x float64) []float64 {
	out := make([]float64, len(p.filters))
	for i, f := range p.filters {
		h := p.history[i]
		h.Add(f.Next(x))
		offset := int64(p.maxDelay - f.GroupDelay())
		if v, err := h.Get(-1 - offset); err == nil {
			out[i] = v
		}
	}
	return out
}

// MaxDelay максимальная задержка среди фильтров конвейера
func (p *Pipeline) MaxDelay() int {
	return p.maxDelay
}

// Len количество фильтров
func (p *Pipeline) Len() int {
	return len(p.filters)
}

// Reset сбрасывает фильтры и историю
func (p *Pipeline) Reset() {
	for i, f := range p.filters {
		f.Reset()
		p.history[i].Reset()
	}
}

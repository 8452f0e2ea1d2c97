package heartbeat

import (
	"iter"

	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// Assembler собирает цепочку ударов из финализированных комплексов.
// Удар n финализируется, когда приходит комплекс n+1: связываются ссылки,
// ищутся P и T волны, удар уходит в callback и в очередь готовых.
type Assembler struct {
	raw     signal.Signal
	chain   *Chain
	pFinder WaveFinder
	tFinder WaveFinder
	onBeat  func(*Heartbeat)

	current *Heartbeat
	ready   []*Heartbeat
}

// NewAssembler создает сборщик поверх сырого сигнала
func NewAssembler(raw signal.Signal, chain *Chain, pFinder, tFinder WaveFinder, onBeat func(*Heartbeat)) *Assembler {
	if chain == nil {
		chain = NewChain(0)
	}
	if pFinder == nil {
		pFinder = NoWave{}
	}
	if tFinder == nil {
		tFinder = NoWave{}
	}
	return &Assembler{
		raw:     raw,
		chain:   chain,
		pFinder: pFinder,
		tFinder: tFinder,
		onBeat:  onBeat,
	}
}

// Add принимает очередной финализированный комплекс
func (a *Assembler) Add(c *qrs.Complex) {
	beat := &Heartbeat{QRS: c, Prev: NoHandle, Next: NoHandle}
	h := a.chain.Append(beat)
	c.Beat = h

	if prev := a.current; prev != nil {
		beat.Prev = prev.Handle
		prev.Next = h
		prev.RR = c.R - prev.QRS.R
		a.finalize(prev)
	}
	a.current = beat
}

// Flush финализирует последний удар без следующего
func (a *Assembler) Flush() {
	if a.current == nil {
		return
	}
	a.finalize(a.current)
	a.current = nil
}

func (a *Assembler) finalize(b *Heartbeat) {
	if p, ok := a.pFinder.FindWave(a.raw, b.QRS); ok {
		b.P = p
	}
	if t, ok := a.tFinder.FindWave(a.raw, b.QRS); ok {
		b.T = t
	}
	b.finalized = true

	if a.onBeat != nil {
		a.onBeat(b)
	}
	a.ready = append(a.ready, b)
}

// Ready итератор по готовым ударам; выданные удары удаляются из очереди
func (a *Assembler) Ready() iter.Seq[*Heartbeat] {
	return func(yield func(*Heartbeat) bool) {
		for len(a.ready) > 0 {
			b := a.ready[0]
			a.ready[0] = nil
			a.ready = a.ready[1:]
			if !yield(b) {
				return
			}
		}
	}
}

// Pending количество готовых, но не выданных ударов
func (a *Assembler) Pending() int {
	return len(a.ready)
}

// Chain цепочка ударов
func (a *Assembler) Chain() *Chain {
	return a.chain
}

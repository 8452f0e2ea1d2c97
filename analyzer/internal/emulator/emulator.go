package emulator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/server"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// Emulator проигрывает запись анализатору блоками
type Emulator struct {
	rec    *signal.Recording
	sender Sender
	cfg    *Config
}

func NewEmulator(rec *signal.Recording, sender Sender, cfg *Config) *Emulator {
	return &Emulator{
		rec:    rec,
		sender: sender,
		cfg:    cfg,
	}
}

// Run отправляет все отведения по блокам, чередуя отведения внутри одного шага.
// Возвращает количество отправленных отсчетов.
func (e *Emulator) Run(ctx context.Context) (int64, error) {
	names := e.rec.Names()
	leads := make([][]float64, len(names))
	length := int64(0)
	for i, name := range names {
		lead, _ := e.rec.Lead(name)
		leads[i] = lead.Values()
		length = max(length, lead.Len())
	}

	var tick <-chan time.Time
	if e.cfg.Realtime {
		interval := time.Duration(float64(e.cfg.BlockSize) / e.rec.Rate * float64(time.Second))
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Printf("[INFO] Emulating session %s: leads=%v samples=%d rate=%.0f realtime=%v",
		e.cfg.SessionID, names, length, e.rec.Rate, e.cfg.Realtime)

	var sent int64
	block := int64(e.cfg.BlockSize)
	for first := int64(0); first < length; first += block {
		if tick != nil {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}

		for i, name := range names {
			data := leads[i]
			if first >= int64(len(data)) {
				continue
			}
			end := min(first+block, int64(len(data)))
			values := make([]float32, end-first)
			for j := range values {
				values[j] = float32(data[first+int64(j)])
			}

			err := e.sender.Send(ctx, server.SampleBlock{
				SessionID:  e.cfg.SessionID,
				Lead:       name,
				FirstIndex: first,
				Values:     values,
			})
			if err != nil {
				return sent, fmt.Errorf("lead %s at %d: %w", name, first, err)
			}
			sent += int64(len(values))
		}
	}

	log.Printf("[INFO] Emulation finished: %d samples sent", sent)
	return sent, nil
}

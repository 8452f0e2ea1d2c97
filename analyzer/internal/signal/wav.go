package signal

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ReadWAVFile читает запись из PCM WAV файла: каждый канал становится отведением.
// Имена каналов берутся из leads по порядку, остальные называются CH1, CH2 и т.д.
// Отсчеты нормируются к [-1, 1) по разрядности файла.
func ReadWAVFile(filename string, leads []string) (*Recording, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file %s: %w", filename, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("WAV file %s: invalid or unsupported format", filename)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV file %s: %w", filename, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("WAV file %s: %w", filename, ErrNoLeads)
	}

	channels := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(dec.BitDepth)
	}
	scale := float64(int64(1) << (max(depth, 1) - 1))

	n := len(buf.Data) / channels
	rec := NewRecording(float64(buf.Format.SampleRate))
	for c := 0; c < channels; c++ {
		samples := make([]float64, n)
		for i := range samples {
			samples[i] = float64(buf.Data[i*channels+c]) / scale
		}
		name := fmt.Sprintf("CH%d", c+1)
		if c < len(leads) && leads[c] != "" {
			name = leads[c]
		}
		rec.AddLead(name, samples)
	}
	return rec, nil
}

package emulator

import (
	"fmt"

	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// LoadRecording читает CSV или WAV, либо синтезирует запись по настройкам
func LoadRecording(cfg SourceConfig) (*signal.Recording, error) {
	if cfg.WAVPath != "" {
		rec, err := signal.ReadWAVFile(cfg.WAVPath, cfg.Leads)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", cfg.WAVPath, err)
		}
		return rec, nil
	}
	if cfg.CSVPath != "" {
		rec, err := signal.ReadCSVFile(cfg.CSVPath, cfg.Rate)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", cfg.CSVPath, err)
		}
		return rec, nil
	}

	n := int(cfg.Duration.Seconds() * cfg.Rate)
	if n <= 0 {
		return nil, fmt.Errorf("duration %v gives no samples", cfg.Duration)
	}

	rec := signal.NewRecording(cfg.Rate)
	for i, lead := range cfg.Leads {
		synthCfg := signal.DefaultSynthConfig()
		synthCfg.Rate = cfg.Rate
		synthCfg.HeartRate = cfg.HeartRate
		synthCfg.Noise = cfg.Noise
		// одинаковый ритм, разный шум по отведениям
		synthCfg.Seed = cfg.Seed + int64(i)
		rec.AddLead(lead, signal.NewSynthesizer(synthCfg).Generate(n))
	}
	return rec, nil
}

package emulator

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config настройки эмулятора
type Config struct {
	Source SourceConfig
	Target TargetConfig

	SessionID string
	// BlockSize отсчетов в одном сообщении
	BlockSize int
	// Realtime выдерживать темп частоты дискретизации
	Realtime bool
}

// SourceConfig откуда берется сигнал: CSV, WAV или синтез
type SourceConfig struct {
	CSVPath   string
	WAVPath   string
	Rate      float64
	Duration  time.Duration
	HeartRate float64
	Noise     float64
	Seed      int64
	// Leads отведения синтетической записи или имена каналов WAV по порядку
	Leads []string
}

// TargetConfig куда отправлять: grpc или nats
type TargetConfig struct {
	Mode    string
	Addr    string
	Subject string
}

// Load разбирает аргументы командной строки
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("emulator", flag.ContinueOnError)

	csvPath := fs.String("csv", "", "CSV-файл с отведениями (пусто: синтетический сигнал)")
	wavPath := fs.String("wav", "", "WAV-файл, канал на отведение; имена каналов из -leads")
	rate := fs.Float64("rate", 250, "Частота дискретизации, Гц")
	duration := fs.String("duration", "60s", "Длительность синтетической записи")
	heartRate := fs.Float64("hr", 72, "Пульс синтетической записи, уд/мин")
	noise := fs.Float64("noise", 0.01, "СКО шума синтетической записи")
	seed := fs.Int64("seed", 1, "Seed генератора")
	leads := fs.String("leads", "II", "Отведения синтетической записи через запятую")

	mode := fs.String("mode", "grpc", "Транспорт: grpc или nats")
	addr := fs.String("server", "localhost:50051", "Адрес gRPC сервера или URL NATS")
	subject := fs.String("subject", "ecg.wave", "Префикс темы NATS")

	sessionID := fs.String("session", "emulator-session", "ID сессии")
	blockSize := fs.Int("block", 25, "Отсчетов в сообщении")
	realtime := fs.Bool("realtime", true, "Отправлять в темпе реального времени")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dur, err := time.ParseDuration(*duration)
	if err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}

	cfg := &Config{
		Source: SourceConfig{
			CSVPath:   *csvPath,
			WAVPath:   *wavPath,
			Rate:      *rate,
			Duration:  dur,
			HeartRate: *heartRate,
			Noise:     *noise,
			Seed:      *seed,
			Leads:     splitList(*leads),
		},
		Target: TargetConfig{
			Mode:    strings.ToLower(*mode),
			Addr:    *addr,
			Subject: *subject,
		},
		SessionID: *sessionID,
		BlockSize: *blockSize,
		Realtime:  *realtime,
	}

	if *mode == "nats" && *addr == "localhost:50051" {
		cfg.Target.Addr = "nats://localhost:4222"
	}

	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Source.Rate <= 0 {
		return errors.New("rate must be positive")
	}
	if c.BlockSize <= 0 {
		return errors.New("block must be positive")
	}
	if c.SessionID == "" {
		return errors.New("session is required")
	}
	if c.Source.CSVPath != "" && c.Source.WAVPath != "" {
		return errors.New("csv and wav are mutually exclusive")
	}
	if c.Source.CSVPath == "" && c.Source.WAVPath == "" && len(c.Source.Leads) == 0 {
		return errors.New("at least one lead is required")
	}
	switch c.Target.Mode {
	case "grpc", "nats":
	default:
		return fmt.Errorf("unknown mode %q", c.Target.Mode)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.SamplingRate != 250 {
		t.Errorf("Expected default sampling rate 250, got %v", cfg.SamplingRate)
	}
	if cfg.DetectionMethod != "knowledge" {
		t.Errorf("Expected knowledge-based method by default, got %q", cfg.DetectionMethod)
	}
	if cfg.FlushInterval() != 250*time.Millisecond {
		t.Errorf("Unexpected flush interval: %v", cfg.FlushInterval())
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SAMPLING_RATE", "360")
	t.Setenv("BATCH_MAX_SAMPLES", "90")
	t.Setenv("RR_KEEP_UNEXPLAINED", "true")
	t.Setenv("CHAIN_LIMIT", "not-a-number")

	cfg := Load()

	if cfg.SamplingRate != 360 {
		t.Errorf("Expected sampling rate 360, got %v", cfg.SamplingRate)
	}
	if cfg.BatchMaxSamples != 90 {
		t.Errorf("Expected 90 samples per batch, got %d", cfg.BatchMaxSamples)
	}
	if !cfg.KeepUnexplained {
		t.Error("Expected keep-unexplained mode from env")
	}
	if cfg.ChainLimit != 4096 {
		t.Errorf("Invalid value must fall back to default, got %d", cfg.ChainLimit)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Krimson/ecg-monitory/analyzer/internal/emulator"
)

func main() {
	// Загрузка конфигурации
	cfg, err := emulator.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("[FATAL] Invalid configuration: %v", err)
	}

	rec, err := emulator.LoadRecording(cfg.Source)
	if err != nil {
		log.Fatalf("[FATAL] Failed to load recording: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sender, err := emulator.NewSender(ctx, cfg.Target)
	if err != nil {
		log.Fatalf("[FATAL] Failed to create sender: %v", err)
	}

	sent, runErr := emulator.NewEmulator(rec, sender, cfg).Run(ctx)
	if err := sender.Close(); err != nil {
		log.Printf("[WARN] Failed to close sender: %v", err)
	}
	if runErr != nil && ctx.Err() == nil {
		log.Fatalf("[FATAL] Emulation failed after %d samples: %v", sent, runErr)
	}

	log.Printf("[INFO] Emulator stopped: session=%s samples=%d", cfg.SessionID, sent)
}

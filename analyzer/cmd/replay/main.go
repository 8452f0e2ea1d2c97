package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/emulator"
	"github.com/Krimson/ecg-monitory/analyzer/internal/heartbeat"
	"github.com/Krimson/ecg-monitory/analyzer/internal/rr"
	"github.com/Krimson/ecg-monitory/analyzer/internal/session"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
)

// Summary результат прогона записи
type Summary struct {
	Lead      string               `json:"lead"`
	ExactLead bool                 `json:"exact_lead"`
	Rate      float64              `json:"sampling_rate"`
	Method    string               `json:"method"`
	Samples   int64                `json:"samples"`
	Beats     int                  `json:"beats"`
	Analysis  *session.Analysis    `json:"analysis"`
	Records   []session.BeatRecord `json:"records,omitempty"`
	Elapsed   string               `json:"elapsed"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)

	csvPath := fs.String("csv", "", "CSV-файл с отведениями (пусто: синтетический сигнал)")
	wavPath := fs.String("wav", "", "WAV-файл, канал на отведение")
	channels := fs.String("channels", "", "Имена каналов WAV через запятую (пусто: CH1, CH2, ...)")
	rate := fs.Float64("rate", 250, "Частота дискретизации, Гц (0: по колонке времени CSV)")
	duration := fs.Duration("duration", 60*time.Second, "Длительность синтетической записи")
	heartRate := fs.Float64("hr", 72, "Пульс синтетической записи, уд/мин")
	noise := fs.Float64("noise", 0.01, "СКО шума синтетической записи")
	seed := fs.Int64("seed", 1, "Seed генератора")
	lead := fs.String("lead", "II", "Предпочтительное отведение")
	methodName := fs.String("method", "knowledge", "Алгоритм детекции: knowledge или classical")
	keep := fs.Bool("keep", false, "Не удалять необъяснимые RR-интервалы, а восстанавливать сплайном")
	withBeats := fs.Bool("beats", false, "Включить удары в вывод")
	out := fs.String("out", "", "Файл для JSON (пусто: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	method, err := heartbeat.ParseMethod(*methodName)
	if err != nil {
		return err
	}

	source := emulator.SourceConfig{
		CSVPath:   *csvPath,
		WAVPath:   *wavPath,
		Rate:      *rate,
		Duration:  *duration,
		HeartRate: *heartRate,
		Noise:     *noise,
		Seed:      *seed,
		Leads:     []string{*lead},
	}
	if *wavPath != "" {
		source.Leads = nil
		if *channels != "" {
			source.Leads = strings.Split(*channels, ",")
		}
	}
	rec, err := emulator.LoadRecording(source)
	if err != nil {
		return err
	}

	started := time.Now()

	opts := heartbeat.DefaultOptions(rec.Rate)
	opts.Method = method

	slice, leadName, exact, err := rec.ResolveLead(signal.MatchTable{}, *lead)
	if err != nil {
		return err
	}
	beats, err := heartbeat.ReplayRecording(rec, signal.MatchTable{}, *lead, opts)
	if err != nil {
		return err
	}

	records := make([]session.BeatRecord, len(beats))
	peaks := make([]int64, len(beats))
	amps := make([]float64, len(beats))
	for i, b := range beats {
		records[i] = session.NewBeatRecord("", int64(i), 0, rec.Rate, b)
		records[i].Lead = leadName
		peaks[i] = records[i].R
		amps[i] = records[i].RAmplitude
	}

	seq, err := rr.FromPeaks(peaks, amps, rec.Rate)
	if err != nil {
		return fmt.Errorf("build rr sequence: %w", err)
	}
	report := rr.Corrector{KeepUnexplained: *keep}.Correct(seq)

	summary := Summary{
		Lead:      leadName,
		ExactLead: exact,
		Rate:      rec.Rate,
		Method:    string(method),
		Samples:   slice.Len(),
		Beats:     len(beats),
		Analysis:  session.NewAnalysis("", seq, report),
		Elapsed:   time.Since(started).String(),
	}
	if *withBeats {
		summary.Records = records
	}

	log.Printf("[INFO] Replayed %d samples on lead %s (exact=%v): beats=%d deleted=%d inserted=%d ectopic=%d",
		slice.Len(), leadName, exact, len(beats), report.Deleted, report.Inserted, report.Ectopic)

	w := stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

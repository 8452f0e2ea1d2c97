package metrics

import (
	"context"
	"net/http"

	"github.com/Krimson/ecg-monitory/analyzer/internal/batch"
	"github.com/Krimson/ecg-monitory/analyzer/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter метрики детекции и коррекции RR
type Exporter struct {
	registry *prometheus.Registry

	beatsTotal    *prometheus.CounterVec
	inexactLead   prometheus.Counter
	displacement  prometheus.Histogram
	correlation   prometheus.Histogram
	rrEditsTotal  *prometheus.CounterVec
	rrIntervals   prometheus.Counter
	heartRate     prometheus.Histogram
	samplesDrops  *prometheus.CounterVec
	analysesTotal prometheus.Counter
}

// NewExporter создает экспортер с собственным реестром
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),

		beatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecg_beats_detected_total",
				Help: "Total number of finalized heartbeats",
			},
			[]string{"lead"},
		),

		inexactLead: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecg_beats_inexact_lead_total",
				Help: "Heartbeats detected on a substitute lead",
			},
		),

		displacement: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ecg_qrs_refinement_displacement_samples",
				Help:    "R-peak shift applied by refinement, in samples",
				Buckets: []float64{-20, -10, -5, -2, -1, 0, 1, 2, 5, 10, 20},
			},
		),

		correlation: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ecg_qrs_template_correlation",
				Help:    "Correlation of each complex with the running template",
				Buckets: []float64{0, 0.5, 0.7, 0.8, 0.9, 0.95, 0.99, 1},
			},
		),

		rrEditsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecg_rr_corrections_total",
				Help: "RR interval edits by kind",
			},
			[]string{"kind"},
		),

		rrIntervals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecg_rr_intervals_total",
				Help: "RR intervals fed into correction",
			},
		),

		heartRate: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ecg_session_heart_rate_bpm",
				Help:    "Mean heart rate of corrected sessions",
				Buckets: []float64{30, 40, 50, 60, 70, 80, 90, 100, 120, 150, 180},
			},
		),

		samplesDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecg_samples_dropped_total",
				Help: "Samples dropped by the batcher",
			},
			[]string{"reason"},
		),

		analysesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ecg_rr_analyses_total",
				Help: "Completed RR corrections",
			},
		),
	}

	e.registry.MustRegister(
		e.beatsTotal,
		e.inexactLead,
		e.displacement,
		e.correlation,
		e.rrEditsTotal,
		e.rrIntervals,
		e.heartRate,
		e.samplesDrops,
		e.analysesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Registry реестр экспортера
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler HTTP-обработчик для /metrics
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// TrackGauge регистрирует значение, читаемое при каждом сборе
func (e *Exporter) TrackGauge(name, help string, fn func() float64) {
	e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// ConsumeBeats реализует batch.BeatSink
func (e *Exporter) ConsumeBeats(ctx context.Context, ev batch.BeatEvent) error {
	if len(ev.Beats) == 0 {
		return nil
	}
	e.beatsTotal.WithLabelValues(ev.Key.Lead).Add(float64(len(ev.Beats)))
	if !ev.Exact {
		e.inexactLead.Add(float64(len(ev.Beats)))
	}
	for _, b := range ev.Beats {
		if b.QRS == nil {
			continue
		}
		e.displacement.Observe(float64(b.QRS.Displacement))
		e.correlation.Observe(b.QRS.Correlation)
	}
	return nil
}

// ObserveDrop реализует batch.DropObserver
func (e *Exporter) ObserveDrop(reason string) {
	e.samplesDrops.WithLabelValues(reason).Inc()
}

// ObserveCorrection реализует session.CorrectionObserver
func (e *Exporter) ObserveCorrection(a *session.Analysis) {
	rep := a.Report
	e.analysesTotal.Inc()
	e.rrIntervals.Add(float64(rep.Input))
	e.rrEditsTotal.WithLabelValues("deleted").Add(float64(rep.Deleted))
	e.rrEditsTotal.WithLabelValues("inserted").Add(float64(rep.Inserted))
	e.rrEditsTotal.WithLabelValues("ectopic").Add(float64(rep.Ectopic))
	e.rrEditsTotal.WithLabelValues("repaired").Add(float64(rep.Repaired))
	if a.HeartRateBPM > 0 {
		e.heartRate.Observe(a.HeartRateBPM)
	}
}

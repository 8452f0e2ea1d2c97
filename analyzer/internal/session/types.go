package session

import (
	"errors"
	"math"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/heartbeat"
	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/rr"
)

var (
	// ErrSessionNotFound сессия не найдена ни в кэше, ни в базе
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive операция требует активной сессии
	ErrSessionNotActive = errors.New("session is not active")
)

// SessionStatus представляет статус сессии
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusStopped SessionStatus = "STOPPED"
	SessionStatusSaved   SessionStatus = "SAVED"
)

// Session представляет сессию записи ЭКГ
type Session struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty"`
	SavedAt         *time.Time    `json:"saved_at,omitempty"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	TotalBeats      int64         `json:"total_beats"`
	SamplingRate    float64       `json:"sampling_rate"`
	Lead            string        `json:"lead,omitempty"`
	ExactLead       bool          `json:"exact_lead"`
	Method          string        `json:"method"`
	Metadata        Metadata      `json:"metadata,omitempty"`
}

// Metadata содержит дополнительную информацию о сессии
type Metadata struct {
	DeviceID    string                 `json:"device_id,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	CustomData  map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom string                 `json:"created_from,omitempty"` // "web", "nats", "replay"
}

// BeatRecord удар в виде, пригодном для хранения и рассылки.
// Индексы отсчетов абсолютные в пределах сессии.
type BeatRecord struct {
	SessionID    string                    `json:"session_id"`
	Seq          int64                     `json:"seq"`
	Lead         string                    `json:"lead"`
	R            int64                     `json:"r"`
	TimeSec      float64                   `json:"time_sec"`
	RAmplitude   float64                   `json:"r_amplitude"`
	Q            int64                     `json:"q"`
	QAmplitude   float64                   `json:"q_amplitude"`
	S            int64                     `json:"s"`
	SAmplitude   float64                   `json:"s_amplitude"`
	Start        int64                     `json:"start"`
	End          int64                     `json:"end"`
	RR           int64                     `json:"rr"`
	Correlation  float64                   `json:"correlation"`
	Displacement int64                     `json:"displacement"`
	Stats        qrs.Stats                 `json:"stats"`
	P            *heartbeat.WaveMorphology `json:"p,omitempty"`
	T            *heartbeat.WaveMorphology `json:"t,omitempty"`
}

// NewBeatRecord переводит удар потока в запись; offset сдвигает индексы к абсолютным
func NewBeatRecord(sessionID string, seq int64, offset int64, fs float64, b *heartbeat.Heartbeat) BeatRecord {
	c := b.QRS
	rec := BeatRecord{
		SessionID:    sessionID,
		Seq:          seq,
		Lead:         c.Lead,
		R:            offset + c.R,
		RAmplitude:   c.RAmplitude,
		Q:            offset + c.Q,
		QAmplitude:   c.QAmplitude,
		S:            offset + c.S,
		SAmplitude:   c.SAmplitude,
		Start:        offset + c.Start,
		End:          offset + c.End,
		RR:           b.RR,
		Correlation:  c.Correlation,
		Displacement: c.Displacement,
		Stats:        c.Stats,
		P:            shiftWave(b.P, offset),
		T:            shiftWave(b.T, offset),
	}
	if fs > 0 {
		rec.TimeSec = float64(rec.R) / fs
	}
	return rec
}

func shiftWave(w *heartbeat.WaveMorphology, offset int64) *heartbeat.WaveMorphology {
	if w == nil {
		return nil
	}
	out := *w
	out.Onset += offset
	out.Peak += offset
	out.Offset += offset
	return &out
}

// IntervalRecord скорректированный RR-интервал
type IntervalRecord struct {
	SessionID string  `json:"session_id"`
	Position  int     `json:"position"`
	Timestamp int64   `json:"timestamp"`
	Value     int64   `json:"value"`
	ValueMs   float64 `json:"value_ms"`
	Reference int64   `json:"reference"`
	Outlier   bool    `json:"outlier"`
}

// Analysis результат коррекции RR-последовательности сессии
type Analysis struct {
	SessionID    string           `json:"session_id"`
	Report       rr.Report        `json:"report"`
	Intervals    []IntervalRecord `json:"intervals"`
	MeanRRMs     float64          `json:"mean_rr_ms"`
	HeartRateBPM float64          `json:"heart_rate_bpm"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewAnalysis собирает результат по скорректированной последовательности
func NewAnalysis(sessionID string, seq *rr.Sequence, rep rr.Report) *Analysis {
	a := &Analysis{
		SessionID: sessionID,
		Report:    rep,
		Intervals: make([]IntervalRecord, 0, seq.Len()),
		UpdatedAt: time.Now(),
	}

	var total float64
	for i, iv := range seq.Intervals() {
		ms := iv.Seconds(seq.Rate) * 1000
		total += ms
		a.Intervals = append(a.Intervals, IntervalRecord{
			SessionID: sessionID,
			Position:  i,
			Timestamp: iv.Timestamp,
			Value:     iv.Value,
			ValueMs:   ms,
			Reference: iv.Reference,
			Outlier:   iv.Outlier,
		})
	}

	if n := len(a.Intervals); n > 0 {
		a.MeanRRMs = total / float64(n)
		a.HeartRateBPM = math.Round(60000/a.MeanRRMs*10) / 10
	}
	return a
}

// SessionData представляет все данные сессии для хранения
type SessionData struct {
	Session  *Session     `json:"session"`
	Beats    []BeatRecord `json:"beats"`
	Analysis *Analysis    `json:"analysis,omitempty"`
}

// CreateSessionRequest представляет запрос на создание сессии
type CreateSessionRequest struct {
	DeviceID     string                 `json:"device_id,omitempty"`
	Notes        string                 `json:"notes,omitempty"`
	CustomData   map[string]interface{} `json:"custom_data,omitempty"`
	CreatedFrom  string                 `json:"created_from,omitempty"`
	SamplingRate float64                `json:"sampling_rate,omitempty"`
	Method       string                 `json:"method,omitempty"`
}

// AnalyzeRequest пакетный анализ записи, переданной целиком
type AnalyzeRequest struct {
	SamplingRate    float64              `json:"sampling_rate"`
	Leads           map[string][]float64 `json:"leads"`
	PreferredLead   string               `json:"preferred_lead,omitempty"`
	Method          string               `json:"method,omitempty"`
	KeepUnexplained bool                 `json:"keep_unexplained,omitempty"`
	Notes           string               `json:"notes,omitempty"`
}

// SessionResponse представляет ответ с информацией о сессии
type SessionResponse struct {
	Session  *Session  `json:"session"`
	Analysis *Analysis `json:"analysis,omitempty"`
}

// SaveSessionRequest представляет запрос на сохранение сессии
type SaveSessionRequest struct {
	Notes string `json:"notes,omitempty"`
}

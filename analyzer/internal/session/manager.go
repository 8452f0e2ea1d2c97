package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/batch"
	"github.com/Krimson/ecg-monitory/analyzer/internal/heartbeat"
	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/rr"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
	"github.com/google/uuid"
)

// ErrInvalidRequest некорректные параметры запроса
var ErrInvalidRequest = errors.New("invalid request")

// Defaults параметры детекции для новых сессий
type Defaults struct {
	SamplingRate    float64
	Method          string
	PreferredLead   string
	KeepUnexplained bool
	ChainLimit      int
}

// Manager управляет сессиями записи ЭКГ (Application Layer)
type Manager struct {
	cache      CacheStore
	repository Repository
	defaults   Defaults
	dataTTL    int

	closer       StreamCloser
	observers    []CorrectionObserver
	broadcasters []BeatBroadcaster

	mu             sync.RWMutex
	activeSessions map[string]*Session // Кэш активных сессий в памяти
}

// NewManager создает новый менеджер сессий
func NewManager(cache CacheStore, repository Repository, defaults Defaults) *Manager {
	return &Manager{
		cache:          cache,
		repository:     repository,
		defaults:       defaults,
		activeSessions: make(map[string]*Session),
	}
}

// SetStreamCloser подключает закрытие потоков детекции при остановке сессии
func (m *Manager) SetStreamCloser(c StreamCloser) {
	m.closer = c
}

// AddObserver добавляет наблюдателя за коррекцией RR
func (m *Manager) AddObserver(o CorrectionObserver) {
	m.observers = append(m.observers, o)
}

// AddBroadcaster добавляет получателя новых ударов
func (m *Manager) AddBroadcaster(b BeatBroadcaster) {
	m.broadcasters = append(m.broadcasters, b)
}

// SetDataTTL время жизни данных сессии в кэше после сохранения, секунды; 0 без ограничения
func (m *Manager) SetDataTTL(seconds int) {
	m.dataTTL = seconds
}

// CreateSession создает новую сессию
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	rate := req.SamplingRate
	if rate == 0 {
		rate = m.defaults.SamplingRate
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sampling rate %v", ErrInvalidRequest, rate)
	}

	methodName := req.Method
	if methodName == "" {
		methodName = m.defaults.Method
	}
	method, err := heartbeat.ParseMethod(methodName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	session := &Session{
		ID:           uuid.New().String(),
		Status:       SessionStatusActive,
		StartedAt:    time.Now(),
		SamplingRate: rate,
		Method:       string(method),
		Metadata: Metadata{
			DeviceID:    req.DeviceID,
			Notes:       req.Notes,
			CustomData:  req.CustomData,
			CreatedFrom: req.CreatedFrom,
		},
	}

	// Сохраняем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}

	// Добавляем в активные сессии
	m.mu.Lock()
	m.activeSessions[session.ID] = session
	m.mu.Unlock()

	log.Printf("[SESSION] Created new session: %s (rate=%.0f method=%s)", session.ID, rate, method)
	return session, nil
}

// GetSession получает сессию по ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	// Сначала проверяем в памяти
	m.mu.RLock()
	if session, ok := m.activeSessions[sessionID]; ok {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	// Проверяем в Redis
	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}

	// Проверяем в PostgreSQL
	session, err = m.repository.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSessionNotFound, sessionID, err)
	}
	return session, nil
}

// StopSession останавливает сессию, корректирует RR-интервалы и архивирует результат
func (m *Manager) StopSession(ctx context.Context, sessionID string) (*Analysis, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != SessionStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotActive, session.Status)
	}

	// Дописываем удары, ожидающие хвоста сигнала, пока сессия еще активна
	if m.closer != nil {
		if err := m.closer.CloseSession(ctx, sessionID); err != nil {
			log.Printf("[WARN] Failed to close detection stream for %s: %v", sessionID, err)
		}
	}

	m.mu.Lock()
	now := time.Now()
	session.Status = SessionStatusStopped
	session.StoppedAt = &now
	session.TotalDurationMs = now.Sub(session.StartedAt).Milliseconds()
	delete(m.activeSessions, sessionID)
	m.mu.Unlock()

	// Обновляем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session in cache: %w", err)
	}

	beats, err := m.cache.GetBeats(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get beats: %w", err)
	}

	analysis, err := m.correct(sessionID, beats, session.SamplingRate, m.defaults.KeepUnexplained)
	if err != nil {
		return nil, fmt.Errorf("failed to correct rr intervals: %w", err)
	}

	if err := m.cache.SetAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("failed to save analysis to cache: %w", err)
	}

	log.Printf("[SESSION] Stopped session: %s, duration: %dms, beats: %d, intervals: %d",
		sessionID, session.TotalDurationMs, len(beats), len(analysis.Intervals))

	if err := m.SaveSession(ctx, sessionID, ""); err != nil {
		log.Printf("[WARN] Failed to archive session %s: %v", sessionID, err)
	}

	return analysis, nil
}

// SaveSession сохраняет сессию в PostgreSQL
func (m *Manager) SaveSession(ctx context.Context, sessionID string, notes string) error {
	// Получаем все данные из Redis
	sessionData, err := m.cache.GetSessionData(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session data from cache: %w", err)
	}

	if sessionData.Session.Status == SessionStatusActive {
		return fmt.Errorf("%w: stop the session before saving", ErrSessionNotActive)
	}

	// Обновляем метаданные
	if notes != "" {
		sessionData.Session.Metadata.Notes = notes
	}

	now := time.Now()
	sessionData.Session.Status = SessionStatusSaved
	sessionData.Session.SavedAt = &now

	// Сохраняем в PostgreSQL
	if err := m.repository.SaveSessionData(ctx, sessionData); err != nil {
		return fmt.Errorf("failed to save session to database: %w", err)
	}

	// Обновляем статус в Redis
	if err := m.cache.SetSession(ctx, sessionData.Session); err != nil {
		log.Printf("[WARN] Failed to update session status in cache: %v", err)
	}

	if m.dataTTL > 0 {
		if err := m.cache.SetSessionTTL(ctx, sessionID, m.dataTTL); err != nil {
			log.Printf("[WARN] Failed to set cache TTL for %s: %v", sessionID, err)
		}
	}

	log.Printf("[SESSION] Saved session to database: %s (beats=%d)", sessionID, len(sessionData.Beats))
	return nil
}

// ListSessions возвращает список сессий
func (m *Manager) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	return m.repository.ListSessions(ctx, limit, offset)
}

// DeleteSession удаляет сессию
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	// Удаляем из памяти
	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	m.mu.Unlock()

	if m.closer != nil {
		if err := m.closer.CloseSession(ctx, sessionID); err != nil {
			log.Printf("[WARN] Failed to close detection stream for %s: %v", sessionID, err)
		}
	}

	// Удаляем из Redis
	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to delete session from cache: %v", err)
	}

	// Удаляем из PostgreSQL
	if err := m.repository.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session from database: %w", err)
	}

	log.Printf("[SESSION] Deleted session: %s", sessionID)
	return nil
}

// ConsumeBeats принимает удары от детектора (реализует batch.BeatSink)
func (m *Manager) ConsumeBeats(ctx context.Context, ev batch.BeatEvent) error {
	sessionID := ev.Key.SessionID

	// Получаем или создаем сессию
	session, err := m.getOrCreateSession(ctx, sessionID, ev.Rate)
	if err != nil {
		return fmt.Errorf("failed to get or create session: %w", err)
	}

	m.mu.Lock()
	if session.Status != SessionStatusActive {
		m.mu.Unlock()
		log.Printf("[WARN] Received beats for non-active session: %s (status: %s)", sessionID, session.Status)
		return nil // Не возвращаем ошибку, просто игнорируем
	}

	records := make([]BeatRecord, 0, len(ev.Beats))
	for i, b := range ev.Beats {
		records = append(records, NewBeatRecord(sessionID, session.TotalBeats+int64(i), ev.Offset, ev.Rate, b))
	}
	session.TotalBeats += int64(len(records))
	session.Lead = ev.Key.Lead
	session.ExactLead = ev.Exact
	snapshot := *session
	m.mu.Unlock()

	if err := m.cache.AppendBeats(ctx, sessionID, records); err != nil {
		return fmt.Errorf("failed to save beats: %w", err)
	}

	if err := m.cache.SetSession(ctx, &snapshot); err != nil {
		log.Printf("[WARN] Failed to update session: %v", err)
	}

	for _, b := range m.broadcasters {
		b.BroadcastBeats(sessionID, records)
	}

	log.Printf("[SESSION] Processed %d beats for session %s (lead=%s total=%d)",
		len(records), sessionID, ev.Key.Lead, snapshot.TotalBeats)
	return nil
}

// GetBeats удары сессии: из кэша, иначе из архива
func (m *Manager) GetBeats(ctx context.Context, sessionID string) ([]BeatRecord, error) {
	if exists, err := m.cache.SessionExists(ctx, sessionID); err == nil && exists {
		return m.cache.GetBeats(ctx, sessionID)
	}
	if _, err := m.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return m.repository.GetBeats(ctx, sessionID)
}

// GetAnalysis результат коррекции RR: из кэша, иначе из архива
func (m *Manager) GetAnalysis(ctx context.Context, sessionID string) (*Analysis, error) {
	if analysis, err := m.cache.GetAnalysis(ctx, sessionID); err == nil {
		return analysis, nil
	}
	return m.repository.GetAnalysis(ctx, sessionID)
}

// GetSessionData получает все данные сессии
func (m *Manager) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	return m.cache.GetSessionData(ctx, sessionID)
}

// Analyze прогоняет переданную запись целиком: детекция, коррекция RR, сохранение
func (m *Manager) Analyze(ctx context.Context, req *AnalyzeRequest) (*SessionData, error) {
	if req.SamplingRate <= 0 {
		return nil, fmt.Errorf("%w: sampling rate %v", ErrInvalidRequest, req.SamplingRate)
	}
	if len(req.Leads) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, signal.ErrNoLeads)
	}

	methodName := req.Method
	if methodName == "" {
		methodName = m.defaults.Method
	}
	method, err := heartbeat.ParseMethod(methodName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	preferred := req.PreferredLead
	if preferred == "" {
		preferred = m.defaults.PreferredLead
	}

	rec := signal.NewRecording(req.SamplingRate)
	names := make([]string, 0, len(req.Leads))
	for name := range req.Leads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec.AddLead(name, req.Leads[name])
	}

	opts := heartbeat.DefaultOptions(req.SamplingRate)
	opts.Method = method
	opts.ChainLimit = m.defaults.ChainLimit

	slice, lead, exact, err := rec.ResolveLead(signal.MatchTable{}, preferred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	beats, err := heartbeat.ReplayRecording(rec, signal.MatchTable{}, preferred, opts)
	if err != nil {
		return nil, fmt.Errorf("replay failed: %w", err)
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.New().String(),
		Status:       SessionStatusStopped,
		StartedAt:    now,
		StoppedAt:    &now,
		SamplingRate: req.SamplingRate,
		Lead:         lead,
		ExactLead:    exact,
		Method:       string(method),
		TotalBeats:   int64(len(beats)),
		Metadata: Metadata{
			Notes:       req.Notes,
			CreatedFrom: "analyze",
		},
	}
	session.TotalDurationMs = int64(float64(slice.Len()) / req.SamplingRate * 1000)

	records := make([]BeatRecord, 0, len(beats))
	for i, b := range beats {
		records = append(records, NewBeatRecord(session.ID, int64(i), 0, req.SamplingRate, b))
	}

	keep := req.KeepUnexplained || m.defaults.KeepUnexplained
	analysis, err := m.correct(session.ID, records, req.SamplingRate, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to correct rr intervals: %w", err)
	}

	data := &SessionData{Session: session, Beats: records, Analysis: analysis}

	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}
	if err := m.cache.AppendBeats(ctx, session.ID, records); err != nil {
		return nil, fmt.Errorf("failed to save beats: %w", err)
	}
	if err := m.cache.SetAnalysis(ctx, analysis); err != nil {
		return nil, fmt.Errorf("failed to save analysis to cache: %w", err)
	}
	if err := m.SaveSession(ctx, session.ID, ""); err != nil {
		log.Printf("[WARN] Failed to archive analyzed session %s: %v", session.ID, err)
	} else {
		session.Status = SessionStatusSaved
	}

	log.Printf("[SESSION] Analyzed recording: session=%s lead=%s exact=%v beats=%d deleted=%d inserted=%d",
		session.ID, lead, exact, len(records), analysis.Report.Deleted, analysis.Report.Inserted)
	return data, nil
}

// correct строит RR-последовательность по ударам и исправляет ее
func (m *Manager) correct(sessionID string, beats []BeatRecord, fs float64, keep bool) (*Analysis, error) {
	sorted := slices.Clone(beats)
	slices.SortFunc(sorted, func(a, b BeatRecord) int {
		return cmp.Compare(a.R, b.R)
	})

	peaks := make([]int64, 0, len(sorted))
	amps := make([]float64, 0, len(sorted))
	for _, b := range sorted {
		// одинаковый R возможен после перезапуска потока
		if len(peaks) > 0 && b.R <= peaks[len(peaks)-1] {
			continue
		}
		peaks = append(peaks, b.R)
		amps = append(amps, b.RAmplitude)
	}

	seq, err := rr.FromPeaks(peaks, amps, fs)
	if err != nil {
		return nil, err
	}
	report := rr.Corrector{KeepUnexplained: keep}.Correct(seq)
	analysis := NewAnalysis(sessionID, seq, report)

	for _, o := range m.observers {
		o.ObserveCorrection(analysis)
	}
	return analysis, nil
}

// StreamOptions параметры потока детекции для сессии: частота и алгоритм
// берутся из сессии, остальное из base (реализует batch.OptionsProvider)
func (m *Manager) StreamOptions(sessionID string, base heartbeat.Options) heartbeat.Options {
	m.mu.RLock()
	session, ok := m.activeSessions[sessionID]
	var rate float64
	var methodName string
	if ok {
		rate, methodName = session.SamplingRate, session.Method
	}
	m.mu.RUnlock()

	if !ok {
		return base
	}
	if rate > 0 && rate != base.Detector.Rate {
		base.Detector = qrs.DefaultConfig(rate)
	}
	if method, err := heartbeat.ParseMethod(methodName); err == nil {
		base.Method = method
	}
	return base
}

// IsSessionActive проверяет, активна ли сессия
func (m *Manager) IsSessionActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.activeSessions[sessionID]
	return exists
}

// getOrCreateSession получает существующую сессию или создает новую.
// Используется для автоматического создания сессий при получении данных из NATS.
func (m *Manager) getOrCreateSession(ctx context.Context, sessionID string, rate float64) (*Session, error) {
	// Сначала проверяем в памяти (быстро)
	m.mu.RLock()
	if session, exists := m.activeSessions[sessionID]; exists {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	// Проверяем в кэше (Redis)
	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		if session.Status == SessionStatusActive {
			m.mu.Lock()
			m.activeSessions[sessionID] = session
			m.mu.Unlock()
		}
		return session, nil
	}

	// Проверяем в PostgreSQL (возможно, остановленная сессия)
	session, err = m.repository.GetSession(ctx, sessionID)
	if err == nil {
		log.Printf("[SESSION] Loaded existing session from database: %s (status: %s)", sessionID, session.Status)
		if err := m.cache.SetSession(ctx, session); err != nil {
			log.Printf("[WARN] Failed to cache session: %v", err)
		}
		return session, nil
	}

	// Сессия не найдена нигде - создаем новую
	log.Printf("[SESSION] Auto-creating new session from incoming data: %s", sessionID)

	if rate <= 0 {
		rate = m.defaults.SamplingRate
	}
	session = &Session{
		ID:           sessionID,
		Status:       SessionStatusActive,
		StartedAt:    time.Now(),
		SamplingRate: rate,
		Method:       m.defaults.Method,
		Metadata: Metadata{
			CreatedFrom: "auto-created",
			Notes:       "Automatically created from streamed samples",
		},
	}

	// Сохраняем в Redis
	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save auto-created session to cache: %w", err)
	}

	m.mu.Lock()
	if existing, ok := m.activeSessions[sessionID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.activeSessions[sessionID] = session
	m.mu.Unlock()

	return session, nil
}

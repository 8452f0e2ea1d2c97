package session

import (
	"context"
)

// Repository определяет интерфейс для работы с архивом сессий (Domain Layer)
type Repository interface {
	// Управление сессиями
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Удары и RR-интервалы
	GetBeats(ctx context.Context, sessionID string) ([]BeatRecord, error)
	GetAnalysis(ctx context.Context, sessionID string) (*Analysis, error)

	// Сохранение полных данных сессии
	SaveSessionData(ctx context.Context, data *SessionData) error
}

// CacheStore определяет интерфейс для работы с кэшем живых сессий (Redis)
type CacheStore interface {
	// Управление сессиями в кэше
	SetSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Удары (append-only)
	AppendBeats(ctx context.Context, sessionID string, beats []BeatRecord) error
	GetBeats(ctx context.Context, sessionID string) ([]BeatRecord, error)
	GetBeatCount(ctx context.Context, sessionID string) (int, error)

	// Результат коррекции (перезаписывается целиком)
	SetAnalysis(ctx context.Context, analysis *Analysis) error
	GetAnalysis(ctx context.Context, sessionID string) (*Analysis, error)

	// Получение всех данных сессии
	GetSessionData(ctx context.Context, sessionID string) (*SessionData, error)

	// Утилиты
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	SetSessionTTL(ctx context.Context, sessionID string, ttl int) error
}

// BeatBroadcaster получатель новых ударов живой сессии (websocket, NATS)
type BeatBroadcaster interface {
	BroadcastBeats(sessionID string, beats []BeatRecord)
}

// CorrectionObserver получатель итогов коррекции RR
type CorrectionObserver interface {
	ObserveCorrection(analysis *Analysis)
}

// StreamCloser закрывает поток детекции сессии, дописывая последние удары
type StreamCloser interface {
	CloseSession(ctx context.Context, sessionID string) error
}

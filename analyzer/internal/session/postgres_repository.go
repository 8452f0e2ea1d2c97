package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// schema таблицы архива; создаются при старте, если их нет
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	stopped_at        TIMESTAMPTZ,
	saved_at          TIMESTAMPTZ,
	total_duration_ms BIGINT NOT NULL DEFAULT 0,
	total_beats       BIGINT NOT NULL DEFAULT 0,
	sampling_rate     DOUBLE PRECISION NOT NULL,
	lead              TEXT NOT NULL DEFAULT '',
	exact_lead        BOOLEAN NOT NULL DEFAULT FALSE,
	method            TEXT NOT NULL DEFAULT '',
	metadata          JSONB
);
CREATE TABLE IF NOT EXISTS session_beats (
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq         BIGINT NOT NULL,
	r           BIGINT NOT NULL,
	r_amplitude DOUBLE PRECISION NOT NULL,
	rr          BIGINT NOT NULL,
	correlation DOUBLE PRECISION NOT NULL,
	data        JSONB NOT NULL,
	PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS session_rr_intervals (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	position   INT NOT NULL,
	ts         BIGINT NOT NULL,
	value      BIGINT NOT NULL,
	value_ms   DOUBLE PRECISION NOT NULL,
	reference  BIGINT NOT NULL,
	outlier    BOOLEAN NOT NULL,
	PRIMARY KEY (session_id, position)
);
CREATE TABLE IF NOT EXISTS session_rr_reports (
	session_id     TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	report         JSONB NOT NULL,
	mean_rr_ms     DOUBLE PRECISION NOT NULL,
	heart_rate_bpm DOUBLE PRECISION NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
`

// PostgresRepository реализует Repository для PostgreSQL (Infrastructure Layer)
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки подключения
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Migrate создает таблицы архива
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping проверяет соединение с БД
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает соединение с БД
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// ===== Управление сессиями =====

const sessionColumns = `id, status, started_at, stopped_at, saved_at, total_duration_ms, total_beats,
	sampling_rate, lead, exact_lead, method, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var metadataJSON []byte

	err := row.Scan(
		&session.ID,
		&session.Status,
		&session.StartedAt,
		&session.StoppedAt,
		&session.SavedAt,
		&session.TotalDurationMs,
		&session.TotalBeats,
		&session.SamplingRate,
		&session.Lead,
		&session.ExactLead,
		&session.Method,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &session, nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session *Session) error {
	return r.upsertSession(ctx, r.db, session)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PostgresRepository) upsertSession(ctx context.Context, db execer, session *Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stopped_at = EXCLUDED.stopped_at,
			saved_at = EXCLUDED.saved_at,
			total_duration_ms = EXCLUDED.total_duration_ms,
			total_beats = EXCLUDED.total_beats,
			lead = EXCLUDED.lead,
			exact_lead = EXCLUDED.exact_lead,
			metadata = EXCLUDED.metadata
	`

	_, err = db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StartedAt,
		session.StoppedAt,
		session.SavedAt,
		session.TotalDurationMs,
		session.TotalBeats,
		session.SamplingRate,
		session.Lead,
		session.ExactLead,
		session.Method,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, session *Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE sessions
		SET status = $2, stopped_at = $3, saved_at = $4, total_duration_ms = $5, total_beats = $6, metadata = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StoppedAt,
		session.SavedAt,
		session.TotalDurationMs,
		session.TotalBeats,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}

	return nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			continue // Пропускаем поврежденные записи
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Каскадное удаление работает через FK, но порядок задаем явно
	queries := []string{
		"DELETE FROM session_rr_reports WHERE session_id = $1",
		"DELETE FROM session_rr_intervals WHERE session_id = $1",
		"DELETE FROM session_beats WHERE session_id = $1",
		"DELETE FROM sessions WHERE id = $1",
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query, sessionID); err != nil {
			return fmt.Errorf("failed to delete session data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ===== Удары =====

func (r *PostgresRepository) GetBeats(ctx context.Context, sessionID string) ([]BeatRecord, error) {
	query := `SELECT data FROM session_beats WHERE session_id = $1 ORDER BY r ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get beats: %w", err)
	}
	defer rows.Close()

	var beats []BeatRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var beat BeatRecord
		if err := json.Unmarshal(data, &beat); err != nil {
			continue
		}
		beats = append(beats, beat)
	}

	return beats, rows.Err()
}

// ===== RR-интервалы =====

func (r *PostgresRepository) GetAnalysis(ctx context.Context, sessionID string) (*Analysis, error) {
	query := `
		SELECT report, mean_rr_ms, heart_rate_bpm, updated_at
		FROM session_rr_reports
		WHERE session_id = $1
	`

	analysis := &Analysis{SessionID: sessionID}
	var reportJSON []byte

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&reportJSON,
		&analysis.MeanRRMs,
		&analysis.HeartRateBPM,
		&analysis.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if err := json.Unmarshal(reportJSON, &analysis.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT position, ts, value, value_ms, reference, outlier
		FROM session_rr_intervals
		WHERE session_id = $1
		ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get intervals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		iv := IntervalRecord{SessionID: sessionID}
		if err := rows.Scan(&iv.Position, &iv.Timestamp, &iv.Value, &iv.ValueMs, &iv.Reference, &iv.Outlier); err != nil {
			continue
		}
		analysis.Intervals = append(analysis.Intervals, iv)
	}

	return analysis, rows.Err()
}

// ===== Сохранение полных данных сессии =====

// SaveSessionData сохраняет сессию, удары и результат коррекции одной транзакцией
func (r *PostgresRepository) SaveSessionData(ctx context.Context, data *SessionData) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.upsertSession(ctx, tx, data.Session); err != nil {
		return err
	}

	if err := saveBeats(ctx, tx, data.Session.ID, data.Beats); err != nil {
		return err
	}

	if data.Analysis != nil {
		if err := saveAnalysis(ctx, tx, data.Analysis); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func saveBeats(ctx context.Context, tx *sql.Tx, sessionID string, beats []BeatRecord) error {
	if len(beats) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_beats (session_id, seq, r, r_amplitude, rr, correlation, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, seq) DO UPDATE SET
			r = EXCLUDED.r,
			r_amplitude = EXCLUDED.r_amplitude,
			rr = EXCLUDED.rr,
			correlation = EXCLUDED.correlation,
			data = EXCLUDED.data
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, beat := range beats {
		data, err := json.Marshal(beat)
		if err != nil {
			return fmt.Errorf("failed to marshal beat: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID,
			beat.Seq,
			beat.R,
			beat.RAmplitude,
			beat.RR,
			beat.Correlation,
			data,
		); err != nil {
			return fmt.Errorf("failed to insert beat: %w", err)
		}
	}

	return nil
}

func saveAnalysis(ctx context.Context, tx *sql.Tx, analysis *Analysis) error {
	reportJSON, err := json.Marshal(analysis.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_rr_reports (session_id, report, mean_rr_ms, heart_rate_bpm, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			report = EXCLUDED.report,
			mean_rr_ms = EXCLUDED.mean_rr_ms,
			heart_rate_bpm = EXCLUDED.heart_rate_bpm,
			updated_at = EXCLUDED.updated_at
	`,
		analysis.SessionID,
		reportJSON,
		analysis.MeanRRMs,
		analysis.HeartRateBPM,
		analysis.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	// Последовательность после коррекции может стать короче, поэтому пишем заново
	if _, err := tx.ExecContext(ctx, "DELETE FROM session_rr_intervals WHERE session_id = $1", analysis.SessionID); err != nil {
		return fmt.Errorf("failed to clear intervals: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_rr_intervals (session_id, position, ts, value, value_ms, reference, outlier)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, iv := range analysis.Intervals {
		if _, err := stmt.ExecContext(ctx,
			analysis.SessionID,
			iv.Position,
			iv.Timestamp,
			iv.Value,
			iv.ValueMs,
			iv.Reference,
			iv.Outlier,
		); err != nil {
			return fmt.Errorf("failed to insert interval: %w", err)
		}
	}

	return nil
}

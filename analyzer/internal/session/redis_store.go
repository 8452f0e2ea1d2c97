package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore реализует CacheStore для Redis (Infrastructure Layer)
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создает новый экземпляр RedisStore
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// ===== Ключи Redis =====

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metadata", sessionID)
}

func beatsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:beats", sessionID)
}

func analysisKey(sessionID string) string {
	return fmt.Sprintf("session:%s:rr:report", sessionID)
}

func intervalsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:rr:intervals", sessionID)
}

// ===== Управление сессиями =====

func (r *RedisStore) SetSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return r.client.Set(ctx, sessionKey(session.ID), data, 0).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	// Удаляем все ключи, связанные с сессией
	pattern := fmt.Sprintf("session:%s:*", sessionID)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	count, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) SetSessionTTL(ctx context.Context, sessionID string, ttl int) error {
	pattern := fmt.Sprintf("session:%s:*", sessionID)
	duration := time.Duration(ttl) * time.Second

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Expire(ctx, iter.Val(), duration)
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ===== Удары =====

// AppendBeats добавляет удары в Sorted Set, где score = R.
// Повторная запись того же удара не создает дубликат.
func (r *RedisStore) AppendBeats(ctx context.Context, sessionID string, beats []BeatRecord) error {
	if len(beats) == 0 {
		return nil
	}

	key := beatsKey(sessionID)
	pipe := r.client.Pipeline()

	for _, beat := range beats {
		data, err := json.Marshal(beat)
		if err != nil {
			return fmt.Errorf("failed to marshal beat: %w", err)
		}

		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(beat.R),
			Member: data,
		})
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetBeats(ctx context.Context, sessionID string) ([]BeatRecord, error) {
	// Получаем все элементы, отсортированные по score (R)
	data, err := r.client.ZRange(ctx, beatsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get beats: %w", err)
	}

	beats := make([]BeatRecord, 0, len(data))
	for _, item := range data {
		var beat BeatRecord
		if err := json.Unmarshal([]byte(item), &beat); err != nil {
			continue // Пропускаем поврежденные записи
		}
		beats = append(beats, beat)
	}

	return beats, nil
}

func (r *RedisStore) GetBeatCount(ctx context.Context, sessionID string) (int, error) {
	count, err := r.client.ZCard(ctx, beatsKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ===== Коррекция RR =====

func (r *RedisStore) SetAnalysis(ctx context.Context, analysis *Analysis) error {
	report, err := json.Marshal(analysis.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// Сводка как Hash, интервалы отдельным списком
	fields := map[string]interface{}{
		"report":         report,
		"mean_rr_ms":     analysis.MeanRRMs,
		"heart_rate_bpm": analysis.HeartRateBPM,
		"updated_at":     analysis.UpdatedAt.Unix(),
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, analysisKey(analysis.SessionID), fields)
	pipe.Del(ctx, intervalsKey(analysis.SessionID))
	for _, iv := range analysis.Intervals {
		data, err := json.Marshal(iv)
		if err != nil {
			return fmt.Errorf("failed to marshal interval: %w", err)
		}
		pipe.RPush(ctx, intervalsKey(analysis.SessionID), data)
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetAnalysis(ctx context.Context, sessionID string) (*Analysis, error) {
	data, err := r.client.HGetAll(ctx, analysisKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("analysis not found for session: %s", sessionID)
	}

	analysis := &Analysis{SessionID: sessionID}

	if val, ok := data["report"]; ok {
		if err := json.Unmarshal([]byte(val), &analysis.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
	}
	if val, ok := data["mean_rr_ms"]; ok {
		analysis.MeanRRMs, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["heart_rate_bpm"]; ok {
		analysis.HeartRateBPM, _ = strconv.ParseFloat(val, 64)
	}
	if val, ok := data["updated_at"]; ok {
		timestamp, _ := strconv.ParseInt(val, 10, 64)
		analysis.UpdatedAt = time.Unix(timestamp, 0)
	}

	items, err := r.client.LRange(ctx, intervalsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get intervals: %w", err)
	}

	analysis.Intervals = make([]IntervalRecord, 0, len(items))
	for _, item := range items {
		var iv IntervalRecord
		if err := json.Unmarshal([]byte(item), &iv); err != nil {
			continue
		}
		analysis.Intervals = append(analysis.Intervals, iv)
	}

	return analysis, nil
}

// ===== Получение всех данных сессии =====

func (r *RedisStore) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	beats, err := r.GetBeats(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	analysis, _ := r.GetAnalysis(ctx, sessionID) // Может не быть до остановки

	return &SessionData{
		Session:  session,
		Beats:    beats,
		Analysis: analysis,
	}, nil
}

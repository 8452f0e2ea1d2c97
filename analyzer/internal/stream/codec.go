package stream

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Krimson/ecg-monitory/analyzer/internal/session"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// HeaderFirstIndex заголовок с индексом первого отсчета сообщения
const HeaderFirstIndex = "Ecg-First-Index"

var (
	// ErrBadPayload длина полезной нагрузки не кратна 4 байтам
	ErrBadPayload = errors.New("stream: payload is not a whole number of float32 samples")
	// ErrBadSubject тема не соответствует <prefix>.<session>.<lead>
	ErrBadSubject = errors.New("stream: subject must end with <session>.<lead>")
)

// EncodeSamples отсчеты в little-endian float32
func EncodeSamples(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeSamples обратное к EncodeSamples
func DecodeSamples(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadPayload, len(data))
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		values[i] = math.Float32frombits(bits)
	}
	return values, nil
}

// WaveSubject тема отсчетов отведения
func WaveSubject(prefix, sessionID, lead string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, sessionID, lead)
}

// ParseWaveSubject сессия и отведение из двух последних токенов темы
func ParseWaveSubject(subject string) (sessionID, lead string, err error) {
	tokens := strings.Split(subject, ".")
	if len(tokens) < 3 {
		return "", "", fmt.Errorf("%w: %q", ErrBadSubject, subject)
	}
	sessionID, lead = tokens[len(tokens)-2], tokens[len(tokens)-1]
	if sessionID == "" || lead == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadSubject, subject)
	}
	return sessionID, lead, nil
}

// EncodeEnvelope упаковывает значение в protobuf Struct: {"type": kind, "session_id": ..., "data": v}
func EncodeEnvelope(kind, sessionID string, v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", kind, err)
	}

	st, err := structpb.NewStruct(map[string]interface{}{
		"type":       kind,
		"session_id": sessionID,
		"data":       data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	return proto.Marshal(st)
}

// DecodeEnvelope разбирает конверт и раскладывает data в out
func DecodeEnvelope(payload []byte, out interface{}) (kind, sessionID string, err error) {
	var st structpb.Struct
	if err := proto.Unmarshal(payload, &st); err != nil {
		return "", "", fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	fields := st.GetFields()
	kind = fields["type"].GetStringValue()
	sessionID = fields["session_id"].GetStringValue()

	raw, err := json.Marshal(fields["data"].AsInterface())
	if err != nil {
		return "", "", fmt.Errorf("failed to read envelope data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return "", "", fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return kind, sessionID, nil
}

// DecodeBeats разбирает конверт с ударами
func DecodeBeats(payload []byte) (string, []session.BeatRecord, error) {
	var beats []session.BeatRecord
	_, sessionID, err := DecodeEnvelope(payload, &beats)
	return sessionID, beats, err
}

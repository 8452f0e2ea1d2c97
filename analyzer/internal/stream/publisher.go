package stream

import (
	"fmt"
	"log"
	"strconv"

	"github.com/Krimson/ecg-monitory/analyzer/internal/session"
	"github.com/nats-io/nats.go"
)

// MsgPublisher публикация сообщений (*nats.Conn)
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher публикует удары и итоги коррекции в NATS
type Publisher struct {
	conn   MsgPublisher
	prefix string
}

// NewPublisher создает публикатор; удары уходят в <prefix>.<session>,
// итоги коррекции в <prefix>.<session>.rr
func NewPublisher(conn MsgPublisher, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix}
}

// BroadcastBeats реализует session.BeatBroadcaster
func (p *Publisher) BroadcastBeats(sessionID string, beats []session.BeatRecord) {
	if len(beats) == 0 {
		return
	}
	if err := p.publish(fmt.Sprintf("%s.%s", p.prefix, sessionID), "beats", sessionID, beats); err != nil {
		log.Printf("[ERROR] Failed to publish beats for %s: %v", sessionID, err)
	}
}

// ObserveCorrection реализует session.CorrectionObserver
func (p *Publisher) ObserveCorrection(a *session.Analysis) {
	if err := p.publish(fmt.Sprintf("%s.%s.rr", p.prefix, a.SessionID), "rr_analysis", a.SessionID, a); err != nil {
		log.Printf("[ERROR] Failed to publish rr analysis for %s: %v", a.SessionID, err)
	}
}

func (p *Publisher) publish(subject, kind, sessionID string, v interface{}) error {
	payload, err := EncodeEnvelope(kind, sessionID, v)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set("Content-Type", "application/protobuf")
	return p.conn.PublishMsg(msg)
}

// PublishSamples отправляет блок отсчетов отведения с индексом первого отсчета
func PublishSamples(conn MsgPublisher, prefix, sessionID, lead string, first int64, values []float32) error {
	msg := nats.NewMsg(WaveSubject(prefix, sessionID, lead))
	msg.Data = EncodeSamples(values)
	msg.Header.Set(HeaderFirstIndex, strconv.FormatInt(first, 10))
	return conn.PublishMsg(msg)
}

package emulator

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/Krimson/ecg-monitory/analyzer/internal/server"
	"github.com/Krimson/ecg-monitory/analyzer/internal/stream"
	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Sender отправляет блоки отсчетов анализатору
type Sender interface {
	Send(ctx context.Context, block server.SampleBlock) error
	Close() error
}

// GRPCSender отправляет блоки в поток ecg.v1.SampleService/PushSamples
type GRPCSender struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	done   chan struct{}
}

// NewGRPCSender открывает поток к серверу
func NewGRPCSender(ctx context.Context, addr string) (*GRPCSender, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %w", err)
	}
	return newGRPCSender(ctx, conn)
}

func newGRPCSender(ctx context.Context, conn *grpc.ClientConn) (*GRPCSender, error) {
	st, err := conn.NewStream(ctx, &server.SampleServiceDesc.Streams[0], "/"+server.ServiceName+"/PushSamples")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	s := &GRPCSender{conn: conn, stream: st, done: make(chan struct{})}
	go s.receiveAcks()
	return s, nil
}

func (s *GRPCSender) receiveAcks() {
	defer close(s.done)
	for {
		ack := new(structpb.Struct)
		if err := s.stream.RecvMsg(ack); err != nil {
			if err != io.EOF {
				log.Printf("[WARN] Failed to receive ack: %v", err)
			}
			return
		}
		log.Printf("[INFO] Received ack for session %s: received=%.0f",
			ack.Fields["session_id"].GetStringValue(), ack.Fields["received"].GetNumberValue())
	}
}

// Send реализует Sender
func (s *GRPCSender) Send(ctx context.Context, block server.SampleBlock) error {
	if err := s.stream.SendMsg(server.NewSampleBlock(block)); err != nil {
		return fmt.Errorf("failed to send block: %w", err)
	}
	return nil
}

// Close завершает поток и ждет последних подтверждений
func (s *GRPCSender) Close() error {
	err := s.stream.CloseSend()
	<-s.done
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// NATSSender публикует блоки в <subject>.<session>.<lead>
type NATSSender struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSender подключается к NATS
func NewNATSSender(url, subject string) (*NATSSender, error) {
	nc, err := stream.Connect(url, "ecg-emulator")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSender{conn: nc, subject: subject}, nil
}

// Send реализует Sender
func (s *NATSSender) Send(ctx context.Context, block server.SampleBlock) error {
	return stream.PublishSamples(s.conn, s.subject, block.SessionID, block.Lead, block.FirstIndex, block.Values)
}

// Close дожидается отправки буфера
func (s *NATSSender) Close() error {
	return s.conn.Drain()
}

// NewSender создает отправителя по настройкам
func NewSender(ctx context.Context, cfg TargetConfig) (Sender, error) {
	switch cfg.Mode {
	case "nats":
		return NewNATSSender(cfg.Addr, cfg.Subject)
	default:
		return NewGRPCSender(ctx, cfg.Addr)
	}
}

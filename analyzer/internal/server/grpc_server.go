package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/Krimson/ecg-monitory/analyzer/internal/config"
	"github.com/Krimson/ecg-monitory/analyzer/internal/stream"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName имя gRPC-сервиса приема отсчетов
const ServiceName = "ecg.v1.SampleService"

// SampleServiceServer серверная часть ecg.v1.SampleService.
// Сообщения в обе стороны google.protobuf.Struct:
// запрос {session_id, lead, first_index, values[]}, ответ {session_id, received}.
type SampleServiceServer interface {
	PushSamples(SampleService_PushSamplesServer) error
}

// SampleService_PushSamplesServer двунаправленный поток PushSamples
type SampleService_PushSamplesServer interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

type pushSamplesServer struct {
	grpc.ServerStream
}

func (s *pushSamplesServer) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func (s *pushSamplesServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func pushSamplesHandler(srv interface{}, st grpc.ServerStream) error {
	return srv.(SampleServiceServer).PushSamples(&pushSamplesServer{st})
}

// SampleServiceDesc описание сервиса для grpc.Server.RegisterService
var SampleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SampleServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "PushSamples",
			Handler:       pushSamplesHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "ecg/v1/samples.proto",
}

// RegisterSampleServiceServer регистрирует реализацию на сервере
func RegisterSampleServiceServer(s grpc.ServiceRegistrar, srv SampleServiceServer) {
	s.RegisterService(&SampleServiceDesc, srv)
}

// SampleBlock блок отсчетов одного отведения
type SampleBlock struct {
	SessionID  string
	Lead       string
	FirstIndex int64
	Values     []float32
}

// ParseSampleBlock читает блок из Struct
func ParseSampleBlock(m *structpb.Struct) (SampleBlock, error) {
	fields := m.GetFields()
	b := SampleBlock{
		SessionID: fields["session_id"].GetStringValue(),
		Lead:      fields["lead"].GetStringValue(),
	}
	if b.SessionID == "" || b.Lead == "" {
		return b, errors.New("session_id and lead are required")
	}

	first := fields["first_index"].GetNumberValue()
	if first < 0 || first != math.Trunc(first) {
		return b, fmt.Errorf("invalid first_index %v", first)
	}
	b.FirstIndex = int64(first)

	list := fields["values"].GetListValue().GetValues()
	b.Values = make([]float32, len(list))
	for i, v := range list {
		if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
			return b, fmt.Errorf("values[%d] is not a number", i)
		}
		b.Values[i] = float32(v.GetNumberValue())
	}
	return b, nil
}

// NewSampleBlock собирает Struct запроса; используется клиентами и тестами
func NewSampleBlock(b SampleBlock) *structpb.Struct {
	values := make([]*structpb.Value, len(b.Values))
	for i, v := range b.Values {
		values[i] = structpb.NewNumberValue(float64(v))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"session_id":  structpb.NewStringValue(b.SessionID),
		"lead":        structpb.NewStringValue(b.Lead),
		"first_index": structpb.NewNumberValue(float64(b.FirstIndex)),
		"values":      structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// DataServer реализует SampleServiceServer
type DataServer struct {
	cfg   *config.Config
	adder stream.SampleAdder
}

// NewDataServer создает новый экземпляр DataServer
func NewDataServer(cfg *config.Config, adder stream.SampleAdder) *DataServer {
	return &DataServer{
		cfg:   cfg,
		adder: adder,
	}
}

// PushSamples обрабатывает стрим блоков от клиента
func (s *DataServer) PushSamples(st SampleService_PushSamplesServer) error {
	log.Printf("[INFO] New PushSamples stream started")

	var (
		totalReceived   uint64
		lastAcked       uint64
		sessionCounters = make(map[string]uint64)
	)

	ackEvery := uint64(max(s.cfg.AckEveryN, 1))

	for {
		msg, err := st.Recv()
		if err != nil {
			if err == io.EOF {
				log.Printf("[INFO] PushSamples stream finished normally (samples=%d)", totalReceived)
				return nil
			}
			if status.Code(err) == codes.Canceled {
				log.Printf("[INFO] PushSamples stream context cancelled")
				return err
			}
			log.Printf("[ERROR] Failed to receive block: %v", err)
			return err
		}

		block, err := ParseSampleBlock(msg)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "bad sample block: %v", err)
		}

		if err := s.adder.AddBlock(block.SessionID, block.Lead, block.FirstIndex, block.Values); err != nil {
			// Не обрываем поток, часть отсчетов могла быть принята
			log.Printf("[WARN] Failed to process block: %v", err)
		}

		totalReceived += uint64(len(block.Values))
		sessionCounters[block.SessionID] += uint64(len(block.Values))
		received := sessionCounters[block.SessionID]
		sendAck := totalReceived/ackEvery != lastAcked/ackEvery
		if sendAck {
			lastAcked = totalReceived
		}

		if sendAck {
			ack := &structpb.Struct{Fields: map[string]*structpb.Value{
				"session_id": structpb.NewStringValue(block.SessionID),
				"received":   structpb.NewNumberValue(float64(received)),
			}}
			if err := st.Send(ack); err != nil {
				log.Printf("[ERROR] Failed to send ack: %v", err)
				return err
			}
			log.Printf("[DEBUG] Sent ack: session=%s count=%d", block.SessionID, received)
		}
	}
}

package emulator

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Krimson/ecg-monitory/analyzer/internal/config"
	"github.com/Krimson/ecg-monitory/analyzer/internal/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type recordingAdder struct {
	mu      sync.Mutex
	samples map[string]int
}

func (a *recordingAdder) AddBlock(sessionID, lead string, first int64, values []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples[lead] += len(values)
	return nil
}

func TestGRPCSender_DeliversToDataServer(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	adder := &recordingAdder{samples: make(map[string]int)}
	srv := grpc.NewServer()
	server.RegisterSampleServiceServer(srv, server.NewDataServer(&config.Config{AckEveryN: 50}, adder))
	go srv.Serve(lis)
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}

	sender, err := newGRPCSender(context.Background(), conn)
	if err != nil {
		t.Fatalf("newGRPCSender failed: %v", err)
	}

	rec, _ := LoadRecording(SourceConfig{Rate: 250, Duration: time.Second, HeartRate: 60, Leads: []string{"II", "V1"}})
	sent, err := NewEmulator(rec, sender, &Config{SessionID: "s", BlockSize: 25}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	adder.mu.Lock()
	defer adder.mu.Unlock()
	if sent != 500 || adder.samples["II"] != 250 || adder.samples["V1"] != 250 {
		t.Errorf("sent=%d delivered=%v", sent, adder.samples)
	}
}

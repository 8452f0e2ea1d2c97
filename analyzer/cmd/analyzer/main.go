package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/Krimson/ecg-monitory/analyzer/docs" // Swagger docs
	"github.com/Krimson/ecg-monitory/analyzer/internal/batch"
	"github.com/Krimson/ecg-monitory/analyzer/internal/config"
	"github.com/Krimson/ecg-monitory/analyzer/internal/health"
	"github.com/Krimson/ecg-monitory/analyzer/internal/heartbeat"
	"github.com/Krimson/ecg-monitory/analyzer/internal/metrics"
	"github.com/Krimson/ecg-monitory/analyzer/internal/qrs"
	"github.com/Krimson/ecg-monitory/analyzer/internal/server"
	"github.com/Krimson/ecg-monitory/analyzer/internal/session"
	"github.com/Krimson/ecg-monitory/analyzer/internal/signal"
	"github.com/Krimson/ecg-monitory/analyzer/internal/stream"
	"github.com/Krimson/ecg-monitory/analyzer/internal/websocket"
)

// @title ECG Monitory Analyzer API
// @version 1.0
// @description Детекция QRS-комплексов, сборка ударов и коррекция RR-интервалов.
// @description Отсчеты поступают по gRPC (ecg.v1.SampleService) или NATS (ecg.wave.<session>.<lead>),
// @description удары рассылаются по WebSocket (/ws) и NATS (ecg.beats.<session>).

// @host localhost:8080
// @BasePath /
// @schemes http

// closerFunc адаптер функции к session.StreamCloser
type closerFunc func(ctx context.Context, sessionID string) error

func (f closerFunc) CloseSession(ctx context.Context, sessionID string) error {
	return f(ctx, sessionID)
}

func main() {
	log.Printf("[INFO] Starting ECG analyzer...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: grpc_port=%s http_port=%s rate=%.0f method=%s lead=%s",
		cfg.GRPCPort, cfg.HTTPPort, cfg.SamplingRate, cfg.DetectionMethod, cfg.PreferredLead)

	method, err := heartbeat.ParseMethod(cfg.DetectionMethod)
	if err != nil {
		log.Fatalf("[FATAL] Invalid DETECTION_METHOD: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ===== Хранилища =====

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("[FATAL] Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	defer redisClient.Close()
	log.Printf("[INFO] Connected to Redis at %s", cfg.RedisAddr)

	postgresRepo, err := session.NewPostgresRepositoryFromDSN(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect to PostgreSQL: %v", err)
	}
	defer postgresRepo.Close()
	if err := postgresRepo.Migrate(ctx); err != nil {
		log.Fatalf("[FATAL] Failed to migrate PostgreSQL schema: %v", err)
	}
	log.Printf("[INFO] Connected to PostgreSQL")

	// ===== Сессии и детекция =====

	manager := session.NewManager(session.NewRedisStore(redisClient), postgresRepo, session.Defaults{
		SamplingRate:    cfg.SamplingRate,
		Method:          string(method),
		PreferredLead:   cfg.PreferredLead,
		KeepUnexplained: cfg.KeepUnexplained,
		ChainLimit:      cfg.ChainLimit,
	})
	manager.SetDataTTL(cfg.SessionDataTTLSeconds)

	exporter := metrics.NewExporter()
	manager.AddObserver(exporter)

	opts := heartbeat.DefaultOptions(cfg.SamplingRate)
	opts.Detector = qrs.DefaultConfig(cfg.SamplingRate)
	opts.Method = method
	opts.ChainLimit = cfg.ChainLimit

	detector := batch.NewDetectorSink(opts, signal.MatchTable{}, cfg.PreferredLead,
		batch.MultiBeatSink{manager, exporter})
	detector.SetOptionsProvider(manager)

	batcher := batch.NewBatcher(cfg, detector)
	batcher.SetObserver(exporter)

	hub := websocket.NewHub()
	go hub.Run()
	manager.AddBroadcaster(hub)
	manager.AddObserver(hub)

	exporter.TrackGauge("ecg_websocket_clients", "Connected websocket clients", func() float64 {
		return float64(hub.ClientCount())
	})
	exporter.TrackGauge("ecg_detection_streams", "Sessions with an open detection stream", func() float64 {
		return float64(detector.Sessions())
	})

	healthServer := health.NewHealthServer()
	healthServer.AddCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthServer.AddCheck("postgres", postgresRepo.Ping)

	// ===== NATS =====

	ingest := stream.NewIngest(batcher)
	nc, err := stream.Connect(cfg.NATSURL, "ecg-analyzer")
	if err != nil {
		log.Printf("[WARN] NATS unavailable at %s, streaming ingest disabled: %v", cfg.NATSURL, err)
	} else {
		defer nc.Drain()
		if err := ingest.Start(nc, cfg.NATSWaveSubject); err != nil {
			log.Printf("[WARN] %v", err)
		}
		publisher := stream.NewPublisher(nc, cfg.NATSBeatPrefix)
		manager.AddBroadcaster(publisher)
		manager.AddObserver(publisher)
		healthServer.AddCheck("nats", func(ctx context.Context) error {
			if st := nc.Status(); st != nats.CONNECTED {
				return fmt.Errorf("nats status %v", st)
			}
			return nil
		})
		log.Printf("[INFO] Connected to NATS at %s", cfg.NATSURL)
	}

	closer := batch.SessionCloser{Batcher: batcher, Detector: detector}
	manager.SetStreamCloser(closerFunc(func(ctx context.Context, sessionID string) error {
		err := closer.CloseSession(ctx, sessionID)
		ingest.Forget(sessionID)
		return err
	}))

	go healthServer.Start(ctx, 10*time.Second)

	// ===== gRPC =====

	grpcServer := grpc.NewServer()
	server.RegisterSampleServiceServer(grpcServer, server.NewDataServer(cfg, batcher))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	address := fmt.Sprintf(":%s", cfg.GRPCPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		log.Fatalf("[FATAL] Failed to listen on %s: %v", address, err)
	}

	healthServer.SetServingStatus("")
	healthServer.SetServingStatus(server.ServiceName)

	serverErrChan := make(chan error, 2)
	go func() {
		log.Printf("[INFO] gRPC server listening on %s", address)
		if err := grpcServer.Serve(listener); err != nil {
			serverErrChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// ===== HTTP =====

	router := mux.NewRouter()
	session.NewHTTPHandler(manager).RegisterRoutes(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.Handle("/metrics", exporter.Handler())
	router.Handle("/healthz", healthServer)
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      enableCORS(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[INFO] HTTP server listening on :%s (swagger at /swagger/index.html)", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	osSignal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Printf("[ERROR] Server error: %v", err)

	case sig := <-shutdownChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)
	}

	healthServer.SetNotServingStatus("")
	healthServer.SetNotServingStatus(server.ServiceName)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] HTTP shutdown: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Printf("[WARN] Graceful shutdown timeout, forcing stop")
		grpcServer.Stop()
	}

	if err := ingest.Stop(); err != nil {
		log.Printf("[WARN] Failed to unsubscribe NATS ingest: %v", err)
	}
	batcher.Stop()
	hub.Stop()
	cancel()

	log.Printf("[INFO] Server stopped")
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

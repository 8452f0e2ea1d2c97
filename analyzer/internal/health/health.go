package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// DependencyCheck проверка зависимости (Redis, PostgreSQL, NATS); nil означает исправна
type DependencyCheck func(ctx context.Context) error

// HealthServer реализует grpc_health_v1 и /healthz поверх тех же статусов
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	mu       sync.RWMutex
	services map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	checks   map[string]DependencyCheck
	watchers map[string][]chan grpc_health_v1.HealthCheckResponse_ServingStatus
}

func NewHealthServer() *HealthServer {
	return &HealthServer{
		services: make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus),
		checks:   make(map[string]DependencyCheck),
		watchers: make(map[string][]chan grpc_health_v1.HealthCheckResponse_ServingStatus),
	}
}

func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	service := req.GetService()

	if service == "" {
		return &grpc_health_v1.HealthCheckResponse{
			Status: h.overallLocked(),
		}, nil
	}

	servingStatus, exists := h.services[service]
	if !exists {
		return nil, status.Error(codes.NotFound, "service not found")
	}

	return &grpc_health_v1.HealthCheckResponse{
		Status: servingStatus,
	}, nil
}

// Watch отправляет текущий статус и затем каждое его изменение
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	service := req.GetService()
	updates := make(chan grpc_health_v1.HealthCheckResponse_ServingStatus, 4)

	h.mu.Lock()
	current, exists := h.services[service]
	if service == "" {
		current, exists = h.overallLocked(), true
	}
	if !exists {
		current = grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
	h.watchers[service] = append(h.watchers[service], updates)
	h.mu.Unlock()

	defer h.removeWatcher(service, updates)

	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case st := <-updates:
			if st == current {
				continue
			}
			current = st
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: st}); err != nil {
				return err
			}
		}
	}
}

func (h *HealthServer) SetServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h *HealthServer) SetNotServingStatus(service string) {
	h.setStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// AddCheck регистрирует проверку зависимости под именем сервиса
func (h *HealthServer) AddCheck(service string, check DependencyCheck) {
	h.mu.Lock()
	h.checks[service] = check
	h.mu.Unlock()
}

// RunChecks выполняет все проверки один раз
func (h *HealthServer) RunChecks(ctx context.Context, timeout time.Duration) {
	h.mu.RLock()
	checks := make(map[string]DependencyCheck, len(h.checks))
	for name, p := range h.checks {
		checks[name] = p
	}
	h.mu.RUnlock()

	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			log.Printf("[WARN] Health check %s failed: %v", name, err)
			h.SetNotServingStatus(name)
			continue
		}
		h.SetServingStatus(name)
	}
}

// Start периодически выполняет проверки до отмены ctx
func (h *HealthServer) Start(ctx context.Context, interval time.Duration) {
	h.RunChecks(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunChecks(ctx, interval)
		}
	}
}

// ServeHTTP отдает статусы в JSON; 503 если хотя бы одна зависимость неисправна
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	overall := h.overallLocked()
	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
	}
	sort.Strings(names)
	services := make(map[string]string, len(names))
	for _, name := range names {
		services[name] = h.services[name].String()
	}
	h.mu.RUnlock()

	code := http.StatusOK
	if overall != grpc_health_v1.HealthCheckResponse_SERVING {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   overall.String(),
		"services": services,
	})
}

func (h *HealthServer) setStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[service] = status
	h.notifyLocked(service, status)
	if service != "" {
		h.notifyLocked("", h.overallLocked())
	}
}

// overallLocked общий статус: явно заданный для "" или SERVING, пока все зависимости исправны
func (h *HealthServer) overallLocked() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if st, ok := h.services[""]; ok && st != grpc_health_v1.HealthCheckResponse_SERVING {
		return st
	}
	for name, st := range h.services {
		if name != "" && st != grpc_health_v1.HealthCheckResponse_SERVING {
			return grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

func (h *HealthServer) notifyLocked(service string, st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	for _, ch := range h.watchers[service] {
		select {
		case ch <- st:
		default:
		}
	}
}

func (h *HealthServer) removeWatcher(service string, ch chan grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.watchers[service]
	for i, c := range list {
		if c == ch {
			h.watchers[service] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

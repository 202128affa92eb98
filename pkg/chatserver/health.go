package chatserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sentichat/sentichat/pkg/api"
	chatv1 "github.com/sentichat/sentichat/pkg/apis/chat/v1"
	"github.com/sentichat/sentichat/pkg/chatserver/metrics"
)

const healthCheckTimeout = 5 * time.Second

// CheckHealth probes the message store and, when configured, the cache. The store is
// required; a failing cache only degrades the service since history reads fall through to
// the store.
func (s *Server) CheckHealth(ctx context.Context) chatv1.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	response := chatv1.HealthResponse{
		Timestamp: time.Now(),
		Services:  make(map[string]chatv1.ServiceInfo),
	}

	dbStatus := s.checkDatabaseHealth(ctx)
	response.Services["database"] = dbStatus
	metrics.SetServiceUp("database", dbStatus.Status == chatv1.StatusHealthy)

	cacheStatus := s.checkCacheHealth()
	response.Services["cache"] = cacheStatus
	if cacheStatus.Status != chatv1.StatusUnavailable {
		metrics.SetServiceUp("cache", cacheStatus.Status == chatv1.StatusHealthy)
	}

	switch {
	case dbStatus.Status != chatv1.StatusHealthy:
		response.Status = chatv1.StatusUnhealthy
		response.Message = "Chat history storage is unavailable"
	case cacheStatus.Status == chatv1.StatusUnhealthy:
		response.Status = chatv1.StatusDegraded
		response.Message = "Some services are experiencing issues"
	default:
		response.Status = chatv1.StatusHealthy
		response.Message = "All services are operational"
	}
	return response
}

func (s *Server) checkDatabaseHealth(ctx context.Context) chatv1.ServiceInfo {
	if err := s.chat.Ping(ctx); err != nil {
		return chatv1.ServiceInfo{
			Status:  chatv1.StatusUnhealthy,
			Message: fmt.Sprintf("Database query failed: %v", err),
		}
	}
	return chatv1.ServiceInfo{
		Status:  chatv1.StatusHealthy,
		Message: "Database connection successful",
	}
}

func (s *Server) checkCacheHealth() chatv1.ServiceInfo {
	if s.cache == nil {
		return chatv1.ServiceInfo{
			Status:  chatv1.StatusUnavailable,
			Message: "Cache not configured",
		}
	}
	if err := s.cache.Ping(); err != nil {
		return chatv1.ServiceInfo{
			Status:  chatv1.StatusUnhealthy,
			Message: fmt.Sprintf("Cache ping failed: %v", err),
		}
	}
	return chatv1.ServiceInfo{
		Status:  chatv1.StatusHealthy,
		Message: "Cache connection successful",
	}
}

func (s *Server) jsonHealth(w http.ResponseWriter, req *http.Request) {
	response := s.CheckHealth(req.Context())

	code := http.StatusOK
	if response.Status == chatv1.StatusUnhealthy {
		log.WithField("services", response.Services).Warn("health check failed")
		code = http.StatusServiceUnavailable
	}
	api.RespondWithJSON(code, w, response)
}

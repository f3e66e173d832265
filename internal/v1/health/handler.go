// Package health exposes Kubernetes-style liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/bus"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
)

// UserStore is the credential store dependency checked for readiness.
type UserStore interface {
	Ping(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	redisService *bus.Service
	userStore    UserStore
	dataDir      string
}

// NewHandler creates a health check handler. redisService may be nil in
// single-instance mode.
func NewHandler(redisService *bus.Service, userStore UserStore, dataDir string) *Handler {
	return &Handler{
		redisService: redisService,
		userStore:    userStore,
		dataDir:      dataDir,
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. Returns 200 if the process is alive,
// without dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. Returns 200 only when every critical
// dependency is healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{
		"user_store": h.checkUserStore(ctx),
		"data_dir":   h.checkDataDir(),
		"redis":      h.checkRedis(ctx),
	}

	status := "ready"
	statusCode := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkUserStore(ctx context.Context) string {
	if h.userStore == nil {
		return "healthy"
	}
	if err := h.userStore.Ping(ctx); err != nil {
		logging.Error(ctx, "User store health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// checkDataDir verifies the board directory is writable.
func (h *Handler) checkDataDir() string {
	if h.dataDir == "" {
		return "healthy"
	}
	probe := filepath.Join(h.dataDir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		logging.Error(context.Background(), "Data dir health check failed", zap.Error(err))
		return "unhealthy"
	}
	os.Remove(probe)
	return "healthy"
}

// checkRedis verifies Redis connectivity. Single-instance mode (nil service)
// is healthy by definition.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy"
	}
	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

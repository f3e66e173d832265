// Package httpapi is the HTTP control plane: board persistence, image
// uploads, credential endpoints, static images, health probes, and metrics.
// Every response carries permissive CORS headers; the drawing client is
// served from a different origin.
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/auth"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/board"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/config"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/health"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/middleware"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/ratelimit"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/session"
)

// Server bundles the control plane's dependencies.
type Server struct {
	hub       *session.Hub
	boards    *board.Service
	timelapse *board.JobManager
	users     *auth.Store
	tokens    *auth.TokenIssuer
}

// NewServer creates the control plane server.
func NewServer(hub *session.Hub, boards *board.Service, timelapse *board.JobManager, users *auth.Store, tokens *auth.TokenIssuer) *Server {
	return &Server{
		hub:       hub,
		boards:    boards,
		timelapse: timelapse,
		users:     users,
		tokens:    tokens,
	}
}

// Router builds the gin engine with middleware and all routes.
func (s *Server) Router(cfg *config.Config, limiter *ratelimit.RateLimiter, healthHandler *health.Handler, tracingEnabled bool) *gin.Engine {
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())
	if tracingEnabled {
		r.Use(otelgin.Middleware("whiteboard-server"))
	}

	// Preflight OPTIONS requests are answered with 204 by the cors layer.
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Correlation-ID"},
		MaxAge:          12 * time.Hour,
	}))

	if healthHandler != nil {
		r.GET("/health/live", healthHandler.Liveness)
		r.GET("/health/ready", healthHandler.Readiness)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/images/:name", s.ServeImage)

	api := r.Group("/api")
	if limiter != nil {
		api.Use(limiter.GlobalMiddleware())
	}

	boards := api.Group("/boards")
	if limiter != nil {
		boards.Use(limiter.BoardsMiddleware())
	}
	boards.POST("/save", s.SaveBoard)
	boards.GET("/list", s.ListBoards)
	boards.GET("/load/:boardId", s.LoadBoard)
	boards.DELETE("/delete/:boardId", s.DeleteBoard)
	boards.POST("/export", s.ExportBoard)
	boards.POST("/import", s.ImportBoard)
	boards.POST("/generate-timelapse", s.GenerateTimelapse)
	boards.GET("/timelapse-status/:jobId", s.TimelapseStatus)
	boards.GET("/timelapse-video/:jobId", s.TimelapseVideo)
	boards.POST("/uploadImage", s.UploadImage)

	authGroup := api.Group("/auth")
	if limiter != nil {
		authGroup.Use(limiter.AuthMiddleware())
	}
	authGroup.POST("/register", s.Register)
	authGroup.POST("/login", s.Login)
	authGroup.POST("/check", s.CheckUsername)

	return r
}

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/auth"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/board"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/bus"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/config"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/health"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/httpapi"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/ratelimit"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/session"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/tracing"
)

func main() {
	ctx := context.Background()

	// Load .env for local development. Try multiple paths to handle different
	// ways of running the app.
	envPaths := []string{".env", "../../../.env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		os.Stderr.WriteString("environment validation failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		os.Stderr.WriteString("logger initialization failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		logging.Info(ctx, "Running in DEVELOPMENT MODE")
	}

	// --- Tracing (optional) ---
	tracingEnabled := cfg.OtelCollectorAddr != ""
	if tracingEnabled {
		tp, err := tracing.InitTracer(ctx, "whiteboard-server", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Warn(ctx, "Tracing disabled, collector unreachable", zap.Error(err))
			tracingEnabled = false
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	// --- Storage ---
	boardStore, err := board.NewService(cfg.DataDir)
	if err != nil {
		logging.Fatal(ctx, "Failed to initialize board storage", zap.Error(err))
	}
	timelapseJobs := board.NewJobManager(boardStore)

	userStore, err := auth.NewStore(cfg.SQLitePath)
	if err != nil {
		logging.Fatal(ctx, "Failed to open user database", zap.Error(err))
	}
	defer userStore.Close()

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, 24*time.Hour)

	// --- Redis bus (optional) ---
	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Warn(ctx, "Redis unavailable, running in single-instance mode", zap.Error(err))
			busService = nil
		}
	} else {
		logging.Info(ctx, "Running in single-instance mode (Redis disabled)")
	}

	limiter, err := ratelimit.NewRateLimiter(cfg, busService.Client())
	if err != nil {
		logging.Fatal(ctx, "Failed to initialize rate limiter", zap.Error(err))
	}

	// --- Session hub + WebSocket listener ---
	hubOpts := session.Options{
		CleanupGrace:  cfg.CleanupGrace,
		ReplaySoftCap: cfg.ReplayLogSoftCap,
		ImagesDir:     boardStore.ImagesDir(),
		AllowIP:       limiter.CheckWebSocketIP,
	}
	// A typed-nil *bus.Service stored in the interface would defeat the
	// nil checks downstream; only set Bus when Redis is actually up.
	if busService != nil {
		hubOpts.Bus = busService
	}
	hub := session.NewHub(hubOpts)

	wsListener, err := net.Listen("tcp", ":"+cfg.WsPort)
	if err != nil {
		logging.Fatal(ctx, "Failed to listen on WebSocket port",
			zap.String("port", cfg.WsPort), zap.Error(err))
	}
	go hub.AcceptLoop(wsListener)
	logging.Info(ctx, "WebSocket server listening", zap.String("port", cfg.WsPort))

	// --- HTTP control plane ---
	healthHandler := health.NewHandler(busService, userStore, cfg.DataDir)
	api := httpapi.NewServer(hub, boardStore, timelapseJobs, userStore, tokens)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.Router(cfg, limiter, healthHandler, tracingEnabled),
	}

	go func() {
		logging.Info(ctx, "API server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "Failed to run server", zap.Error(err))
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wsListener.Close()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Error during hub shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "Server forced to shutdown", zap.Error(err))
	}
	if busService != nil {
		if err := busService.Close(); err != nil {
			logging.Error(ctx, "Failed to close Redis connection", zap.Error(err))
		}
	}

	logging.Info(ctx, "Server exiting")
}

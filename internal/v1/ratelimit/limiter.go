// Package ratelimit enforces per-IP request limits on the HTTP control plane,
// backed by Redis when available and process memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/config"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
)

// RateLimiter holds the per-concern limiter instances.
type RateLimiter struct {
	apiGlobal *limiter.Limiter
	apiBoards *limiter.Limiter
	apiAuth   *limiter.Limiter
	wsIP      *limiter.Limiter
	store     limiter.Store
}

// NewRateLimiter builds the limiters from configured rate strings like
// "100-M". A nil redisClient falls back to the in-memory store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	apiGlobalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid API global rate: %w", err)
	}
	apiBoardsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIBoards)
	if err != nil {
		return nil, fmt.Errorf("invalid API boards rate: %w", err)
	}
	apiAuthRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIAuth)
	if err != nil {
		return nil, fmt.Errorf("invalid API auth rate: %w", err)
	}
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:whiteboard:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "Rate limiter using memory store")
	}

	return &RateLimiter{
		apiGlobal: limiter.New(store, apiGlobalRate),
		apiBoards: limiter.New(store, apiBoardsRate),
		apiAuth:   limiter.New(store, apiAuthRate),
		wsIP:      limiter.New(store, wsIPRate),
		store:     store,
	}, nil
}

// middleware enforces one limiter keyed by client IP. Store failures fail
// open: availability beats strict limiting here.
func (rl *RateLimiter) middleware(inst *limiter.Limiter, limitType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		lctx, err := inst.Get(ctx, c.ClientIP())
		if err != nil {
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// GlobalMiddleware limits all API traffic per IP.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.apiGlobal, "global")
}

// BoardsMiddleware limits the board persistence endpoints.
func (rl *RateLimiter) BoardsMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.apiBoards, "boards")
}

// AuthMiddleware limits the credential endpoints, which sit in front of
// bcrypt work.
func (rl *RateLimiter) AuthMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.apiAuth, "auth")
}

// CheckWebSocketIP enforces the connection-rate limit for one IP. Returns
// false when the connection should be refused.
func (rl *RateLimiter) CheckWebSocketIP(ctx context.Context, ip string) bool {
	lctx, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		return false
	}
	return true
}

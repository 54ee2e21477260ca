package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lesprima/attempt-service/internal/auth"
	"github.com/lesprima/attempt-service/internal/config"
	"github.com/lesprima/attempt-service/internal/engine"
	"github.com/lesprima/attempt-service/internal/handler"
	"github.com/lesprima/attempt-service/internal/middleware"
	"github.com/lesprima/attempt-service/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	validator *auth.TokenValidator,
	registry *engine.Registry,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{
			"status":        "ok",
			"live_attempts": registry.Len(),
		})
	})

	// Rate limiter for code entry (10 requests per minute per IP): exam
	// codes are short enough to brute force otherwise.
	codeLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Attempt Group (Student JWT) ────────────────────────────────
	attemptAPI := router.Group("/api/v1/attempt")
	attemptAPI.Use(middleware.RequireStudentJWT(validator))
	{
		attemptAPI.POST("/code", codeLimiter.Middleware(), handlers.Attempt.EnterCode)
		attemptAPI.GET("", handlers.Attempt.GetState)
		attemptAPI.PUT("/answers/:question_id", handlers.Attempt.SetAnswer)
		attemptAPI.POST("/submit", handlers.Attempt.Submit)
		attemptAPI.POST("/retry", handlers.Attempt.Retry)
		attemptAPI.POST("/close", handlers.Attempt.Close)
		attemptAPI.DELETE("", handlers.Attempt.Abandon)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(validator))
	{
		ws.GET("/attempt/stream", handlers.WS.AttemptStream)
	}

	return router
}

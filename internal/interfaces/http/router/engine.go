package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// EngineConfig configures the middleware chain in front of every route
type EngineConfig struct {
	ServiceName    string
	TracingEnabled bool
	MeterProvider  *telemetry.MeterProvider
	CORS           middleware.CORSConfig
	Security       middleware.SecurityConfig
	BodyLimit      int64
	TrustedProxies []string
	Logger         *zap.Logger
}

// NewEngine creates a gin engine with the standard middleware chain:
// request ID, panic recovery, tracing, request log, metrics, security
// headers, CORS and body limit.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = middleware.DefaultBodyLimit
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	middleware.SetupValidator()

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(cfg.MeterProvider, log))
	engine.Use(middleware.SecureWithConfig(cfg.Security))
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	engine.Use(middleware.BodyLimit(bodyLimit))

	engine.HandleMethodNotAllowed = true
	return engine, nil
}

// DefaultCORS builds the CORS configuration from the configured lists
func DefaultCORS(origins, methods, headers []string) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = origins
	if len(methods) > 0 {
		cors.AllowMethods = methods
	}
	if len(headers) > 0 {
		cors.AllowHeaders = headers
	}
	cors.MaxAge = 12 * time.Hour
	return cors
}

package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterOptions wires the HTTP surface.
type RouterOptions struct {
	Env        string // "dev" enables gin debug mode
	Simulation *SimulationHandler
	Health     *HealthHandler
	Logger     *zap.Logger
}

// NewRouter builds the gin engine with every handler registered.
func NewRouter(opts RouterOptions) *gin.Engine {
	if opts.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	health := opts.Health
	if health == nil {
		health = &HealthHandler{}
	}
	health.Register(engine)
	if opts.Simulation != nil {
		if opts.Simulation.Logger == nil {
			opts.Simulation.Logger = logger
		}
		opts.Simulation.Register(engine)
	}
	return engine
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/healthz" || c.FullPath() == "/metrics" {
			return
		}
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

package gateway

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/example/modashop/pkg/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Gateway struct {
	config *config.ServerConfig
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
	checks map[string]Pinger
}

func NewGateway(cfg *config.ServerConfig, logger *zap.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	return &Gateway{
		config: cfg,
		logger: logger,
		router: router,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		checks: make(map[string]Pinger),
	}
}

// AddReadinessCheck must be called before the gateway serves requests.
func (g *Gateway) AddReadinessCheck(name string, p Pinger) {
	g.checks[name] = p
}

// SetupRoutes registers the probes and, when webhook is not nil, the chat
// webhook endpoint at webhookPath.
func (g *Gateway) SetupRoutes(webhookPath string, webhook http.Handler) {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": g.config.Name})
	})
	g.router.GET("/ready", g.ready)

	if webhook != nil {
		g.router.POST(webhookPath, gin.WrapH(webhook))
	}
}

func (g *Gateway) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(g.checks))
	for name := range g.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := gin.H{}
	for _, name := range names {
		if err := g.checks[name].Ping(ctx); err != nil {
			g.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start serves until Shutdown is called. It returns nil at once when
// Shutdown has already run.
func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

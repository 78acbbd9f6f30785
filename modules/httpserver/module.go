package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/example/file-ingestion/modules/ingest"
	"github.com/gin-gonic/gin"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultMaxBodyBytes admits archive uploads of a few gigabytes.
const DefaultMaxBodyBytes int64 = 2 << 30

// multipartMemory is the part of a multipart body kept in memory; the rest spills to temp files.
const multipartMemory = 32 << 20

// HealthChecker is a module whose health is reported on /health.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) mono.HealthStatus
}

// Module implements an HTTP server using the Gin framework.
type Module struct {
	port         int
	maxBodyBytes int64
	server       *http.Server
	engine       *gin.Engine
	handlers     *Handlers
	ingestModule *ingest.Module
	checks       []HealthChecker
	gatherer     prometheus.Gatherer
	logger       types.Logger
}

// Compile-time interface checks
var _ mono.Module = (*Module)(nil)

// NewModule creates a new HTTP server module.
func NewModule(port int, maxBodyBytes int64, logger types.Logger) *Module {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Module{
		port:         port,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "http-server"
}

// SetIngestModule sets the ingest module dependency.
func (m *Module) SetIngestModule(ingestModule *ingest.Module) {
	m.ingestModule = ingestModule
}

// AddHealthCheck includes a module in the /health report.
func (m *Module) AddHealthCheck(checks ...HealthChecker) {
	m.checks = append(m.checks, checks...)
}

// SetGatherer exposes g on /metrics.
func (m *Module) SetGatherer(g prometheus.Gatherer) {
	m.gatherer = g
}

// Start initializes and starts the HTTP server.
func (m *Module) Start(ctx context.Context) error {
	if m.ingestModule == nil || m.ingestModule.Service() == nil {
		return fmt.Errorf("ingest module not set")
	}

	m.handlers = NewHandlers(m.ingestModule.Service(), m.ingestModule.Background(), m.checks)
	m.engine = m.buildEngine()

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", m.port),
		Handler:           m.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		m.logger.Info("HTTP server starting", "port", m.port, "max_body_bytes", m.maxBodyBytes)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.server != nil {
		m.logger.Info("Shutting down HTTP server")
		return m.server.Shutdown(ctx)
	}
	return nil
}

// buildEngine creates the gin engine with middleware and routes.
func (m *Module) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(m.loggingMiddleware())
	engine.Use(m.corsMiddleware())
	engine.Use(m.bodyLimitMiddleware())
	engine.MaxMultipartMemory = multipartMemory

	m.registerRoutes(engine)
	return engine
}

// registerRoutes sets up all HTTP routes.
func (m *Module) registerRoutes(engine *gin.Engine) {
	engine.GET("/health", m.handlers.HealthCheck)
	if m.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/api/v1")
	{
		files := v1.Group("/files")
		{
			files.POST("", m.handlers.UploadFiles)
			files.POST("/async", m.handlers.SubmitUpload)
			files.GET("/async/:ticket", m.handlers.GetTicket)
			files.GET("", m.handlers.ListFiles)
			files.GET("/range", m.handlers.ListByDateRange)
			files.GET("/download", m.handlers.DownloadByFilter)
			files.GET("/:id", m.handlers.DownloadFile)
			files.PUT("/:id", m.handlers.UpdateFile)
			files.PATCH("/:id/name", m.handlers.RenameFile)
			files.DELETE("", m.handlers.DeleteFiles)
		}
	}
}

// loggingMiddleware provides request logging.
func (m *Module) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		m.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers for development.
func (m *Module) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// bodyLimitMiddleware caps the request body before any handler reads it.
func (m *Module) bodyLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > m.maxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, m.maxBodyBytes)
		c.Next()
	}
}

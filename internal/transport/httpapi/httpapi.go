// Package httpapi exposes the tool dispatcher over MCP-over-HTTP at
// POST /mcp, plus unauthenticated health endpoints, using gin the way
// the teacher's apps/mcp-server/internal/api wires its router.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/observability"
)

// Server wraps the gin.Engine serving /mcp and /health*.
type Server struct {
	router     *gin.Engine
	dispatcher *dispatcher.Dispatcher
	logger     observability.Logger
	http       *http.Server
}

// Config tunes the HTTP listener.
type Config struct {
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// toolCallRequest is the JSON body of a POST /mcp call: the tool name
// plus its argument object.
type toolCallRequest struct {
	Tool string                 `json:"tool" binding:"required"`
	Args map[string]interface{} `json:"args"`
}

// errorEnvelope is the JSON shape every non-2xx /mcp response carries.
type errorEnvelope struct {
	ErrorKind string `json:"error_kind"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
}

// NewServer constructs a Server around d. logger may be nil.
func NewServer(d *dispatcher.Dispatcher, cfg Config, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{router: router, dispatcher: d, logger: logger}
	s.registerRoutes()

	addr := cfg.ListenAddress
	if addr == "" {
		addr = ":8080"
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  orDefault(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 15*time.Second),
	}
	return s
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/health/ready", s.handleHealthReady)
	s.router.GET("/health/:service_name", s.handleHealthService)
	s.router.POST("/mcp", s.handleToolCall)
}

// handleToolCall is the MCP-over-HTTP entry point: extract credentials
// from the transport headers, decode the tool-call body, and run it
// through the dispatcher's middleware pipeline.
func (s *Server) handleToolCall(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{
			ErrorKind: "validation",
			ErrorCode: "FR-TRANSPORT-001",
			Message:   err.Error(),
		})
		return
	}

	creds := dispatcher.Credentials{
		APIKey:         c.GetHeader("X-API-Key"),
		TenantIDHeader: c.GetHeader("X-Tenant-ID"),
		IPAddress:      c.ClientIP(),
		SessionID:      c.GetHeader("X-Session-ID"),
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		creds.BearerToken = strings.TrimPrefix(auth, "Bearer ")
	}

	result, err := s.dispatcher.Dispatch(c.Request.Context(), req.Tool, creds, dispatcher.Args(req.Args))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func writeError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.New(apperrors.KindInternal, "FR-INTERNAL-001", err.Error())
	}
	c.JSON(appErr.Kind.HTTPStatus(), errorEnvelope{
		ErrorKind: string(appErr.Kind),
		ErrorCode: appErr.Code,
		Message:   appErr.Message,
		Field:     appErr.Field,
	})
}

// handleHealth is the unauthenticated liveness probe.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleHealthReady answers whether the process is ready to accept
// traffic; this server has no warm-up phase of its own, so readiness
// degenerates to liveness.
func (s *Server) handleHealthReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleHealthService answers /health/{service_name} with the requested
// name and status "unknown"; it does not probe the backend. Per-backend
// probing, with the p50/p95/p99 summary, is done by the
// rag_get_tenant_health / rag_get_system_health tools.
func (s *Server) handleHealthService(c *gin.Context) {
	name := c.Param("service_name")
	c.JSON(http.StatusOK, gin.H{"service": name, "status": "unknown"})
}

// Start runs the HTTP listener, blocking until it exits or errors.
func (s *Server) Start() error {
	s.logger.Info("http transport listening", map[string]interface{}{"address": s.http.Addr})
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

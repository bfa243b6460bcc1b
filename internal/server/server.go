package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valentinpelus/attackref/internal/handler"
	"github.com/valentinpelus/attackref/internal/middleware"
)

// DefaultShutdownTimeout bounds graceful shutdown
const DefaultShutdownTimeout = 15 * time.Second

// Options configures the HTTP server
type Options struct {
	Addr        string
	AuthToken   string
	CORSOrigins []string
}

// Handlers groups the endpoint handlers the router mounts
type Handlers struct {
	Feedback   *handler.FeedbackHandler
	Procedure  *handler.ProcedureHandler
	Techniques *handler.TechniqueHandler
	Pages      *handler.PageHandler
}

// Server wraps the HTTP server
type Server struct {
	opts            Options
	handlers        Handlers
	engine          *gin.Engine
	authMiddleware  *middleware.AuthMiddleware
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

// New creates a new HTTP server with its routes configured
func New(opts Options, handlers Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		opts:            opts,
		handlers:        handlers,
		engine:          gin.New(),
		authMiddleware:  middleware.NewAuthMiddleware(opts.AuthToken),
		logger:          logger,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	s.SetupRoutes()
	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() {
	r := s.engine
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.logger.Named("http")))
	r.Use(middleware.CORS(s.opts.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handler.ErrorResponse{Detail: "Not Found"})
	})

	r.GET("/health", handler.HandleHealth)

	if h := s.handlers.Feedback; h != nil {
		fb := r.Group("/api/feedback")
		fb.POST("/", h.Submit)
		fb.GET("/", h.List)
		fb.DELETE("/", s.authMiddleware.RequireBearer(), h.Clear)
		fb.GET("/download", h.Download)
		fb.GET("/stats", h.Stats)
		fb.GET("/export.xlsx", h.ExportXLSX)
		r.GET("/feedback.csv", h.RawCSV)
	}

	if h := s.handlers.Procedure; h != nil {
		proc := r.Group("/api/procedure")
		proc.POST("/generate", h.Generate)
		proc.GET("/health", h.Health)
		proc.GET("/test", h.Test)
		proc.GET("/history", h.History)
	}

	if h := s.handlers.Techniques; h != nil {
		r.GET("/api/techniques", h.List)
		r.GET("/api/techniques/:id", h.Get)
		r.GET("/api/tactics", h.Tactics)
	}

	if h := s.handlers.Pages; h != nil {
		r.GET("/", h.Page("index.html"))
		r.GET("/index.html", h.Page("index.html"))
		r.GET("/network.html", h.Page("network.html"))
		r.StaticFS("/static", h.Assets())
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	<-errCh
	if s.handlers.Feedback != nil {
		s.handlers.Feedback.Wait()
	}
	if err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

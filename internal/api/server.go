package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dhima/mysql-connector/internal/api/handlers"
	"github.com/dhima/mysql-connector/internal/api/middleware"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/pkg/config"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Server orchestrates HTTP routing over one database session.
type Server struct {
	config  config.App
	logger  logging.Logger
	router  *gin.Engine
	session handlers.Session
}

// NewServer wires the API handlers to the session.
func NewServer(cfg config.App, logger logging.Logger, s handlers.Session) *Server {
	switch cfg.Environment {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	server := &Server{
		config:  cfg,
		logger:  logger.With(zap.String("component", "api")),
		session: s,
	}
	server.setupRouter()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Gin router with middleware and routes.
func (s *Server) setupRouter() {
	router := gin.New()
	zapLogger := logging.Zap(s.logger)

	// Recovery first so it catches panics from the rest of the chain.
	router.Use(ginzap.RecoveryWithZap(zapLogger, true))
	router.Use(middleware.RequestID())
	router.Use(ginzap.GinzapWithConfig(zapLogger, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
		Context: func(c *gin.Context) []zap.Field {
			return []zap.Field{zap.String("request_id", c.GetString(middleware.RequestIDKey))}
		},
	}))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: !allowsAnyOrigin(s.config.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handlers.NewHealthHandler(s.logger, s.session).Health)

	v1 := router.Group("/api/v1")
	{
		sessionHandler := handlers.NewSessionHandler(s.logger, s.session)
		v1.GET("/session", sessionHandler.Status)
		v1.POST("/session/open", sessionHandler.Open)
		v1.POST("/session/close", sessionHandler.Close)
		v1.POST("/query", sessionHandler.Query)
		v1.POST("/execute", sessionHandler.Execute)

		tableHandler := handlers.NewTableHandler(s.logger, s.session)
		tables := v1.Group("/tables")
		{
			tables.GET("", tableHandler.ListTables)
			tables.POST("/:name", tableHandler.ImportTable)
			tables.PUT("/:name", tableHandler.RefreshTable)
			tables.GET("/:name", tableHandler.GetTable)
			tables.DELETE("/:name", tableHandler.DropTable)
		}

		v1.POST("/hash", handlers.NewHashHandler(s.logger).Hash)
	}

	s.router = router
}

// Serve listens on the configured port until ctx is cancelled, then
// drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	addr := ":" + s.config.APIPort
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server",
			zap.String("address", addr),
			zap.String("environment", s.config.Environment),
			zap.String("log_level", s.config.LogLevel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("server stopped")
	return nil
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/isdmx/sandgate/config"
	"github.com/isdmx/sandgate/registry"
)

// Server is the gateway's HTTP front: the REST routes and the websocket
// stream endpoint, sharing one Service.
type Server struct {
	logger   *zap.Logger
	cfg      *config.Config
	svc      *Service
	tokens   *registry.TokenStore
	echo     *echo.Echo
	upgrader websocket.Upgrader
}

// NewServer builds the HTTP server and registers all routes.
func NewServer(cfg *config.Config, logger *zap.Logger, svc *Service, reg *registry.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		logger: logger,
		cfg:    cfg,
		svc:    svc,
		tokens: reg.Tokens,
		echo:   e,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/health", s.handleHealth)
	e.POST("/api/auth/register", s.handleRegister)
	e.GET("/ws", s.handleStream, s.authMiddleware)

	g := e.Group("/api", s.authMiddleware)
	g.GET("/metrics", s.handleMetrics)

	g.POST("/sandboxes/create", s.timed(s.handleCreateSandbox))
	g.DELETE("/sandboxes/:id", s.timed(s.handleDeleteSandbox))
	g.GET("/sandboxes/:id/status", s.timed(s.handleSandboxStatus))
	g.POST("/sandboxes/:id/execute", s.timed(s.handleExecute))
	g.POST("/sandboxes/:id/terminal", s.timed(s.handleTerminal))

	g.GET("/sandboxes/:id/files", s.timed(s.handleFileRead))
	g.POST("/sandboxes/:id/files", s.timed(s.handleFileWrite))
	g.DELETE("/sandboxes/:id/files", s.timed(s.handleFileDelete))
	g.GET("/sandboxes/:id/files/list", s.timed(s.handleFileList))

	g.POST("/sandboxes/:id/contexts", s.timed(s.handleCreateContext))
	g.DELETE("/sandboxes/:id/contexts/:contextId", s.timed(s.handleDeleteContext))

	g.GET("/templates", s.timed(s.handleListTemplates))
	g.GET("/templates/:id", s.timed(s.handleGetTemplate))
	g.POST("/templates", s.timed(s.handleCreateTemplate))
}

// handleStream upgrades the connection and serves the job stream until
// the peer disconnects.
func (s *Server) handleStream(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := newSession(s.logger, s.svc, conn, currentUser(c))
	sess.run()
	return nil
}

// Handler exposes the route tree for in-process test servers.
func (s *Server) Handler() http.Handler { return s.echo }

// Start begins serving on the configured port. It blocks until the
// server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	s.logger.Info("gateway listening", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

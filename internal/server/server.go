// Package server exposes the router over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/baalimago/chatmux/internal/router"
	"github.com/baalimago/chatmux/internal/tools/mcp"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/lithammer/shortuuid/v4"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderTier   = "X-User-Tier"

	requestIDKey    = "request_id"
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	echo         *echo.Echo
	router       *router.Router
	integrations *mcp.Manager
	trustTier    bool
	debug        bool
}

type Option func(*Server)

// WithTrustedTier takes the tier from the request body or the X-User-Tier
// header. Without it every caller is limited as free tier.
func WithTrustedTier() Option {
	return func(s *Server) {
		s.trustTier = true
	}
}

// New sets up the routes. integrations may be nil, which disables
// POST /api/integrations.
func New(r *router.Router, integrations *mcp.Manager, opts ...Option) *Server {
	s := &Server{
		echo:         echo.New(),
		router:       r,
		integrations: integrations,
		debug:        misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("DEBUG_SERVER")),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: shortuuid.New,
		RequestIDHandler: func(c *echo.Context, id string) {
			c.Set(requestIDKey, id)
		},
	}))
	if s.debug {
		s.echo.Use(s.logRequests)
	}

	s.echo.GET("/healthz", s.handleHealth)
	api := s.echo.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/title", s.handleTitle)
	api.GET("/models", s.handleModels)
	api.POST("/integrations", s.handleConnectIntegration)
	api.DELETE("/integrations", s.handleDisconnectIntegrations)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		ancli.Okf("listening on: '%v'\n", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestID(c *echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)
		ancli.Noticef("[%v] %v %v, took: %v, err: %v\n", requestID(c), c.Request().Method, c.Request().URL.Path, time.Since(start), err)
		return err
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleError renders errors escaping the handlers as {"error": ...}.
func (s *Server) handleError(c *echo.Context, err error) {
	if r, _ := echo.UnwrapResponse(c.Response()); r != nil && r.Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var sc echo.HTTPStatusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		code = sc.StatusCode()
		msg = http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Message != "" {
			msg = he.Message
		}
	}
	if code >= http.StatusInternalServerError {
		ancli.Errf("[%v] %v %v: %v\n", requestID(c), c.Request().Method, c.Request().URL.Path, err)
	}
	if err := c.JSON(code, errorResponse{Error: msg}); err != nil {
		ancli.Warnf("[%v] failed to write error response: %v\n", requestID(c), err)
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server is the conversion proxy. It holds the conversion API key
// server side, so browsers and CLI users never see it, and enforces the
// daily quota per client.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pdiddy/mdconvert/internal/convert"
	"github.com/pdiddy/mdconvert/internal/quota"
	"github.com/pdiddy/mdconvert/internal/upload"
	"github.com/pdiddy/mdconvert/pkg/types"
)

// ClientIDHeader lets a caller name its quota bucket. Without it the remote
// address is used.
const ClientIDHeader = "X-Client-ID"

const (
	maxClientIDLen  = 64
	shutdownTimeout = 10 * time.Second
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Converter   convert.Converter
	Store       quota.Storage
	DailyLimit  int
	Concurrency int
	Options     types.ConversionOptions
	Limits      upload.Limits
	Version     string
	Now         func() time.Time
	Logger      *slog.Logger
}

// Server serves the conversion proxy API.
type Server struct {
	echo *echo.Echo
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// New builds a Server with its routes and middleware registered.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DailyLimit <= 0 {
		deps.DailyLimit = quota.DefaultDailyLimit
	}
	if deps.Limits == (upload.Limits{}) {
		deps.Limits = upload.DefaultLimits()
	}

	s := &Server{
		echo:     echo.New(),
		deps:     deps,
		log:      deps.Logger.With("component", "server"),
		inflight: map[string]bool{},
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = errorHandler(s.log)

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.echo.Use(middleware.BodyLimit(bodyLimit(deps.Limits)))

	s.routes()
	return s
}

// bodyLimit allows a full selection plus room for the form overhead.
func bodyLimit(l upload.Limits) string {
	total := int64(l.MaxFiles)*l.MaxFileSize + 1<<20
	return fmt.Sprintf("%dK", total/1024)
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	api.POST("/convert", s.handleConvert)
	api.GET("/quota", s.handleQuota)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, readTimeout time.Duration) error {
	s.echo.Server.ReadTimeout = readTimeout

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// clientID names the quota bucket for the request.
func clientID(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(ClientIDHeader)); id != "" {
		if len(id) > maxClientIDLen {
			id = id[:maxClientIDLen]
		}
		return "client:" + id
	}
	return "ip:" + c.RealIP()
}

// acquire marks client as busy. It returns false if it already was.
func (s *Server) acquire(client string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[client] {
		return false
	}
	s.inflight[client] = true
	return true
}

func (s *Server) release(client string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, client)
}

func (s *Server) tracker(client string) *quota.Tracker {
	return quota.NewTracker(quota.Scoped(s.deps.Store, client), s.deps.Logger)
}

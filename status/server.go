package status

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/gkatanacio/batch-downloader/download"
)

// Source is what the status endpoint reports on.
type Source interface {
	Progress() *download.Progress
	Admission() *download.Admission
}

// Snapshot is the body of GET /progress.
type Snapshot struct {
	Bytes  int64 `json:"bytes"`
	Active int64 `json:"active"`
	Peak   int64 `json:"peak"`
	Limit  int   `json:"limit"`
}

// NewHandler builds the HTTP routes exposing the progress of src.
func NewHandler(src Source, logger *slog.Logger) *echo.Echo {
	e := echo.New()

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("status request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/progress", func(c *echo.Context) error {
		admission := src.Admission()
		return c.JSON(http.StatusOK, Snapshot{
			Bytes:  src.Progress().Total(),
			Active: admission.Active(),
			Peak:   admission.Peak(),
			Limit:  admission.Limit(),
		})
	})

	return e
}

// Server serves the status routes until shut down.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// Start listens on addr and serves in the background.
func Start(addr string, src Source, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewHandler(src, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", "error", err)
		}
	}()

	logger.Info("status server listening", "addr", ln.Addr().String())

	return s, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

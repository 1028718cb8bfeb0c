// Package mockserver serves the collections of a fixture database as a REST API.
//
// Every handled API request is reported to a dispatch.Dispatcher, so listeners
// like the fixturestore can act on it.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/go-arrower/fixturedb/alog"
	"github.com/go-arrower/fixturedb/dispatch"
	"github.com/go-arrower/fixturedb/memdb"
)

// Resetter resets the fixture database to its defaults.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithResetter enables the reset endpoint.
func WithResetter(r Resetter) Option {
	return func(s *Server) {
		s.resetter = r
	}
}

// WithPrefix sets the path all collections are served under. Default is /api.
func WithPrefix(prefix string) Option {
	return func(s *Server) {
		s.prefix = prefix
	}
}

// WithMetrics records http metrics into reg and serves them at /metrics.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}

// New returns a Server for db, reporting to dispatcher.
func New(db *memdb.DB, dispatcher *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		db:             db,
		dispatcher:     dispatcher,
		resetter:       nil,
		logger:         alog.NewNoop(),
		prefix:         "/api",
		registry:       nil,
		tracerProvider: noop.NewTracerProvider(),
		router:         nil,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.newRouter()

	return s
}

type Server struct {
	db         *memdb.DB
	dispatcher *dispatch.Dispatcher
	resetter   Resetter

	logger         *slog.Logger
	prefix         string
	registry       *prometheus.Registry
	tracerProvider trace.TracerProvider

	router *echo.Echo
}

// ServeHTTP makes the Server a http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on address and blocks until the Server is shut down.
func (s *Server) Start(address string) error {
	s.logger.Info("start mock server", slog.String("address", address), slog.String("prefix", s.prefix))

	err := s.router.Start(address)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not start mock server: %w", err)
	}

	return nil
}

// Shutdown stops the Server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx) //nolint:wrapcheck
}

func (s *Server) newRouter() *echo.Echo {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.Logger.SetOutput(io.Discard)

	router.Use(middleware.Recover())
	router.Use(otelecho.Middleware("fixturedb", otelecho.WithTracerProvider(s.tracerProvider)))
	router.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		TargetHeader: echo.HeaderXRequestID,
		RequestIDHandler: func(c echo.Context, rid string) {
			c.SetRequest(c.Request().WithContext(alog.AddAttr(
				c.Request().Context(),
				slog.String("request_id", rid)),
			))
		},
	}))

	if s.registry != nil {
		router.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Subsystem:  "fixturedb",
			Registerer: s.registry,
		}))
		router.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: s.registry,
		}))
	}

	api := router.Group(s.prefix, Dispatch(s.dispatcher, s.logger))
	api.GET("/:table", s.list)
	api.GET("/:table/:id", s.find)
	api.POST("/:table", s.create)
	api.PUT("/:table/:id", s.update)
	api.PATCH("/:table/:id", s.update)
	api.DELETE("/:table/:id", s.remove)

	admin := router.Group("/_fixturedb")
	admin.GET("/dump", s.dump)
	admin.POST("/reset", s.reset)

	return router
}

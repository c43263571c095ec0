package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quantfabric/matchbook/pkg/core"
	"github.com/quantfabric/matchbook/pkg/depthcache"
	"github.com/quantfabric/matchbook/pkg/logging"
	"github.com/quantfabric/matchbook/pkg/messaging"
	pkgotel "github.com/quantfabric/matchbook/pkg/otel"
)

// Server exposes the order book manager over HTTP.
type Server struct {
	echo     *echo.Echo
	manager  *OrderBookManager
	sender   messaging.MessageSender
	depth    *depthcache.Publisher
	scale    messaging.PriceScale
	logger   zerolog.Logger
	bookOpts []core.Option
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDepthPublisher attaches a Redis depth snapshot publisher.
func WithDepthPublisher(p *depthcache.Publisher) ServerOption {
	return func(s *Server) { s.depth = p }
}

// WithBookOptions sets the options applied to every book the server
// creates.
func WithBookOptions(opts ...core.Option) ServerOption {
	return func(s *Server) { s.bookOpts = opts }
}

// WithRateLimit caps requests per second per client IP.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rps),
				Burst:     burst,
				ExpiresIn: time.Minute,
			}),
		}))
	}
}

// NewServer builds the HTTP surface over the given manager. The
// sender receives an execution message for every mutating operation.
func NewServer(manager *OrderBookManager, sender messaging.MessageSender, scale messaging.PriceScale, logger zerolog.Logger, opts ...ServerOption) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		manager: manager,
		sender:  sender,
		scale:   scale,
		logger:  logger,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestContextMiddleware)
	e.Use(s.metricsMiddleware)

	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s
}

// requestContextMiddleware threads the request id into the request
// context so handlers log with it.
func (s *Server) requestContextMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), requestID)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// metricsMiddleware records request counts, in-flight gauge and
// latency when the meter provider is configured.
func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		mp := pkgotel.GetMeterProvider()
		if mp == nil {
			return next(c)
		}
		metrics, err := pkgotel.GetHTTPServerMetrics(mp.Meter("matchbook-http"))
		if err != nil {
			return next(c)
		}

		ctx := c.Request().Context()
		method := c.Request().Method
		route := c.Path()

		_ = metrics.IncRequests(ctx, method, route)
		_ = metrics.AddInFlightRequests(ctx, 1)
		start := time.Now()

		err = next(c)

		_ = metrics.AddInFlightRequests(ctx, -1)
		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			_ = metrics.IncErrors(ctx, method, route, status)
		}
		_ = metrics.RecordLatency(ctx, method, route, time.Since(start), status)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.POST("/books", s.handleCreateBook)
	s.echo.GET("/books", s.handleListBooks)
	s.echo.DELETE("/books/:book", s.handleDeleteBook)

	s.echo.POST("/books/:book/orders", s.handleAddOrder)
	s.echo.DELETE("/books/:book/orders/:id", s.handleCancelOrder)
	s.echo.PUT("/books/:book/orders/:id", s.handleModifyOrder)

	s.echo.GET("/books/:book/depth", s.handleDepth)
	s.echo.GET("/books/:book/size", s.handleSize)
}

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.echo.Start(addr)
}

// Shutdown drains the HTTP server and closes every book.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.manager.Close()
	return err
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

package ops

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tcpchat/internal/gateway"
	"tcpchat/internal/metrics"
	"tcpchat/internal/registry"
	"tcpchat/internal/room"
	"tcpchat/internal/store"
	"tcpchat/internal/transport"
)

// Deps are the components the ops API reads from. Gateway may be nil to
// run without the WebSocket entry point.
type Deps struct {
	Registry  *registry.Registry
	Rooms     *room.Manager
	Store     *store.Store
	Metrics   *metrics.Metrics
	Transport *transport.Server
	Gateway   *gateway.Gateway
	Logger    zerolog.Logger
}

// Server is the HTTP side door: health, stats, Prometheus metrics, and
// the WebSocket gateway. Chat traffic itself stays on the TCP listener.
type Server struct {
	echo     *echo.Echo
	deps     Deps
	logger   zerolog.Logger
	limiter  *RateLimiter
	stop     chan struct{}
	stopOnce sync.Once
	started  time.Time
}

func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  deps.Logger.With().Str("component", "ops").Logger(),
		limiter: NewRateLimiter(50, 100),
		stop:    make(chan struct{}),
		started: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	}))
	e.Use(s.limiter.Middleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/api/stats", s.handleStats)
	s.echo.GET("/api/rooms", s.handleRooms)
	s.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(s.deps.Metrics.Gatherer(), promhttp.HandlerOpts{})))
	if s.deps.Gateway != nil {
		s.echo.GET("/ws", s.deps.Gateway.Handle)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	UptimeSeconds  int64                  `json:"uptime_seconds"`
	Connections    int                    `json:"connections"`
	Rooms          int                    `json:"rooms"`
	CachedMessages int                    `json:"cached_messages"`
	Pool           transport.PoolStats    `json:"pool"`
	Counters       map[string]interface{} `json:"counters"`
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, statsResponse{
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		Connections:    s.deps.Registry.Count(),
		Rooms:          s.deps.Rooms.Count(),
		CachedMessages: s.deps.Store.GetTotalCount(),
		Pool:           s.deps.Transport.PoolStats(),
		Counters:       s.deps.Metrics.GetSummary(),
	})
}

func (s *Server) handleRooms(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Rooms.Infos())
}

// Start serves HTTP until Shutdown. A clean shutdown reports nil rather
// than http.ErrServerClosed.
func (s *Server) Start(address string) error {
	go s.limiter.Run(5*time.Minute, s.stop)

	s.logger.Info().Str("address", address).Msg("ops server listening")
	err := s.echo.Start(address)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.echo.Shutdown(ctx)
}

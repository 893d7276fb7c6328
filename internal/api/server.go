// Package api serves the chart engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"trading-chartsv1/internal/dataset"
	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/logger"
	"trading-chartsv1/internal/metrics"
	"trading-chartsv1/internal/model"
	"trading-chartsv1/internal/series"
	"trading-chartsv1/internal/timeline"
)

// Engine is the read side of the chart engine.
type Engine interface {
	Keys() []string
	Series(key string) (*series.Series, bool)
	Timeline() *timeline.Timeline
	Specs() []indicator.Spec
	Bars(key string, fromIdx, toIdx int) ([]model.Bar, error)
	Latest(key string) (model.Update, error)
	Datasets(key string) ([]dataset.Indicator, error)
	Dataset(key, raw string) (dataset.Indicator, error)
	OHLC(key string) (*dataset.OHLC, error)
}

// Ingester accepts bars posted through the API.
type Ingester interface {
	Ingest(ctx context.Context, bar model.Bar) (model.Update, error)
}

// HealthReporter summarises service health.
type HealthReporter interface {
	Status() (string, int)
}

type Config struct {
	Addr      string
	RateLimit rate.Limit // requests per second per client; zero disables limiting
	Burst     int
	Health    HealthReporter
	Metrics   *metrics.Metrics
	Log       *logger.Logger
}

// Server is the HTTP API.
type Server struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	engine    Engine
	ingester  Ingester
	cfg       Config
	log       *logger.Logger
}

// New builds the server and registers its routes.
func New(engine Engine, ingester Ingester, cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		validator: goValidator.New(),
		engine:    engine,
		ingester:  ingester,
		cfg:       cfg,
		log:       cfg.Log.Component("api"),
	}
	if cfg.RateLimit > 0 {
		var onDeny func()
		if cfg.Metrics != nil {
			onDeny = cfg.Metrics.APIRateLimited.Inc
		}
		e.Use(newRateLimiter(NewLimiterStore(cfg.RateLimit, max(cfg.Burst, 1)), onDeny))
	}
	s.SetupRoutes()
	return s
}

func (s *Server) SetupRoutes() {
	base := s.echo.Group("/api/v1")
	base.GET("/health", s.health)
	s.SetupSeries(base)
	s.SetupTimeline(base)
}

// Mount serves h for GET requests on path, outside the /api/v1 group.
func (s *Server) Mount(path string, h http.Handler) {
	s.echo.GET(path, echo.WrapHandler(h))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until Stop is called.
func (s *Server) Start() {
	go func() {
		s.log.Info("listening", logger.StringField("addr", s.cfg.Addr))
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server failed", logger.ErrorField(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	status, code := "ok", http.StatusOK
	if s.cfg.Health != nil {
		status, code = s.cfg.Health.Status()
	}
	specs := s.engine.Specs()
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name()
	}
	return c.JSON(code, HealthResponse{
		Status:     status,
		Series:     len(s.engine.Keys()),
		Indicators: names,
		Timeline:   s.engine.Timeline().String(),
	})
}

// bind binds and validates req, writing a 400 on failure. It returns false
// when the handler should stop.
func (s *Server) bind(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Status: http.StatusBadRequest, Message: "invalid request"})
	}
	if err := s.validator.Struct(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, ErrorResponse{Status: http.StatusBadRequest, Message: err.Error()})
	}
	return true, nil
}

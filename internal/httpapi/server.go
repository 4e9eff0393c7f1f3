package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/interchange"
	"github.com/hinteval/sessiond/internal/logging"
	"github.com/hinteval/sessiond/internal/sessionstore"
	"github.com/hinteval/sessiond/internal/telemetry"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxUploadBytes caps the uploaded file size; the transport body limit
	// sits slightly above it to leave room for multipart framing.
	MaxUploadBytes int64

	// RateLimit and RateBurst bound write traffic per session key.
	RateLimit float64
	RateBurst int

	// Status endpoint identity.
	Version       string
	StoreProvider string
	EventsEnabled bool
}

// multipartSlack is added to the transport body limit so a file of exactly
// MaxUploadBytes still fits alongside its multipart boundary and headers.
const multipartSlack = 64 << 10

// Server serves the session interchange API.
type Server struct {
	echo    *echo.Echo
	service interchange.Service
	store   sessionstore.Store
	tel     *telemetry.Telemetry
	logger  *logging.Logger
	config  *Config
	limiter *keyLimiter
	started time.Time
}

// NewServer creates the HTTP server. The store is used for status probes
// and may be nil; tel may be nil when telemetry is disabled.
func NewServer(cfg *Config, svc interchange.Service, store sessionstore.Store, tel *telemetry.Telemetry, logger *logging.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("interchange service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:9090"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = interchange.DefaultMaxUploadBytes
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		service: svc,
		store:   store,
		tel:     tel,
		logger:  logger.Named("httpapi"),
		config:  cfg,
		limiter: newKeyLimiter(cfg.RateLimit, cfg.RateBurst),
		started: time.Now(),
	}

	e.HTTPErrorHandler = s.errorHandler

	// Middleware, outermost first. The log and metrics layers sit outside
	// Recover so panics still produce a logged, metered 500.
	e.Use(middleware.RequestID())
	e.Use(s.correlationMiddleware())
	e.Use(NewHTTPMetrics(logger.Underlying()).MetricsMiddleware())
	e.Use(s.requestLogMiddleware())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes+multipartSlack, 10)))

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health and operational endpoints
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session interchange endpoints
	g := s.echo.Group("/save_and_load", s.sessionKeyMiddleware())
	g.POST("/import", s.handleImport, s.rateLimitMiddleware())
	g.GET("/export", s.handleExport)
	g.DELETE("/clear", s.handleClear, s.rateLimitMiddleware())
}

// handleHealth returns a simple liveness response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleStatus reports version, uptime, and dependency health.
func (s *Server) handleStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	services := map[string]string{}

	switch {
	case s.store == nil:
		services["store"] = "unknown"
	case s.store.Ping(ctx) != nil:
		services["store"] = "unavailable"
		status = "degraded"
	default:
		services["store"] = "ok"
	}
	if s.config.StoreProvider != "" {
		services["store_provider"] = s.config.StoreProvider
	}

	if s.config.EventsEnabled {
		services["events"] = "enabled"
	} else {
		services["events"] = "disabled"
	}

	if s.tel != nil {
		health := s.tel.Health()
		switch {
		case health.Degraded:
			services["telemetry"] = "degraded: " + health.Reason
		case s.tel.IsEnabled():
			services["telemetry"] = "ok"
		default:
			services["telemetry"] = "disabled"
		}
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Status:        status,
		Version:       s.config.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Services:      services,
	})
}

// handleImport replaces the session's contents with the uploaded document.
func (s *Server) handleImport(c echo.Context) error {
	key := sessionKey(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, `multipart field "file" is required`)
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
	}
	defer f.Close()

	res, err := s.service.Import(c.Request().Context(), key, fh.Filename, f)
	if err != nil {
		return err
	}

	resp := ImportResponse{
		Status:    "success",
		SessionID: res.SessionID,
		Import: ImportSummary{
			Format:        string(res.Format),
			Info:          res.Info,
			Counts:        res.Counts,
			AutoGenerated: res.AutoGenerated,
		},
	}
	if res.Cleared != nil {
		resp.Cleared = &ClearedBlock{
			Cleared: res.Cleared.Cleared,
			Message: res.Cleared.Message,
			Counts:  res.Cleared.Counts,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleExport renders the session in the requested format as a download.
func (s *Server) handleExport(c echo.Context) error {
	key := sessionKey(c)

	format, err := interchange.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}

	res, err := s.service.Export(c.Request().Context(), key, format)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", res.Filename))
	return c.Blob(http.StatusOK, res.ContentType, res.Data)
}

// handleClear wipes the session's contents.
func (s *Server) handleClear(c echo.Context) error {
	key := sessionKey(c)

	res, err := s.service.Clear(c.Request().Context(), key)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ClearResponse{
		Status:    "success",
		SessionID: res.SessionID,
		Cleared:   res.Cleared,
		Message:   res.Message,
		Counts:    res.Removed,
	})
}

// errorHandler renders every failure as {"detail": "..."} with the status
// the interchange error taxonomy prescribes.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	detail := "internal server error"

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		detail = fmt.Sprintf("%v", he.Message)
	case errors.Is(err, interchange.ErrPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
		detail = err.Error()
	case errors.Is(err, interchange.ErrStoreUnavailable),
		errors.Is(err, interchange.ErrServiceClosed):
		status = http.StatusServiceUnavailable
		detail = err.Error()
	case isRejectedInput(err):
		status = http.StatusBadRequest
		detail = err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err),
		)
	}

	if jsonErr := c.JSON(status, ErrorResponse{Detail: detail}); jsonErr != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(jsonErr))
	}
}

// isRejectedInput reports whether err is a parse or validation failure the
// client can fix, as opposed to a fault on our side.
func isRejectedInput(err error) bool {
	for _, target := range []error{
		interchange.ErrUnsupportedFormat,
		interchange.ErrSchema,
		interchange.ErrMissingQuestion,
		interchange.ErrDuplicateQuestion,
		interchange.ErrDuplicateAnswer,
		interchange.ErrInvalidRowType,
		interchange.ErrInvalidEntitySpan,
		interchange.ErrInvalidMetricValue,
		interchange.ErrCandidateProjectionMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

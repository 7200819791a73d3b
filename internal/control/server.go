package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"snapword/internal/domain"
)

const maxCaptureLimit = 200

// Controller is the coordinator surface the API drives.
type Controller interface {
	Press() bool
	Reset()
	Status() domain.Status
}

// ForegroundSwitch flips the foreground gate.
type ForegroundSwitch interface {
	IsForeground() bool
	SetForeground(active bool)
}

// History lists recorded captures.
type History interface {
	Recent(ctx context.Context, limit int) ([]domain.CaptureResult, error)
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	domain.Status
	Errors []ErrorEntry `json:"errors"`
}

type foregroundRequest struct {
	Active *bool `json:"active"`
}

// Server exposes the local control API.
type Server struct {
	echo       *echo.Echo
	controller Controller
	foreground ForegroundSwitch
	history    History
	hub        *Hub
	logger     *slog.Logger
}

// NewServer builds the API. history may be nil when the ledger is disabled.
func NewServer(controller Controller, foreground ForegroundSwitch, history History, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		controller: controller,
		foreground: foreground,
		history:    history,
		hub:        hub,
		logger:     logger,
	}
	e.Use(middleware.Recover())
	e.Use(s.logRequests)

	e.GET("/health", s.health)
	e.GET("/status", s.status)
	e.POST("/trigger", s.trigger)
	e.POST("/foreground", s.setForeground)
	e.POST("/reset", s.reset)
	e.GET("/captures", s.captures)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("control api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Debug("control request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(started),
		)
		return nil
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(c echo.Context) error {
	snapshot := s.hub.Snapshot()
	status := s.controller.Status()
	status.LastCapture = snapshot.LastCapture
	status.Message = snapshot.Message
	return c.JSON(http.StatusOK, StatusResponse{Status: status, Errors: snapshot.Errors})
}

func (s *Server) trigger(c echo.Context) error {
	if !s.controller.Press() {
		return c.JSON(http.StatusConflict, map[string]any{
			"accepted": false,
			"reason":   "trigger suppressed while backgrounded or not yet listening",
		})
	}
	return c.JSON(http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) setForeground(c echo.Context) error {
	var req foregroundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, `missing "active"`)
	}
	s.foreground.SetForeground(*req.Active)
	return c.JSON(http.StatusOK, map[string]bool{"active": s.foreground.IsForeground()})
}

func (s *Server) reset(c echo.Context) error {
	s.controller.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) captures(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "capture ledger is disabled")
	}
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(parsed, maxCaptureLimit)
	}
	results, err := s.history.Recent(c.Request().Context(), limit)
	if err != nil {
		s.logger.Warn("list captures failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not read captures")
	}
	if results == nil {
		results = []domain.CaptureResult{}
	}
	return c.JSON(http.StatusOK, results)
}

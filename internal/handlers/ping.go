package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a dependency whose reachability gates readiness (e.g. *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 2 * time.Second

// PingHandler serves /ping for liveness and HEAD /health, GET /ready for readiness.
type PingHandler struct {
	logger *slog.Logger
	checks map[string]Pinger
}

// NewPingHandler creates a ping handler. checks are named dependencies probed by /health and /ready.
func NewPingHandler(log *slog.Logger, checks map[string]Pinger) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{
		logger: log.With(slog.String("handler", "ping")),
		checks: checks,
	}
}

// Register mounts the liveness and readiness routes on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/ready", h.Ready)
}

// Ping returns 200 JSON {"status":"ok"}.
func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// PingHead returns 200 No Content when every dependency answers, 503 otherwise.
func (h *PingHandler) PingHead(c echo.Context) error {
	if _, err := h.probe(c.Request().Context()); err != nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

// Ready reports the first failing dependency as an ErrorResponse.
func (h *PingHandler) Ready(c echo.Context) error {
	name, err := h.probe(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: name + ": " + err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (h *PingHandler) probe(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	for name, p := range h.checks {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("dependency not ready", slog.String("dependency", name), slog.Any("error", err))
			return name, err
		}
	}
	return "", nil
}

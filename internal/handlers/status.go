package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/version"
)

// AliasStats is the part of the alias store reported by /status.
type AliasStats interface {
	Stats(ctx context.Context) (alias.Stats, error)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Version string      `json:"version"`
	Aliases AliasStatus `json:"aliases"`
}

// AliasStatus summarises the transactional alias store.
type AliasStatus struct {
	Backend          string     `json:"backend"`
	Total            int        `json:"total"`
	LatestSubmission *time.Time `json:"latest_submission,omitempty"`
}

// StatusHandler reports the build and alias store state.
type StatusHandler struct {
	logger  *slog.Logger
	backend string
	aliases AliasStats
}

// NewStatusHandler creates a status handler for the named alias backend.
func NewStatusHandler(log *slog.Logger, backend string, aliases AliasStats) *StatusHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StatusHandler{
		logger:  log.With(slog.String("handler", "status")),
		backend: backend,
		aliases: aliases,
	}
}

// Register mounts GET /status.
func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/status", h.Status)
}

// Status returns StatusResponse, or 503 when the alias store cannot be read.
func (h *StatusHandler) Status(c echo.Context) error {
	st, err := h.aliases.Stats(c.Request().Context())
	if err != nil {
		h.logger.Error("alias stats failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp := StatusResponse{
		Version: version.GetInfo(),
		Aliases: AliasStatus{Backend: h.backend, Total: st.Total},
	}
	if !st.LatestSubmitAt.IsZero() {
		latest := st.LatestSubmitAt.UTC()
		resp.Aliases.LatestSubmission = &latest
	}
	return c.JSON(http.StatusOK, resp)
}

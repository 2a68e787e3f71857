package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type statsFunc func(ctx context.Context) (alias.Stats, error)

func (f statsFunc) Stats(ctx context.Context) (alias.Stats, error) { return f(ctx) }

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestPingHandler(t *testing.T) {
	healthy := true
	checks := map[string]Pinger{
		"postgres": pingFunc(func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		}),
	}
	e := echo.New()
	NewPingHandler(logger.Discard(), checks).Register(e)

	rec := serve(e, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(e, http.MethodHead, "/health").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ready").Code)

	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, serve(e, http.MethodHead, "/health").Code)
	rec = serve(e, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "postgres: connection refused", body.Message)

	// Liveness does not depend on the database.
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ping").Code)
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "zrebot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	e := echo.New()
	NewMetricsHandler(reg).Register(e)

	rec := serve(e, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "zrebot_test_total 3"))
}

func TestStatusHandler(t *testing.T) {
	latest := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	fail := false
	stats := statsFunc(func(context.Context) (alias.Stats, error) {
		if fail {
			return alias.Stats{}, alias.ErrStoreUnavailable
		}
		return alias.Stats{Total: 12, LatestSubmitAt: latest}, nil
	})
	e := echo.New()
	NewStatusHandler(logger.Discard(), "sqlite", stats).Register(e)

	rec := serve(e, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Version)
	assert.Equal(t, "sqlite", body.Aliases.Backend)
	assert.Equal(t, 12, body.Aliases.Total)
	require.NotNil(t, body.Aliases.LatestSubmission)
	assert.True(t, latest.Equal(*body.Aliases.LatestSubmission))

	fail = true
	assert.Equal(t, http.StatusServiceUnavailable, serve(e, http.MethodGet, "/status").Code)
}

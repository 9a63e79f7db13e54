package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestMetricsHandlerReady(t *testing.T) {
	ok := pingerFunc(func(ctx context.Context) error { return nil })
	down := pingerFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") })

	handler := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"postgres": ok})
	c, w := newJSONContext(http.MethodGet, "/ready", "")
	handler.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	handler = NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"postgres": ok, "redis": down})
	c, w = newJSONContext(http.MethodGet, "/ready", "")
	handler.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordOutcome("enroll", "CONFIRMED")
	handler := NewMetricsHandler(metrics, nil)

	c, w := newJSONContext(http.MethodGet, "/metrics", "")
	handler.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CONFIRMED")

	c, w = newJSONContext(http.MethodGet, "/metrics/registrar", "")
	handler.Snapshot(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "enroll:CONFIRMED")
}

package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/libreta-api/internal/config"
	"github.com/noah-isme/libreta-api/internal/handler"
)

func TestHealthCheckReportsDependencies(t *testing.T) {
	healthy := false
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "Libreta API", AppEnv: "test"}, map[string]handler.HealthCheckFunc{
		"database": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Success bool                   `json:"success"`
		Data    handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.False(t, body.Success)
	require.Equal(t, "degraded", body.Data.Status)
	require.Equal(t, "ok", body.Data.Dependencies["database"])
	require.Equal(t, "connection refused", body.Data.Dependencies["redis"])

	healthy = true
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

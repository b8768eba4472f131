package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/parking/pkg/parkingsdk"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	cfg := defaultConfig()
	cfg.DatabaseFile = filepath.Join(dir, "parking.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.JWTSharedToken = "test-secret"
	cfg.LogFormat = "text"
	cfg.LogLevel = "error"
	return cfg
}

func TestNewWiresSQLiteStack(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)

	require.Nil(t, app.broker)
	require.Nil(t, app.redis)
	require.Nil(t, app.effects.Commands)

	t.Run("readyz reports broker disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp parkingsdk.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "ok", resp.Checks.Database)
		require.Equal(t, "disabled", resp.Checks.Broker)
	})

	t.Run("metrics include runtime collectors", func(t *testing.T) {
		rec := httptest.NewRecorder()
		app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("node token round trip through admin service", func(t *testing.T) {
		token, err := app.admin.CreateNode(t.Context(), "n1", "A1", "")
		require.NoError(t, err)
		require.NotEmpty(t, token)
	})

	require.NoError(t, app.Shutdown())
}

func TestNewRejectsUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.LockDriver = "redis"
	cfg.RedisURI = "redis://127.0.0.1:1/0"

	_, err := New(cfg)
	require.Error(t, err)
}

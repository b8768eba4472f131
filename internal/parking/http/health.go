package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/aussiebroadwan/parking/pkg/parkingsdk"
)

// BrokerStatus reports whether the command channel is connected.
type BrokerStatus interface {
	IsConnected() bool
}

// LivezHandler always answers 200 while the process is up.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, parkingsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler checks the store and the MQTT broker. A nil broker means
// commands are not published at all and is reported as disabled.
func ReadyzHandler(startTime time.Time, version string, st store.Store, broker BrokerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &parkingsdk.HealthChecks{
			Database: "ok",
			Broker:   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		switch {
		case broker == nil:
			checks.Broker = "disabled"
		case !broker.IsConnected():
			checks.Broker = "error: not connected"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, parkingsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

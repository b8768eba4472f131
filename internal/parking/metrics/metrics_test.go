package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordTransition(domain.NodeFree, domain.NodeReserved)
	c.RecordTransition(domain.NodeFree, domain.NodeReserved)
	c.RecordBadgeResult("accepted")
	c.RecordUseCase("authenticate", "success")
	c.RecordSideEffectFailure("publish")
	c.RecordLockWait(time.Millisecond)

	count, err := testutil.GatherAndCount(reg,
		"parking_node_transitions_total",
		"parking_badge_authentications_total",
		"parking_use_cases_total",
		"parking_side_effect_failures_total",
		"parking_lock_wait_seconds",
	)
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.RecordUseCase("reserve", "spot_taken")

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `parking_use_cases_total{result="spot_taken",use_case="reserve"} 1`)
}

func TestNopSatisfiesRecorder(t *testing.T) {
	var r metrics.Recorder = metrics.Nop{}
	r.RecordTransition(domain.NodeFree, domain.NodeOccupied)
}

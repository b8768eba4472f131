package parking_test

import (
	"testing"

	"github.com/aussiebroadwan/parking/pkg/parkingsdk"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	client := parkingsdk.NewSDKClient(setupParkingContainer(t))

	t.Run("livez", func(t *testing.T) {
		health, err := client.GetLiveness(t.Context())
		require.NoError(t, err)
		require.Equal(t, "ok", health.Status)
		require.NotEmpty(t, health.Version)
	})

	t.Run("readyz without broker", func(t *testing.T) {
		health, err := client.GetReadiness(t.Context())
		require.NoError(t, err)
		require.Equal(t, "ok", health.Status)
		require.NotNil(t, health.Checks)
		require.Equal(t, "ok", health.Checks.Database)
		require.Equal(t, "disabled", health.Checks.Broker)
	})
}

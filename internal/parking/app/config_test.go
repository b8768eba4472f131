package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	EnvConfigFile, "ENV", "LOG_LEVEL", "LOG_FORMAT", "PORT", "SHUTDOWN_GRACE_PERIOD",
	"STORE_DRIVER", "DATABASE_FILE", "MONGODB_URI", "MONGO_DATABASE",
	"LOCK_DRIVER", "REDIS_URI", "LOCK_TTL", "JWT_SHARED_TOKEN", "PEPPER_FILE",
	"MQTT_BROKER", "MQTT_PORT", "MQTT_USERNAME", "MQTT_PWD",
	"DISCORD_WEBHOOK", "MX_SENDER_ADDR", "MX_SENDER_PWD", "MX_SMTP_URL", "MX_SMTP_PORT",
	"NOTIFY_TIMEOUT",
	"RATELIMIT_STRICT_REQUESTS", "RATELIMIT_STRICT_WINDOW", "RATELIMIT_STRICT_BURST",
	"RATELIMIT_MODERATE_REQUESTS", "RATELIMIT_MODERATE_WINDOW", "RATELIMIT_MODERATE_BURST",
	"RATELIMIT_LENIENT_REQUESTS", "RATELIMIT_LENIENT_WINDOW", "RATELIMIT_LENIENT_BURST",
}

// clearEnv blanks every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SHARED_TOKEN", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, "parking.db", cfg.DatabaseFile)
	require.Equal(t, "memory", cfg.LockDriver)
	require.Equal(t, 15*time.Second, cfg.LockTTL)
	require.Equal(t, 1883, cfg.MQTTPort)
	require.Equal(t, 465, cfg.MXSMTPPort)
	require.Equal(t, 10*time.Second, cfg.NotifyTimeout)
	require.Empty(t, cfg.MQTTBroker)
	require.Equal(t, httpx.DefaultRateLimits(), cfg.RateLimits)
}

func TestLoadConfigRateLimits(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SHARED_TOKEN", "secret")

	path := filepath.Join(t.TempDir(), "parking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rate-limits:
  strict:
    requests: 50
    window: 30s
    burst: 10
`), 0o600))

	t.Setenv(EnvConfigFile, path)
	t.Setenv("RATELIMIT_STRICT_BURST", "20")
	t.Setenv("RATELIMIT_MODERATE_WINDOW", "120")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	defaults := httpx.DefaultRateLimits()
	require.Equal(t, httpx.Tier{Requests: 50, Window: 30 * time.Second, Burst: 20}, cfg.RateLimits.Strict)
	require.Equal(t, httpx.Tier{Requests: defaults.Moderate.Requests, Window: 2 * time.Minute, Burst: defaults.Moderate.Burst}, cfg.RateLimits.Moderate)
	require.Equal(t, defaults.Lenient, cfg.RateLimits.Lenient)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "parking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9090
store-driver: mongo
mongodb-uri: mongodb://db:27017
jwt-shared-token: from-file
mqtt-broker: broker.local
notify-timeout: 3s
`), 0o600))

	t.Setenv(EnvConfigFile, path)
	t.Setenv("PORT", "9191")
	t.Setenv("NOTIFY_TIMEOUT", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 9191, cfg.Port)
	require.Equal(t, "mongo", cfg.StoreDriver)
	require.Equal(t, "mongodb://db:27017", cfg.MongoURI)
	require.Equal(t, "from-file", cfg.JWTSharedToken)
	require.Equal(t, "broker.local", cfg.MQTTBroker)
	require.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	require.Equal(t, "parking", cfg.MongoDatabase)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing jwt secret", func(t *testing.T) {
		clearEnv(t)
		_, err := LoadConfig()
		require.ErrorIs(t, err, ErrMissingJWTSecret)
	})

	t.Run("unreadable config file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("malformed config file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: [nope"), 0o600))
		t.Setenv(EnvConfigFile, path)
		_, err := LoadConfig()
		require.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	base := defaultConfig()
	base.JWTSharedToken = "secret"

	tests := []struct {
		name    string
		mutate  func(*Config)
		valid   bool
		wantErr error
	}{
		{name: "defaults are valid", mutate: func(*Config) {}, valid: true},
		{name: "unknown store", mutate: func(c *Config) { c.StoreDriver = "postgres" }, wantErr: ErrUnknownDriver},
		{name: "unknown lock", mutate: func(c *Config) { c.LockDriver = "etcd" }, wantErr: ErrUnknownDriver},
		{name: "mongo without uri", mutate: func(c *Config) { c.StoreDriver = "mongo" }},
		{name: "redis without uri", mutate: func(c *Config) { c.LockDriver = "redis" }},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }},
		{name: "empty rate limit window", mutate: func(c *Config) { c.RateLimits.Lenient.Window = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()

			switch {
			case tt.valid:
				require.NoError(t, err)
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			default:
				require.Error(t, err)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("PARKING_DOTENV_PRESET", "kept")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PARKING_DOTENV_TEST=loaded\nPARKING_DOTENV_PRESET=overridden\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PARKING_DOTENV_TEST") })

	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "loaded", os.Getenv("PARKING_DOTENV_TEST"))
	require.Equal(t, "kept", os.Getenv("PARKING_DOTENV_PRESET"))

	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

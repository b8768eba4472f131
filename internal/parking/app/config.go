package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile points at an optional YAML file. Environment variables win
// over values from the file.
const EnvConfigFile = "PARKING_CONFIG_FILE"

var (
	ErrMissingJWTSecret = errors.New("config: JWT_SHARED_TOKEN is required")
	ErrUnknownDriver    = errors.New("config: unknown driver")
)

type Config struct {
	Env                 string        `yaml:"env"`                   // dev, staging, prod (default: dev)
	LogLevel            string        `yaml:"log-level"`             // debug, info, warn, error (default: info)
	LogFormat           string        `yaml:"log-format"`            // json, text (default: json)
	Port                int           `yaml:"port"`                  // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration `yaml:"shutdown-grace-period"` // default: 10s

	StoreDriver   string `yaml:"store-driver"`   // sqlite, mongo (default: sqlite)
	DatabaseFile  string `yaml:"database-file"`  // SQLite file (default: parking.db)
	MongoURI      string `yaml:"mongodb-uri"`    // Required with the mongo driver
	MongoDatabase string `yaml:"mongo-database"` // default: parking

	LockDriver string        `yaml:"lock-driver"` // memory, redis (default: memory)
	RedisURI   string        `yaml:"redis-uri"`   // Required with the redis lock driver
	LockTTL    time.Duration `yaml:"lock-ttl"`    // Redis lease length (default: 15s)

	JWTSharedToken string `yaml:"jwt-shared-token"` // Required: HS256 key shared with the identity provider
	PepperFile     string `yaml:"pepper-file"`      // Pepper for node token hashes (default: pepper)

	MQTTBroker   string `yaml:"mqtt-broker"` // Optional: commands are not published without it
	MQTTPort     int    `yaml:"mqtt-port"`   // default: 1883, 8883 switches to TLS
	MQTTUsername string `yaml:"mqtt-username"`
	MQTTPassword string `yaml:"mqtt-password"`

	DiscordWebhook   string        `yaml:"discord-webhook"` // Optional: operator alerts are only logged without it
	MXSenderAddr     string        `yaml:"mx-sender-addr"`
	MXSenderPassword string        `yaml:"mx-sender-password"`
	MXSMTPURL        string        `yaml:"mx-smtp-url"`    // Optional: user emails are only logged without it
	MXSMTPPort       int           `yaml:"mx-smtp-port"`   // default: 465
	NotifyTimeout    time.Duration `yaml:"notify-timeout"` // Per side effect (default: 10s)

	// Overridden per tier by RATELIMIT_{STRICT,MODERATE,LENIENT}_{REQUESTS,WINDOW,BURST}
	RateLimits httpx.RateLimits `yaml:"rate-limits"`
}

func defaultConfig() Config {
	return Config{
		Env:                 "dev",
		LogLevel:            "info",
		LogFormat:           "json",
		Port:                8080,
		ShutdownGracePeriod: 10 * time.Second,
		StoreDriver:         "sqlite",
		DatabaseFile:        "parking.db",
		MongoDatabase:       "parking",
		LockDriver:          "memory",
		LockTTL:             15 * time.Second,
		PepperFile:          "pepper",
		MQTTPort:            1883,
		MXSMTPPort:          465,
		NotifyTimeout:       10 * time.Second,
		RateLimits:          httpx.DefaultRateLimits(),
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by PARKING_CONFIG_FILE, then the environment (a .env file in the working
// directory is loaded first if present).
func LoadConfig() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)

	cfg.StoreDriver = getEnvOrDefault("STORE_DRIVER", cfg.StoreDriver)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)
	cfg.MongoURI = getEnvOrDefault("MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnvOrDefault("MONGO_DATABASE", cfg.MongoDatabase)

	cfg.LockDriver = getEnvOrDefault("LOCK_DRIVER", cfg.LockDriver)
	cfg.RedisURI = getEnvOrDefault("REDIS_URI", cfg.RedisURI)
	cfg.LockTTL = getEnvDurationOrDefault("LOCK_TTL", cfg.LockTTL)

	cfg.JWTSharedToken = getEnvOrDefault("JWT_SHARED_TOKEN", cfg.JWTSharedToken)
	cfg.PepperFile = getEnvOrDefault("PEPPER_FILE", cfg.PepperFile)

	cfg.MQTTBroker = getEnvOrDefault("MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTPort = getEnvIntOrDefault("MQTT_PORT", cfg.MQTTPort)
	cfg.MQTTUsername = getEnvOrDefault("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = getEnvOrDefault("MQTT_PWD", cfg.MQTTPassword)

	cfg.DiscordWebhook = getEnvOrDefault("DISCORD_WEBHOOK", cfg.DiscordWebhook)
	cfg.MXSenderAddr = getEnvOrDefault("MX_SENDER_ADDR", cfg.MXSenderAddr)
	cfg.MXSenderPassword = getEnvOrDefault("MX_SENDER_PWD", cfg.MXSenderPassword)
	cfg.MXSMTPURL = getEnvOrDefault("MX_SMTP_URL", cfg.MXSMTPURL)
	cfg.MXSMTPPort = getEnvIntOrDefault("MX_SMTP_PORT", cfg.MXSMTPPort)
	cfg.NotifyTimeout = getEnvDurationOrDefault("NOTIFY_TIMEOUT", cfg.NotifyTimeout)

	applyTierEnv("STRICT", &cfg.RateLimits.Strict)
	applyTierEnv("MODERATE", &cfg.RateLimits.Moderate)
	applyTierEnv("LENIENT", &cfg.RateLimits.Lenient)
}

func applyTierEnv(name string, tier *httpx.Tier) {
	prefix := "RATELIMIT_" + name + "_"
	tier.Requests = getEnvIntOrDefault(prefix+"REQUESTS", tier.Requests)
	tier.Window = getEnvDurationOrDefault(prefix+"WINDOW", tier.Window)
	tier.Burst = getEnvIntOrDefault(prefix+"BURST", tier.Burst)
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	if c.JWTSharedToken == "" {
		return ErrMissingJWTSecret
	}

	switch c.StoreDriver {
	case "sqlite":
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("config: MONGODB_URI is required with the mongo store driver")
		}
	default:
		return fmt.Errorf("%w: store %q", ErrUnknownDriver, c.StoreDriver)
	}

	switch c.LockDriver {
	case "memory":
	case "redis":
		if c.RedisURI == "" {
			return errors.New("config: REDIS_URI is required with the redis lock driver")
		}
	default:
		return fmt.Errorf("%w: lock %q", ErrUnknownDriver, c.LockDriver)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("config: rate limits: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
